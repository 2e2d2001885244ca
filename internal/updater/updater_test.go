package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mmcore/internal/errors"
)

func releaseServer(t *testing.T, release Release) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/releases/latest", r.URL.Path)
		json.NewEncoder(w).Encode(release)
	}))
	t.Cleanup(server.Close)
	return server
}

// allPlatformAssets carries one asset per platform so the test passes
// regardless of where it runs.
func allPlatformAssets(base string) []Asset {
	return []Asset{
		{Name: "mm-core-macos.zip", BrowserDownloadURL: base + "/macos.zip", Size: 100},
		{Name: "mm-core-windows.zip", BrowserDownloadURL: base + "/windows.zip", Size: 200},
		{Name: "mm-core-linux.zip", BrowserDownloadURL: base + "/linux.zip", Size: 300},
	}
}

func TestCheckForUpdatesFindsNewerVersion(t *testing.T) {
	server := releaseServer(t, Release{
		TagName: "1.1.0",
		Name:    "Memory Monster 1.1.0",
		Body:    "Faster scans.",
		Assets:  allPlatformAssets("https://downloads.example"),
	})

	u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
	require.NoError(t, err)

	result := u.CheckForUpdates(context.Background())
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, "1.0.0", result.CurrentVersion)

	require.NotNil(t, result.UpdateInfo)
	assert.Equal(t, "1.1.0", result.UpdateInfo.LatestVersion)
	assert.Equal(t, "Faster scans.", result.UpdateInfo.ReleaseNotes)
	assert.Contains(t, result.UpdateInfo.UpdateURL, "https://downloads.example/")
	assert.NotZero(t, result.UpdateInfo.Size)
}

func TestCheckForUpdatesAlreadyCurrent(t *testing.T) {
	server := releaseServer(t, Release{
		TagName: "1.0.0",
		Assets:  allPlatformAssets("https://downloads.example"),
	})

	u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
	require.NoError(t, err)

	result := u.CheckForUpdates(context.Background())
	assert.True(t, result.Success)
	assert.Nil(t, result.UpdateInfo, "running the latest version means no update")
}

func TestCheckForUpdatesNoPlatformAsset(t *testing.T) {
	server := releaseServer(t, Release{
		TagName: "1.1.0",
		Assets:  []Asset{{Name: "mm-core-source.tar.gz", BrowserDownloadURL: "https://x/src"}},
	})

	u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
	require.NoError(t, err)

	result := u.CheckForUpdates(context.Background())
	assert.True(t, result.Success)
	assert.Nil(t, result.UpdateInfo, "a release without an asset for this platform is not installable")
}

func TestCheckForUpdatesFeedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
	require.NoError(t, err)

	result := u.CheckForUpdates(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.UpdateInfo)
}

func TestCheckForUpdatesUnreachableFeed(t *testing.T) {
	u, err := NewUpdater("1.0.0", "http://127.0.0.1:1", time.Second, nil)
	require.NoError(t, err)

	result := u.CheckForUpdates(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestLatestReleaseErrorKinds(t *testing.T) {
	t.Run("http error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)

		u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
		require.NoError(t, err)

		_, err = u.latestRelease(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("malformed payload is not transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		t.Cleanup(server.Close)

		u, err := NewUpdater("1.0.0", server.URL, 5*time.Second, nil)
		require.NoError(t, err)

		_, err = u.latestRelease(context.Background())
		require.Error(t, err)
		assert.False(t, apperrors.IsTransient(err))
	})
}

func TestLatestReleaseRewritesGitHubURL(t *testing.T) {
	// Only github.com URLs are rewritten onto the API host; anything else is
	// used as-is, which is also what the feed tests above rely on.
	u := &Updater{repoURL: "https://github.com/memorymonster/memory-monster-app"}
	apiURL := "https://api.github.com/repos/memorymonster/memory-monster-app/releases/latest"

	got := u.releaseFeedURL()
	assert.Equal(t, apiURL, got)

	u.repoURL = "https://github.com/memorymonster/memory-monster-app.git"
	assert.Equal(t, apiURL, u.releaseFeedURL())
}

func TestAutoUpdatePreference(t *testing.T) {
	u, err := NewUpdater("1.0.0", "http://127.0.0.1:1", time.Second, nil)
	require.NoError(t, err)

	assert.False(t, u.AutoUpdateEnabled())
	u.SetAutoUpdate(true)
	assert.True(t, u.AutoUpdateEnabled())
	u.SetAutoUpdate(false)
	assert.False(t, u.AutoUpdateEnabled())
}

func TestCurrentVersion(t *testing.T) {
	u, err := NewUpdater("2.3.4", "http://127.0.0.1:1", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.3.4", u.CurrentVersion())
}
