// Package updater checks GitHub releases for a newer build and swaps the
// running binary in place. The reminder scheduler consumes the check result;
// installation only happens on explicit user action or when auto-update is
// enabled.
package updater

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	apperrors "mmcore/internal/errors"
)

// Release represents a GitHub release
type Release struct {
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Body    string  `json:"body"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a release asset
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateInfo describes an available newer version
type UpdateInfo struct {
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
	UpdateURL      string `json:"update_url"`
	ReleaseNotes   string `json:"release_notes"`
	Size           int64  `json:"size"`
}

// CheckResult is the outcome of a single update check. UpdateInfo is nil when
// the running version is current.
type CheckResult struct {
	Success        bool        `json:"success"`
	UpdateInfo     *UpdateInfo `json:"update_info,omitempty"`
	CurrentVersion string      `json:"current_version"`
	Error          string      `json:"error,omitempty"`
}

// InstallResult is the outcome of an install attempt
type InstallResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Updater handles release checks and binary replacement.
type Updater struct {
	currentVersion string
	repoURL        string
	executablePath string
	httpClient     *http.Client
	logger         *slog.Logger
	autoUpdate     atomic.Bool
}

// NewUpdater creates an updater for the given repository
func NewUpdater(currentVersion, repoURL string, timeout time.Duration, logger *slog.Logger) (*Updater, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Updater{
		currentVersion: currentVersion,
		repoURL:        repoURL,
		executablePath: execPath,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// CurrentVersion returns the version this binary was built as
func (u *Updater) CurrentVersion() string {
	return u.currentVersion
}

// SetAutoUpdate toggles automatic installation of discovered updates
func (u *Updater) SetAutoUpdate(enabled bool) {
	u.autoUpdate.Store(enabled)
	u.logger.Info("auto-update preference changed",
		slog.Bool("enabled", enabled),
	)
}

// AutoUpdateEnabled reports the current auto-update preference
func (u *Updater) AutoUpdateEnabled() bool {
	return u.autoUpdate.Load()
}

// CheckForUpdates asks the release feed for the latest version. Network
// failures come back in the result rather than as an error so a missed check
// never escalates past the caller.
func (u *Updater) CheckForUpdates(ctx context.Context) CheckResult {
	result := CheckResult{CurrentVersion: u.currentVersion}

	release, err := u.latestRelease(ctx)
	if err != nil {
		u.logger.Warn("update check failed",
			slog.String("error", err.Error()),
		)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	if release.TagName == u.currentVersion {
		return result
	}

	assetName := u.assetName()
	var downloadURL string
	var size int64
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, assetName) {
			downloadURL = asset.BrowserDownloadURL
			size = asset.Size
			break
		}
	}
	if downloadURL == "" {
		u.logger.Warn("release has no asset for this platform",
			slog.String("version", release.TagName),
			slog.String("platform", runtime.GOOS),
		)
		return result
	}

	notes := release.Body
	if notes == "" {
		notes = release.Name
	}
	result.UpdateInfo = &UpdateInfo{
		CurrentVersion: u.currentVersion,
		LatestVersion:  release.TagName,
		UpdateURL:      downloadURL,
		ReleaseNotes:   notes,
		Size:           size,
	}
	return result
}

// InstallUpdate downloads the latest release and replaces the running
// executable, restoring the backup if the swap fails.
func (u *Updater) InstallUpdate(ctx context.Context) InstallResult {
	check := u.CheckForUpdates(ctx)
	if !check.Success {
		return InstallResult{Error: check.Error}
	}
	if check.UpdateInfo == nil {
		return InstallResult{Success: true}
	}

	if err := u.performUpdate(ctx, check.UpdateInfo); err != nil {
		u.logger.Error("update installation failed",
			slog.String("version", check.UpdateInfo.LatestVersion),
			slog.String("error", err.Error()),
		)
		return InstallResult{Error: err.Error()}
	}

	u.logger.Info("update installed, restart required",
		slog.String("version", check.UpdateInfo.LatestVersion),
	)
	return InstallResult{Success: true}
}

// releaseFeedURL maps the configured repository URL onto its latest-release
// feed. GitHub URLs move to the API host; anything else is used as-is.
func (u *Updater) releaseFeedURL() string {
	apiURL := strings.Replace(u.repoURL, "github.com", "api.github.com/repos", 1)
	return strings.TrimSuffix(apiURL, ".git") + "/releases/latest"
}

func (u *Updater) latestRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.releaseFeedURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.E(apperrors.KindTransientNetwork, "updater.check", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.E(apperrors.KindTransientNetwork, "updater.check",
			fmt.Errorf("release feed returned status %d", resp.StatusCode))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	return &release, nil
}

func (u *Updater) performUpdate(ctx context.Context, info *UpdateInfo) error {
	tempDir, err := os.MkdirTemp("", "mm-update-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	downloadPath := filepath.Join(tempDir, "update.zip")
	if err := u.downloadFile(ctx, info.UpdateURL, downloadPath); err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}

	extractDir := filepath.Join(tempDir, "extracted")
	if err := u.extractZip(downloadPath, extractDir); err != nil {
		return fmt.Errorf("failed to extract update: %w", err)
	}

	newExePath, err := u.findExecutable(extractDir)
	if err != nil {
		return fmt.Errorf("failed to find executable in update: %w", err)
	}

	backupPath := u.executablePath + ".backup"
	if err := copyFile(u.executablePath, backupPath); err != nil {
		return fmt.Errorf("failed to backup current executable: %w", err)
	}

	if err := u.replaceExecutable(newExePath); err != nil {
		copyFile(backupPath, u.executablePath)
		return fmt.Errorf("failed to replace executable: %w", err)
	}

	os.Remove(backupPath)
	return nil
}

func (u *Updater) assetName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	case "linux":
		return "linux"
	default:
		return runtime.GOOS
	}
}

func (u *Updater) downloadFile(ctx context.Context, url, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	_, err = io.Copy(out, resp.Body)
	return err
}

func (u *Updater) extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	os.MkdirAll(dest, 0755)

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return err
		}

		path := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
			rc.Close()
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(path, f.FileInfo().Mode())
			rc.Close()
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			rc.Close()
			return err
		}

		outFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.FileInfo().Mode())
		if err != nil {
			rc.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

func (u *Updater) findExecutable(dir string) (string, error) {
	exeName := "mm-core"
	if runtime.GOOS == "windows" {
		exeName = "mm-core.exe"
	}

	var foundPath string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.Contains(info.Name(), exeName) {
			foundPath = path
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if foundPath == "" {
		return "", fmt.Errorf("executable not found in update package")
	}
	return foundPath, nil
}

func (u *Updater) replaceExecutable(newPath string) error {
	if runtime.GOOS == "windows" {
		// The running binary stays locked on Windows; rename it aside first.
		tempPath := u.executablePath + ".old"
		if err := os.Rename(u.executablePath, tempPath); err != nil {
			return err
		}
		if err := copyFile(newPath, u.executablePath); err != nil {
			os.Rename(tempPath, u.executablePath)
			return err
		}
		os.Remove(tempPath)
		return nil
	}
	return copyFile(newPath, u.executablePath)
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}
