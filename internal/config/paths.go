package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Paths holds all resolved filesystem locations used by the daemon. Every
// component asks this struct for locations instead of building paths ad hoc.
type Paths struct {
	DataDir    string
	LogsDir    string
	ConfigFile string
	LogFile    string
}

var (
	cachedPaths *Paths
	pathsOnce   sync.Once
	pathsErr    error
)

// GetPaths resolves the per-user application directories exactly once.
// MM_DATA_DIR overrides the platform default, which keeps tests hermetic.
func GetPaths() (*Paths, error) {
	pathsOnce.Do(func() {
		cachedPaths, pathsErr = resolvePaths()
	})
	return cachedPaths, pathsErr
}

// ResetPathsForTesting clears the cached paths. Tests only.
func ResetPathsForTesting() {
	pathsOnce = sync.Once{}
	cachedPaths = nil
	pathsErr = nil
}

func resolvePaths() (*Paths, error) {
	dataDir := os.Getenv("MM_DATA_DIR")
	if dataDir == "" {
		base, err := userDataBase()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user data directory: %w", err)
		}
		dataDir = filepath.Join(base, "MemoryMonster")
	}

	logsDir := filepath.Join(dataDir, "logs")

	return &Paths{
		DataDir:    dataDir,
		LogsDir:    logsDir,
		ConfigFile: filepath.Join(dataDir, "config.yaml"),
		LogFile:    filepath.Join(logsDir, "core.log"),
	}, nil
}

// userDataBase returns the platform-appropriate application-support directory.
func userDataBase() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	}
	return os.UserConfigDir()
}

// EnsureDirectories creates all required directories with sane permissions.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
