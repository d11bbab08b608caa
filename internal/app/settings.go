package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys. Pointer fields distinguish an
// unset key from an explicit zero or false.
type Settings struct {
	Backend       string `yaml:"backend"`
	StorageDir    string `yaml:"storage_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	TimeoutHours  *int   `yaml:"timeout_hours"`
	SlidingTTL    *bool  `yaml:"sliding_ttl"`
	LockTimeoutMS *int   `yaml:"lock_timeout_ms"`
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// overrideMu and overrides hold process-wide CLI flag overrides.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsPath string
	settingsErr  error

	overrideMu sync.RWMutex
	overrides  Overrides
)

// Overrides are values set from CLI flags. They beat every other source.
type Overrides struct {
	Backend    string
	StorageDir string
}

// SetOverrides replaces the process-wide CLI overrides.
func SetOverrides(o Overrides) {
	overrideMu.Lock()
	overrides = o
	overrideMu.Unlock()
}

func getOverrides() Overrides {
	overrideMu.RLock()
	o := overrides
	overrideMu.RUnlock()
	return o
}

// configPaths lists config.yaml candidates, first found wins:
// 1) ~/.config/threadstore/config.yaml
// 2) /etc/threadstore/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
func configPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "threadstore", "config.yaml"),
		"config.yaml",
	}, nil
}

// LoadSettings loads configuration once using the configPaths lookup order.
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings, settingsPath, settingsErr = loadFirstSettings()
	})
	return settings, settingsErr
}

// SettingsSource reports which config.yaml LoadSettings used, or "" if none.
func SettingsSource() (string, error) {
	_, err := LoadSettings()
	return settingsPath, err
}

func loadFirstSettings() (Settings, string, error) {
	paths, err := configPaths()
	if err != nil {
		return Settings{}, "", err
	}
	for _, p := range paths {
		s, err := loadSettingsFile(p)
		if err == nil {
			return s, p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, "", err
		}
	}
	return Settings{}, "", nil
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: fixed config locations
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
