package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigDir_UsesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "threadstore"), dir)
}

func TestEnsureConfigDir_CreatesDefaultConfigOnlyWhenMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := EnsureConfigDir()
	require.NoError(t, err)

	dir, err := ConfigDir()
	require.NoError(t, err)

	configFile := filepath.Join(dir, "config.yaml")
	b, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, defaultConfig, string(b))

	custom := []byte("backend: sqlite\n")
	require.NoError(t, os.WriteFile(configFile, custom, 0o600))

	err = EnsureConfigDir()
	require.NoError(t, err)

	b, err = os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, string(custom), string(b))
}

func TestDefaultConfig_ParsesToEmptySettings(t *testing.T) {
	var s Settings
	require.NoError(t, yaml.Unmarshal([]byte(defaultConfig), &s))
	require.Equal(t, Settings{}, s, "every key in the default file is commented out")
}
