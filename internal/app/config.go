package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/threadstore/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "threadstore"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0o600)
	}
	return nil
}

const defaultConfig = `# threadstore configuration
# Run: threadstore --help

# Storage backend: file (default), sqlite or memory.
# Can also be set via STORAGE_BACKEND or --backend.
# backend: file

# Directory for the file backend.
# Can also be set via THREADSTORE_STORAGE_DIR or --storage-dir.
# storage_dir: ~/.config/threadstore/threads

# Database for the sqlite backend (THREADSTORE_SQLITE_PATH).
# sqlite_path: ~/.config/threadstore/threads.db

# Conversation timeout in hours (CONVERSATION_TIMEOUT_HOURS).
# timeout_hours: 3

# Extend an entry's expiry on every read (CONVERSATION_SLIDING_TTL).
# sliding_ttl: true

# File lock wait in milliseconds (THREADSTORE_LOCK_TIMEOUT_MS).
# lock_timeout_ms: 10000
`
