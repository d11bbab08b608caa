package kv

import (
	"path/filepath"
	"strings"
)

// fileSuffix is appended to every sanitized key; the sweep only considers
// files carrying it.
const fileSuffix = ".json"

var unsafeKeyChars = strings.NewReplacer("/", "_", ":", "_")

// SanitizeKey maps a key to a file name stem by replacing '/' and ':' with
// '_'. The mapping is not injective: "a:b" and "a_b" share a stem and are
// therefore the same entry. Keys are generated internally, so collisions
// are accepted rather than resolved.
func SanitizeKey(key string) string {
	return unsafeKeyChars.Replace(key)
}

// KeyPath is the file FileStore uses for key under dir.
func KeyPath(dir, key string) string {
	return filepath.Join(dir, SanitizeKey(key)+fileSuffix)
}
