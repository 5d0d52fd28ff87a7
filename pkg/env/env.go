package env

import (
	"os"
	"strings"
)

const prefix = "FIELDSYNC_"

// Get returns FIELDSYNC_<key>, then <key>, then fallback.
func Get(key, fallback string) string {
	if !strings.HasPrefix(key, prefix) {
		if val := strings.TrimSpace(os.Getenv(prefix + key)); val != "" {
			return val
		}
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
