// Package env reads the few settings needed before config.Load runs.
package env

import (
	"os"
	"strings"
)

const prefix = "NUMBERPOOL_"

// Get returns NUMBERPOOL_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
