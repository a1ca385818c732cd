// Package instance names the running process for lock ownership and logs.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "numberpool-0"

// GetID returns NUMBERPOOL_INSTANCE_ID, then the hostname, then a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("NUMBERPOOL_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
