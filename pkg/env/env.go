package env

import (
	"os"
	"strings"
)

const prefix = "ORDERFLOW_"

// Get returns ORDERFLOW_<key>, then <key>, then fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
