package instance

import (
	"os"

	"github.com/bistrodesk/orderflow/pkg/env"
)

// GetID identifies the running process in logs. ORDERFLOW_INSTANCE_ID wins,
// then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
