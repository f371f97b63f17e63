package instance

import (
	"os"

	"github.com/angelmondragon/barter-backend/pkg/env"
)

const EnvInstanceID = "BARTER_INSTANCE_ID"

// GetID identifies the running process in logs. Falls back to the dyno name
// and then the hostname.
func GetID() string {
	if id := env.Get(EnvInstanceID, env.Get("DYNO", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
