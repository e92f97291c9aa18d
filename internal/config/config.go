// Package config loads supportchat settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"time"
)

// Default realtime timings.
const (
	DefaultTypingTimeout  = 3 * time.Second
	DefaultTypingThrottle = 1500 * time.Millisecond
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied. Backend URLs
// are left empty so endpoint resolution falls through to its own defaults.
func Defaults() Config {
	return Config{
		Realtime: RealtimeConfig{
			TypingTimeout:  DefaultTypingTimeout,
			TypingThrottle: DefaultTypingThrottle,
		},
		Logging: LoggingConfig{
			Level: "warn",
			Style: "pretty",
		},
	}
}
