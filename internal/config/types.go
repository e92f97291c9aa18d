package config

import "time"

// Config is the root configuration for supportchat.
type Config struct {
	Backend    BackendConfig    `yaml:"backend,omitempty"`
	Auth       AuthConfig       `yaml:"auth,omitempty"`
	Realtime   RealtimeConfig   `yaml:"realtime,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Transcript TranscriptConfig `yaml:"transcript,omitempty"`
}

// BackendConfig locates the chat backend. Resolution order for sockets is
// WSURL, then HTTPURL, then PageURL, then ws://localhost:8000.
type BackendConfig struct {
	WSURL          string        `yaml:"wsUrl,omitempty"`   // explicit socket base, e.g. wss://chat.example.com
	HTTPURL        string        `yaml:"httpUrl,omitempty"` // REST base; http→ws, https→wss for sockets
	PageURL        string        `yaml:"pageUrl,omitempty"` // origin the widget is served from
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`
}

// AuthConfig carries the bearer token used for agent/admin REST calls.
// The token may reference an environment variable as ${VAR}.
type AuthConfig struct {
	Token string `yaml:"token,omitempty"`
}

// RealtimeConfig tunes the typing indicator.
type RealtimeConfig struct {
	TypingTimeout  time.Duration `yaml:"typingTimeout,omitempty"`
	TypingThrottle time.Duration `yaml:"typingThrottle,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
	File  string `yaml:"file,omitempty"`
}

// TranscriptConfig controls the local SQLite transcript archive.
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}
