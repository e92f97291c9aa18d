package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".supportchat"

// Paths holds resolved filesystem paths for supportchat data.
type Paths struct {
	Base   string // ~/.supportchat
	Config string // ~/.supportchat/config.yaml
	Data   string // ~/.supportchat/data
	Logs   string // ~/.supportchat/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If SUPPORTCHAT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("SUPPORTCHAT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// TranscriptDB is the default location of the transcript archive.
func (p Paths) TranscriptDB() string {
	return filepath.Join(p.Data, "transcripts.db")
}

// settableKeys lists the dotted paths `config set` may write.
var settableKeys = map[string]bool{
	"backend.wsUrl":           true,
	"backend.httpUrl":         true,
	"backend.pageUrl":         true,
	"backend.requestTimeout":  true,
	"auth.token":              true,
	"realtime.typingTimeout":  true,
	"realtime.typingThrottle": true,
	"logging.level":           true,
	"logging.style":           true,
	"logging.file":            true,
	"transcript.enabled":      true,
	"transcript.path":         true,
}

// IsSettable reports whether key names a known leaf setting.
func IsSettable(key string) bool {
	return settableKeys[key]
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if the path is empty or has an empty segment.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}
