package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	checkURL := func(path, raw string, schemes ...string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf("not an absolute URL: %q", raw)})
			return
		}
		if !slices.Contains(schemes, u.Scheme) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("scheme must be one of %v, got %q", schemes, u.Scheme),
			})
		}
	}
	checkURL("backend.wsUrl", cfg.Backend.WSURL, "ws", "wss")
	checkURL("backend.httpUrl", cfg.Backend.HTTPURL, "http", "https")
	checkURL("backend.pageUrl", cfg.Backend.PageURL, "http", "https")

	if cfg.Backend.RequestTimeout < 0 {
		issues = append(issues, ValidationIssue{Path: "backend.requestTimeout", Message: "must not be negative"})
	}
	if cfg.Realtime.TypingTimeout < 0 {
		issues = append(issues, ValidationIssue{Path: "realtime.typingTimeout", Message: "must not be negative"})
	}
	if cfg.Realtime.TypingThrottle < 0 {
		issues = append(issues, ValidationIssue{Path: "realtime.typingThrottle", Message: "must not be negative"})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}
