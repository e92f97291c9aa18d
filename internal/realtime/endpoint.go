// Package realtime implements the browser-facing chat socket clients: one
// persistent connection per view, a typed inbound event reducer, and local
// append-only message state.
package realtime

import (
	"net"
	"net/url"
	"strings"

	"github.com/soyeahso/supportchat/internal/config"
)

// Role selects which socket endpoint a view binds to and which inbound
// events it reacts to.
type Role string

const (
	RoleSession Role = "session" // customer
	RoleAgent   Role = "agent"   // employee/admin that has taken a session
	RoleWatch   Role = "watch"   // read-only admin observer
)

const (
	fallbackBase = "ws://localhost:8000"
	devPagePort  = "3000"
	backendPort  = "8000"
)

// Endpoint names one socket: the role plus the session or agent id it is
// bound to.
type Endpoint struct {
	Role Role
	ID   string
}

// Path returns the role-specific socket path, e.g. /ws/session/{id}.
func (e Endpoint) Path() string {
	return "/ws/" + string(e.Role) + "/" + url.PathEscape(e.ID)
}

// ResolveURL derives the socket URL for ep. An explicit socket base wins,
// then the REST base with its scheme translated, then the page origin with
// the dev-server port mapped to the backend port.
func ResolveURL(b config.BackendConfig, ep Endpoint) string {
	path := ep.Path()

	if b.WSURL != "" {
		return strings.TrimSuffix(b.WSURL, "/") + path
	}

	if b.HTTPURL != "" {
		u, err := url.Parse(b.HTTPURL)
		if err != nil || u.Host == "" {
			return path
		}
		return wsScheme(u.Scheme) + "://" + u.Host + path
	}

	if b.PageURL != "" {
		if u, err := url.Parse(b.PageURL); err == nil && u.Host != "" {
			port := u.Port()
			if port == devPagePort || port == "" {
				port = backendPort
			}
			return wsScheme(u.Scheme) + "://" + net.JoinHostPort(u.Hostname(), port) + path
		}
	}

	return fallbackBase + path
}

func wsScheme(httpScheme string) string {
	if httpScheme == "https" {
		return "wss"
	}
	return "ws"
}
