// Package connection holds the canonical Project→Workspace→File graph for
// one server login and applies server updates to it.
package connection

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the app server's default port.
const DefaultPort = 8088

// Host describes the server a client connects to.
type Host struct {
	Name      string
	Host      string
	Port      int
	Secure    bool
	URLPrefix string
	User      string
}

func (h Host) port() int {
	if h.Port == 0 {
		return DefaultPort
	}
	return h.Port
}

func (h Host) prefix() string {
	p := strings.Trim(h.URLPrefix, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// BaseURL returns the REST base URL, always ending in a slash.
func (h Host) BaseURL() string {
	scheme := "http"
	if h.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s/", scheme, h.Host, h.port(), h.prefix())
}

// WebSocketURL returns the session endpoint for a workspace.
func (h Host) WebSocketURL(workspaceID int, platform string, build int) string {
	scheme := "ws"
	if h.Secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("client", platform)
	q.Set("build", strconv.Itoa(build))
	return fmt.Sprintf("%s://%s:%d%s/ws/%d?%s", scheme, h.Host, h.port(), h.prefix(), workspaceID, q.Encode())
}

// Identifier is unique per host and safe to use as a directory name.
func (h Host) Identifier() string {
	id := fmt.Sprintf("%s_%d%s", h.Host, h.port(), h.prefix())
	return strings.NewReplacer("/", "_", ":", "_").Replace(id)
}

func (h Host) String() string {
	secure := ""
	if h.Secure {
		secure = " secure"
	}
	return fmt.Sprintf("Host %s %s@%s:%d%s", h.Name, h.User, h.Host, h.port(), secure)
}
