package connection

import (
	"time"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

// Info is everything needed to talk to a server as one user.
type Info struct {
	Host      Host
	Token     string
	User      models.User
	TokenInfo rest.TokenInfo

	// Platform and Build are reported to the session endpoint.
	Platform string
	Build    int
}

// NewInfo inspects token and fills TokenInfo. The token is not verified.
func NewInfo(host Host, token string) (*Info, error) {
	ti, err := rest.InspectToken(token)
	if err != nil {
		return nil, err
	}
	return &Info{Host: host, Token: token, TokenInfo: ti, Platform: "go", Build: 1}, nil
}

// WebSocketURL returns the session endpoint for a workspace.
func (i *Info) WebSocketURL(workspaceID int) string {
	return i.Host.WebSocketURL(workspaceID, i.Platform, i.Build)
}

// RESTConfig returns a REST client configuration for this login.
func (i *Info) RESTConfig(timeout time.Duration) rest.Config {
	return rest.Config{
		BaseURL:   i.Host.BaseURL(),
		Timeout:   timeout,
		AuthToken: i.Token,
	}
}

// TokenExpired reports whether the bearer token expires within margin.
func (i *Info) TokenExpired(margin time.Duration) bool {
	return i.TokenInfo.Expired(margin)
}
