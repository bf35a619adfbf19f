package rest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can learn from a bearer token without the
// server's signing key.
type TokenInfo struct {
	UserID    int
	Login     string
	ExpiresAt time.Time
}

// Expired reports whether the token expires within margin.
func (t TokenInfo) Expired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

type tokenClaims struct {
	UserID   int    `json:"user_id"`
	Login    string `json:"login"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// InspectToken parses a JWT bearer token without verifying its signature.
// Verification is the server's job; the client only needs expiry and identity.
func InspectToken(token string) (TokenInfo, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}

	info := TokenInfo{UserID: claims.UserID, Login: claims.Login}
	if info.Login == "" {
		info.Login = claims.Username
	}
	if info.UserID == 0 && claims.Subject != "" {
		if id, err := strconv.Atoi(claims.Subject); err == nil {
			info.UserID = id
		}
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
