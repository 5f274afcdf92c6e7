package auth

import (
	"chat-link/domain"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the session JWT.
// The backend puts the user id in "sub", older tokens use "user_id".
type CustomClaims struct {
	UserID string   `json:"user_id,omitempty"`
	Email  string   `json:"email,omitempty"`
	Role   string   `json:"role,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns the user id, whichever claim carries it.
func (c CustomClaims) Subject() string {
	if c.RegisteredClaims.Subject != "" {
		return c.RegisteredClaims.Subject
	}
	return c.UserID
}

// Expired reports whether the token is past its expiry at now.
// A token without expiry never expires.
func (c CustomClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

// Inspect decodes the claims of the session credential without verifying the signature.
// The client does not hold the signing key, only the server can validate the token.
func Inspect(credential domain.Credential) (*CustomClaims, error) {
	claims := &CustomClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(string(credential), claims)
	if err != nil {
		return nil, fmt.Errorf("inspect credential: %w", err)
	}
	return claims, nil
}
