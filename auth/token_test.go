package auth

import (
	"chat-link/domain"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var key = []byte("test_secret_key_for_session_tokens")

// generateToken signs a session token the way the backend does.
func generateToken(key []byte, userID string, roles []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-link",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func TestInspect(t *testing.T) {
	req := require.New(t)
	token, err := generateToken(key, "u-1", []string{"ADMIN"}, time.Hour)
	req.NoError(err)

	claims, err := Inspect(domain.Credential(token))

	req.NoError(err)
	req.Equal("u-1", claims.Subject())
	req.Equal([]string{"ADMIN"}, claims.Roles)
	req.False(claims.Expired(time.Now()))
	req.True(claims.Expired(time.Now().Add(2 * time.Hour)))
}

func TestInspect_Expired_Token_Still_Decodes(t *testing.T) {
	req := require.New(t)
	token, err := generateToken(key, "u-1", nil, -time.Minute)
	req.NoError(err)

	claims, err := Inspect(domain.Credential(token))

	req.NoError(err)
	req.True(claims.Expired(time.Now()))
}

func TestInspect_Opaque_Credential(t *testing.T) {
	req := require.New(t)

	_, err := Inspect("not-a-jwt")

	req.Error(err)
}

func TestCustomClaims_Without_Expiry(t *testing.T) {
	req := require.New(t)
	claims := CustomClaims{UserID: "legacy"}

	req.Equal("legacy", claims.Subject())
	req.False(claims.Expired(time.Now()))
}
