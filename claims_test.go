package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

func TestJWTClaimsAccessors(t *testing.T) {
	exp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	iat := exp.Add(-time.Hour)

	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "subject-1",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
		UID:       "user-1",
		UserRole:  "user",
		UserEmail: "user@example.com",
	}

	assert.Equal(t, "subject-1", claims.Subject())
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "user", claims.Role())
	assert.Equal(t, "user@example.com", claims.Email())
	assert.Equal(t, "jti-1", claims.TokenID())
	assert.True(t, claims.HasRole("user"))
	assert.False(t, claims.HasRole("admin"))
	assert.False(t, claims.IsAdmin())
	assert.True(t, exp.Equal(claims.Expires()))
	assert.True(t, iat.Equal(claims.IssuedAt()))
}

func TestJWTClaimsFallbacks(t *testing.T) {
	claims := &auth.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-1"}}

	assert.Equal(t, "subject-1", claims.UserID(), "falls back to the subject")
	assert.False(t, claims.HasRole(""))
	assert.True(t, claims.Expires().IsZero())
	assert.True(t, claims.IssuedAt().IsZero())
}

func TestJWTClaimsJSONNames(t *testing.T) {
	raw, err := json.Marshal(&auth.JWTClaims{UID: "u", UserRole: "admin", UserEmail: "e@example.com"})
	require.NoError(t, err)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "u", out["uid"])
	assert.Equal(t, "admin", out["role"])
	assert.Equal(t, "e@example.com", out["email"])
}

func TestAccountRole(t *testing.T) {
	role, ok := auth.ParseRole("admin")
	assert.True(t, ok)
	assert.True(t, role.IsAdmin())

	_, ok = auth.ParseRole("root")
	assert.False(t, ok)
	assert.False(t, auth.RoleUser.IsAdmin())
}
