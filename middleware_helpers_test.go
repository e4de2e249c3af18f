package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
	"github.com/classiqueozofficial1-web/stockfx-auth/middleware/jwtware"
)

type foreignClaims struct{}

func (foreignClaims) Subject() string     { return "x" }
func (foreignClaims) UserID() string      { return "x" }
func (foreignClaims) Role() string        { return "admin" }
func (foreignClaims) HasRole(string) bool { return true }

func TestContextEnricherAdapter(t *testing.T) {
	ctx := auth.ContextEnricherAdapter(context.Background(), &auth.JWTClaims{UID: "admin-9", UserRole: "admin"})

	claims, ok := auth.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "admin-9", claims.UserID())

	actor, ok := auth.ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "admin-9", actor.ID)

	ctx = auth.ContextEnricherAdapter(context.Background(), foreignClaims{})
	_, ok = auth.GetClaims(ctx)
	assert.False(t, ok)
}

func TestRegisterValidationListeners(t *testing.T) {
	cfg := jwtware.Config{}
	auth.RegisterValidationListeners(&cfg)
	assert.Empty(t, cfg.ValidationListeners)

	auth.RegisterValidationListeners(&cfg, auth.ActiveAccountListener(nil))
	assert.Len(t, cfg.ValidationListeners, 1)

	auth.RegisterValidationListeners(nil, auth.ActiveAccountListener(nil))
}
