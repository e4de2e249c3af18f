package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

func TestProvisionAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	account, err := auth.ProvisionAdmin(ctx, h.repo.Accounts(), hasher, "Root@Example.com", "admin-pass", auth.Profile{FirstName: "Ro"})
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", account.Email)
	assert.Equal(t, auth.RoleAdmin, account.Role)
	assert.Equal(t, auth.StatusActive, account.Status)
	assert.NotNil(t, account.VerifiedAt)
	assert.Empty(t, account.PasswordHash)

	logged, err := h.verifier.Authenticate(ctx, "root@example.com", "admin-pass")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, logged.Role)

	_, err = auth.ProvisionAdmin(ctx, h.repo.Accounts(), hasher, "root@example.com", "x", auth.Profile{})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)

	_, err = auth.ProvisionAdmin(ctx, h.repo.Accounts(), hasher, "", "x", auth.Profile{})
	require.ErrorIs(t, err, auth.ErrInvalidInput)
}
