package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

type tokenConfig struct {
	key string
}

func (c tokenConfig) GetSigningKey() string   { return c.key }
func (c tokenConfig) GetTokenExpiration() int { return 2 }
func (c tokenConfig) GetIssuer() string       { return "stockfx" }
func (c tokenConfig) GetAudience() []string   { return []string{"admin-panel"} }

func newTokenService(now time.Time) *auth.TokenService {
	return auth.NewTokenServiceFromConfig(tokenConfig{key: "test-signing-key"}, auth.NopLogger()).
		WithClock(func() time.Time { return now })
}

func TestTokenServiceRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	ts := newTokenService(now)
	account := &auth.Account{ID: uuid.New(), Email: "root@example.com", Role: auth.RoleAdmin}

	token, expiresAt, err := ts.Generate(account)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, now.Add(2*time.Hour), expiresAt)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.Subject())
	assert.Equal(t, account.ID.String(), claims.UserID())
	assert.Equal(t, "admin", claims.Role())
	assert.Equal(t, "root@example.com", claims.Email())
	assert.True(t, claims.IsAdmin())
	assert.True(t, claims.HasRole("admin"))
	assert.NotEmpty(t, claims.TokenID())
	assert.True(t, claims.Expires().Equal(expiresAt))
	assert.True(t, claims.IssuedAt().Equal(now))
}

func TestTokenServiceUniqueTokenIDs(t *testing.T) {
	ts := newTokenService(time.Now())
	account := &auth.Account{ID: uuid.New(), Role: auth.RoleUser}

	a, _, err := ts.Generate(account)
	require.NoError(t, err)
	b, _, err := ts.Generate(account)
	require.NoError(t, err)

	ca, err := ts.Validate(a)
	require.NoError(t, err)
	cb, err := ts.Validate(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.TokenID(), cb.TokenID())
}

func TestTokenServiceExpired(t *testing.T) {
	issuedAt := time.Now().Add(-3 * time.Hour)
	token, _, err := newTokenService(issuedAt).Generate(&auth.Account{ID: uuid.New(), Role: auth.RoleUser})
	require.NoError(t, err)

	_, err = newTokenService(time.Now()).Validate(token)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenServiceRejectsTampering(t *testing.T) {
	now := time.Now()
	token, _, err := newTokenService(now).Generate(&auth.Account{ID: uuid.New(), Role: auth.RoleUser})
	require.NoError(t, err)

	other := auth.NewTokenService([]byte("another-key"), 2, "stockfx", jwt.ClaimStrings{"admin-panel"}, auth.NopLogger())
	_, err = other.Validate(token)
	require.ErrorIs(t, err, auth.ErrTokenMalformed)

	_, err = newTokenService(now).Validate("not.a.jwt")
	require.ErrorIs(t, err, auth.ErrTokenMalformed)
	assert.True(t, auth.IsMalformedError(err))
}

func TestTokenServiceChecksIssuerAndAudience(t *testing.T) {
	now := time.Now()
	foreign := auth.NewTokenService([]byte("test-signing-key"), 2, "someone-else", jwt.ClaimStrings{"admin-panel"}, auth.NopLogger())
	token, _, err := foreign.Generate(&auth.Account{ID: uuid.New(), Role: auth.RoleAdmin})
	require.NoError(t, err)

	_, err = newTokenService(now).Validate(token)
	require.ErrorIs(t, err, auth.ErrTokenMalformed)

	wrongAudience := auth.NewTokenService([]byte("test-signing-key"), 2, "stockfx", jwt.ClaimStrings{"mobile"}, auth.NopLogger())
	token, _, err = wrongAudience.Generate(&auth.Account{ID: uuid.New(), Role: auth.RoleAdmin})
	require.NoError(t, err)

	_, err = newTokenService(now).Validate(token)
	require.ErrorIs(t, err, auth.ErrTokenMalformed)
}

func TestTokenServiceRejectsNoneAlgorithm(t *testing.T) {
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "stockfx",
			Audience:  jwt.ClaimStrings{"admin-panel"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserRole: "admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTokenService(time.Now()).Validate(token)
	require.ErrorIs(t, err, auth.ErrTokenMalformed)
}

func TestTokenServiceGenerateNilAccount(t *testing.T) {
	_, _, err := newTokenService(time.Now()).Generate(nil)
	require.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestTokenServiceDefaultExpiration(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	ts := auth.NewTokenService([]byte("k"), 0, "", nil, nil).WithClock(func() time.Time { return now })

	_, expiresAt, err := ts.Generate(&auth.Account{ID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), expiresAt)
}
