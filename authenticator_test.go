package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

type MockSessionIssuer struct {
	mock.Mock
}

func (m *MockSessionIssuer) Generate(account *auth.Account) (string, time.Time, error) {
	args := m.Called(account)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockSessionIssuer) Validate(token string) (auth.AuthClaims, error) {
	args := m.Called(token)
	if c := args.Get(0); c != nil {
		return c.(auth.AuthClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.registerActive(t, "trader@example.com")

	authenticator := auth.NewAuthenticator(h.verifier, newTokenService(time.Now())).WithLogger(auth.NopLogger())

	session, err := authenticator.Login(ctx, "Trader@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, account.ID, session.Account.ID)
	assert.Empty(t, session.Account.PasswordHash)
	assert.Equal(t, 1, session.Account.LoginCount)

	claims, err := authenticator.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.UserID())
	assert.Equal(t, "user", claims.Role())
	assert.False(t, claims.IsAdmin())
}

func TestLoginErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "pending@example.com")
	h.registerActive(t, "active@example.com")

	authenticator := auth.NewAuthenticator(h.verifier, newTokenService(time.Now())).WithLogger(auth.NopLogger())

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "ghost@example.com", "s3cret-pass", auth.ErrInvalidCredentials},
		{"wrong password", "active@example.com", "nope", auth.ErrInvalidCredentials},
		{"unverified", "pending@example.com", "s3cret-pass", auth.ErrEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := authenticator.Login(ctx, tt.email, tt.password)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, session)
		})
	}
}

func TestLoginTokenFailure(t *testing.T) {
	h := newHarness(t)
	h.registerActive(t, "trader@example.com")

	issuer := &MockSessionIssuer{}
	issuer.On("Generate", mock.Anything).Return("", time.Time{}, errors.New("signer down")).Once()

	authenticator := auth.NewAuthenticator(h.verifier, issuer).WithLogger(auth.NopLogger())

	_, err := authenticator.Login(context.Background(), "trader@example.com", "s3cret-pass")
	require.EqualError(t, err, "signer down")
	issuer.AssertExpectations(t)
}

func TestLoginOAuthIssuesToken(t *testing.T) {
	h := newHarness(t)
	authenticator := auth.NewAuthenticator(h.verifier, newTokenService(time.Now())).WithLogger(auth.NopLogger())

	session, err := authenticator.LoginOAuth(context.Background(), auth.OAuthProfile{
		Provider:      "google",
		Subject:       uuid.NewString(),
		Email:         "oauth@example.com",
		EmailVerified: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, auth.StatusActive, session.Account.Status)
}

func TestAuthenticatorValidateDelegates(t *testing.T) {
	issuer := &MockSessionIssuer{}
	issuer.On("Validate", "bad").Return(nil, auth.ErrTokenMalformed).Once()

	authenticator := auth.NewAuthenticator(auth.NewVerifier(&MockAccounts{}), issuer)
	_, err := authenticator.Validate("bad")
	require.ErrorIs(t, err, auth.ErrTokenMalformed)
	issuer.AssertExpectations(t)
}
