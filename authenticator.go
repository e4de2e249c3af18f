package auth

import (
	"context"
	"time"
)

// Session is returned by a successful login
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
}

// Authenticator authenticates accounts and issues bearer tokens for them
type Authenticator struct {
	verifier  *Verifier
	tokens    SessionIssuer
	validator TokenValidator
	logger    Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(verifier *Verifier, tokens SessionIssuer) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		tokens:   tokens,
		logger:   defLogger{},
	}
}

// WithTokenValidator replaces the validator used for incoming tokens,
// tokens are still issued by the SessionIssuer.
func (s *Authenticator) WithTokenValidator(v TokenValidator) *Authenticator {
	s.validator = v
	return s
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = normalizeLogger(logger)
	return s
}

// Login checks the credentials and issues a token
func (s *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.verifier.Authenticate(ctx, email, password)
	if err != nil {
		if !IsDomainError(err) {
			s.logger.Error("Login authenticate error", "error", err)
		}
		return nil, err
	}
	return s.issue(account)
}

// LoginOAuth exchanges a provider profile and issues a token
func (s *Authenticator) LoginOAuth(ctx context.Context, profile OAuthProfile) (*Session, error) {
	account, err := s.verifier.ExchangeOAuthProfile(ctx, profile)
	if err != nil {
		if !IsDomainError(err) {
			s.logger.Error("Login oauth exchange error", "provider", profile.Provider, "error", err)
		}
		return nil, err
	}
	return s.issue(account)
}

// Validate parses a bearer token
func (s *Authenticator) Validate(token string) (AuthClaims, error) {
	if s.validator != nil {
		return s.validator.Validate(token)
	}
	return s.tokens.Validate(token)
}

func (s *Authenticator) issue(account *Account) (*Session, error) {
	token, expiresAt, err := s.tokens.Generate(account)
	if err != nil {
		s.logger.Error("Login failed to generate token", "account_id", account.ID, "error", err)
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}
