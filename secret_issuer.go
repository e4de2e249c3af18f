package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultCodeLength        = 6
	DefaultLinkTokenLength   = 32
	DefaultVerificationTTL   = 24 * time.Hour
	DefaultMaxSecretAttempts = 5
)

// IssuedSecret is a freshly issued verification secret. The plaintext
// Secret only lives in memory long enough to be dispatched.
type IssuedSecret struct {
	Secret    string
	Kind      SecretKind
	ExpiresAt time.Time
	Attempts  int
}

// SecretIssuer produces single use, time limited verification secrets
type SecretIssuer interface {
	// Issue generates a secret for the account and persists its digest,
	// replacing any outstanding one.
	Issue(ctx context.Context, accountID uuid.UUID) (*IssuedSecret, error)
}

// IssuerOption customizes the default issuer
type IssuerOption func(*secretIssuer)

// WithSecretKind selects numeric codes or link tokens
func WithSecretKind(kind SecretKind) IssuerOption {
	return func(s *secretIssuer) {
		if kind == SecretCode || kind == SecretLink {
			s.kind = kind
		}
	}
}

// WithCodeLength sets the number of digits of numeric codes
func WithCodeLength(n int) IssuerOption {
	return func(s *secretIssuer) {
		if n >= 4 && n <= 12 {
			s.codeLength = n
		}
	}
}

// WithSecretTTL sets the validity window of issued secrets
func WithSecretTTL(ttl time.Duration) IssuerOption {
	return func(s *secretIssuer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSecretAttempts sets how many invalid submissions a secret tolerates
func WithSecretAttempts(n int) IssuerOption {
	return func(s *secretIssuer) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithIssuerClock injects a custom clock (useful for tests).
func WithIssuerClock(clock Clock) IssuerOption {
	return func(s *secretIssuer) {
		if clock != nil {
			s.now = clock
		}
	}
}

type secretIssuer struct {
	store      CredentialStore
	kind       SecretKind
	codeLength int
	ttl        time.Duration
	attempts   int
	now        Clock
}

// NewSecretIssuer returns an issuer persisting through store
func NewSecretIssuer(store CredentialStore, opts ...IssuerOption) SecretIssuer {
	s := &secretIssuer{
		store:      store,
		kind:       SecretCode,
		codeLength: DefaultCodeLength,
		ttl:        DefaultVerificationTTL,
		attempts:   DefaultMaxSecretAttempts,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *secretIssuer) Issue(ctx context.Context, accountID uuid.UUID) (*IssuedSecret, error) {
	secret, err := s.generate()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	issued := &IssuedSecret{
		Secret:    secret,
		Kind:      s.kind,
		ExpiresAt: now.Add(s.ttl),
		Attempts:  s.attempts,
	}

	err = s.store.SetVerification(ctx, accountID, VerificationRecord{
		Digest:    DigestSecret(secret),
		Kind:      s.kind,
		ExpiresAt: issued.ExpiresAt,
		Attempts:  s.attempts,
		SentAt:    now,
	})
	if err != nil {
		return nil, err
	}

	return issued, nil
}

func (s *secretIssuer) generate() (string, error) {
	switch s.kind {
	case SecretLink:
		token, err := gonanoid.New(DefaultLinkTokenLength)
		if err != nil {
			return "", wrapInternal(err, "failed to generate verification token")
		}
		return token, nil
	default:
		return GenerateNumericCode(s.codeLength)
	}
}

// GenerateNumericCode returns n digits drawn uniformly from [0, 10^n),
// leading zeros included.
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", wrapInternal(err, "failed to generate verification code")
	}
	return fmt.Sprintf("%0*s", n, v.String()), nil
}

// DigestSecret is the stored form of a secret
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares a submitted secret against a stored digest in
// constant time.
func SecretMatches(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(DigestSecret(secret)), []byte(digest)) == 1
}
