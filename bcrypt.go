package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, zero picks the build default
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = passwordHashCost()
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// HashPassword will generate a password hash
func (b *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", wrapInternal(err, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b *BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return wrapInternal(err, "failed to compare password hash")
	}
	return nil
}

// RandomPasswordHash is a hash of a throw away password, used for accounts
// created through an external identity provider.
func (b *BcryptHasher) RandomPasswordHash() (string, error) {
	return b.HashPassword(uuid.NewString())
}

func randomPasswordHash(h PasswordHasher) (string, error) {
	if r, ok := h.(interface{ RandomPasswordHash() (string, error) }); ok {
		return r.RandomPasswordHash()
	}
	return h.HashPassword(uuid.NewString())
}

var _ PasswordHasher = (*BcryptHasher)(nil)
