package auth

import (
	"context"
	"errors"
	"time"
)

// ProvisionAdmin creates an active, verified admin account. It is the
// bootstrap path for the admin panel, regular registration never yields
// admins.
func ProvisionAdmin(ctx context.Context, store CredentialStore, hasher PasswordHasher, email, password string, profile Profile) (*Account, error) {
	if err := checkContext(ctx, "provision admin"); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	if _, err := store.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		if IsDomainError(err) {
			return nil, err
		}
		return nil, wrapInternal(err, "failed to hash password")
	}

	now := time.Now().UTC()
	account := &Account{
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		Role:         RoleAdmin,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile.apply(account)

	account, err = store.Insert(ctx, account)
	if err != nil {
		return nil, err
	}

	return account.Sanitized(), nil
}
