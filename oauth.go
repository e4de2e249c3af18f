package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// OAuthProfile is the identity returned by an external provider after a
// successful authorization code exchange.
type OAuthProfile struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
}

// ExchangeOAuthProfile resolves a provider profile to a local account.
//
// Existing accounts go through the same status checks as password logins,
// except that an unverified account whose provider reports a verified email
// is activated. Unknown emails create a new account: active when the
// provider verified the email, unverified with a dispatched secret otherwise.
func (v *Verifier) ExchangeOAuthProfile(ctx context.Context, profile OAuthProfile) (*Account, error) {
	if err := checkContext(ctx, "oauth exchange"); err != nil {
		return nil, err
	}

	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, ErrInvalidInput
	}

	account, err := v.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		account, err = v.createOAuthAccount(ctx, email, profile)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if account.Status == StatusUnverified && profile.EmailVerified {
		account, err = v.sm.Transition(ctx, SystemActor, account, StatusActive,
			WithTransitionMetadata(map[string]any{"provider": profile.Provider}),
		)
		if err != nil {
			if errors.Is(err, ErrStatusConflict) {
				if account, err = v.store.FindByID(ctx, account.ID); err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
	}

	if err := statusAuthError(account.Status); err != nil {
		return nil, err
	}

	now := v.now().UTC()
	if err := v.store.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, err
	}
	account.LoginCount++
	account.LastLoginAt = &now

	emitActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType:  ActivityEventOAuthLogin,
		Actor:      ActorRef{ID: account.ID.String(), Type: string(account.Role)},
		AccountID:  account.ID.String(),
		Metadata:   map[string]any{"provider": profile.Provider, "subject": profile.Subject},
		OccurredAt: now,
	})

	return account.Sanitized(), nil
}

func (v *Verifier) createOAuthAccount(ctx context.Context, email string, profile OAuthProfile) (*Account, error) {
	if !profile.EmailVerified {
		res, err := v.Register(ctx, RegisterRequest{
			Email:    email,
			Password: uuid.NewString(),
			Profile:  oauthRegistrationProfile(profile),
		})
		if err != nil {
			return nil, err
		}
		return v.store.FindByID(ctx, res.Account.ID)
	}

	hash, err := randomPasswordHash(v.hasher)
	if err != nil {
		return nil, wrapInternal(err, "failed to hash password")
	}

	now := v.now().UTC()
	account := &Account{
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		Role:         RoleUser,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	oauthRegistrationProfile(profile).apply(account)

	return v.store.Insert(ctx, account)
}

func oauthRegistrationProfile(profile OAuthProfile) Profile {
	p := Profile{
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
	}
	if profile.Provider != "" {
		p.Metadata = map[string]any{
			"oauth_provider": profile.Provider,
			"oauth_subject":  profile.Subject,
		}
	}
	return p
}
