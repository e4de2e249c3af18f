package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/classiqueozofficial1-web/stockfx-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter adapts jwtware.AuthClaims to auth.AuthClaims and stores
// the claims, and the admin actor when the role allows it, in the standard context.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}

	ctxWithClaims := WithClaimsContext(c, authClaims)

	if authClaims.IsAdmin() {
		return WithActorContext(ctxWithClaims, AdminActor{ID: authClaims.UserID()})
	}

	return ctxWithClaims
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// AccountLookup resolves the account a token was issued for
type AccountLookup func(ctx context.Context, id uuid.UUID) (*Account, error)

// ActiveAccountListener rejects tokens whose account is no longer active.
// Tokens are not revocable, so this is what locks out a terminated admin
// before the token expires.
func ActiveAccountListener(lookup AccountLookup) ValidationListener {
	return func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
		id, err := uuid.Parse(claims.UserID())
		if err != nil {
			return ErrTokenMalformed
		}

		account, err := lookup(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrAccountNotActive
			}
			return err
		}

		return statusAuthError(account.Status)
	}
}
