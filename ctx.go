package auth

import (
	"context"
)

var claimsCtxKey = &contextKey{"claims"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithActorContext sets the admin performing the request
func WithActorContext(r context.Context, actor AdminActor) context.Context {
	return context.WithValue(r, actorCtxKey, actor)
}

// ActorFromContext returns the admin actor. When only claims are present
// the actor is derived from them.
func ActorFromContext(ctx context.Context) (AdminActor, bool) {
	if actor, ok := ctx.Value(actorCtxKey).(AdminActor); ok {
		return actor, true
	}
	if claims, ok := GetClaims(ctx); ok && claims.IsAdmin() {
		return AdminActor{ID: claims.UserID()}, true
	}
	return AdminActor{}, false
}
