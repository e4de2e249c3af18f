package auth

import "bytes"

// TokenValidator validates bearer tokens, TokenService is one
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// SigningKeyRing validates tokens against the current signing key first and
// then against retired keys, so sessions issued before a rotation survive
// until they expire. Only signature failures move on to the next key, an
// expired token or a claim mismatch ends the search.
type SigningKeyRing struct {
	current TokenValidator
	retired []TokenValidator
	logger  Logger
}

var _ TokenValidator = (*SigningKeyRing)(nil)

// NewSigningKeyRing keeps the non nil validators, current first
func NewSigningKeyRing(current TokenValidator, retired ...TokenValidator) *SigningKeyRing {
	ring := &SigningKeyRing{current: current, logger: defLogger{}}
	for _, v := range retired {
		if v != nil {
			ring.retired = append(ring.retired, v)
		}
	}
	return ring
}

// WithRetiredKeys builds a key ring around ts. Retired keys share issuer,
// audience and lifetime with ts, empty keys and the current key are skipped.
func (ts *TokenService) WithRetiredKeys(keys ...string) *SigningKeyRing {
	ring := NewSigningKeyRing(ts).WithLogger(ts.logger)
	for _, key := range keys {
		if key == "" || bytes.Equal([]byte(key), ts.signingKey) {
			continue
		}
		retired := NewTokenService([]byte(key), ts.tokenExpiration, ts.issuer, ts.audience, ts.logger)
		retired.now = ts.now
		ring.retired = append(ring.retired, retired)
	}
	return ring
}

// WithLogger sets the logger
func (r *SigningKeyRing) WithLogger(l Logger) *SigningKeyRing {
	if l != nil {
		r.logger = l
	}
	return r
}

// Retired returns how many retired keys are still accepted
func (r *SigningKeyRing) Retired() int {
	return len(r.retired)
}

// Validate satisfies the TokenValidator interface.
func (r *SigningKeyRing) Validate(tokenString string) (AuthClaims, error) {
	if r.current == nil {
		return nil, ErrTokenMalformed
	}

	claims, err := r.current.Validate(tokenString)
	if err == nil || !IsMalformedError(err) {
		return claims, err
	}

	for i, v := range r.retired {
		claims, rerr := v.Validate(tokenString)
		if rerr == nil {
			r.logger.Debug("token accepted with retired signing key", "key_index", i)
			return claims, nil
		}
		if !IsMalformedError(rerr) {
			return nil, rerr
		}
	}

	return nil, err
}
