package jwtware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetExtractorsSkipsMalformedParts(t *testing.T) {
	extractors := GetExtractors("header:Authorization, query:token, bogus, cookie:jwt")
	require.Len(t, extractors, 3)
}

func TestGetDefaultConfigDefaults(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		TokenValidator: TokenValidatorFunc(func(string) (AuthClaims, error) { return nil, nil }),
	})

	require.Equal(t, "user", cfg.ContextKey)
	require.Equal(t, defaultTokenLookup, cfg.TokenLookup)
	require.Equal(t, "Bearer", cfg.AuthScheme)
	require.NotNil(t, cfg.ErrorHandler)
	require.NotNil(t, cfg.SuccessHandler)
}
