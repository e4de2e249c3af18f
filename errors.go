package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeNotFound             = "NOT_FOUND"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	TextCodeAccountNotActive     = "ACCOUNT_NOT_ACTIVE"
	TextCodeExpired              = "VERIFICATION_EXPIRED"
	TextCodeInvalidSecret        = "INVALID_SECRET"
	TextCodeAlreadyVerified      = "ALREADY_VERIFIED"
	TextCodeAlreadyTerminated    = "ALREADY_TERMINATED"
	TextCodeAlreadyArchived      = "ALREADY_ARCHIVED"
	TextCodeCooldownActive       = "COOLDOWN_ACTIVE"
	TextCodeAttemptsExhausted    = "ATTEMPTS_EXHAUSTED"
	TextCodeTooManyLoginAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeInvalidInput         = "INVALID_INPUT"
	TextCodeStatusConflict       = "STATUS_CONFLICT"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeInternal             = "INTERNAL_ERROR"
)

// ErrDuplicateEmail is returned when an account already owns the email,
// archived accounts included.
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrNotFound is returned for unknown accounts or missing pending verifications
var ErrNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials covers both unknown email and wrong password
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

var ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

var ErrAccountNotActive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotActive).
	WithCode(goerrors.CodeForbidden)

// ErrExpired is returned when the pending secret is past its expiry. The
// record is kept, a resend is required.
var ErrExpired = goerrors.New("verification secret has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeExpired).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidSecret = goerrors.New("verification secret is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidSecret).
	WithCode(goerrors.CodeBadRequest)

var ErrAlreadyVerified = goerrors.New("account is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

var ErrAlreadyTerminated = goerrors.New("account is already terminated", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyTerminated).
	WithCode(goerrors.CodeConflict)

var ErrAlreadyArchived = goerrors.New("account is already archived", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyArchived).
	WithCode(goerrors.CodeConflict)

// ErrCooldownActive is returned when a resend is requested too soon
var ErrCooldownActive = goerrors.New("please wait before requesting another verification", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeCooldownActive)

// ErrAttemptsExhausted is returned once the invalid attempt budget of the
// pending secret is spent, a resend is required.
var ErrAttemptsExhausted = goerrors.New("too many invalid verification attempts, request a new secret", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAttemptsExhausted)

var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyLoginAttempts)

var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrStatusConflict is returned by the store when a compare-and-set status
// update lost against a concurrent writer.
var ErrStatusConflict = goerrors.New("account status changed concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeStatusConflict).
	WithCode(goerrors.CodeConflict)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned by the password hasher
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString empty passwords cannot be hashed
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// TextCode returns the text code of a rich error, or TextCodeInternal
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return TextCodeInternal
}

// IsDomainError reports whether err is an expected, caller-recoverable
// outcome rather than an internal fault.
func IsDomainError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category != goerrors.CategoryInternal &&
		richErr.Category != goerrors.CategoryOperation
}
