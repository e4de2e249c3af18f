package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	DefaultResendCooldown   = 60 * time.Second
	DefaultMaxLoginAttempts = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// Policy holds the tunable verification and login rules
type Policy struct {
	Mode             SecretKind
	CodeLength       int
	TTL              time.Duration
	ResendCooldown   time.Duration
	MaxAttempts      int
	VerificationURL  string
	LogSecrets       bool
	UseHashID        bool
	MaxLoginAttempts int
	LockoutWindow    time.Duration
}

// DefaultPolicy returns six digit codes valid for a day
func DefaultPolicy() Policy {
	return Policy{
		Mode:             SecretCode,
		CodeLength:       DefaultCodeLength,
		TTL:              DefaultVerificationTTL,
		ResendCooldown:   DefaultResendCooldown,
		MaxAttempts:      DefaultMaxSecretAttempts,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		LockoutWindow:    DefaultLockoutWindow,
	}
}

func (p Policy) normalize() Policy {
	d := DefaultPolicy()
	if p.Mode != SecretCode && p.Mode != SecretLink {
		p.Mode = d.Mode
	}
	if p.CodeLength <= 0 {
		p.CodeLength = d.CodeLength
	}
	if p.TTL <= 0 {
		p.TTL = d.TTL
	}
	if p.ResendCooldown < 0 {
		p.ResendCooldown = 0
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxLoginAttempts <= 0 {
		p.MaxLoginAttempts = d.MaxLoginAttempts
	}
	if p.LockoutWindow <= 0 {
		p.LockoutWindow = d.LockoutWindow
	}
	return p
}

// RegisterRequest is the input of Register
type RegisterRequest struct {
	Email    string
	Password string
	Profile  Profile
}

// RegistrationResult never carries the secret, only where it was sent
type RegistrationResult struct {
	Account   *Account   `json:"account"`
	Channel   SecretKind `json:"channel"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// VerifierOption customizes a Verifier
type VerifierOption func(*Verifier)

// WithPolicy replaces the default policy
func WithPolicy(p Policy) VerifierOption {
	return func(v *Verifier) {
		v.policy = p.normalize()
	}
}

// WithPasswordHasher overrides the bcrypt hasher
func WithPasswordHasher(h PasswordHasher) VerifierOption {
	return func(v *Verifier) {
		if h != nil {
			v.hasher = h
		}
	}
}

// WithSecretIssuer overrides the issuer derived from the policy
func WithSecretIssuer(i SecretIssuer) VerifierOption {
	return func(v *Verifier) {
		if i != nil {
			v.issuer = i
		}
	}
}

// WithNotifier sets the notification dispatcher
func WithNotifier(n Notifier) VerifierOption {
	return func(v *Verifier) {
		if n != nil {
			v.notifier = n
		}
	}
}

// WithVerifierLogger sets the logger
func WithVerifierLogger(l Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(c Clock) VerifierOption {
	return func(v *Verifier) {
		if c != nil {
			v.now = c
		}
	}
}

// WithVerifierActivitySink sets the sink for registration and login events
func WithVerifierActivitySink(s ActivitySink) VerifierOption {
	return func(v *Verifier) {
		v.activity = normalizeActivitySink(s)
	}
}

// WithVerifierStateMachine overrides the state machine
func WithVerifierStateMachine(sm AccountStateMachine) VerifierOption {
	return func(v *Verifier) {
		if sm != nil {
			v.sm = sm
		}
	}
}

// Verifier drives an account from registration to active and
// authenticates active accounts.
type Verifier struct {
	store    CredentialStore
	hasher   PasswordHasher
	issuer   SecretIssuer
	notifier Notifier
	sm       AccountStateMachine
	policy   Policy
	logger   Logger
	activity ActivitySink
	now      Clock

	unknown   *unknownLogins
	decoyOnce sync.Once
	decoy     string
}

// NewVerifier builds a Verifier around the credential store
func NewVerifier(store CredentialStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		store:    store,
		policy:   DefaultPolicy(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
		unknown:  newUnknownLogins(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	if v.hasher == nil {
		v.hasher = NewBcryptHasher(0)
	}

	if v.notifier == nil {
		v.notifier = NewLogNotifier(v.logger)
	}

	if v.issuer == nil {
		v.issuer = NewSecretIssuer(store,
			WithSecretKind(v.policy.Mode),
			WithCodeLength(v.policy.CodeLength),
			WithSecretTTL(v.policy.TTL),
			WithSecretAttempts(v.policy.MaxAttempts),
			WithIssuerClock(v.now),
		)
	}

	if v.sm == nil {
		v.sm = NewAccountStateMachine(store,
			WithStateMachineClock(v.now),
			WithStateMachineActivitySink(v.activity),
			WithStateMachineLogger(v.logger),
		)
	}

	return v
}

// Policy returns the effective policy
func (v *Verifier) Policy() Policy {
	return v.policy
}

// Register creates an unverified account and dispatches its first secret.
// Archived accounts keep their email reserved.
func (v *Verifier) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	if err := checkContext(ctx, "register"); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidInput
	}

	if _, err := v.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		v.logger.Error("register lookup failed", "email", email, "error", err)
		return nil, err
	}

	hash, err := v.hasher.HashPassword(req.Password)
	if err != nil {
		if IsDomainError(err) {
			return nil, err
		}
		return nil, wrapInternal(err, "failed to hash password")
	}

	now := v.now().UTC()
	account := &Account{
		Email:        email,
		PasswordHash: hash,
		Status:       StatusUnverified,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	req.Profile.apply(account)

	if v.policy.UseHashID {
		if id, err := hashid.NewUUID(email); err == nil {
			account.ID = id
		}
	}

	if account, err = v.store.Insert(ctx, account); err != nil {
		return nil, err
	}

	issued, err := v.issuer.Issue(ctx, account.ID)
	if err != nil {
		v.logger.Error("failed to issue verification secret", "account_id", account.ID, "error", err)
		return nil, err
	}

	v.dispatchSecret(ctx, email, issued)

	if stored, err := v.store.FindByID(ctx, account.ID); err == nil {
		account = stored
	}

	emitActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType:  ActivityEventRegistered,
		AccountID:  account.ID.String(),
		ToStatus:   StatusUnverified,
		Metadata:   map[string]any{"channel": issued.Kind},
		OccurredAt: now,
	})

	return &RegistrationResult{
		Account:   account.Sanitized(),
		Channel:   issued.Kind,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// SubmitVerification activates the account when secret matches its pending,
// unexpired verification. identifier is an account id or email. In link mode
// it may be empty, the account is then looked up by the token itself.
func (v *Verifier) SubmitVerification(ctx context.Context, identifier, secret string) (*Account, error) {
	if err := checkContext(ctx, "submit verification"); err != nil {
		return nil, err
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrInvalidInput
	}

	account, err := v.lookup(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}

	switch account.Status {
	case StatusActive:
		return nil, ErrAlreadyVerified
	case StatusTerminated, StatusArchived:
		return nil, ErrAccountNotActive
	}

	pending := account.Verification()
	if pending == nil {
		return nil, ErrNotFound
	}

	now := v.now().UTC()
	if now.After(pending.ExpiresAt) {
		v.recordVerificationFailure(ctx, account, TextCodeExpired)
		return nil, ErrExpired
	}

	if pending.AttemptsRemaining <= 0 {
		return nil, ErrAttemptsExhausted
	}

	digest := account.VerificationDigest

	// every guess takes an attempt before it is compared, concurrent ones included
	remaining, err := v.store.ConsumeVerificationAttempt(ctx, account.ID, digest)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, v.verificationConflict(ctx, account.ID, digest)
		}
		return nil, err
	}

	if !SecretMatches(secret, digest) {
		v.recordVerificationFailure(ctx, account, TextCodeInvalidSecret, "attempts_remaining", remaining)
		return nil, ErrInvalidSecret
	}

	updated, err := v.sm.Transition(ctx, SystemActor, account, StatusActive,
		WithTransitionTime(now),
		WithVerificationDigest(digest),
	)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, v.verificationConflict(ctx, account.ID, digest)
		}
		return nil, err
	}

	notify(v.logger, "welcome", updated.Email, func() error {
		return v.notifier.SendWelcome(ctx, updated.Email)
	})

	return updated.Sanitized(), nil
}

// ResendVerification issues a fresh secret, invalidating the previous one,
// once the cooldown since the last dispatch has elapsed.
func (v *Verifier) ResendVerification(ctx context.Context, email string) error {
	if err := checkContext(ctx, "resend verification"); err != nil {
		return err
	}

	account, err := v.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	switch account.Status {
	case StatusActive:
		return ErrAlreadyVerified
	case StatusTerminated, StatusArchived:
		return ErrAccountNotActive
	}

	now := v.now().UTC()
	if account.VerificationSentAt != nil && now.Before(account.VerificationSentAt.Add(v.policy.ResendCooldown)) {
		return ErrCooldownActive
	}

	issued, err := v.issuer.Issue(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return v.conflictError(ctx, account.ID)
		}
		return err
	}

	v.dispatchSecret(ctx, account.Email, issued)
	return nil
}

// Authenticate checks credentials and account status. Unknown emails and
// wrong passwords fail with the same error.
func (v *Verifier) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	if err := checkContext(ctx, "authenticate"); err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	account, err := v.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, v.rejectUnknownLogin(ctx, email, password)
		}
		v.logger.Error("authenticate lookup failed", "email", email, "error", err)
		return nil, err
	}

	now := v.now().UTC()
	failures := account.FailedLogins
	if account.FailedLoginAt == nil || now.Sub(*account.FailedLoginAt) > v.policy.LockoutWindow {
		failures = 0
	}

	//if we have too many attempts in the given window, cool off!
	if failures > v.policy.MaxLoginAttempts {
		v.recordLoginFailure(ctx, account, email, ErrTooManyLoginAttempts)
		return nil, ErrTooManyLoginAttempts
	}

	if err := v.comparePassword(password, account.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			v.logger.Error("password comparison failed", "account_id", account.ID, "error", err)
			return nil, err
		}
		if err := v.store.RecordFailedLogin(ctx, account.ID, failures+1, now); err != nil {
			v.logger.Error("failed to track login attempt", "account_id", account.ID, "error", err)
		}
		v.recordLoginFailure(ctx, account, email, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := statusAuthError(account.Status); err != nil {
		v.recordLoginFailure(ctx, account, email, err)
		return nil, err
	}

	if err := v.store.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, err
	}

	account.LoginCount++
	account.LastLoginAt = &now
	account.FailedLogins = 0
	account.FailedLoginAt = nil

	emitActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      ActorRef{ID: account.ID.String(), Type: string(account.Role)},
		AccountID:  account.ID.String(),
		OccurredAt: now,
	})

	return account.Sanitized(), nil
}

// rejectUnknownLogin fails a login for an email without an account the same
// way a wrong password does, lockout and hashing cost included.
func (v *Verifier) rejectUnknownLogin(ctx context.Context, email, password string) error {
	now := v.now().UTC()
	failures := v.unknown.failures(email, now, v.policy.LockoutWindow)
	if failures > v.policy.MaxLoginAttempts {
		v.recordLoginFailure(ctx, nil, email, ErrTooManyLoginAttempts)
		return ErrTooManyLoginAttempts
	}

	if hash := v.decoyHash(); hash != "" {
		_ = v.hasher.ComparePasswordAndHash(password, hash)
	}

	v.unknown.record(email, failures+1, now, v.policy.LockoutWindow)
	v.recordLoginFailure(ctx, nil, email, ErrInvalidCredentials)
	return ErrInvalidCredentials
}

func (v *Verifier) comparePassword(password, hash string) error {
	if password == "" {
		return ErrMismatchedHashAndPassword
	}
	return v.hasher.ComparePasswordAndHash(password, hash)
}

// decoyHash is hashed once with the configured hasher so unknown emails
// cost as much as known ones.
func (v *Verifier) decoyHash() string {
	v.decoyOnce.Do(func() {
		hash, err := randomPasswordHash(v.hasher)
		if err != nil {
			v.logger.Warn("failed to build decoy password hash", "error", err)
			return
		}
		v.decoy = hash
	})
	return v.decoy
}

func (v *Verifier) lookup(ctx context.Context, identifier, secret string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		// short codes would be guessable across every pending account
		if v.policy.Mode != SecretLink {
			return nil, ErrInvalidInput
		}
		return v.store.FindByVerificationDigest(ctx, DigestSecret(secret))
	}
	if id, err := uuid.Parse(identifier); err == nil {
		return v.store.FindByID(ctx, id)
	}
	return v.store.FindByEmail(ctx, identifier)
}

// verificationConflict resolves a lost race on the pending record identified
// by digest against its current state.
func (v *Verifier) verificationConflict(ctx context.Context, id uuid.UUID, digest string) error {
	current, err := v.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != StatusUnverified {
		return v.statusConflict(current.Status)
	}
	pending := current.Verification()
	switch {
	case pending == nil || current.VerificationDigest != digest:
		return ErrInvalidSecret
	case pending.AttemptsRemaining <= 0:
		return ErrAttemptsExhausted
	default:
		return ErrStatusConflict
	}
}

// conflictError maps a lost compare-and-set to the error of the winning state
func (v *Verifier) conflictError(ctx context.Context, id uuid.UUID) error {
	current, err := v.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return v.statusConflict(current.Status)
}

func (v *Verifier) statusConflict(status AccountStatus) error {
	switch status {
	case StatusActive:
		return ErrAlreadyVerified
	case StatusTerminated, StatusArchived:
		return ErrAccountNotActive
	default:
		return ErrStatusConflict
	}
}

func (v *Verifier) dispatchSecret(ctx context.Context, email string, issued *IssuedSecret) {
	payload := issued.Secret
	if issued.Kind == SecretLink {
		payload = VerificationLink(v.policy.VerificationURL, issued.Secret)
	}

	if v.policy.LogSecrets {
		v.logger.Debug("verification secret issued", "email", email, "kind", issued.Kind, "secret", issued.Secret)
	}

	notify(v.logger, "verification", email, func() error {
		return v.notifier.SendVerification(ctx, email, payload)
	})

	emitActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType: ActivityEventVerificationSent,
		Metadata: map[string]any{
			"email":      email,
			"kind":       issued.Kind,
			"expires_at": issued.ExpiresAt,
		},
	})
}

func (v *Verifier) recordVerificationFailure(ctx context.Context, account *Account, code string, kv ...any) {
	meta := map[string]any{"code": code}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			meta[k] = kv[i+1]
		}
	}
	emitActivity(ctx, v.activity, v.logger, ActivityEvent{
		EventType: ActivityEventVerificationFailure,
		AccountID: account.ID.String(),
		Metadata:  meta,
	})
}

func (v *Verifier) recordLoginFailure(ctx context.Context, account *Account, email string, err error) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "unknown"},
		Metadata: map[string]any{
			"identifier": email,
			"code":       TextCode(err),
		},
	}
	if account != nil {
		event.AccountID = account.ID.String()
		event.FromStatus = account.Status
	}
	emitActivity(ctx, v.activity, v.logger, event)
}

// VerificationLink appends the token to base as the token query parameter
func VerificationLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
