package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialStore is the persistence port for accounts. Implementations must
// be safe for concurrent use and must not cache account status.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByVerificationDigest(ctx context.Context, digest string) (*Account, error)
	Insert(ctx context.Context, account *Account) (*Account, error)

	// UpdateStatus moves the account from one status to another. It must be
	// a compare-and-set: when the stored status is not from it returns
	// ErrStatusConflict and nothing is written.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AccountStatus, opts ...StatusUpdateOption) (*Account, error)

	// SetVerification replaces the pending verification record. Only
	// unverified accounts accept a record, others return ErrStatusConflict.
	SetVerification(ctx context.Context, id uuid.UUID, record VerificationRecord) error

	// ConsumeVerificationAttempt atomically decrements the attempt budget of
	// the pending record identified by digest and returns what is left. When
	// the record was replaced, cleared or has no attempts left it returns
	// ErrStatusConflict and nothing is written.
	ConsumeVerificationAttempt(ctx context.Context, id uuid.UUID, digest string) (int, error)

	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailedLogin(ctx context.Context, id uuid.UUID, failures int, at time.Time) error

	List(ctx context.Context, filter AccountFilter, page, limit int) ([]*Account, error)
	Count(ctx context.Context, filter AccountFilter) (int, error)
}

// AuditLog is the append only audit store
type AuditLog interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*AuditLogEntry, error)
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]*AuditLogEntry, int, error)
}

// Stores groups the stores bound to a single transaction
type Stores struct {
	Accounts CredentialStore
	Audit    AuditLog
}

// Transactor runs fn with stores bound to one transaction. Returning an
// error from fn rolls everything back.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// VerificationRecord is what SetVerification persists
type VerificationRecord struct {
	Digest    string
	Kind      SecretKind
	ExpiresAt time.Time
	Attempts  int
	SentAt    time.Time
}

// AccountFilter narrows account listings, zero values match everything
type AccountFilter struct {
	Status AccountStatus
	Role   AccountRole
}

// AuditFilter narrows audit listings, zero values match everything
type AuditFilter struct {
	AccountID  uuid.UUID
	ActionType AuditAction
}

// StatusUpdate captures the extra columns written with a status change
type StatusUpdate struct {
	At                time.Time
	TerminatedAt      *time.Time
	TerminationReason string
	ArchivedAt        *time.Time
	ArchiveReason     string
	VerifiedAt        *time.Time
	ClearVerification bool
	ClearTermination  bool
	// ExpectedDigest, when set, makes the update also require the pending
	// record to still carry this digest.
	ExpectedDigest string
}

// StatusUpdateOption allows callers to set extra columns during a status change.
type StatusUpdateOption func(*StatusUpdate)

// WithTermination records when and why the account was terminated
func WithTermination(at time.Time, reason string) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.TerminatedAt = &at
		u.TerminationReason = reason
	}
}

// WithArchival records when and why the account was archived
func WithArchival(at time.Time, reason string) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.ArchivedAt = &at
		u.ArchiveReason = reason
	}
}

// WithVerified stamps verified_at and clears the pending verification record
func WithVerified(at time.Time) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.VerifiedAt = &at
		u.ClearVerification = true
	}
}

// WithExpectedVerification ties the status change to the pending record
// identified by digest, a resend in between turns it into a conflict.
func WithExpectedVerification(digest string) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.ExpectedDigest = digest
	}
}

// WithClearedVerification drops the pending verification record
func WithClearedVerification() StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.ClearVerification = true
	}
}

// WithClearedTermination removes termination timestamp and reason
func WithClearedTermination() StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.ClearTermination = true
	}
}

// WithUpdatedAt sets the updated_at timestamp of the change
func WithUpdatedAt(at time.Time) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.At = at
	}
}

// BuildStatusUpdate applies opts, defaulting At to now
func BuildStatusUpdate(now time.Time, opts ...StatusUpdateOption) StatusUpdate {
	u := StatusUpdate{At: now}
	for _, opt := range opts {
		if opt != nil {
			opt(&u)
		}
	}
	return u
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NormalizePage clamps pagination parameters, pages are 1-based
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
