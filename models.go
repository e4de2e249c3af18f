package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SecretKind identifies how a verification secret is delivered
type SecretKind string

const (
	// SecretCode is a short numeric code the user types in
	SecretCode SecretKind = "code"
	// SecretLink is an opaque bearer token embedded in a link
	SecretLink SecretKind = "link"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Email        string         `bun:"email,notnull,unique" json:"email"`
	PasswordHash string         `bun:"password_hash,notnull" json:"-"`
	Status       AccountStatus  `bun:"status,notnull" json:"status"`
	Role         AccountRole    `bun:"role,notnull" json:"role"`
	FirstName    string         `bun:"first_name" json:"first_name,omitempty"`
	LastName     string         `bun:"last_name" json:"last_name,omitempty"`
	Phone        string         `bun:"phone_number" json:"phone_number,omitempty"`
	Metadata     map[string]any `bun:"metadata" json:"metadata,omitempty"`

	// pending verification, the plaintext secret is never persisted
	VerificationDigest    string     `bun:"verification_digest,nullzero" json:"-"`
	VerificationKind      SecretKind `bun:"verification_kind,nullzero" json:"verification_kind,omitempty"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at,nullzero" json:"verification_expires_at,omitempty"`
	VerificationAttempts  int        `bun:"verification_attempts,notnull,default:0" json:"verification_attempts_remaining,omitempty"`
	VerificationSentAt    *time.Time `bun:"verification_sent_at,nullzero" json:"verification_sent_at,omitempty"`
	VerifiedAt            *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`

	TerminatedAt      *time.Time `bun:"terminated_at,nullzero" json:"terminated_at,omitempty"`
	TerminationReason string     `bun:"termination_reason,nullzero" json:"termination_reason,omitempty"`
	ArchivedAt        *time.Time `bun:"archived_at,nullzero" json:"archived_at,omitempty"`
	ArchiveReason     string     `bun:"archive_reason,nullzero" json:"archive_reason,omitempty"`

	LoginCount    int        `bun:"login_count,notnull,default:0" json:"login_count"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	FailedLogins  int        `bun:"failed_logins,notnull,default:0" json:"-"`
	FailedLoginAt *time.Time `bun:"failed_login_at,nullzero" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Verification is the pending verification record of an account
type Verification struct {
	Kind              SecretKind `json:"kind"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	SentAt            time.Time  `json:"sent_at"`
}

// Verification returns the pending verification record, nil if there is none
func (a *Account) Verification() *Verification {
	if a == nil || a.VerificationDigest == "" || a.VerificationExpiresAt == nil {
		return nil
	}

	v := &Verification{
		Kind:              a.VerificationKind,
		ExpiresAt:         *a.VerificationExpiresAt,
		AttemptsRemaining: a.VerificationAttempts,
	}
	if a.VerificationSentAt != nil {
		v.SentAt = *a.VerificationSentAt
	}
	return v
}

// HasPendingVerification reports whether a live or expired secret is on record
func (a *Account) HasPendingVerification() bool {
	return a.Verification() != nil
}

// AddMetadata will append information to a metadata attribute
func (a *Account) AddMetadata(key string, val any) *Account {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// Sanitized returns a copy without the password hash or verification digest.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.PasswordHash = ""
	c.VerificationDigest = ""
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Snapshot renders the sanitized account as a generic map for audit entries
func (a *Account) Snapshot() map[string]any {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a.Sanitized())
	if err != nil {
		return map[string]any{"id": a.ID.String(), "status": a.Status}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"id": a.ID.String(), "status": a.Status}
	}
	return out
}

// AuditAction is the type of an admin lifecycle action
type AuditAction string

const (
	AuditUserTerminated AuditAction = "user.terminated"
	AuditUserArchived   AuditAction = "user.archived"
	AuditUserRestored   AuditAction = "user.restored"
	AuditDataExported   AuditAction = "data.exported"
)

// AuditLogEntry is an append only record of an admin action
type AuditLogEntry struct {
	bun.BaseModel `bun:"table:audit_logs,alias:aud"`

	ID          uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	AccountID   uuid.UUID      `bun:"account_id,notnull,type:uuid" json:"account_id"`
	ActionType  AuditAction    `bun:"action_type,notnull" json:"action_type"`
	Description string         `bun:"description" json:"description"`
	Reason      string         `bun:"reason,nullzero" json:"reason,omitempty"`
	OldData     map[string]any `bun:"old_data" json:"old_data,omitempty"`
	PerformedBy string         `bun:"performed_by,notnull" json:"performed_by"`
	IPAddress   string         `bun:"ip_address,nullzero" json:"ip_address,omitempty"`
	UserAgent   string         `bun:"user_agent,nullzero" json:"user_agent,omitempty"`
	CreatedAt   time.Time      `bun:"created_at,notnull" json:"created_at"`
}

// AccountDataBundle is the result of a data export
type AccountDataBundle struct {
	Account    *Account         `json:"account"`
	AuditTrail []*AuditLogEntry `json:"audit_trail"`
	ExportedAt time.Time        `json:"exported_at"`
	ExportedBy string           `json:"exported_by"`
}

// Page is a slice of results along with pagination info
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Statistics holds aggregate account counts
type Statistics struct {
	TotalUsers      int `json:"total_users"`
	ActiveUsers     int `json:"active_users"`
	UnverifiedUsers int `json:"unverified_users"`
	TerminatedUsers int `json:"terminated_users"`
	ArchivedUsers   int `json:"archived_users"`
	Admins          int `json:"admins"`
}
