package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordLoginSQL resets the failed login counters and bumps the login count
var RecordLoginSQL = `UPDATE "accounts"
SET
	"login_count" = "login_count" + 1,
	"last_login_at" = ?,
	"failed_logins" = 0,
	"failed_login_at" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?;`

type accounts struct {
	db bun.IDB
}

var _ CredentialStore = (*accounts)(nil)

// NewAccountsRepository returns a CredentialStore backed by bun. db can be a
// *bun.DB or a bun.Tx.
func NewAccountsRepository(db bun.IDB) CredentialStore {
	return &accounts{db: db}
}

func (a *accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return a.findOne(ctx, "?TableAlias.email = ?", NormalizeEmail(email))
}

func (a *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.findOne(ctx, "?TableAlias.id = ?", id)
}

func (a *accounts) FindByVerificationDigest(ctx context.Context, digest string) (*Account, error) {
	if strings.TrimSpace(digest) == "" {
		return nil, ErrNotFound
	}
	return a.findOne(ctx, "?TableAlias.verification_digest = ?", digest)
}

func (a *accounts) findOne(ctx context.Context, where string, args ...any) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Where(where, args...).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapInternal(err, "failed to retrieve account")
	}

	return record, nil
}

func (a *accounts) Insert(ctx context.Context, account *Account) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidInput
	}

	prepareAccountDefaults(account)

	if _, err := a.db.NewInsert().Model(account).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, wrapInternal(err, "failed to insert account")
	}

	return account, nil
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	u := BuildStatusUpdate(time.Now().UTC(), opts...)

	q := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", u.At)

	if u.TerminatedAt != nil {
		q = q.Set("terminated_at = ?", *u.TerminatedAt).
			Set("termination_reason = ?", u.TerminationReason)
	}

	if u.ClearTermination {
		q = q.Set("terminated_at = NULL").
			Set("termination_reason = NULL")
	}

	if u.ArchivedAt != nil {
		q = q.Set("archived_at = ?", *u.ArchivedAt).
			Set("archive_reason = ?", u.ArchiveReason)
	}

	if u.VerifiedAt != nil {
		q = q.Set("verified_at = ?", *u.VerifiedAt)
	}

	if u.ClearVerification {
		q = q.Set("verification_digest = NULL").
			Set("verification_kind = NULL").
			Set("verification_expires_at = NULL").
			Set("verification_sent_at = NULL").
			Set("verification_attempts = 0")
	}

	q = q.Where("id = ?", id).Where("status = ?", from)
	if u.ExpectedDigest != "" {
		q = q.Where("verification_digest = ?", u.ExpectedDigest)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to update account status")
	}

	if n, err := res.RowsAffected(); err != nil {
		return nil, wrapInternal(err, "failed to read affected rows")
	} else if n == 0 {
		return nil, ErrStatusConflict
	}

	return a.FindByID(ctx, id)
}

func (a *accounts) SetVerification(ctx context.Context, id uuid.UUID, record VerificationRecord) error {
	res, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("verification_digest = ?", record.Digest).
		Set("verification_kind = ?", record.Kind).
		Set("verification_expires_at = ?", record.ExpiresAt).
		Set("verification_attempts = ?", record.Attempts).
		Set("verification_sent_at = ?", record.SentAt).
		Set("updated_at = ?", record.SentAt).
		Where("id = ?", id).
		Where("status = ?", StatusUnverified).
		Exec(ctx)
	if err != nil {
		return wrapInternal(err, "failed to store verification secret")
	}

	if n, err := res.RowsAffected(); err != nil {
		return wrapInternal(err, "failed to read affected rows")
	} else if n == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (a *accounts) ConsumeVerificationAttempt(ctx context.Context, id uuid.UUID, digest string) (int, error) {
	res, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("verification_attempts = verification_attempts - 1").
		Where("id = ?", id).
		Where("status = ?", StatusUnverified).
		Where("verification_digest = ?", digest).
		Where("verification_attempts > 0").
		Exec(ctx)
	if err != nil {
		return 0, wrapInternal(err, "failed to record verification attempt")
	}

	if n, err := res.RowsAffected(); err != nil {
		return 0, wrapInternal(err, "failed to read affected rows")
	} else if n == 0 {
		return 0, ErrStatusConflict
	}

	var remaining int
	err = a.db.NewSelect().
		Model((*Account)(nil)).
		Column("verification_attempts").
		Where("id = ?", id).
		Scan(ctx, &remaining)
	if err != nil {
		return 0, wrapInternal(err, "failed to read verification attempts")
	}

	return remaining, nil
}

func (a *accounts) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	// NOTE: raw query so the counter increment happens in the database
	if _, err := a.db.NewRaw(RecordLoginSQL, at, at, id).Exec(ctx); err != nil {
		return wrapInternal(err, "failed to record login")
	}
	return nil
}

func (a *accounts) RecordFailedLogin(ctx context.Context, id uuid.UUID, failures int, at time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("failed_logins = ?", failures).
		Set("failed_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapInternal(err, "failed to record failed login")
	}
	return nil
}

func (a *accounts) List(ctx context.Context, filter AccountFilter, page, limit int) ([]*Account, error) {
	page, limit = NormalizePage(page, limit)

	records := []*Account{}
	q := a.db.NewSelect().Model(&records)
	applyAccountFilter(q, filter)

	err := q.
		OrderExpr("?TableAlias.created_at DESC").
		OrderExpr("?TableAlias.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list accounts")
	}

	return records, nil
}

func (a *accounts) Count(ctx context.Context, filter AccountFilter) (int, error) {
	q := a.db.NewSelect().Model((*Account)(nil))
	applyAccountFilter(q, filter)

	n, err := q.Count(ctx)
	if err != nil {
		return 0, wrapInternal(err, "failed to count accounts")
	}
	return n, nil
}

func applyAccountFilter(q *bun.SelectQuery, filter AccountFilter) {
	if filter.Status != "" {
		q.Where("?TableAlias.status = ?", filter.Status)
	}
	if filter.Role != "" {
		q.Where("?TableAlias.role = ?", filter.Role)
	}
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()
	record.Email = NormalizeEmail(record.Email)

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
