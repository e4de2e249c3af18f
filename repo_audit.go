package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type auditLogs struct {
	db bun.IDB
}

var _ AuditLog = (*auditLogs)(nil)

// NewAuditRepository returns an append only AuditLog backed by bun
func NewAuditRepository(db bun.IDB) AuditLog {
	return &auditLogs{db: db}
}

func (r *auditLogs) Append(ctx context.Context, entry *AuditLogEntry) error {
	if entry == nil || entry.AccountID == uuid.Nil || entry.ActionType == "" {
		return ErrInvalidInput
	}

	if entry.ID == uuid.Nil {
		// v7 ids sort by creation, entries sharing a timestamp keep insertion order
		id, err := uuid.NewV7()
		if err != nil {
			return wrapInternal(err, "failed to generate audit entry id")
		}
		entry.ID = id
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return wrapInternal(err, "failed to append audit entry")
	}

	return nil
}

func (r *auditLogs) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*AuditLogEntry, error) {
	records := []*AuditLogEntry{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.created_at ASC").
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list account audit entries")
	}
	return records, nil
}

func (r *auditLogs) List(ctx context.Context, filter AuditFilter, page, limit int) ([]*AuditLogEntry, int, error) {
	page, limit = NormalizePage(page, limit)

	total, err := r.filtered(r.db.NewSelect().Model((*AuditLogEntry)(nil)), filter).Count(ctx)
	if err != nil {
		return nil, 0, wrapInternal(err, "failed to count audit entries")
	}

	records := []*AuditLogEntry{}
	err = r.filtered(r.db.NewSelect().Model(&records), filter).
		OrderExpr("?TableAlias.created_at DESC").
		OrderExpr("?TableAlias.id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(ctx)
	if err != nil {
		return nil, 0, wrapInternal(err, "failed to list audit entries")
	}

	return records, total, nil
}

func (r *auditLogs) filtered(q *bun.SelectQuery, filter AuditFilter) *bun.SelectQuery {
	if filter.AccountID != uuid.Nil {
		q = q.Where("?TableAlias.account_id = ?", filter.AccountID)
	}
	if filter.ActionType != "" {
		q = q.Where("?TableAlias.action_type = ?", filter.ActionType)
	}
	return q
}
