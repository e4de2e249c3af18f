package auth

import (
	"context"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Transactor
	Validate() error
	MustValidate()
	Migrate(ctx context.Context) error
	Accounts() CredentialStore
	AuditLog() AuditLog
}

type mngr struct {
	db       *bun.DB
	accounts CredentialStore
	audit    AuditLog
}

// NewRepositoryManager builds the bun backed stores
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		accounts: NewAccountsRepository(db),
		audit:    NewAuditRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.audit == nil {
		return errors.New("repository audit log should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, Stores{
				Accounts: NewAccountsRepository(tx),
				Audit:    NewAuditRepository(tx),
			})
		})
	}
}

// Migrate creates the tables and indexes if they do not exist yet
func (m mngr) Migrate(ctx context.Context) error {
	models := []any{
		(*Account)(nil),
		(*AuditLogEntry)(nil),
	}

	for _, model := range models {
		if _, err := m.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return wrapInternal(err, "failed to create table")
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*Account)(nil), "accounts_status_idx", []string{"status"}},
		{(*Account)(nil), "accounts_created_at_idx", []string{"created_at"}},
		{(*Account)(nil), "accounts_verification_digest_idx", []string{"verification_digest"}},
		{(*AuditLogEntry)(nil), "audit_logs_account_idx", []string{"account_id", "created_at"}},
		{(*AuditLogEntry)(nil), "audit_logs_action_idx", []string{"action_type"}},
	}

	for _, idx := range indexes {
		_, err := m.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return wrapInternal(err, "failed to create index "+idx.name)
		}
	}

	return nil
}

func (m mngr) Accounts() CredentialStore {
	return m.accounts
}

func (m mngr) AuditLog() AuditLog {
	return m.audit
}
