package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdminActor identifies the admin performing a lifecycle operation
type AdminActor struct {
	ID        string `json:"id"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (a AdminActor) ref() ActorRef {
	return ActorRef{ID: a.ID, Type: string(RoleAdmin)}
}

// LifecycleRepository is what the lifecycle manager persists through
type LifecycleRepository interface {
	Transactor
	Accounts() CredentialStore
	AuditLog() AuditLog
}

// LifecycleOption customizes a Lifecycle
type LifecycleOption func(*Lifecycle)

// WithLifecycleNotifier sets the notification dispatcher
func WithLifecycleNotifier(n Notifier) LifecycleOption {
	return func(l *Lifecycle) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithLifecycleLogger sets the logger
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(c Clock) LifecycleOption {
	return func(l *Lifecycle) {
		if c != nil {
			l.now = c
		}
	}
}

// WithLifecycleActivitySink sets the sink used by the state machine
func WithLifecycleActivitySink(s ActivitySink) LifecycleOption {
	return func(l *Lifecycle) {
		l.activity = normalizeActivitySink(s)
	}
}

// Lifecycle is the admin lifecycle manager. Every status change it makes
// is committed together with its audit entry.
type Lifecycle struct {
	repo     LifecycleRepository
	sm       AccountStateMachine
	notifier Notifier
	logger   Logger
	activity ActivitySink
	now      Clock
}

// NewLifecycle returns a lifecycle manager persisting through repo
func NewLifecycle(repo LifecycleRepository, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.notifier == nil {
		l.notifier = NewLogNotifier(l.logger)
	}

	l.sm = NewAccountStateMachine(repo.Accounts(),
		WithStateMachineClock(l.now),
		WithStateMachineActivitySink(l.activity),
		WithStateMachineLogger(l.logger),
	)

	return l
}

// Terminate blocks the account. Bearer tokens issued before remain valid
// until they expire.
func (l *Lifecycle) Terminate(ctx context.Context, id uuid.UUID, reason string, actor AdminActor) (*Account, error) {
	account, err := l.transition(ctx, id, StatusTerminated, strings.TrimSpace(reason), actor, func(current *Account) error {
		switch current.Status {
		case StatusTerminated:
			return ErrAlreadyTerminated
		case StatusArchived:
			return ErrTerminalState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notify(l.logger, "termination", account.Email, func() error {
		return l.notifier.SendTerminationNotice(ctx, account.Email, account.TerminationReason)
	})

	return account, nil
}

// Archive moves the account to the terminal archived state, data is kept
func (l *Lifecycle) Archive(ctx context.Context, id uuid.UUID, reason string, actor AdminActor) (*Account, error) {
	return l.transition(ctx, id, StatusArchived, strings.TrimSpace(reason), actor, func(current *Account) error {
		if current.Status == StatusArchived {
			return ErrAlreadyArchived
		}
		return nil
	})
}

// Restore reactivates a terminated account
func (l *Lifecycle) Restore(ctx context.Context, id uuid.UUID, actor AdminActor) (*Account, error) {
	return l.transition(ctx, id, StatusActive, "", actor, func(current *Account) error {
		switch current.Status {
		case StatusTerminated:
			return nil
		case StatusArchived:
			return ErrTerminalState
		default:
			return ErrInvalidTransition
		}
	})
}

func (l *Lifecycle) transition(ctx context.Context, id uuid.UUID, target AccountStatus, reason string, actor AdminActor, guard func(*Account) error) (*Account, error) {
	if err := checkContext(ctx, "lifecycle "+target.String()); err != nil {
		return nil, err
	}

	var result *Account
	err := l.repo.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		current, err := stores.Accounts.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if err := guard(current); err != nil {
			return err
		}

		snapshot := current.Snapshot()
		result, err = l.sm.Transition(ctx, actor.ref(), current, target,
			WithTransitionStores(stores),
			WithTransitionReason(reason),
			WithBeforeTransitionHook(func(ctx context.Context, tc TransitionContext) error {
				return tc.Stores.Audit.Append(ctx, &AuditLogEntry{
					AccountID:   tc.Account.ID,
					ActionType:  auditActionFor(tc.To),
					Description: describeTransition(tc),
					Reason:      reason,
					OldData:     snapshot,
					PerformedBy: actor.ID,
					IPAddress:   actor.IPAddress,
					UserAgent:   actor.UserAgent,
					CreatedAt:   tc.At,
				})
			}),
		)
		return err
	})

	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			l.logger.Warn("lifecycle transition lost a concurrent update", "account_id", id, "target", target)
			return nil, l.conflictError(ctx, id, target)
		}
		if !IsDomainError(err) {
			l.logger.Error("lifecycle transition failed", "account_id", id, "target", target, "error", err)
		}
		return nil, err
	}

	return result.Sanitized(), nil
}

func (l *Lifecycle) conflictError(ctx context.Context, id uuid.UUID, target AccountStatus) error {
	current, err := l.repo.Accounts().FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case current.Status == StatusArchived && target == StatusArchived:
		return ErrAlreadyArchived
	case current.Status == StatusArchived:
		return ErrTerminalState
	case current.Status == StatusTerminated && target == StatusTerminated:
		return ErrAlreadyTerminated
	default:
		return ErrStatusConflict
	}
}

// GetAccount returns the sanitized account
func (l *Lifecycle) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := l.repo.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.Sanitized(), nil
}

// ListAccounts returns a page of accounts, newest first
func (l *Lifecycle) ListAccounts(ctx context.Context, filter AccountFilter, page, limit int) (*Page[*Account], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrInvalidInput
	}
	if filter.Role != "" && !filter.Role.IsValid() {
		return nil, ErrInvalidInput
	}

	page, limit = NormalizePage(page, limit)

	total, err := l.repo.Accounts().Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	records, err := l.repo.Accounts().List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*Account, 0, len(records))
	for _, r := range records {
		items = append(items, r.Sanitized())
	}

	return &Page[*Account]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// AccountAudit returns the audit trail of one account, oldest first
func (l *Lifecycle) AccountAudit(ctx context.Context, id uuid.UUID) ([]*AuditLogEntry, error) {
	if _, err := l.repo.Accounts().FindByID(ctx, id); err != nil {
		return nil, err
	}
	return l.repo.AuditLog().ListByAccount(ctx, id)
}

// ListAudit returns a page of audit entries, newest first
func (l *Lifecycle) ListAudit(ctx context.Context, filter AuditFilter, page, limit int) (*Page[*AuditLogEntry], error) {
	page, limit = NormalizePage(page, limit)
	records, total, err := l.repo.AuditLog().List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}
	return &Page[*AuditLogEntry]{Items: records, Total: total, Page: page, Limit: limit}, nil
}

// ExportAccountData assembles everything stored about the account. The
// export itself is audited before anything is read, so the entry survives
// failures while building the bundle.
func (l *Lifecycle) ExportAccountData(ctx context.Context, id uuid.UUID, actor AdminActor) (*AccountDataBundle, error) {
	account, err := l.repo.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	err = l.repo.AuditLog().Append(ctx, &AuditLogEntry{
		AccountID:   account.ID,
		ActionType:  AuditDataExported,
		Description: fmt.Sprintf("account data exported by %s", actor.ID),
		PerformedBy: actor.ID,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		CreatedAt:   now,
	})
	if err != nil {
		l.logger.Error("failed to audit data export", "account_id", id, "error", err)
		return nil, err
	}

	trail, err := l.repo.AuditLog().ListByAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	return &AccountDataBundle{
		Account:    account.Sanitized(),
		AuditTrail: trail,
		ExportedAt: now,
		ExportedBy: actor.ID,
	}, nil
}

// GetStatistics returns aggregate counts. Counts are read one by one and
// are not a consistent snapshot.
func (l *Lifecycle) GetStatistics(ctx context.Context) (*Statistics, error) {
	store := l.repo.Accounts()
	stats := &Statistics{}

	counts := []struct {
		filter AccountFilter
		dst    *int
	}{
		{AccountFilter{}, &stats.TotalUsers},
		{AccountFilter{Status: StatusActive}, &stats.ActiveUsers},
		{AccountFilter{Status: StatusUnverified}, &stats.UnverifiedUsers},
		{AccountFilter{Status: StatusTerminated}, &stats.TerminatedUsers},
		{AccountFilter{Status: StatusArchived}, &stats.ArchivedUsers},
		{AccountFilter{Role: RoleAdmin}, &stats.Admins},
	}

	for _, c := range counts {
		n, err := store.Count(ctx, c.filter)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	return stats, nil
}

func auditActionFor(target AccountStatus) AuditAction {
	switch target {
	case StatusTerminated:
		return AuditUserTerminated
	case StatusArchived:
		return AuditUserArchived
	default:
		return AuditUserRestored
	}
}

func describeTransition(tc TransitionContext) string {
	switch tc.To {
	case StatusTerminated:
		return fmt.Sprintf("account %s terminated", tc.Account.Email)
	case StatusArchived:
		return fmt.Sprintf("account %s archived", tc.Account.Email)
	default:
		return fmt.Sprintf("account %s restored from %s", tc.Account.Email, tc.From)
	}
}
