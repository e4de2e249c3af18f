package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidTransition = "INVALID_USER_STATE_TRANSITION"
	TextCodeTerminalState     = "TERMINAL_USER_STATE"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from archived.
var ErrTerminalState = goerrors.New("account state is terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for transitions the account owner or the service
// itself triggers.
var SystemActor = ActorRef{ID: "system", Type: "system"}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    AccountStatus
	To      AccountStatus
	At      time.Time
	Meta    TransitionMetadata
	// Stores are the stores the transition is persisted through, bound to
	// the caller's transaction when one is running.
	Stores Stores
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine applies status transitions following the account graph:
//
//	unverified -> active | terminated | archived
//	active     -> terminated | archived
//	terminated -> active | archived
//	archived   -> (terminal)
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CanTransition(from, to AccountStatus) bool
	CurrentStatus(account *Account) AccountStatus
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// By default the hook error is returned as is, which aborts the transition.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithTransitionStores persists the transition through stores, typically
// the ones bound to a running transaction.
func WithTransitionStores(stores Stores) TransitionOption {
	return func(opts *transitionOptions) {
		opts.stores = stores
	}
}

// WithTransitionTime overrides the timestamp recorded for the transition.
func WithTransitionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.at = t
	}
}

// WithVerificationDigest makes the transition conditional on the pending
// verification record still being the one identified by digest.
func WithVerificationDigest(digest string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.digest = digest
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the
// provided store.
func NewAccountStateMachine(accounts CredentialStore, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			StatusUnverified: {
				StatusActive:     {},
				StatusTerminated: {},
				StatusArchived:   {},
			},
			StatusActive: {
				StatusTerminated: {},
				StatusArchived:   {},
			},
			StatusTerminated: {
				StatusActive:   {},
				StatusArchived: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(_ context.Context, _ TransitionHookPhase, err error, _ TransitionContext) error {
			return err
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts         CredentialStore
	transitions      map[AccountStatus]map[AccountStatus]struct{}
	now              Clock
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	stores      Stores
	at          time.Time
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
	digest      string
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil || !target.IsValid() {
		return nil, ErrInvalidTransition
	}

	account.EnsureStatus()
	from := account.Status

	if from == target {
		return account, nil
	}

	if from == StatusArchived {
		return nil, ErrTerminalState
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition
	}

	options := sm.buildTransitionOptions(opts...)
	if options.at.IsZero() {
		options.at = sm.now()
	}
	options.at = options.at.UTC()

	store := options.stores.Accounts
	if store == nil {
		store = sm.accounts
	}

	tc := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    from,
		To:      target,
		At:      options.at,
		Meta:    options.cloneMetadata(),
		Stores:  options.stores,
	}
	if tc.Stores.Accounts == nil {
		tc.Stores.Accounts = store
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := store.UpdateStatus(ctx, account.ID, from, target, sm.buildStatusOptions(from, target, options)...)
	if err != nil {
		return nil, err
	}

	if updated != nil {
		*account = *updated
	} else {
		account.Status = target
		account.UpdatedAt = options.at
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	emitActivity(ctx, sm.activitySink, sm.logger, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(tc.Meta),
		OccurredAt: options.at,
	})

	return account, nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	account.EnsureStatus()
	return account.Status
}

func (sm *accountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) buildStatusOptions(from, to AccountStatus, opts *transitionOptions) []StatusUpdateOption {
	at := opts.at
	statusOpts := []StatusUpdateOption{WithUpdatedAt(at)}

	switch to {
	case StatusActive:
		if from == StatusUnverified {
			statusOpts = append(statusOpts, WithVerified(at))
		}
		if from == StatusTerminated {
			statusOpts = append(statusOpts, WithClearedTermination())
		}
	case StatusTerminated:
		statusOpts = append(statusOpts, WithTermination(at, opts.metadata.Reason))
	case StatusArchived:
		statusOpts = append(statusOpts, WithArchival(at, opts.metadata.Reason))
	}

	if from == StatusUnverified && to != StatusActive {
		statusOpts = append(statusOpts, WithClearedVerification())
	}

	if opts.digest != "" {
		statusOpts = append(statusOpts, WithExpectedVerification(opts.digest))
	}

	return statusOpts
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
