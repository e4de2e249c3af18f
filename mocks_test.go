package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
	"github.com/classiqueozofficial1-web/stockfx-auth/database"
)

// MockAccounts implements auth.CredentialStore
type MockAccounts struct {
	mock.Mock
}

var _ auth.CredentialStore = (*MockAccounts)(nil)

func (m *MockAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccounts) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccounts) FindByVerificationDigest(ctx context.Context, digest string) (*auth.Account, error) {
	args := m.Called(ctx, digest)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccounts) Insert(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	args := m.Called(ctx, account)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccounts) UpdateStatus(ctx context.Context, id uuid.UUID, from, to auth.AccountStatus, opts ...auth.StatusUpdateOption) (*auth.Account, error) {
	args := m.Called(ctx, id, from, to, opts)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccounts) SetVerification(ctx context.Context, id uuid.UUID, record auth.VerificationRecord) error {
	args := m.Called(ctx, id, record)
	return args.Error(0)
}

func (m *MockAccounts) ConsumeVerificationAttempt(ctx context.Context, id uuid.UUID, digest string) (int, error) {
	args := m.Called(ctx, id, digest)
	return args.Int(0), args.Error(1)
}

func (m *MockAccounts) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockAccounts) RecordFailedLogin(ctx context.Context, id uuid.UUID, failures int, at time.Time) error {
	args := m.Called(ctx, id, failures, at)
	return args.Error(0)
}

func (m *MockAccounts) List(ctx context.Context, filter auth.AccountFilter, page, limit int) ([]*auth.Account, error) {
	args := m.Called(ctx, filter, page, limit)
	if v := args.Get(0); v != nil {
		return v.([]*auth.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) Count(ctx context.Context, filter auth.AccountFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func accountArg(args mock.Arguments, i int) *auth.Account {
	if v := args.Get(i); v != nil {
		return v.(*auth.Account)
	}
	return nil
}

// captureNotifier records every notification, safe for concurrent use
type captureNotifier struct {
	mu           sync.Mutex
	verification map[string][]string
	welcome      []string
	termination  map[string]string
	err          error
}

var _ auth.Notifier = (*captureNotifier)(nil)

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		verification: map[string][]string{},
		termination:  map[string]string{},
	}
}

func (n *captureNotifier) SendVerification(_ context.Context, email, secretOrLink string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[email] = append(n.verification[email], secretOrLink)
	return n.err
}

func (n *captureNotifier) SendWelcome(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, email)
	return n.err
}

func (n *captureNotifier) SendTerminationNotice(_ context.Context, email, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.termination[email] = reason
	return n.err
}

// lastSecret returns the most recent secret or link sent to email
func (n *captureNotifier) lastSecret(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	sent := n.verification[email]
	require.NotEmpty(t, sent, "no verification sent to %s", email)
	return sent[len(sent)-1]
}

func (n *captureNotifier) sentCount(email string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.verification[email])
}

func (n *captureNotifier) welcomed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.welcome...)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(kind auth.ActivityEventType) []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []auth.ActivityEvent{}
	for _, e := range s.events {
		if e.EventType == kind {
			out = append(out, e)
		}
	}
	return out
}

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRepo returns a migrated repository manager over a private
// in-memory sqlite database.
func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

type harness struct {
	repo      auth.RepositoryManager
	clock     *testClock
	notifier  *captureNotifier
	sink      *recordingSink
	verifier  *auth.Verifier
	lifecycle *auth.Lifecycle
}

func newHarness(t *testing.T, policy ...auth.Policy) *harness {
	t.Helper()

	h := &harness{
		repo:     newTestRepo(t),
		clock:    newTestClock(),
		notifier: newCaptureNotifier(),
		sink:     &recordingSink{},
	}

	p := auth.DefaultPolicy()
	if len(policy) > 0 {
		p = policy[0]
	}

	h.verifier = auth.NewVerifier(h.repo.Accounts(),
		auth.WithPolicy(p),
		auth.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithNotifier(h.notifier),
		auth.WithVerifierLogger(auth.NopLogger()),
		auth.WithVerifierClock(h.clock.Now),
		auth.WithVerifierActivitySink(h.sink),
	)

	h.lifecycle = auth.NewLifecycle(h.repo,
		auth.WithLifecycleNotifier(h.notifier),
		auth.WithLifecycleLogger(auth.NopLogger()),
		auth.WithLifecycleClock(h.clock.Now),
		auth.WithLifecycleActivitySink(h.sink),
	)

	return h
}

func (h *harness) register(t *testing.T, email string) *auth.Account {
	t.Helper()
	res, err := h.verifier.Register(context.Background(), auth.RegisterRequest{
		Email:    email,
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	return res.Account
}

// registerActive registers and verifies email
func (h *harness) registerActive(t *testing.T, email string) *auth.Account {
	t.Helper()
	h.register(t, email)
	account, err := h.verifier.SubmitVerification(context.Background(), email, h.notifier.lastSecret(t, email))
	require.NoError(t, err)
	return account
}

var admin = auth.AdminActor{ID: "admin-1", IPAddress: "10.0.0.1", UserAgent: "test"}
