package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

type memoryLogger struct {
	entries []string
}

func (l *memoryLogger) Debug(msg string, _ ...any) { l.entries = append(l.entries, "debug:"+msg) }
func (l *memoryLogger) Info(msg string, _ ...any)  { l.entries = append(l.entries, "info:"+msg) }
func (l *memoryLogger) Warn(msg string, _ ...any)  { l.entries = append(l.entries, "warn:"+msg) }
func (l *memoryLogger) Error(msg string, _ ...any) { l.entries = append(l.entries, "error:"+msg) }

func TestLoggerActivitySink(t *testing.T) {
	logger := &memoryLogger{}
	sink := auth.NewLoggerActivitySink(logger)

	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		AccountID: "acc-1",
	}))
	assert.Equal(t, []string{"info:activity"}, logger.entries)
}

func TestActivitySinkFuncNil(t *testing.T) {
	var f auth.ActivitySinkFunc
	assert.NoError(t, f.Record(context.Background(), auth.ActivityEvent{}))
}

func TestSinkErrorsDoNotFailOperations(t *testing.T) {
	h := newHarness(t)
	logger := &memoryLogger{}

	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("sink offline")
	})

	v := auth.NewVerifier(h.repo.Accounts(),
		auth.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithNotifier(h.notifier),
		auth.WithVerifierLogger(logger),
		auth.WithVerifierActivitySink(failing),
	)

	_, err := v.Register(context.Background(), auth.RegisterRequest{Email: "sink@example.com", Password: "pw123456"})
	require.NoError(t, err)
	assert.Contains(t, logger.entries, "warn:activity sink error")
}

func TestLoginActivityEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerActive(t, "events@example.com")

	_, err := h.verifier.Authenticate(ctx, "events@example.com", "wrong")
	require.Error(t, err)
	_, err = h.verifier.Authenticate(ctx, "events@example.com", "s3cret-pass")
	require.NoError(t, err)

	failures := h.sink.ofType(auth.ActivityEventLoginFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, auth.TextCodeInvalidCredentials, failures[0].Metadata["code"])

	successes := h.sink.ofType(auth.ActivityEventLoginSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, "user", successes[0].Actor.Type)

	assert.NotEmpty(t, h.sink.ofType(auth.ActivityEventVerificationSent))
}
