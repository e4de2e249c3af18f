package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

func TestLogNotifier(t *testing.T) {
	logger := &memoryLogger{}
	n := auth.NewLogNotifier(logger)
	ctx := context.Background()

	require.NoError(t, n.SendVerification(ctx, "a@example.com", "123456"))
	require.NoError(t, n.SendWelcome(ctx, "a@example.com"))
	require.NoError(t, n.SendTerminationNotice(ctx, "a@example.com", "fraud"))

	assert.Equal(t, []string{
		"info:notification: verification",
		"info:notification: welcome",
		"info:notification: termination",
	}, logger.entries)
}

func TestNopNotifier(t *testing.T) {
	n := auth.NopNotifier()
	assert.NoError(t, n.SendVerification(context.Background(), "a@example.com", "x"))
	assert.NoError(t, n.SendWelcome(context.Background(), "a@example.com"))
	assert.NoError(t, n.SendTerminationNotice(context.Background(), "a@example.com", "x"))
}

func TestTerminationNoticeFailureKeepsTermination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.registerActive(t, "risky@example.com")
	h.notifier.err = errors.New("smtp down")

	terminated, err := h.lifecycle.Terminate(ctx, account.ID, "fraud", admin)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusTerminated, terminated.Status)

	stored, err := h.repo.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusTerminated, stored.Status)
}
