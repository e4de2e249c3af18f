package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

func insertAccount(t *testing.T, store auth.CredentialStore, email string, status auth.AccountStatus) *auth.Account {
	t.Helper()
	account, err := store.Insert(context.Background(), &auth.Account{
		Email:        email,
		PasswordHash: "hash",
		Status:       status,
	})
	require.NoError(t, err)
	return account
}

func TestAccountsInsertDefaults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	account := insertAccount(t, repo.Accounts(), " Zed@Example.COM ", "")
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Equal(t, "zed@example.com", account.Email)
	assert.Equal(t, auth.StatusUnverified, account.Status)
	assert.Equal(t, auth.RoleUser, account.Role)
	assert.False(t, account.CreatedAt.IsZero())

	found, err := repo.Accounts().FindByEmail(ctx, "ZED@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = repo.Accounts().Insert(ctx, &auth.Account{Email: "zed@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)

	_, err = repo.Accounts().FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAccountsUpdateStatusIsCompareAndSet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	account := insertAccount(t, repo.Accounts(), "cas@example.com", auth.StatusActive)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	updated, err := repo.Accounts().UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusTerminated,
		auth.WithUpdatedAt(at),
		auth.WithTermination(at, "fraud"),
	)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusTerminated, updated.Status)
	require.NotNil(t, updated.TerminatedAt)
	assert.True(t, at.Equal(*updated.TerminatedAt))
	assert.Equal(t, "fraud", updated.TerminationReason)

	_, err = repo.Accounts().UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusArchived)
	require.ErrorIs(t, err, auth.ErrStatusConflict, "stale from status")

	restored, err := repo.Accounts().UpdateStatus(ctx, account.ID, auth.StatusTerminated, auth.StatusActive, auth.WithClearedTermination())
	require.NoError(t, err)
	assert.Nil(t, restored.TerminatedAt)
	assert.Empty(t, restored.TerminationReason)

	_, err = repo.Accounts().UpdateStatus(ctx, uuid.New(), auth.StatusActive, auth.StatusTerminated)
	require.ErrorIs(t, err, auth.ErrStatusConflict)
}

func TestAccountsVerificationRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := repo.Accounts()
	account := insertAccount(t, store, "verify@example.com", auth.StatusUnverified)

	sentAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	record := auth.VerificationRecord{
		Digest:    auth.DigestSecret("123456"),
		Kind:      auth.SecretCode,
		ExpiresAt: sentAt.Add(time.Hour),
		Attempts:  2,
		SentAt:    sentAt,
	}
	require.NoError(t, store.SetVerification(ctx, account.ID, record))

	found, err := store.FindByVerificationDigest(ctx, record.Digest)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	pending := found.Verification()
	require.NotNil(t, pending)
	assert.Equal(t, auth.SecretCode, pending.Kind)
	assert.Equal(t, 2, pending.AttemptsRemaining)
	assert.True(t, record.ExpiresAt.Equal(pending.ExpiresAt))
	assert.True(t, sentAt.Equal(pending.SentAt))

	remaining, err := store.ConsumeVerificationAttempt(ctx, account.ID, record.Digest)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = store.ConsumeVerificationAttempt(ctx, account.ID, record.Digest)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = store.ConsumeVerificationAttempt(ctx, account.ID, record.Digest)
	require.ErrorIs(t, err, auth.ErrStatusConflict, "never goes negative")

	_, err = store.ConsumeVerificationAttempt(ctx, account.ID, auth.DigestSecret("other"))
	require.ErrorIs(t, err, auth.ErrStatusConflict, "stale digests are ignored")

	_, err = store.UpdateStatus(ctx, account.ID, auth.StatusUnverified, auth.StatusActive,
		auth.WithVerified(sentAt), auth.WithExpectedVerification(auth.DigestSecret("other")))
	require.ErrorIs(t, err, auth.ErrStatusConflict, "activation is tied to the pending digest")

	verified, err := store.UpdateStatus(ctx, account.ID, auth.StatusUnverified, auth.StatusActive,
		auth.WithVerified(sentAt), auth.WithExpectedVerification(record.Digest))
	require.NoError(t, err)
	assert.Nil(t, verified.Verification())
	assert.Empty(t, verified.VerificationDigest)
	require.NotNil(t, verified.VerifiedAt)

	_, err = store.FindByVerificationDigest(ctx, record.Digest)
	require.ErrorIs(t, err, auth.ErrNotFound)

	err = store.SetVerification(ctx, account.ID, record)
	require.ErrorIs(t, err, auth.ErrStatusConflict, "only unverified accounts take a record")

	_, err = store.FindByVerificationDigest(ctx, "")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAccountsLoginTracking(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := repo.Accounts()
	account := insertAccount(t, store, "login@example.com", auth.StatusActive)

	at := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordFailedLogin(ctx, account.ID, 3, at))

	found, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.FailedLogins)
	require.NotNil(t, found.FailedLoginAt)

	require.NoError(t, store.RecordLogin(ctx, account.ID, at))
	require.NoError(t, store.RecordLogin(ctx, account.ID, at.Add(time.Hour)))

	found, err = store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.LoginCount)
	assert.Equal(t, 0, found.FailedLogins)
	assert.Nil(t, found.FailedLoginAt)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, at.Add(time.Hour).Equal(*found.LastLoginAt))
}

func TestAccountsListAndCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := repo.Accounts()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []auth.AccountStatus{auth.StatusActive, auth.StatusActive, auth.StatusTerminated} {
		_, err := store.Insert(ctx, &auth.Account{
			Email:        uuid.NewString() + "@example.com",
			PasswordHash: "x",
			Status:       status,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	n, err := store.Count(ctx, auth.AccountFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.Count(ctx, auth.AccountFilter{Status: auth.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := store.List(ctx, auth.AccountFilter{}, 1, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, auth.StatusTerminated, records[0].Status, "newest first")
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
}

func TestRunInTxRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	account := insertAccount(t, repo.Accounts(), "tx@example.com", auth.StatusActive)

	boom := errors.New("boom")
	err := repo.RunInTx(ctx, func(ctx context.Context, stores auth.Stores) error {
		if _, err := stores.Accounts.UpdateStatus(ctx, account.ID, auth.StatusActive, auth.StatusTerminated); err != nil {
			return err
		}
		if err := stores.Audit.Append(ctx, &auth.AuditLogEntry{
			AccountID:   account.ID,
			ActionType:  auth.AuditUserTerminated,
			PerformedBy: "admin",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := repo.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusActive, found.Status)

	entries, err := repo.AuditLog().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunInTxHonorsCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.RunInTx(ctx, func(context.Context, auth.Stores) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAuditAppendValidatesAndOrders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	audit := repo.AuditLog()

	require.ErrorIs(t, audit.Append(ctx, nil), auth.ErrInvalidInput)
	require.ErrorIs(t, audit.Append(ctx, &auth.AuditLogEntry{ActionType: auth.AuditUserArchived}), auth.ErrInvalidInput)

	accountID := uuid.New()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, action := range []auth.AuditAction{auth.AuditUserTerminated, auth.AuditUserRestored, auth.AuditDataExported} {
		entry := &auth.AuditLogEntry{
			AccountID:   accountID,
			ActionType:  action,
			PerformedBy: "admin",
			OldData:     map[string]any{"status": "active"},
			CreatedAt:   at,
		}
		require.NoError(t, audit.Append(ctx, entry))
		assert.NotEqual(t, uuid.Nil, entry.ID)
	}

	entries, err := audit.ListByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, auth.AuditUserTerminated, entries[0].ActionType, "same timestamp keeps insertion order")
	assert.Equal(t, auth.AuditUserRestored, entries[1].ActionType)
	assert.Equal(t, auth.AuditDataExported, entries[2].ActionType)
	assert.Equal(t, "active", entries[0].OldData["status"])

	page, total, err := audit.List(ctx, auth.AuditFilter{ActionType: auth.AuditUserRestored}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
}

func TestRepositoryManagerMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Migrate(context.Background()))
}
