package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestTokenRoundTripWithOptionalFields(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	leaseID, leaseUser := "lease-abc", "alice"
	leaseExpiry := now.Add(time.Minute)
	tagUID := "04AABBCCDDEE80"

	token := domain.Token{
		ID:             "tok-1",
		CurrentOwner:   "alice",
		PreviousOwners: []string{"x", "y"},
		KeyEnc:         []byte{1, 2, 3, 4},
		KeyHash:        "hash",
		Counter:        7,
		Status:         domain.TokenStatusOK,
		LeaseID:        &leaseID,
		LeaseUserID:    &leaseUser,
		LeaseExpiresAt: &leaseExpiry,
		TagUID:         &tagUID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, st.Tokens().CreateToken(ctx, token))

	got, err := st.Tokens().GetToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, token.CurrentOwner, got.CurrentOwner)
	require.Equal(t, token.PreviousOwners, got.PreviousOwners)
	require.Equal(t, token.KeyEnc, got.KeyEnc)
	require.Equal(t, token.Counter, got.Counter)
	require.NotNil(t, got.LeaseID)
	require.Equal(t, leaseID, *got.LeaseID)
	require.NotNil(t, got.TagUID)
	require.Equal(t, tagUID, *got.TagUID)

	// Clearing the lease round-trips back to NULLs.
	got.ClearLease()
	require.NoError(t, st.Tokens().UpdateToken(ctx, got))

	got, err = st.Tokens().GetToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Nil(t, got.LeaseID)
	require.Nil(t, got.LeaseUserID)
	require.Nil(t, got.LeaseExpiresAt)
}

func TestTokenErrorsMapToSentinels(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.Tokens().GetToken(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	token := domain.Token{ID: "tok-dup", KeyEnc: []byte{1}, CreatedAt: now, UpdatedAt: now, Status: domain.TokenStatusOK}
	require.NoError(t, st.Tokens().CreateToken(ctx, token))
	require.ErrorIs(t, st.Tokens().CreateToken(ctx, token), store.ErrAlreadyExists)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sentinel := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		token := domain.Token{ID: "tok-tx", KeyEnc: []byte{1}, CreatedAt: now, UpdatedAt: now, Status: domain.TokenStatusOK}
		if err := tx.Tokens().CreateToken(ctx, token); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = st.Tokens().GetToken(ctx, "tok-tx")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOwnerStatsUpsertAndZeroRow(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	// Absent rows read as zeroes rather than ErrNotFound.
	stats, err := st.OwnerStats().GetOwnerStats(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, stats.TransfersIn)
	require.Zero(t, stats.TransfersOut)

	require.NoError(t, st.OwnerStats().RecordTransfer(ctx, "alice", "bob"))
	require.NoError(t, st.OwnerStats().RecordTransfer(ctx, "alice", "carol"))

	stats, err = st.OwnerStats().GetOwnerStats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TransfersOut)
	require.Zero(t, stats.TransfersIn)

	stats, err = st.OwnerStats().GetOwnerStats(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TransfersIn)
}

func TestWithTxMapsBusyToSentinel(t *testing.T) {
	st := newStore(t)

	// The driver reports contention through the error text; the mapping must
	// expose it as the retryable sentinel.
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		return errors.New("stmt exec: database is locked (5) (SQLITE_BUSY)")
	})
	require.ErrorIs(t, err, store.ErrBusy)

	// Unrelated errors pass through untouched.
	sentinel := errors.New("boom")
	err = st.WithTx(context.Background(), func(tx store.Tx) error { return sentinel })
	require.ErrorIs(t, err, sentinel)
	require.NotErrorIs(t, err, store.ErrBusy)
}
