package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
)

func TestHousekeepingSweepsExpiredState(t *testing.T) {
	st, _, _, _, transfer, staged := newServices(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	// Expired auth session.
	seedToken(t, st, domain.Token{ID: "tok-hk-1", CurrentOwner: "alice"})
	require.NoError(t, st.AuthSessions().CreateAuthSession(ctx, domain.AuthSession{
		ID:            "sess-expired",
		TokenID:       "tok-hk-1",
		UserID:        "alice",
		Phase:         domain.PhaseInit,
		TransferState: domain.SessionTransferPending,
		ExpiresAt:     past,
		CreatedAt:     past,
	}))

	// Expired token lease.
	leaseID, leaseUser := "lease-1", "alice"
	seedToken(t, st, domain.Token{
		ID:             "tok-hk-2",
		CurrentOwner:   "alice",
		LeaseID:        &leaseID,
		LeaseUserID:    &leaseUser,
		LeaseExpiresAt: &past,
	})

	// Expired open pending transfer.
	seedToken(t, st, domain.Token{ID: "tok-hk-3", CurrentOwner: "alice", Status: domain.TokenStatusPending})
	require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
		TokenID:   "tok-hk-3",
		FromUID:   "alice",
		NNext:     1,
		State:     domain.PendingOpen,
		ExpiresAt: past,
		CreatedAt: past,
		UpdatedAt: past,
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hk := NewHousekeepingService(st, transfer, staged, logger, time.Hour)

	// The first sweep runs on Start; Stop waits for the worker to exit.
	hk.Start()
	time.Sleep(50 * time.Millisecond)
	hk.Stop()

	_, err := st.AuthSessions().GetAuthSession(ctx, "sess-expired")
	require.ErrorIs(t, err, store.ErrNotFound)

	token, err := st.Tokens().GetToken(ctx, "tok-hk-2")
	require.NoError(t, err)
	require.Nil(t, token.LeaseID)
	require.Nil(t, token.LeaseExpiresAt)

	pending, err := st.PendingTransfers().GetPendingTransfer(ctx, "tok-hk-3")
	require.NoError(t, err)
	require.Equal(t, domain.PendingExpired, pending.State)

	token, err = st.Tokens().GetToken(ctx, "tok-hk-3")
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusOK, token.Status)
}
