package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/desfire"
)

func TestValidateAppendOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing []string
		proposed []string
		newOwner string
		wantErr  bool
	}{
		{
			name:     "first transfer from empty history",
			existing: nil,
			proposed: []string{"alice"},
			newOwner: "bob",
		},
		{
			name:     "single append preserving prefix",
			existing: []string{"x", "y"},
			proposed: []string{"x", "y", "alice"},
			newOwner: "bob",
		},
		{
			name:     "identical history is allowed",
			existing: []string{"x", "y"},
			proposed: []string{"x", "y"},
			newOwner: "bob",
		},
		{
			name:     "rewriting an entry",
			existing: []string{"x", "y"},
			proposed: []string{"x", "z", "alice"},
			newOwner: "bob",
			wantErr:  true,
		},
		{
			name:     "truncating history",
			existing: []string{"x", "y"},
			proposed: []string{"x"},
			newOwner: "bob",
			wantErr:  true,
		},
		{
			name:     "appending more than one entry",
			existing: []string{"x"},
			proposed: []string{"x", "y", "alice"},
			newOwner: "bob",
			wantErr:  true,
		},
		{
			name:     "appended entry equals the new owner",
			existing: []string{"x"},
			proposed: []string{"x", "bob"},
			newOwner: "bob",
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAppendOnly(tc.existing, tc.proposed, tc.newOwner)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrHistoryViolation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRegisterRejectsBadKeys(t *testing.T) {
	_, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	t.Run("wrong length", func(t *testing.T) {
		_, err := transfer.Register(ctx, "tok-short", "alice", []byte{1, 2, 3}, "")
		require.Error(t, err)
	})

	t.Run("weak key", func(t *testing.T) {
		// All zeros normalizes to the degenerate 0x01-repeated DES block.
		_, err := transfer.Register(ctx, "tok-weak", "alice", make([]byte, 16), "")
		require.ErrorIs(t, err, desfire.ErrWeakKey)
	})
}

func TestRegisterDuplicateTokenID(t *testing.T) {
	_, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	rawKey, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	require.NoError(t, err)

	_, err = transfer.Register(ctx, "tok-dup", "alice", rawKey, "")
	require.NoError(t, err)

	_, err = transfer.Register(ctx, "tok-dup", "bob", rawKey, "")
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestInitiateFinalizeAdvancesLedger(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	// Token with existing history: owner A, counter 5, history [X, Y].
	seedToken(t, st, domain.Token{
		ID:             "tok-ledger",
		CurrentOwner:   "A",
		PreviousOwners: []string{"X", "Y"},
		Counter:        5,
	})

	pending, err := transfer.Initiate(ctx, "tok-ledger", "A")
	require.NoError(t, err)
	require.Equal(t, int64(6), pending.NNext)

	token, err := st.Tokens().GetToken(ctx, "tok-ledger")
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusPending, token.Status)

	result, err := transfer.Finalize(ctx, "tok-ledger", "B", "")
	require.NoError(t, err)
	require.Equal(t, "B", result.CurrentOwner)
	require.Equal(t, int64(6), result.Counter)
	require.Equal(t, []string{"X", "Y", "A"}, result.PreviousOwners)
	require.Equal(t, domain.TokenStatusOK, result.Status)

	// The pending record is consumed in the same transaction.
	_, err = st.PendingTransfers().GetPendingTransfer(ctx, "tok-ledger")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Exactly one audit event, carrying the landed counter.
	events, err := st.TransferEvents().ListTransferEvents(ctx, "tok-ledger")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "A", events[0].FromOwner)
	require.Equal(t, "B", events[0].ToOwner)
	require.Equal(t, int64(6), events[0].Counter)

	// Aggregate counters move for both parties.
	fromStats, err := st.OwnerStats().GetOwnerStats(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, int64(1), fromStats.TransfersOut)
	toStats, err := st.OwnerStats().GetOwnerStats(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, int64(1), toStats.TransfersIn)

	// A second finalize finds nothing to consume.
	_, err = transfer.Finalize(ctx, "tok-ledger", "B", "")
	require.ErrorIs(t, err, ErrNoPendingTransfer)
}

func TestInitiateGuards(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	seedToken(t, st, domain.Token{ID: "tok-guard", CurrentOwner: "alice"})

	t.Run("non-owner cannot initiate", func(t *testing.T) {
		_, err := transfer.Initiate(ctx, "tok-guard", "mallory")
		require.ErrorIs(t, err, ErrNotCurrentOwner)
	})

	t.Run("foreign open transfer conflicts", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
			TokenID:   "tok-guard",
			FromUID:   "previous-owner",
			NNext:     1,
			State:     domain.PendingOpen,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}))

		_, err := transfer.Initiate(ctx, "tok-guard", "alice")
		require.ErrorIs(t, err, ErrTransferConflict)
	})

	t.Run("own open transfer is refreshed", func(t *testing.T) {
		require.NoError(t, st.PendingTransfers().DeletePendingTransfer(ctx, "tok-guard"))

		_, err := transfer.Initiate(ctx, "tok-guard", "alice")
		require.NoError(t, err)
		_, err = transfer.Initiate(ctx, "tok-guard", "alice")
		require.NoError(t, err)
	})
}

func TestBusyStoreSurfacesAsConflict(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, mapBusy(store.ErrBusy), ErrTransferConflict)

	sentinel := errors.New("unrelated")
	require.Equal(t, sentinel, mapBusy(sentinel))
}

func TestInitiateConcurrent(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	seedToken(t, st, domain.Token{ID: "tok-race", CurrentOwner: "alice", Counter: 3})

	// Concurrent initiates serialize on the store's write transaction. Every
	// call must either succeed or report a conflict; afterwards exactly one
	// OPEN record exists and it points at counter+1.
	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := transfer.Initiate(ctx, "tok-race", "alice")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrTransferConflict)
		}
	}

	pending, err := st.PendingTransfers().GetPendingTransfer(ctx, "tok-race")
	require.NoError(t, err)
	require.Equal(t, domain.PendingOpen, pending.State)
	require.Equal(t, "alice", pending.FromUID)
	require.EqualValues(t, 4, pending.NNext)

	token, err := st.Tokens().GetToken(ctx, "tok-race")
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusPending, token.Status)
}

func TestFinalizeGuards(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("expired transfer flips state and resets token", func(t *testing.T) {
		seedToken(t, st, domain.Token{ID: "tok-expired", CurrentOwner: "alice", Status: domain.TokenStatusPending})
		require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
			TokenID:   "tok-expired",
			FromUID:   "alice",
			NNext:     1,
			State:     domain.PendingOpen,
			ExpiresAt: now.Add(-time.Minute),
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now.Add(-time.Hour),
		}))

		_, err := transfer.Finalize(ctx, "tok-expired", "bob", "")
		require.ErrorIs(t, err, ErrTransferExpired)

		pending, err := st.PendingTransfers().GetPendingTransfer(ctx, "tok-expired")
		require.NoError(t, err)
		require.Equal(t, domain.PendingExpired, pending.State)

		token, err := st.Tokens().GetToken(ctx, "tok-expired")
		require.NoError(t, err)
		require.Equal(t, domain.TokenStatusOK, token.Status)
	})

	t.Run("bound receiver must match", func(t *testing.T) {
		seedToken(t, st, domain.Token{ID: "tok-bound", CurrentOwner: "alice", Status: domain.TokenStatusPending})
		require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
			TokenID:   "tok-bound",
			FromUID:   "alice",
			ToUID:     "bob",
			NNext:     1,
			State:     domain.PendingOpen,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}))

		_, err := transfer.Finalize(ctx, "tok-bound", "carol", "")
		require.ErrorIs(t, err, ErrReceiverMismatch)

		result, err := transfer.Finalize(ctx, "tok-bound", "bob", "")
		require.NoError(t, err)
		require.Equal(t, "bob", result.CurrentOwner)
	})

	t.Run("owner change races the transfer", func(t *testing.T) {
		seedToken(t, st, domain.Token{ID: "tok-stale", CurrentOwner: "eve", Status: domain.TokenStatusPending})
		require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
			TokenID:   "tok-stale",
			FromUID:   "alice", // no longer the owner
			NNext:     1,
			State:     domain.PendingOpen,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}))

		_, err := transfer.Finalize(ctx, "tok-stale", "bob", "")
		require.ErrorIs(t, err, ErrStaleTransfer)
	})
}

func TestFinalizeTagBinding(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()

	seedToken(t, st, domain.Token{ID: "tok-tag", CurrentOwner: "alice"})

	_, err := transfer.Initiate(ctx, "tok-tag", "alice")
	require.NoError(t, err)

	// First finalize with a tag UID binds it.
	result, err := transfer.Finalize(ctx, "tok-tag", "bob", "04AABBCCDDEE80")
	require.NoError(t, err)
	require.NotNil(t, result.TagUID)
	require.Equal(t, "04AABBCCDDEE80", *result.TagUID)

	// A later transfer presenting a different physical tag is rejected.
	_, err = transfer.Initiate(ctx, "tok-tag", "bob")
	require.NoError(t, err)
	_, err = transfer.Finalize(ctx, "tok-tag", "carol", "04000000000000")
	require.ErrorIs(t, err, ErrTagMismatch)

	// The matching tag goes through.
	result, err = transfer.Finalize(ctx, "tok-tag", "carol", "04AABBCCDDEE80")
	require.NoError(t, err)
	require.Equal(t, "carol", result.CurrentOwner)
}

func TestFinalizeHealsCommittedArtifact(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Simulate a crash between the token mutation and record cleanup of an
	// older implementation: record says COMMITTED, token not yet moved.
	seedToken(t, st, domain.Token{ID: "tok-heal", CurrentOwner: "alice", Counter: 3, Status: domain.TokenStatusPending})
	require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
		TokenID:   "tok-heal",
		FromUID:   "alice",
		ToUID:     "bob",
		NNext:     4,
		State:     domain.PendingCommitted,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}))

	result, err := transfer.Finalize(ctx, "tok-heal", "bob", "")
	require.NoError(t, err)
	require.Equal(t, "bob", result.CurrentOwner)
	require.Equal(t, int64(4), result.Counter)

	// The artifact is gone; healing twice is a no-op error path.
	_, err = st.PendingTransfers().GetPendingTransfer(ctx, "tok-heal")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepExpiredPendingTransfers(t *testing.T) {
	st, _, _, _, transfer, _ := newServices(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tc := range []struct {
		id      string
		expires time.Time
	}{
		{"tok-sweep-1", now.Add(-time.Minute)},
		{"tok-sweep-2", now.Add(-time.Hour)},
		{"tok-sweep-3", now.Add(time.Hour)}, // still live
	} {
		seedToken(t, st, domain.Token{ID: tc.id, CurrentOwner: "alice", Status: domain.TokenStatusPending})
		require.NoError(t, st.PendingTransfers().UpsertPendingTransfer(ctx, domain.PendingTransfer{
			TokenID:   tc.id,
			FromUID:   "alice",
			NNext:     1,
			State:     domain.PendingOpen,
			ExpiresAt: tc.expires,
			CreatedAt: now.Add(-2 * time.Hour),
			UpdatedAt: now.Add(-2 * time.Hour),
		}))
	}

	swept, err := transfer.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, swept)

	for _, id := range []string{"tok-sweep-1", "tok-sweep-2"} {
		pending, err := st.PendingTransfers().GetPendingTransfer(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.PendingExpired, pending.State)

		token, err := st.Tokens().GetToken(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.TokenStatusOK, token.Status)
	}

	live, err := st.PendingTransfers().GetPendingTransfer(ctx, "tok-sweep-3")
	require.NoError(t, err)
	require.Equal(t, domain.PendingOpen, live.State)
}
