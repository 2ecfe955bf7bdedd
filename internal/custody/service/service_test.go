package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/internal/custody/store/drivers/sqlite"
	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/desfire/desfiretest"
)

// newTestStore returns a migrated in-memory store.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestKeyring(t *testing.T) *cryptox.Keyring {
	t.Helper()

	kr, err := cryptox.NewKeyring([]byte("test master key material"))
	require.NoError(t, err)
	return kr
}

// newServices wires the full service set over one store and keyring.
func newServices(t *testing.T) (store.Store, *cryptox.Keyring, *AuthService, *CardService, *TransferService, *StagedTransferService) {
	t.Helper()

	st := newTestStore(t)
	kr := newTestKeyring(t)

	auth := &AuthService{Store: st, Keyring: kr}
	card := &CardService{Store: st, Keyring: kr}
	transfer := &TransferService{Store: st, Keyring: kr}
	staged := &StagedTransferService{Store: st}

	return st, kr, auth, card, transfer, staged
}

// registerTestToken registers a token with a fresh random key and returns the
// matching simulated card.
func registerTestToken(t *testing.T, transfer *TransferService, tokenID, owner string, mode desfire.CommMode) *desfiretest.Card {
	t.Helper()

	rawKey, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	require.NoError(t, err)
	key, err := desfire.NormalizeKey(rawKey)
	require.NoError(t, err)

	_, err = transfer.Register(context.Background(), tokenID, owner, rawKey, "")
	require.NoError(t, err)

	return desfiretest.NewCard(key, mode)
}

// authenticate runs the full handshake between the service and the simulated
// card, returning the authenticated session id.
func authenticate(t *testing.T, auth *AuthService, card *desfiretest.Card, tokenID, userID string) string {
	t.Helper()
	ctx := context.Background()

	begin, err := auth.Begin(ctx, tokenID, userID, 0, false)
	require.NoError(t, err)

	round1, err := auth.Continue(ctx, begin.SessionID, card.Respond(begin.Frame))
	require.NoError(t, err)
	require.Equal(t, domain.PhaseChallengeSent, round1.Phase)
	require.False(t, round1.Authenticated)

	round2, err := auth.Continue(ctx, begin.SessionID, card.Respond(round1.Frame))
	require.NoError(t, err)
	require.Equal(t, domain.PhaseAuthenticated, round2.Phase)
	require.True(t, round2.Authenticated)

	return begin.SessionID
}

// pumpCard feeds an ordered frame chain into the card, requiring more-frames
// on every intermediate status and success at the end.
func pumpCard(t *testing.T, card *desfiretest.Card, frames [][]byte) {
	t.Helper()

	for i, frame := range frames {
		resp, err := desfire.ParseResponse(card.Respond(frame))
		require.NoError(t, err, "frame %d", i)
		if i < len(frames)-1 {
			require.True(t, resp.More, "frame %d should chain", i)
		} else {
			require.False(t, resp.More, "final frame should complete")
		}
	}
}

// seedToken inserts a token row directly, bypassing registration.
func seedToken(t *testing.T, st store.Store, token domain.Token) {
	t.Helper()

	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = now
	}
	if token.Status == "" {
		token.Status = domain.TokenStatusOK
	}
	if len(token.KeyEnc) == 0 {
		token.KeyEnc = []byte("seeded-key-enc")
	}
	require.NoError(t, st.Tokens().CreateToken(context.Background(), token))
}
