package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/desfire"
)

func TestWriteFramesAllModes(t *testing.T) {
	payload := []byte(`{"owner":"bob","n":7}`)

	for _, mode := range []desfire.CommMode{desfire.ModePlain, desfire.ModeMACed, desfire.ModeEnciphered} {
		t.Run(mode.String(), func(t *testing.T) {
			_, _, auth, cardSvc, transfer, _ := newServices(t)
			ctx := context.Background()

			card := registerTestToken(t, transfer, "tok-write", "alice", mode)
			sessionID := authenticate(t, auth, card, "tok-write", "alice")

			frames, err := cardSvc.WriteFrames(ctx, sessionID, 1, 0, payload, mode)
			require.NoError(t, err)
			require.NotEmpty(t, frames)

			pumpCard(t, card, frames)
			require.Equal(t, payload, card.Files[1])
		})
	}
}

func TestWriteFramesRequiresAuthenticatedSession(t *testing.T) {
	_, _, auth, cardSvc, transfer, _ := newServices(t)
	ctx := context.Background()

	registerTestToken(t, transfer, "tok-noauth", "alice", desfire.ModeEnciphered)

	// Session exists but the handshake never ran.
	begin, err := auth.Begin(ctx, "tok-noauth", "alice", 0, false)
	require.NoError(t, err)

	_, err = cardSvc.WriteFrames(ctx, begin.SessionID, 1, 0, []byte("x"), desfire.ModeEnciphered)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = cardSvc.WriteFrames(ctx, "no-such-session", 1, 0, []byte("x"), desfire.ModeEnciphered)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWriteFramesWeakSessionKeyDestroysSession(t *testing.T) {
	st, kr, auth, cardSvc, transfer, _ := newServices(t)
	ctx := context.Background()

	card := registerTestToken(t, transfer, "tok-weak-session", "alice", desfire.ModeEnciphered)
	sessionID := authenticate(t, auth, card, "tok-weak-session", "alice")

	// Swap the derived key for the degenerate all-0x01 DES block. The codec
	// rejects it when building frames.
	session, err := st.AuthSessions().GetAuthSession(ctx, sessionID)
	require.NoError(t, err)
	session.SessionKeyEnc, err = kr.SealSessionKey(bytes.Repeat([]byte{0x01}, 16))
	require.NoError(t, err)
	require.NoError(t, st.AuthSessions().UpdateAuthSession(ctx, session))

	_, err = cardSvc.WriteFrames(ctx, sessionID, 1, 0, []byte("payload"), desfire.ModeEnciphered)
	require.ErrorIs(t, err, desfire.ErrWeakKey)

	// The session is torn down; the relay must authenticate again.
	_, err = st.AuthSessions().GetAuthSession(ctx, sessionID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = cardSvc.WriteFrames(ctx, sessionID, 1, 0, []byte("payload"), desfire.ModeEnciphered)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChangeKeyWeakSessionKeyDestroysSession(t *testing.T) {
	st, kr, auth, cardSvc, transfer, _ := newServices(t)
	ctx := context.Background()

	card := registerTestToken(t, transfer, "tok-weak-ck", "alice", desfire.ModeEnciphered)
	sessionID := authenticate(t, auth, card, "tok-weak-ck", "alice")

	session, err := st.AuthSessions().GetAuthSession(ctx, sessionID)
	require.NoError(t, err)
	session.SessionKeyEnc, err = kr.SealSessionKey(bytes.Repeat([]byte{0x01}, 16))
	require.NoError(t, err)
	require.NoError(t, st.AuthSessions().UpdateAuthSession(ctx, session))

	_, _, err = cardSvc.ChangeKey(ctx, sessionID, 0, 1)
	require.ErrorIs(t, err, desfire.ErrWeakKey)

	_, err = st.AuthSessions().GetAuthSession(ctx, sessionID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestChangeKeyMintsAndStagesReplacement(t *testing.T) {
	st, kr, auth, cardSvc, transfer, _ := newServices(t)
	ctx := context.Background()

	card := registerTestToken(t, transfer, "tok-ck", "alice", desfire.ModeEnciphered)
	sessionID := authenticate(t, auth, card, "tok-ck", "alice")

	frames, keyHash, err := cardSvc.ChangeKey(ctx, sessionID, 0, 1)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	require.NotEmpty(t, keyHash)

	pumpCard(t, card, frames)
	require.True(t, card.KeyChanged())

	// The minted key is sealed on the session and matches the fingerprint.
	session, err := st.AuthSessions().GetAuthSession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, keyHash, session.NewKeyHash)

	newKeyRaw, err := kr.DecryptKey(session.NewKeyEnc)
	require.NoError(t, err)
	require.Equal(t, keyHash, cryptox.FingerprintKey(newKeyRaw))

	// The card now accepts the minted key.
	cardKey, err := desfire.NormalizeKey(newKeyRaw)
	require.NoError(t, err)
	require.True(t, cardKey.Equal(card.Key))
}

func TestReadFramesRoundTrip(t *testing.T) {
	_, _, auth, cardSvc, transfer, _ := newServices(t)
	ctx := context.Background()

	card := registerTestToken(t, transfer, "tok-read", "alice", desfire.ModePlain)
	sessionID := authenticate(t, auth, card, "tok-read", "alice")

	stored := []byte("ownership payload to verify")
	card.Files[2] = append([]byte(nil), stored...)

	first, continuation, err := cardSvc.ReadFrames(ctx, sessionID, 2, 0, len(stored))
	require.NoError(t, err)

	resp, err := desfire.ParseResponse(card.Respond(first))
	require.NoError(t, err)
	data := append([]byte(nil), resp.Data...)
	for resp.More {
		resp, err = desfire.ParseResponse(card.Respond(continuation))
		require.NoError(t, err)
		data = append(data, resp.Data...)
	}
	require.Equal(t, stored, data)
}
