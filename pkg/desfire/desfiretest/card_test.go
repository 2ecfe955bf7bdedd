package desfiretest_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/desfire/desfiretest"
)

func cardKey(t *testing.T) desfire.Key {
	t.Helper()
	k, err := desfire.NormalizeKey([]byte{
		0x3A, 0x1C, 0x5E, 0x70, 0x92, 0xB4, 0xD6, 0xF8,
		0x0B, 0x2D, 0x4F, 0x61, 0x83, 0xA5, 0xC7, 0xE9,
	})
	require.NoError(t, err)
	return k
}

// authenticate drives the reader side of the handshake against the card and
// returns the derived session key.
func authenticate(t *testing.T, card *desfiretest.Card, key desfire.Key) desfire.Key {
	t.Helper()

	resp1, err := desfire.ParseResponse(card.Respond(desfire.BuildAuthenticateFrame(0)))
	require.NoError(t, err)
	require.True(t, resp1.More)
	require.Len(t, resp1.Data, 8)

	rndB, err := desfire.Decrypt(key, desfire.ZeroIV(), resp1.Data)
	require.NoError(t, err)

	rndA := []byte{0xC1, 0xC2, 0xC3, 0xC4, 0xC5, 0xC6, 0xC7, 0xC8}
	token := append(append([]byte(nil), rndA...), desfire.RotateLeft(rndB)...)
	ct2, err := desfire.Encrypt(key, resp1.Data, token)
	require.NoError(t, err)

	cont, err := desfire.BuildAuthContinuationFrame(ct2)
	require.NoError(t, err)
	resp2, err := desfire.ParseResponse(card.Respond(cont))
	require.NoError(t, err)
	require.False(t, resp2.More)

	rotA, err := desfire.Decrypt(key, ct2[8:], resp2.Data)
	require.NoError(t, err)
	require.Equal(t, desfire.RotateLeft(rndA), rotA)

	session, err := desfire.SessionKey(key.Type(), rndA, rndB)
	require.NoError(t, err)
	require.True(t, session.Equal(card.Session), "card and reader derived different session keys")
	return session
}

func TestCardHandshakeAndSecureWrite(t *testing.T) {
	t.Parallel()

	key := cardKey(t)
	card := desfiretest.NewCard(key, desfire.ModeEnciphered)
	session := authenticate(t, card, key)

	payload := bytes.Repeat([]byte{0x5C, 0xA7}, 60)
	frames, err := desfire.BuildWriteFrames(2, 0, payload, session, desfire.ModeEnciphered)
	require.NoError(t, err)

	for i, f := range frames {
		resp, err := desfire.ParseResponse(card.Respond(f))
		require.NoError(t, err, "frame %d", i)
		require.Equal(t, i < len(frames)-1, resp.More, "frame %d", i)
	}
	require.Equal(t, payload, card.Files[2])
}

func TestCardChainedRead(t *testing.T) {
	t.Parallel()

	key := cardKey(t)
	card := desfiretest.NewCard(key, desfire.ModePlain)
	card.Files[2] = bytes.Repeat([]byte{0xEE}, 150)

	frame, err := desfire.BuildReadDataFrame(2, 0, 0)
	require.NoError(t, err)

	var out []byte
	resp, err := desfire.ParseResponse(card.Respond(frame))
	require.NoError(t, err)
	out = append(out, resp.Data...)
	for resp.More {
		resp, err = desfire.ParseResponse(card.Respond(desfire.BuildReadContinuationFrame()))
		require.NoError(t, err)
		out = append(out, resp.Data...)
	}
	require.Equal(t, card.Files[2], out)
}

func TestCardChangeKeyInvalidatesSession(t *testing.T) {
	t.Parallel()

	key := cardKey(t)
	card := desfiretest.NewCard(key, desfire.ModeEnciphered)
	session := authenticate(t, card, key)

	newKey, err := desfire.NormalizeKey(bytes.Repeat([]byte{0x77, 0x88}, 8))
	require.NoError(t, err)

	frames, err := desfire.BuildChangeKeyFrames(0, key, newKey, session, 0x00)
	require.NoError(t, err)
	for i, f := range frames {
		resp, err := desfire.ParseResponse(card.Respond(f))
		require.NoError(t, err, "frame %d", i)
		require.Equal(t, i < len(frames)-1, resp.More, "frame %d", i)
	}

	require.True(t, card.KeyChanged())
	require.True(t, card.Key.Equal(newKey))
	require.True(t, card.Session.IsZero())

	// Re-authenticating under the new key works.
	authenticate(t, card, newKey)
}

func TestCardRejectsTamperedChallenge(t *testing.T) {
	t.Parallel()

	key := cardKey(t)
	card := desfiretest.NewCard(key, desfire.ModePlain)

	resp1, err := desfire.ParseResponse(card.Respond(desfire.BuildAuthenticateFrame(0)))
	require.NoError(t, err)

	garbage := make([]byte, 16)
	copy(garbage, resp1.Data)
	cont, err := desfire.BuildAuthContinuationFrame(garbage)
	require.NoError(t, err)

	_, err = desfire.ParseResponse(card.Respond(cont))
	require.Error(t, err)
	require.True(t, card.Session.IsZero())
}
