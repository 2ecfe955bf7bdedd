package cryptox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/pkg/cryptox"
)

func TestKeyringEncryptDecrypt(t *testing.T) {
	t.Parallel()

	kr, err := cryptox.NewKeyring([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	cardKey := []byte("0123456789abcdef")

	encrypted, err := kr.EncryptKey(cardKey)
	require.NoError(t, err)
	require.NotEmpty(t, encrypted)
	require.NotContains(t, string(encrypted), string(cardKey))

	decrypted, err := kr.DecryptKey(encrypted)
	require.NoError(t, err)
	require.Equal(t, cardKey, decrypted)

	t.Run("random nonce per encryption", func(t *testing.T) {
		again, err := kr.EncryptKey(cardKey)
		require.NoError(t, err)
		require.NotEqual(t, encrypted, again)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		bad := append([]byte(nil), encrypted...)
		bad[len(bad)-1] ^= 0x01
		_, err := kr.DecryptKey(bad)
		require.Error(t, err)
	})
}

func TestKeyringDomainSeparation(t *testing.T) {
	t.Parallel()

	kr, err := cryptox.NewKeyring([]byte("shared-master-secret"))
	require.NoError(t, err)

	sessionKey := []byte("session-key-16by")

	sealed, err := kr.SealSessionKey(sessionKey)
	require.NoError(t, err)

	opened, err := kr.OpenSessionKey(sealed)
	require.NoError(t, err)
	require.Equal(t, sessionKey, opened)

	// A blob sealed in the session domain must not open in the at-rest
	// domain even though both derive from the same master secret.
	_, err = kr.DecryptKey(sealed)
	require.Error(t, err)
}

func TestNewKeyringRejectsEmptyMaterial(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewKeyring(nil)
	require.Error(t, err)
}

func TestFingerprintKey(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	fp := cryptox.FingerprintKey(key)
	require.NotEmpty(t, fp)
	require.NotEqual(t, string(key), fp)
	require.Equal(t, fp, cryptox.FingerprintKey(key))
	require.NotEqual(t, fp, cryptox.FingerprintKey([]byte("0123456789abcdeF")))
}

func TestGenerateCardKey(t *testing.T) {
	t.Parallel()

	a, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	require.NoError(t, err)
	require.Len(t, a, cryptox.CardKeySize)

	b, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = cryptox.GenerateCardKey(0)
	require.Error(t, err)
}
