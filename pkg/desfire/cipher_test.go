package desfire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPadUnpad(t *testing.T) {
	t.Parallel()

	t.Run("round trips all lengths", func(t *testing.T) {
		for n := 0; n <= 33; n++ {
			data := bytes.Repeat([]byte{0xAB}, n)
			padded := Pad(data, BlockSize)
			require.Equal(t, 0, len(padded)%BlockSize, "length %d", n)
			require.Greater(t, len(padded), len(data), "padding always adds bytes")

			got, err := Unpad(padded)
			require.NoError(t, err)
			require.Equal(t, data, got, "length %d", n)
		}
	})

	t.Run("rejects missing marker", func(t *testing.T) {
		_, err := Unpad(make([]byte, 16))
		require.ErrorIs(t, err, ErrBadPadding)

		_, err = Unpad(nil)
		require.ErrorIs(t, err, ErrBadPadding)
	})
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	key, err := NormalizeKey(bytes.Repeat([]byte{0x42, 0x17}, 8))
	require.NoError(t, err)

	plain := Pad([]byte("attack at dawn"), BlockSize)

	ct, err := Encrypt(key, ZeroIV(), plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, ct)

	pt, err := Decrypt(key, ZeroIV(), ct)
	require.NoError(t, err)
	require.Equal(t, plain, pt)

	t.Run("chained IV changes ciphertext", func(t *testing.T) {
		iv := ct[:BlockSize]
		ct2, err := Encrypt(key, iv, plain)
		require.NoError(t, err)
		require.NotEqual(t, ct, ct2)

		pt2, err := Decrypt(key, iv, ct2)
		require.NoError(t, err)
		require.Equal(t, plain, pt2)
	})

	t.Run("rejects unaligned input", func(t *testing.T) {
		_, err := Encrypt(key, ZeroIV(), []byte{1, 2, 3})
		require.Error(t, err)
		_, err = Decrypt(key, ZeroIV(), []byte{1, 2, 3})
		require.Error(t, err)
	})
}

func TestRotate(t *testing.T) {
	t.Parallel()

	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	left := RotateLeft(in)
	require.Equal(t, []byte{2, 3, 4, 5, 6, 7, 8, 1}, left)
	require.Equal(t, in, RotateRight(left))
	require.Empty(t, RotateLeft(nil))
}
