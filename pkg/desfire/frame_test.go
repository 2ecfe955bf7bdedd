package desfire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/desfire/desfiretest"
)

func sessionKey(t *testing.T) desfire.Key {
	t.Helper()
	k, err := desfire.NormalizeKey([]byte{
		0x13, 0x57, 0x9B, 0xDF, 0x02, 0x46, 0x8A, 0xCE,
		0xFD, 0xB9, 0x75, 0x31, 0xEC, 0xA8, 0x64, 0x20,
	})
	require.NoError(t, err)
	return k
}

func TestBuildWriteFramesRoundTrip(t *testing.T) {
	t.Parallel()

	key := sessionKey(t)
	modes := []desfire.CommMode{desfire.ModePlain, desfire.ModeMACed, desfire.ModeEnciphered}

	for n := 0; n <= 300; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*7 + n)
		}
		for _, mode := range modes {
			frames, err := desfire.BuildWriteFrames(2, 16, data, key, mode)
			require.NoError(t, err, "n=%d mode=%s", n, mode)

			fileNo, offset, got, err := desfiretest.DecodeWriteFrames(frames, key, mode)
			require.NoError(t, err, "n=%d mode=%s", n, mode)
			require.Equal(t, byte(2), fileNo)
			require.Equal(t, 16, offset)
			require.True(t, bytes.Equal(data, got), "n=%d mode=%s", n, mode)
		}
	}
}

func TestBuildWriteFramesChaining(t *testing.T) {
	t.Parallel()

	key := sessionKey(t)

	t.Run("first frame capacity boundary", func(t *testing.T) {
		// 52 plain payload bytes fill the first frame exactly (59 - 7 header).
		frames, err := desfire.BuildWriteFrames(1, 0, make([]byte, 52), key, desfire.ModePlain)
		require.NoError(t, err)
		require.Len(t, frames, 1)

		frames, err = desfire.BuildWriteFrames(1, 0, make([]byte, 53), key, desfire.ModePlain)
		require.NoError(t, err)
		require.Len(t, frames, 2)
	})

	t.Run("continuation frame capacity boundary", func(t *testing.T) {
		frames, err := desfire.BuildWriteFrames(1, 0, make([]byte, 52+59), key, desfire.ModePlain)
		require.NoError(t, err)
		require.Len(t, frames, 2)

		frames, err = desfire.BuildWriteFrames(1, 0, make([]byte, 52+59+1), key, desfire.ModePlain)
		require.NoError(t, err)
		require.Len(t, frames, 3)
	})

	t.Run("frame layout", func(t *testing.T) {
		frames, err := desfire.BuildWriteFrames(3, 0x0201, []byte{0xAA, 0xBB}, key, desfire.ModePlain)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, []byte{
			0x90, 0x3D, 0x00, 0x00, 0x09,
			0x03,             // fileNo
			0x01, 0x02, 0x00, // offset, little-endian
			0x02, 0x00, 0x00, // length, little-endian
			0xAA, 0xBB,
			0x00,
		}, frames[0])
	})

	t.Run("continuation frames use the additional frame opcode", func(t *testing.T) {
		frames, err := desfire.BuildWriteFrames(1, 0, make([]byte, 120), key, desfire.ModePlain)
		require.NoError(t, err)
		require.Greater(t, len(frames), 1)
		for _, f := range frames[1:] {
			require.Equal(t, byte(0xAF), f[1])
		}
	})
}

func TestBuildChangeKeyFrames(t *testing.T) {
	t.Parallel()

	session := sessionKey(t)

	oldKey, err := desfire.NormalizeKey(bytes.Repeat([]byte{0x11, 0x22}, 8))
	require.NoError(t, err)
	newKey, err := desfire.NormalizeKey(bytes.Repeat([]byte{0x8E, 0x4D}, 8))
	require.NoError(t, err)

	t.Run("round trips through the reference decoder", func(t *testing.T) {
		frames, err := desfire.BuildChangeKeyFrames(1, oldKey, newKey, session, 0x10)
		require.NoError(t, err)

		keyNo, recovered, version, err := desfiretest.DecodeChangeKeyFrames(frames, session, oldKey)
		require.NoError(t, err)
		require.Equal(t, byte(1), keyNo)
		require.Equal(t, byte(0x10), version)
		require.Equal(t, newKey.Bytes(), recovered)
	})

	t.Run("rejects mismatched key lengths", func(t *testing.T) {
		threeKey, err := desfire.NormalizeKey(make([]byte, 24))
		require.NoError(t, err)

		_, err = desfire.BuildChangeKeyFrames(1, oldKey, threeKey, session, 0x00)
		require.Error(t, err)
	})
}

func TestAuthFrames(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte{0x90, 0x1A, 0x00, 0x00, 0x01, 0x02, 0x00}, desfire.BuildAuthenticateFrame(0x02))

	cont, err := desfire.BuildAuthContinuationFrame(make([]byte, 16))
	require.NoError(t, err)
	require.Equal(t, byte(0xAF), cont[1])
	require.Equal(t, byte(0x10), cont[4])

	_, err = desfire.BuildAuthContinuationFrame(make([]byte, 8))
	require.Error(t, err)
}

func TestReadFrames(t *testing.T) {
	t.Parallel()

	frame, err := desfire.BuildReadDataFrame(2, 0, 32)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x90, 0xBD, 0x00, 0x00, 0x07,
		0x02, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00,
		0x00,
	}, frame)

	require.Equal(t, []byte{0x90, 0xAF, 0x00, 0x00, 0x00}, desfire.BuildReadContinuationFrame())
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	t.Run("success with data", func(t *testing.T) {
		resp, err := desfire.ParseResponse([]byte{0xDE, 0xAD, 0x91, 0x00})
		require.NoError(t, err)
		require.False(t, resp.More)
		require.Equal(t, []byte{0xDE, 0xAD}, resp.Data)
	})

	t.Run("more frames", func(t *testing.T) {
		resp, err := desfire.ParseResponse([]byte{0x01, 0x91, 0xAF})
		require.NoError(t, err)
		require.True(t, resp.More)
	})

	t.Run("named errors", func(t *testing.T) {
		cases := []struct {
			raw  []byte
			want error
		}{
			{[]byte{0x91, 0x7E}, desfire.ErrLength},
			{[]byte{0x91, 0x9D}, desfire.ErrPermissionDenied},
			{[]byte{0x91, 0xBD}, desfire.ErrNotFound},
			{[]byte{0x91, 0xF0}, desfire.ErrNotFound},
			{[]byte{0x91, 0x1C}, desfire.ErrNotSupported},
		}
		for _, tc := range cases {
			_, err := desfire.ParseResponse(tc.raw)
			require.ErrorIs(t, err, tc.want, "SW % X", tc.raw)
		}
	})

	t.Run("short response", func(t *testing.T) {
		_, err := desfire.ParseResponse([]byte{0x91})
		require.Error(t, err)
	})
}
