package desfire

import (
	"crypto/cipher"
	"fmt"
)

// BlockSize is the DES/3DES cipher block size in bytes.
const BlockSize = 8

// ZeroIV returns a fresh all-zero initialization vector.
func ZeroIV() []byte { return make([]byte, BlockSize) }

// Pad appends ISO 9797-1 method 2 padding: a single 0x80 byte followed by
// zero-fill to the next multiple of blockSize.
func Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// Unpad strips ISO 9797-1 method 2 padding by scanning backward over
// trailing zeros for the single 0x80 marker.
func Unpad(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, ErrBadPadding
	}
	return data[:idx], nil
}

// Encrypt CBC-encrypts data (already block aligned) under key with iv.
func Encrypt(key Key, iv, data []byte) ([]byte, error) {
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("desfire: CBC encrypt: data not block aligned (%d bytes)", len(data))
	}
	block, err := key.blockCipher()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// Decrypt CBC-decrypts data under key with iv.
func Decrypt(key Key, iv, data []byte) ([]byte, error) {
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("desfire: CBC decrypt: data not block aligned (%d bytes)", len(data))
	}
	block, err := key.blockCipher()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// RotateLeft returns in rotated left by one byte.
func RotateLeft(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	copy(out, in[1:])
	out[len(in)-1] = in[0]
	return out
}

// RotateRight returns in rotated right by one byte.
func RotateRight(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	out[0] = in[len(in)-1]
	copy(out[1:], in[:len(in)-1])
	return out
}
