// Package cryptox holds the key-custody primitives: at-rest encryption for
// card keys, sealing for ephemeral session keys, and key fingerprinting.
// Plaintext card keys exist only transiently inside the backend; everything
// persisted goes through a Keyring.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// Keyring derives the two AEAD keys the service uses from one master
// secret: AES-256-GCM for card keys at rest and ChaCha20-Poly1305 for
// session keys persisted across the multi-tap handshake. The domains are
// separated so a leak of one working key never exposes the other.
type Keyring struct {
	atRest cipher.AEAD
	seal   cipher.AEAD
}

// NewKeyring derives a Keyring from arbitrary master key material.
func NewKeyring(material []byte) (*Keyring, error) {
	if len(material) == 0 {
		return nil, fmt.Errorf("cryptox: empty master key material")
	}

	atRestKey := sha256.Sum256(append([]byte("tagcustody/at-rest:"), material...))
	block, err := aes.NewCipher(atRestKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create GCM: %w", err)
	}

	sealKey := sha256.Sum256(append([]byte("tagcustody/session-seal:"), material...))
	aead, err := chacha20poly1305.New(sealKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create session AEAD: %w", err)
	}

	return &Keyring{atRest: gcm, seal: aead}, nil
}

// LoadKeyring reads master key material from path when set, otherwise from
// the environment variable envVar. An empty result in development would be
// a silent-footgun, so it is an error.
func LoadKeyring(path, envVar string) (*Keyring, error) {
	var material []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to read master key file: %w", err)
		}
		material = data
	} else {
		material = []byte(os.Getenv(envVar))
	}
	return NewKeyring(material)
}

// EncryptKey encrypts a plaintext card key for storage.
// Output format: [nonce][ciphertext+tag].
func (k *Keyring) EncryptKey(plain []byte) ([]byte, error) {
	return sealWith(k.atRest, plain)
}

// DecryptKey reverses EncryptKey.
func (k *Keyring) DecryptKey(blob []byte) ([]byte, error) {
	return openWith(k.atRest, blob)
}

// SealSessionKey encrypts an ephemeral session key for persistence between
// protocol invocations.
func (k *Keyring) SealSessionKey(plain []byte) ([]byte, error) {
	return sealWith(k.seal, plain)
}

// OpenSessionKey reverses SealSessionKey.
func (k *Keyring) OpenSessionKey(blob []byte) ([]byte, error) {
	return openWith(k.seal, blob)
}

func sealWith(aead cipher.AEAD, plain []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func openWith(aead cipher.AEAD, blob []byte) ([]byte, error) {
	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("cryptox: ciphertext too short")
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}
	return plain, nil
}
