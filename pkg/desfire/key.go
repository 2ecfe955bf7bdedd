package desfire

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/subtle"
	"fmt"
	"math/bits"
)

// KeyType tags the DES variant a normalized key selects. The variant is
// fixed at construction so downstream code never branches on raw byte
// lengths.
type KeyType int

const (
	SingleDES KeyType = iota
	TwoKeyTripleDES
	ThreeKeyTripleDES
)

func (t KeyType) String() string {
	switch t {
	case SingleDES:
		return "DES"
	case TwoKeyTripleDES:
		return "2K3DES"
	case ThreeKeyTripleDES:
		return "3K3DES"
	default:
		return "unknown"
	}
}

// Key is a validated, parity-corrected DES/3DES key. Construct one with
// NormalizeKey; the zero value is unusable and IsZero reports it.
type Key struct {
	typ   KeyType
	bytes []byte
}

// NormalizeKey validates rawKey and returns the tagged key variant.
// 8-byte keys are duplicated to 16 bytes (K||K) and tagged SingleDES;
// 16 and 24-byte keys pass through as 2K3DES and 3K3DES. Any other length
// is a construction error. Every byte gets odd-parity correction on its
// low bit, which never touches the 7 data bits.
func NormalizeKey(rawKey []byte) (Key, error) {
	var (
		typ KeyType
		kb  []byte
	)
	switch len(rawKey) {
	case 8:
		typ = SingleDES
		kb = make([]byte, 16)
		copy(kb, rawKey)
		copy(kb[8:], rawKey)
	case 16:
		typ = TwoKeyTripleDES
		kb = append([]byte(nil), rawKey...)
	case 24:
		typ = ThreeKeyTripleDES
		kb = append([]byte(nil), rawKey...)
	default:
		return Key{}, fmt.Errorf("desfire: key must be 8, 16 or 24 bytes, got %d", len(rawKey))
	}
	for i, b := range kb {
		kb[i] = fixParity(b)
	}
	return Key{typ: typ, bytes: kb}, nil
}

// fixParity sets the low bit so the whole byte has odd parity: when the
// count of set high-7 bits is even the parity bit is set, otherwise cleared.
func fixParity(b byte) byte {
	if bits.OnesCount8(b>>1)%2 == 0 {
		return b | 0x01
	}
	return b &^ 0x01
}

// Type reports the tagged DES variant.
func (k Key) Type() KeyType { return k.typ }

// Bytes returns a copy of the normalized key material.
func (k Key) Bytes() []byte { return append([]byte(nil), k.bytes...) }

// IsZero reports whether k is the unusable zero value.
func (k Key) IsZero() bool { return len(k.bytes) == 0 }

// Equal compares two keys in constant time.
func (k Key) Equal(other Key) bool {
	if len(k.bytes) != len(other.bytes) {
		return false
	}
	return subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

// blockCipher builds the DES or 3DES block primitive for k. Degenerate key
// blocks surface ErrWeakKey so callers can tear the session down instead of
// encrypting under a key that offers no protection.
func (k Key) blockCipher() (cipher.Block, error) {
	if k.IsZero() {
		return nil, fmt.Errorf("desfire: zero key")
	}
	for off := 0; off+8 <= len(k.bytes); off += 8 {
		if isWeakDESBlock(k.bytes[off : off+8]) {
			return nil, fmt.Errorf("%w (subkey %d)", ErrWeakKey, off/8)
		}
	}
	switch k.typ {
	case SingleDES:
		return des.NewCipher(k.bytes[:8])
	case TwoKeyTripleDES:
		full := make([]byte, 24)
		copy(full, k.bytes)
		copy(full[16:], k.bytes[:8])
		return des.NewTripleDESCipher(full)
	case ThreeKeyTripleDES:
		return des.NewTripleDESCipher(k.bytes)
	}
	return nil, fmt.Errorf("desfire: unknown key type %d", k.typ)
}

// desWeakKeys holds the four weak and twelve semi-weak DES keys in their
// odd-parity form. Subkeys are compared after parity correction so the
// table only needs the canonical spellings.
var desWeakKeys = [][8]byte{
	{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
	{0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE},
	{0xE0, 0xE0, 0xE0, 0xE0, 0xF1, 0xF1, 0xF1, 0xF1},
	{0x1F, 0x1F, 0x1F, 0x1F, 0x0E, 0x0E, 0x0E, 0x0E},
	{0x01, 0xFE, 0x01, 0xFE, 0x01, 0xFE, 0x01, 0xFE},
	{0xFE, 0x01, 0xFE, 0x01, 0xFE, 0x01, 0xFE, 0x01},
	{0x1F, 0xE0, 0x1F, 0xE0, 0x0E, 0xF1, 0x0E, 0xF1},
	{0xE0, 0x1F, 0xE0, 0x1F, 0xF1, 0x0E, 0xF1, 0x0E},
	{0x01, 0xE0, 0x01, 0xE0, 0x01, 0xF1, 0x01, 0xF1},
	{0xE0, 0x01, 0xE0, 0x01, 0xF1, 0x01, 0xF1, 0x01},
	{0x1F, 0xFE, 0x1F, 0xFE, 0x0E, 0xFE, 0x0E, 0xFE},
	{0xFE, 0x1F, 0xFE, 0x1F, 0xFE, 0x0E, 0xFE, 0x0E},
	{0x01, 0x1F, 0x01, 0x1F, 0x01, 0x0E, 0x01, 0x0E},
	{0x1F, 0x01, 0x1F, 0x01, 0x0E, 0x01, 0x0E, 0x01},
	{0xE0, 0xFE, 0xE0, 0xFE, 0xF1, 0xFE, 0xF1, 0xFE},
	{0xFE, 0xE0, 0xFE, 0xE0, 0xFE, 0xF1, 0xFE, 0xF1},
}

func isWeakDESBlock(sub []byte) bool {
	for _, w := range desWeakKeys {
		match := true
		for i := 0; i < 8; i++ {
			if sub[i] != w[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// SessionKey derives the secure-messaging session key from the two
// authentication challenges by interleaving their 4-byte halves in the
// native key-derivation order. Single DES sessions use only the first
// halves; 3DES sessions interleave both.
func SessionKey(keyType KeyType, rndA, rndB []byte) (Key, error) {
	if len(rndA) != 8 || len(rndB) != 8 {
		return Key{}, fmt.Errorf("desfire: session derivation needs 8-byte challenges, got %d/%d", len(rndA), len(rndB))
	}
	var raw []byte
	switch keyType {
	case SingleDES:
		raw = make([]byte, 0, 8)
		raw = append(raw, rndA[:4]...)
		raw = append(raw, rndB[:4]...)
	default:
		raw = make([]byte, 0, 16)
		raw = append(raw, rndA[:4]...)
		raw = append(raw, rndB[:4]...)
		raw = append(raw, rndA[4:]...)
		raw = append(raw, rndB[4:]...)
	}
	return NormalizeKey(raw)
}
