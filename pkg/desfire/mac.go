package desfire

// MAC computes the DES/3DES CBC-MAC of data under key: the input is padded
// to 8-byte blocks, CBC-encrypted with a zero IV, and the last cipher block
// is the MAC. A degenerate key surfaces ErrWeakKey from the cipher layer.
func MAC(key Key, data []byte) ([]byte, error) {
	ct, err := Encrypt(key, ZeroIV(), Pad(data, BlockSize))
	if err != nil {
		return nil, err
	}
	return ct[len(ct)-BlockSize:], nil
}
