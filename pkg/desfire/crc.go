package desfire

// CRC16 computes the reflected CRC16 (polynomial 0xA001) over data and
// returns it as 2 little-endian bytes. DES and 3DES sessions protect
// command data with this checksum.
func CRC16(data []byte) []byte {
	crc := uint16(0x0000)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return []byte{byte(crc), byte(crc >> 8)}
}

// CRC32 is the checksum AES (EV2) sessions would use. AES secure messaging
// is an extension point, not supported functionality, so this fails loudly
// instead of ever producing silently wrong output.
func CRC32(data []byte) ([]byte, error) {
	return nil, &NotImplementedError{Feature: "AES session CRC32"}
}
