package desfire

import (
	"fmt"
)

// Native command opcodes.
const (
	InsAuthenticate    = 0x1A
	InsAdditionalFrame = 0xAF
	InsWriteData       = 0x3D
	InsChangeKey       = 0xC4
	InsReadData        = 0xBD
)

// Frame capacities. A wrapped native command carries at most frameDataCap
// bytes of command data; the first WriteData frame loses 7 bytes to the
// file header and the first ChangeKey frame loses 1 byte to the key number.
const (
	frameDataCap      = 59
	writeFirstCap     = frameDataCap - writeHeaderLen
	changeKeyFirstCap = frameDataCap - 1
	writeHeaderLen    = 7
)

// CommMode selects how WriteData payloads are protected on the wire.
type CommMode int

const (
	ModePlain CommMode = iota
	ModeMACed
	ModeEnciphered
)

func (m CommMode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeMACed:
		return "maced"
	case ModeEnciphered:
		return "enciphered"
	default:
		return "unknown"
	}
}

// ParseCommMode maps the wire-facing mode names onto CommMode.
func ParseCommMode(s string) (CommMode, error) {
	switch s {
	case "plain":
		return ModePlain, nil
	case "maced":
		return ModeMACed, nil
	case "enciphered":
		return ModeEnciphered, nil
	}
	return 0, fmt.Errorf("desfire: unknown communication mode %q", s)
}

// wrapNative wraps a native command in the ISO 7816 envelope:
// 90 INS 00 00 [Lc data] 00.
func wrapNative(ins byte, data []byte) []byte {
	apdu := make([]byte, 0, 6+len(data))
	apdu = append(apdu, 0x90, ins, 0x00, 0x00)
	if len(data) > 0 {
		apdu = append(apdu, byte(len(data)))
		apdu = append(apdu, data...)
	}
	apdu = append(apdu, 0x00)
	return apdu
}

// chainFrames splits firstData+payload into a first frame under ins and as
// many additional frames (0xAF) as the payload needs.
func chainFrames(ins byte, firstData, payload []byte, firstCap int) [][]byte {
	take := len(payload)
	if take > firstCap {
		take = firstCap
	}
	first := make([]byte, 0, len(firstData)+take)
	first = append(first, firstData...)
	first = append(first, payload[:take]...)

	frames := [][]byte{wrapNative(ins, first)}
	for rest := payload[take:]; len(rest) > 0; {
		n := len(rest)
		if n > frameDataCap {
			n = frameDataCap
		}
		frames = append(frames, wrapNative(InsAdditionalFrame, rest[:n]))
		rest = rest[n:]
	}
	return frames
}

// BuildAuthenticateFrame returns the first native authenticate command for
// the given key number.
func BuildAuthenticateFrame(keyNo byte) []byte {
	return wrapNative(InsAuthenticate, []byte{keyNo})
}

// BuildAuthContinuationFrame wraps the 16-byte challenge answer in the
// additional-frame opcode.
func BuildAuthContinuationFrame(data []byte) ([]byte, error) {
	if len(data) != 2*BlockSize {
		return nil, fmt.Errorf("desfire: auth continuation must carry %d bytes, got %d", 2*BlockSize, len(data))
	}
	return wrapNative(InsAdditionalFrame, data), nil
}

// writeHeader encodes fileNo(1) || offset(3 LE) || length(3 LE).
func writeHeader(fileNo byte, offset, length int) []byte {
	return []byte{
		fileNo,
		byte(offset), byte(offset >> 8), byte(offset >> 16),
		byte(length), byte(length >> 8), byte(length >> 16),
	}
}

// BuildWriteFrames builds the chained WriteData command frames for data at
// fileNo/offset, protected per mode:
//
//	Plain:      payload = data
//	MACed:      payload = data || crc16 || mac (mac is the trailing 8 bytes)
//	Enciphered: payload = 3DES-CBC(zero IV, pad(data || crc16))
//
// The CRC always covers cmd || fileNo || offset3 || len3 || data.
func BuildWriteFrames(fileNo byte, offset int, data []byte, sessionKey Key, mode CommMode) ([][]byte, error) {
	if offset < 0 || offset > 0xFFFFFF {
		return nil, fmt.Errorf("desfire: write offset %d out of range", offset)
	}
	if len(data) > 0xFFFFFF {
		return nil, fmt.Errorf("desfire: write data too long (%d bytes)", len(data))
	}
	header := writeHeader(fileNo, offset, len(data))

	crcIn := make([]byte, 0, 1+writeHeaderLen+len(data))
	crcIn = append(crcIn, InsWriteData)
	crcIn = append(crcIn, header...)
	crcIn = append(crcIn, data...)
	crc := CRC16(crcIn)

	var payload []byte
	switch mode {
	case ModePlain:
		payload = data
	case ModeMACed:
		macIn := append(append([]byte(nil), crcIn...), crc...)
		mac, err := MAC(sessionKey, macIn)
		if err != nil {
			return nil, err
		}
		payload = make([]byte, 0, len(data)+len(crc)+len(mac))
		payload = append(payload, data...)
		payload = append(payload, crc...)
		payload = append(payload, mac...)
	case ModeEnciphered:
		plain := make([]byte, 0, len(data)+len(crc))
		plain = append(plain, data...)
		plain = append(plain, crc...)
		ct, err := Encrypt(sessionKey, ZeroIV(), Pad(plain, BlockSize))
		if err != nil {
			return nil, err
		}
		payload = ct
	default:
		return nil, fmt.Errorf("desfire: unknown communication mode %d", mode)
	}

	return chainFrames(InsWriteData, header, payload, writeFirstCap), nil
}

// BuildChangeKeyFrames builds the chained ChangeKey command frames rotating
// key slot keyNo from oldKey to newKey. The cryptogram is
// xor(new, old) || crc16(new) || keyVersion, padded and 3DES-CBC encrypted
// under the session key with a zero IV.
func BuildChangeKeyFrames(keyNo byte, oldKey, newKey, sessionKey Key, keyVersion byte) ([][]byte, error) {
	ob, nb := oldKey.Bytes(), newKey.Bytes()
	if len(ob) != len(nb) {
		return nil, fmt.Errorf("desfire: old/new key length mismatch (%d vs %d)", len(ob), len(nb))
	}

	xored := make([]byte, len(nb))
	for i := range nb {
		xored[i] = nb[i] ^ ob[i]
	}

	plain := make([]byte, 0, len(xored)+3)
	plain = append(plain, xored...)
	plain = append(plain, CRC16(nb)...)
	plain = append(plain, keyVersion)

	cryptogram, err := Encrypt(sessionKey, ZeroIV(), Pad(plain, BlockSize))
	if err != nil {
		return nil, err
	}

	return chainFrames(InsChangeKey, []byte{keyNo}, cryptogram, changeKeyFirstCap), nil
}

// BuildReadDataFrame builds the ReadData request for fileNo/offset/length.
// Continuation frames for reads carry an empty body.
func BuildReadDataFrame(fileNo byte, offset, length int) ([]byte, error) {
	if offset < 0 || offset > 0xFFFFFF || length < 0 || length > 0xFFFFFF {
		return nil, fmt.Errorf("desfire: read offset/length out of range")
	}
	return wrapNative(InsReadData, writeHeader(fileNo, offset, length)), nil
}

// BuildReadContinuationFrame returns the empty-body additional frame used
// to pull the next chunk of a chained read.
func BuildReadContinuationFrame() []byte {
	return wrapNative(InsAdditionalFrame, nil)
}
