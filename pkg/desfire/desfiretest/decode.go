// Package desfiretest provides a reference decoder for chained DESFire
// command frames and an in-memory card simulator. Production code never
// imports it; tests use it to verify that built frames reconstruct exactly
// and to stand in for a physical token.
package desfiretest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tagcustody/tagcustody/pkg/desfire"
)

// unwrapFrame strips the ISO envelope 90 INS 00 00 [Lc data] 00 and returns
// the command data.
func unwrapFrame(frame []byte, wantIns byte) ([]byte, error) {
	if len(frame) < 5 {
		return nil, fmt.Errorf("frame too short (%d bytes)", len(frame))
	}
	if frame[0] != 0x90 || frame[1] != wantIns || frame[2] != 0x00 || frame[3] != 0x00 {
		return nil, fmt.Errorf("unexpected frame header % X", frame[:4])
	}
	if frame[len(frame)-1] != 0x00 {
		return nil, errors.New("missing trailing Le")
	}
	if len(frame) == 5 {
		return nil, nil
	}
	lc := int(frame[4])
	body := frame[5 : len(frame)-1]
	if len(body) != lc {
		return nil, fmt.Errorf("Lc=%d but body is %d bytes", lc, len(body))
	}
	return body, nil
}

// assemble joins the first frame's command data with all continuation
// frames' data.
func assemble(frames [][]byte, firstIns byte) ([]byte, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames")
	}
	out, err := unwrapFrame(frames[0], firstIns)
	if err != nil {
		return nil, err
	}
	for _, f := range frames[1:] {
		chunk, err := unwrapFrame(f, desfire.InsAdditionalFrame)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// DecodeWriteFrames reverses BuildWriteFrames: it reassembles the chained
// payload, undoes the mode protection and verifies checksum and MAC.
func DecodeWriteFrames(frames [][]byte, sessionKey desfire.Key, mode desfire.CommMode) (fileNo byte, offset int, data []byte, err error) {
	body, err := assemble(frames, desfire.InsWriteData)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(body) < 7 {
		return 0, 0, nil, fmt.Errorf("write body too short (%d bytes)", len(body))
	}
	header := body[:7]
	payload := body[7:]
	fileNo = header[0]
	offset = int(header[1]) | int(header[2])<<8 | int(header[3])<<16
	length := int(header[4]) | int(header[5])<<8 | int(header[6])<<16

	crcInput := func(d []byte) []byte {
		in := make([]byte, 0, 8+len(d))
		in = append(in, desfire.InsWriteData)
		in = append(in, header...)
		in = append(in, d...)
		return in
	}

	switch mode {
	case desfire.ModePlain:
		if len(payload) != length {
			return 0, 0, nil, fmt.Errorf("plain payload %d bytes, header says %d", len(payload), length)
		}
		data = payload

	case desfire.ModeMACed:
		if len(payload) != length+2+8 {
			return 0, 0, nil, fmt.Errorf("maced payload %d bytes, want %d", len(payload), length+10)
		}
		data = payload[:length]
		crc := payload[length : length+2]
		mac := payload[length+2:]
		if !bytes.Equal(crc, desfire.CRC16(crcInput(data))) {
			return 0, 0, nil, errors.New("write CRC mismatch")
		}
		wantMAC, err := desfire.MAC(sessionKey, append(crcInput(data), crc...))
		if err != nil {
			return 0, 0, nil, err
		}
		if !bytes.Equal(mac, wantMAC) {
			return 0, 0, nil, errors.New("write MAC mismatch")
		}

	case desfire.ModeEnciphered:
		plain, err := desfire.Decrypt(sessionKey, desfire.ZeroIV(), payload)
		if err != nil {
			return 0, 0, nil, err
		}
		plain, err = desfire.Unpad(plain)
		if err != nil {
			return 0, 0, nil, err
		}
		if len(plain) != length+2 {
			return 0, 0, nil, fmt.Errorf("enciphered plaintext %d bytes, want %d", len(plain), length+2)
		}
		data = plain[:length]
		if !bytes.Equal(plain[length:], desfire.CRC16(crcInput(data))) {
			return 0, 0, nil, errors.New("write CRC mismatch")
		}

	default:
		return 0, 0, nil, fmt.Errorf("unknown mode %d", mode)
	}
	return fileNo, offset, data, nil
}

// DecodeChangeKeyFrames reverses BuildChangeKeyFrames given the session key
// and the key being replaced. Returns the key slot, the recovered plaintext
// new key and the key version byte.
func DecodeChangeKeyFrames(frames [][]byte, sessionKey, oldKey desfire.Key) (keyNo byte, newKey []byte, version byte, err error) {
	body, err := assemble(frames, desfire.InsChangeKey)
	if err != nil {
		return 0, nil, 0, err
	}
	if len(body) < 1+desfire.BlockSize {
		return 0, nil, 0, fmt.Errorf("changekey body too short (%d bytes)", len(body))
	}
	keyNo = body[0]

	plain, err := desfire.Decrypt(sessionKey, desfire.ZeroIV(), body[1:])
	if err != nil {
		return 0, nil, 0, err
	}
	plain, err = desfire.Unpad(plain)
	if err != nil {
		return 0, nil, 0, err
	}

	ob := oldKey.Bytes()
	if len(plain) != len(ob)+3 {
		return 0, nil, 0, fmt.Errorf("cryptogram plaintext %d bytes, want %d", len(plain), len(ob)+3)
	}
	newKey = make([]byte, len(ob))
	for i := range ob {
		newKey[i] = plain[i] ^ ob[i]
	}
	if !bytes.Equal(plain[len(ob):len(ob)+2], desfire.CRC16(newKey)) {
		return 0, nil, 0, errors.New("changekey CRC mismatch")
	}
	version = plain[len(ob)+2]
	return keyNo, newKey, version, nil
}
