package desfiretest

import (
	"bytes"
	"crypto/rand"

	"github.com/tagcustody/tagcustody/pkg/desfire"
)

// Card simulates the token side of the legacy DES/3DES protocol: mutual
// authentication, chained WriteData/ChangeKey commands and chained reads.
// It is deliberately strict; any malformed frame gets an error status word
// rather than a best-effort answer.
type Card struct {
	Key       desfire.Key
	WriteMode desfire.CommMode
	Files     map[byte][]byte

	// Session is the key derived by the card after a successful handshake.
	// Tests compare it against the engine's derivation.
	Session desfire.Key

	fixedRndB []byte
	rndB      []byte
	chainIV   []byte
	awaiting  bool

	cmdIns     byte
	cmdFrames  [][]byte
	cmdWant    int
	cmdGot     int
	readQueue  []byte
	changedKey bool
}

// NewCard returns a simulator holding key with empty files.
func NewCard(key desfire.Key, mode desfire.CommMode) *Card {
	return &Card{Key: key, WriteMode: mode, Files: make(map[byte][]byte)}
}

// SetRndB pins the card challenge for deterministic handshake tests.
func (c *Card) SetRndB(rndB []byte) { c.fixedRndB = append([]byte(nil), rndB...) }

// KeyChanged reports whether a ChangeKey command has been applied.
func (c *Card) KeyChanged() bool { return c.changedKey }

func sw(code uint16) []byte { return []byte{byte(code >> 8), byte(code)} }

func withSW(data []byte, code uint16) []byte {
	return append(append([]byte(nil), data...), sw(code)...)
}

// Respond handles one APDU and returns the full card response including the
// trailing status word.
func (c *Card) Respond(apdu []byte) []byte {
	if len(apdu) < 5 || apdu[0] != 0x90 || apdu[len(apdu)-1] != 0x00 {
		return sw(desfire.SWLengthError)
	}
	ins := apdu[1]
	var body []byte
	if len(apdu) > 5 {
		lc := int(apdu[4])
		body = apdu[5 : len(apdu)-1]
		if len(body) != lc {
			return sw(desfire.SWLengthError)
		}
	}

	switch ins {
	case desfire.InsAuthenticate:
		return c.authBegin()
	case desfire.InsAdditionalFrame:
		return c.additionalFrame(apdu, body)
	case desfire.InsWriteData:
		return c.beginChained(apdu, body, desfire.InsWriteData)
	case desfire.InsChangeKey:
		return c.beginChained(apdu, body, desfire.InsChangeKey)
	case desfire.InsReadData:
		return c.beginRead(body)
	}
	return sw(desfire.SWIllegalCommand)
}

func (c *Card) authBegin() []byte {
	c.rndB = make([]byte, desfire.BlockSize)
	if c.fixedRndB != nil {
		copy(c.rndB, c.fixedRndB)
	} else if _, err := rand.Read(c.rndB); err != nil {
		return sw(desfire.SWIllegalCommand)
	}
	ct, err := desfire.Encrypt(c.Key, desfire.ZeroIV(), c.rndB)
	if err != nil {
		return sw(desfire.SWIllegalCommand)
	}
	c.chainIV = ct
	c.awaiting = true
	return withSW(ct, desfire.SWMoreFrames)
}

func (c *Card) authFinish(body []byte) []byte {
	c.awaiting = false
	if len(body) != 2*desfire.BlockSize {
		return sw(desfire.SWLengthError)
	}
	dec, err := desfire.Decrypt(c.Key, c.chainIV, body)
	if err != nil {
		return sw(desfire.SWIllegalCommand)
	}
	rndA := dec[:desfire.BlockSize]
	if !bytes.Equal(dec[desfire.BlockSize:], desfire.RotateLeft(c.rndB)) {
		return sw(0x91AE)
	}
	ct, err := desfire.Encrypt(c.Key, body[desfire.BlockSize:], desfire.RotateLeft(rndA))
	if err != nil {
		return sw(desfire.SWIllegalCommand)
	}
	session, err := desfire.SessionKey(c.Key.Type(), rndA, c.rndB)
	if err != nil {
		return sw(desfire.SWIllegalCommand)
	}
	c.Session = session
	return withSW(ct, desfire.SWSuccess)
}

func (c *Card) additionalFrame(apdu, body []byte) []byte {
	if c.awaiting {
		return c.authFinish(body)
	}
	if c.cmdIns != 0 {
		c.cmdFrames = append(c.cmdFrames, append([]byte(nil), apdu...))
		c.cmdGot += len(body)
		return c.continueChained()
	}
	if c.readQueue != nil {
		return c.nextReadChunk()
	}
	return sw(desfire.SWIllegalCommand)
}

// beginChained starts accumulating a multi-frame write or changekey and
// computes how many payload bytes the full command must deliver.
func (c *Card) beginChained(apdu, body []byte, ins byte) []byte {
	switch ins {
	case desfire.InsWriteData:
		if len(body) < 7 {
			return sw(desfire.SWLengthError)
		}
		length := int(body[4]) | int(body[5])<<8 | int(body[6])<<16
		switch c.WriteMode {
		case desfire.ModePlain:
			c.cmdWant = 7 + length
		case desfire.ModeMACed:
			c.cmdWant = 7 + length + 2 + 8
		case desfire.ModeEnciphered:
			c.cmdWant = 7 + paddedLen(length+2)
		}
	case desfire.InsChangeKey:
		if len(body) < 1 {
			return sw(desfire.SWLengthError)
		}
		c.cmdWant = 1 + paddedLen(len(c.Key.Bytes())+3)
	}
	c.cmdIns = ins
	c.cmdFrames = [][]byte{append([]byte(nil), apdu...)}
	c.cmdGot = len(body)
	return c.continueChained()
}

func (c *Card) continueChained() []byte {
	if c.cmdGot < c.cmdWant {
		return sw(desfire.SWMoreFrames)
	}
	frames := c.cmdFrames
	ins := c.cmdIns
	over := c.cmdGot > c.cmdWant
	c.cmdIns, c.cmdFrames, c.cmdWant, c.cmdGot = 0, nil, 0, 0
	if over {
		return sw(desfire.SWLengthError)
	}

	switch ins {
	case desfire.InsWriteData:
		if c.WriteMode != desfire.ModePlain && c.Session.IsZero() {
			return sw(desfire.SWPermissionDenied)
		}
		fileNo, offset, data, err := DecodeWriteFrames(frames, c.Session, c.WriteMode)
		if err != nil {
			return sw(desfire.SWLengthError)
		}
		c.applyWrite(fileNo, offset, data)
		return sw(desfire.SWSuccess)
	case desfire.InsChangeKey:
		if c.Session.IsZero() {
			return sw(desfire.SWPermissionDenied)
		}
		_, newKey, _, err := DecodeChangeKeyFrames(frames, c.Session, c.Key)
		if err != nil {
			return sw(desfire.SWLengthError)
		}
		nk, err := desfire.NormalizeKey(newKey)
		if err != nil {
			return sw(desfire.SWLengthError)
		}
		c.Key = nk
		c.Session = desfire.Key{} // key change invalidates the session
		c.changedKey = true
		return sw(desfire.SWSuccess)
	}
	return sw(desfire.SWIllegalCommand)
}

func (c *Card) applyWrite(fileNo byte, offset int, data []byte) {
	f := c.Files[fileNo]
	if need := offset + len(data); need > len(f) {
		grown := make([]byte, need)
		copy(grown, f)
		f = grown
	}
	copy(f[offset:], data)
	c.Files[fileNo] = f
}

func (c *Card) beginRead(body []byte) []byte {
	if len(body) != 7 {
		return sw(desfire.SWLengthError)
	}
	fileNo := body[0]
	offset := int(body[1]) | int(body[2])<<8 | int(body[3])<<16
	length := int(body[4]) | int(body[5])<<8 | int(body[6])<<16
	f, ok := c.Files[fileNo]
	if !ok {
		return sw(desfire.SWFileNotFound)
	}
	if length == 0 {
		length = len(f) - offset
	}
	if offset < 0 || offset+length > len(f) {
		return sw(desfire.SWLengthError)
	}
	c.readQueue = append([]byte(nil), f[offset:offset+length]...)
	return c.nextReadChunk()
}

func (c *Card) nextReadChunk() []byte {
	const chunk = 59
	if len(c.readQueue) <= chunk {
		out := c.readQueue
		c.readQueue = nil
		return withSW(out, desfire.SWSuccess)
	}
	out := c.readQueue[:chunk]
	c.readQueue = c.readQueue[chunk:]
	return withSW(out, desfire.SWMoreFrames)
}

func paddedLen(n int) int { return (n/desfire.BlockSize + 1) * desfire.BlockSize }
