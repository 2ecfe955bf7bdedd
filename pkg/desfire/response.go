package desfire

import "fmt"

// Response is a parsed card response. More reports that the card expects
// another request under the additional-frame opcode before the command
// completes.
type Response struct {
	Data []byte
	More bool
}

// ParseResponse splits a raw card response into data and status word. The
// last two bytes are always the status word; success and more-frames codes
// parse cleanly, every other code maps onto its named error condition via
// *StatusError.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("desfire: short response (%d bytes)", len(raw))
	}
	data := raw[:len(raw)-2]
	sw := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	switch sw {
	case SWSuccess:
		return Response{Data: data}, nil
	case SWMoreFrames:
		return Response{Data: data, More: true}, nil
	}
	return Response{}, &StatusError{SW: sw}
}
