package desfire

import (
	"errors"
	"fmt"
)

// Status word constants for DESFire native commands wrapped in ISO 7816.
const (
	SWSuccess          = 0x9100 // operation complete
	SWMoreFrames       = 0x91AF // additional frame expected
	SWLengthError      = 0x917E // length error (wrong Lc or bad frame size)
	SWPermissionDenied = 0x919D // authenticated but insufficient rights
	SWAppNotFound      = 0x91BD // application not found
	SWFileNotFound     = 0x91F0 // file not found
	SWIllegalCommand   = 0x911C // command not supported in current state
)

// Named error conditions that status words map onto. Callers match these
// with errors.Is; the concrete error is always a *StatusError carrying the
// raw status word.
var (
	ErrLength           = errors.New("desfire: length error")
	ErrPermissionDenied = errors.New("desfire: permission denied")
	ErrNotFound         = errors.New("desfire: file or application not found")
	ErrNotSupported     = errors.New("desfire: command not supported")

	// ErrWeakKey reports that a key normalizes to a degenerate DES block
	// the cipher cannot safely use. Sessions built on such a key must be
	// torn down and re-established with a fresh key.
	ErrWeakKey = errors.New("desfire: weak or degenerate DES key")

	// ErrBadPadding reports ISO 9797-1 method 2 unpadding failure.
	ErrBadPadding = errors.New("desfire: bad ISO 9797-1 padding")
)

// StatusError is a non-success status word returned by the card.
type StatusError struct {
	SW uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("desfire: card returned SW=0x%04X (%s)", e.SW, swDescription(e.SW))
}

// Unwrap maps the status word onto its named error condition so callers can
// use errors.Is without inspecting raw status words.
func (e *StatusError) Unwrap() error {
	switch e.SW {
	case SWLengthError:
		return ErrLength
	case SWPermissionDenied:
		return ErrPermissionDenied
	case SWAppNotFound, SWFileNotFound:
		return ErrNotFound
	case SWIllegalCommand:
		return ErrNotSupported
	}
	return nil
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWMoreFrames:
		return "more frames expected"
	case SWLengthError:
		return "length error"
	case SWPermissionDenied:
		return "permission denied"
	case SWAppNotFound:
		return "application not found"
	case SWFileNotFound:
		return "file not found"
	case SWIllegalCommand:
		return "command not supported"
	default:
		return "unknown error"
	}
}

// NotImplementedError marks a scaffolded primitive whose secure-messaging
// mode is an explicit extension point rather than supported functionality.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("desfire: %s is not implemented", e.Feature)
}
