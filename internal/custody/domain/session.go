package domain

import "time"

// AuthPhase is the mutual-authentication state machine position.
type AuthPhase string

const (
	PhaseInit          AuthPhase = "INIT"
	PhaseChallengeSent AuthPhase = "CHALLENGE_SENT"
	PhaseAuthenticated AuthPhase = "AUTHENTICATED"
)

// SessionTransferState tracks the two-phase transfer lifecycle of an
// authenticated session. PENDING sessions may stage; a rollback returns the
// session to PENDING so the caller can retry with the same authentication.
type SessionTransferState string

const (
	SessionTransferPending   SessionTransferState = "PENDING"
	SessionTransferStaged    SessionTransferState = "STAGED"
	SessionTransferCommitted SessionTransferState = "COMMITTED"
)

// AuthSession is the persisted protocol state shared across the independent
// HTTP invocations of one multi-tap authentication. The physical tap-to-tap
// round trip is too slow to hold a single call open, so every round reloads
// this record, checks expiry, and advances the phase.
type AuthSession struct {
	ID      string // ULID
	TokenID string
	UserID  string
	KeyNo   byte

	Phase AuthPhase

	// Challenge material from the INIT round. ChainIV is the second half of
	// the ciphertext we sent, used as the CBC chaining IV for the card's
	// final response.
	RndA    []byte
	RndB    []byte
	ChainIV []byte

	// SessionKeyEnc is the derived session key, sealed for persistence.
	// Set only once the phase reaches AUTHENTICATED.
	SessionKeyEnc []byte

	// NewKeyEnc/NewKeyHash hold a server-minted replacement card key after a
	// change-key exchange has been built for this session. The plaintext key
	// never leaves the backend.
	NewKeyEnc  []byte
	NewKeyHash string

	TransferState SessionTransferState

	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session TTL has elapsed. Checked synchronously
// on every use; the housekeeping sweep is only a backstop.
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
