package domain

import "time"

// PendingTransferState is the legacy two-step transfer lifecycle.
type PendingTransferState string

const (
	PendingOpen PendingTransferState = "OPEN"

	// PendingCommitted is a crash artifact, never a designed terminal state.
	// Finalize deletes the pending record in the same transaction as the
	// token mutation, so this should not occur; it is reconciled and removed
	// whenever observed.
	PendingCommitted PendingTransferState = "COMMITTED"

	PendingExpired  PendingTransferState = "EXPIRED"
	PendingCanceled PendingTransferState = "CANCELED"
)

// PendingTransfer is the legacy transfer record, at most one per token.
type PendingTransfer struct {
	TokenID string
	FromUID string
	ToUID   string // empty until a receiver binds at finalize
	NNext   int64  // the counter value the completed transfer must land on
	State   PendingTransferState

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the record is OPEN and unexpired.
func (p *PendingTransfer) Open(now time.Time) bool {
	return p.State == PendingOpen && p.ExpiresAt.After(now)
}

// StagedTransferState is the two-phase transfer lifecycle.
type StagedTransferState string

const (
	StagedStaged     StagedTransferState = "STAGED"
	StagedCommitted  StagedTransferState = "COMMITTED"
	StagedRolledBack StagedTransferState = "ROLLED_BACK"
	StagedExpired    StagedTransferState = "EXPIRED"
)

// StagedTransfer separates ledger preparation from the client-side physical
// write. The token is mutated only on commit; stage and rollback never touch
// it, which is why rollback is always safe.
type StagedTransfer struct {
	ID        string // ULID
	SessionID string
	TokenID   string
	FromUID   string
	ToUID     string

	OriginalSnapshot Snapshot // pre-image, kept for audit and rollback checks
	NewSnapshot      Snapshot // post-image applied verbatim on commit

	// NewKeyEnc is the sealed replacement card key whose hash appears in
	// NewSnapshot.KeyHash. Applied to the token on commit.
	NewKeyEnc []byte

	State  StagedTransferState
	Reason string // rollback audit note

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stageable reports whether the record is STAGED and unexpired.
func (s *StagedTransfer) Stageable(now time.Time) bool {
	return s.State == StagedStaged && s.ExpiresAt.After(now)
}
