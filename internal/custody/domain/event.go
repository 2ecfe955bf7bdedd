package domain

import "time"

// TransferEvent is the append-only audit record of a completed transfer.
// Immutable once written.
type TransferEvent struct {
	ID        string // ULID
	TokenID   string
	FromOwner string
	ToOwner   string
	Counter   int64 // token counter value after the transfer
	CreatedAt time.Time
}

// OwnerStats are per-user aggregate transfer counters, bumped in the same
// transaction as the token mutation on finalize and commit.
type OwnerStats struct {
	UserID       string
	TransfersIn  int64
	TransfersOut int64
}
