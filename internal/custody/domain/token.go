package domain

import "time"

// TokenStatus reflects whether a token currently has a transfer in flight.
type TokenStatus string

const (
	TokenStatusOK      TokenStatus = "OK"
	TokenStatusPending TokenStatus = "PENDING"
)

// Token is the durable root entity. Ownership fields are mutated exclusively
// inside store transactions by the transfer services; nothing else writes
// owner, counter, previous_owners or status.
type Token struct {
	ID           string // caller-supplied stable identifier
	CurrentOwner string // user id of the current owner; empty until first registration completes

	// PreviousOwners is the append-only ownership history, oldest first.
	// Validated by the transfer services before every mutation.
	PreviousOwners []string

	KeyEnc  []byte // current card key, sealed under the at-rest master key
	KeyHash string // SHA-256 fingerprint of the plaintext key
	Counter int64  // increases by exactly 1 per completed transfer
	Status  TokenStatus

	// Lease fields guard multi-tap authentication. At most one live lease
	// exists per token; expired leases are reclaimable by anyone.
	LeaseID        *string
	LeaseUserID    *string
	LeaseExpiresAt *time.Time

	TagUID *string // physical tag UID, bound on first finalize that supplies one

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LeaseLive reports whether the token carries an unexpired lease.
func (t *Token) LeaseLive(now time.Time) bool {
	return t.LeaseID != nil && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now)
}

// ClearLease drops the lease fields. Persist via the store afterwards.
func (t *Token) ClearLease() {
	t.LeaseID = nil
	t.LeaseUserID = nil
	t.LeaseExpiresAt = nil
}

// Snapshot captures the ownership-relevant fields of a token. Staged
// transfers persist a pre-image and post-image snapshot so commit applies
// exactly what was validated at stage time and rollback has an audit record
// of what it preserved.
type Snapshot struct {
	CurrentOwner   string      `json:"current_owner"`
	PreviousOwners []string    `json:"previous_owners"`
	KeyHash        string      `json:"key_hash"`
	Counter        int64       `json:"counter"`
	Status         TokenStatus `json:"status"`
}

// SnapshotOf builds a snapshot from the token's current state.
func SnapshotOf(t *Token) Snapshot {
	owners := make([]string, len(t.PreviousOwners))
	copy(owners, t.PreviousOwners)
	return Snapshot{
		CurrentOwner:   t.CurrentOwner,
		PreviousOwners: owners,
		KeyHash:        t.KeyHash,
		Counter:        t.Counter,
		Status:         t.Status,
	}
}
