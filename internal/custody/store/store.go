package store

import (
	"context"
	"errors"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrBusy reports write contention (sqlite busy/locked). Callers may
	// retry; the services surface it as a transfer conflict.
	ErrBusy = errors.New("store: busy")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and a Tx scope because every token mutation must happen inside
// one atomic read-check-write cycle.
type Store interface {
	Tokens() Tokens
	AuthSessions() AuthSessions
	PendingTransfers() PendingTransfers
	StagedTransfers() StagedTransfers
	TransferEvents() TransferEvents
	OwnerStats() OwnerStats

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to handle transactions.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tokens interface {
	// GetToken returns a token by id.
	GetToken(ctx context.Context, id string) (domain.Token, error)

	// CreateToken inserts a freshly registered token. Returns
	// ErrAlreadyExists if the id is taken.
	CreateToken(ctx context.Context, t domain.Token) error

	// UpdateToken writes all mutable fields and bumps updated_at. Callers
	// run this inside a Tx that read the row first.
	UpdateToken(ctx context.Context, t domain.Token) error

	// ReleaseExpiredLeases clears lease fields on tokens whose lease expiry
	// has passed. Housekeeping; synchronous checks never rely on it.
	ReleaseExpiredLeases(ctx context.Context, now time.Time) error
}

type AuthSessions interface {
	// CreateAuthSession stores a new protocol session (id is ULID).
	CreateAuthSession(ctx context.Context, s domain.AuthSession) error

	// GetAuthSession returns a session by id regardless of expiry; callers
	// check Expired themselves so they can tear down properly.
	GetAuthSession(ctx context.Context, id string) (domain.AuthSession, error)

	// UpdateAuthSession persists phase advances and derived key material.
	UpdateAuthSession(ctx context.Context, s domain.AuthSession) error

	// DeleteAuthSession removes a session (protocol failure or completion).
	DeleteAuthSession(ctx context.Context, id string) error

	// DeleteExpiredAuthSessions is housekeeping.
	DeleteExpiredAuthSessions(ctx context.Context, now time.Time) error
}

type PendingTransfers interface {
	// GetPendingTransfer returns the record for a token (at most one exists).
	GetPendingTransfer(ctx context.Context, tokenID string) (domain.PendingTransfer, error)

	// UpsertPendingTransfer writes the record, replacing any previous one
	// for the same token.
	UpsertPendingTransfer(ctx context.Context, p domain.PendingTransfer) error

	// UpdatePendingTransferState flips state and bumps updated_at.
	UpdatePendingTransferState(ctx context.Context, tokenID string, state domain.PendingTransferState) error

	// DeletePendingTransfer removes the record for a token.
	DeletePendingTransfer(ctx context.Context, tokenID string) error

	// ListExpiredOpen returns up to limit OPEN records past their expiry,
	// oldest first, for the sweep.
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.PendingTransfer, error)
}

type StagedTransfers interface {
	// CreateStagedTransfer stores a new staged record (id is ULID).
	CreateStagedTransfer(ctx context.Context, s domain.StagedTransfer) error

	// GetStagedTransfer returns a staged record by id.
	GetStagedTransfer(ctx context.Context, id string) (domain.StagedTransfer, error)

	// UpdateStagedTransfer persists state flips and the rollback reason.
	UpdateStagedTransfer(ctx context.Context, s domain.StagedTransfer) error

	// ListExpiredStaged returns up to limit STAGED records past their
	// expiry, oldest first, for the sweep.
	ListExpiredStaged(ctx context.Context, now time.Time, limit int) ([]domain.StagedTransfer, error)
}

type TransferEvents interface {
	// AppendTransferEvent writes an immutable audit record. There is
	// deliberately no update or delete.
	AppendTransferEvent(ctx context.Context, e domain.TransferEvent) error

	// ListTransferEvents returns a token's events, oldest first.
	ListTransferEvents(ctx context.Context, tokenID string) ([]domain.TransferEvent, error)
}

type OwnerStats interface {
	// RecordTransfer bumps transfers_out for fromUID and transfers_in for
	// toUID, creating rows as needed.
	RecordTransfer(ctx context.Context, fromUID, toUID string) error

	// GetOwnerStats returns a user's aggregate counters (zero row if absent).
	GetOwnerStats(ctx context.Context, userID string) (domain.OwnerStats, error)
}
