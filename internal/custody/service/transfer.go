package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/idx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

var (
	ErrTransferConflict  = errors.New("another transfer is already in progress")
	ErrNoPendingTransfer = errors.New("no pending transfer for token")
	ErrTransferExpired   = errors.New("transfer deadline elapsed")
	ErrReceiverMismatch  = errors.New("transfer is bound to a different receiver")
	ErrStaleTransfer     = errors.New("token owner changed since the transfer was initiated")
	ErrTagMismatch       = errors.New("physical tag uid does not match the registered token")
	ErrHistoryViolation  = errors.New("ownership history violation")
)

const (
	defaultPendingTTL = 10 * time.Minute
	sweepBatchSize    = 100
)

// TransferService implements the legacy two-step transfer protocol plus
// token registration and the expiry sweep. All token mutations run inside a
// single store transaction; the transaction, not an in-memory lock, is what
// guarantees at-most-one-pending and counter-by-exactly-one.
type TransferService struct {
	Store      store.Store
	Keyring    *cryptox.Keyring
	PendingTTL time.Duration
}

// validateAppendOnly enforces the append-only ownership history invariant
// shared by both transfer protocols. proposed must extend existing without
// rewriting any prefix element, and a single appended element must not equal
// the incoming owner (the new owner joins the history only when they hand
// the token on).
func validateAppendOnly(existing, proposed []string, newOwner string) error {
	if len(existing) == 0 {
		return nil // first registration
	}
	if len(proposed) < len(existing) || len(proposed) > len(existing)+1 {
		return ErrHistoryViolation
	}
	for i, owner := range existing {
		if proposed[i] != owner {
			return ErrHistoryViolation
		}
	}
	if len(proposed) == len(existing)+1 && proposed[len(proposed)-1] == newOwner {
		return ErrHistoryViolation
	}
	return nil
}

// mapBusy converts storage write contention into the retryable conflict
// error the relay already knows how to handle.
func mapBusy(err error) error {
	if errors.Is(err, store.ErrBusy) {
		return ErrTransferConflict
	}
	return err
}

// proposedHistory appends the current owner to the history unless they are
// already its last entry.
func proposedHistory(existing []string, currentOwner string) []string {
	proposed := make([]string, len(existing))
	copy(proposed, existing)
	if currentOwner == "" {
		return proposed
	}
	if n := len(proposed); n == 0 || proposed[n-1] != currentOwner {
		proposed = append(proposed, currentOwner)
	}
	return proposed
}

// Register creates a token record for a freshly provisioned card. The raw
// card key is sealed at rest; only its fingerprint is ever readable again.
func (s *TransferService) Register(ctx context.Context, tokenID, ownerUID string, rawKey []byte, tagUID string) (domain.Token, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// Reject malformed or degenerate keys at registration rather than at
	// first authentication. The probe encryption surfaces ErrWeakKey.
	key, err := desfire.NormalizeKey(rawKey)
	if err != nil {
		return domain.Token{}, err
	}
	if _, err := desfire.Encrypt(key, desfire.ZeroIV(), make([]byte, desfire.BlockSize)); err != nil {
		return domain.Token{}, err
	}

	keyEnc, err := s.Keyring.EncryptKey(rawKey)
	if err != nil {
		return domain.Token{}, err
	}

	token := domain.Token{
		ID:           tokenID,
		CurrentOwner: ownerUID,
		KeyEnc:       keyEnc,
		KeyHash:      cryptox.FingerprintKey(rawKey),
		Status:       domain.TokenStatusOK,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if tagUID != "" {
		token.TagUID = &tagUID
	}

	if err := s.Store.Tokens().CreateToken(ctx, token); err != nil {
		return domain.Token{}, err
	}

	log.Info("token registered",
		slog.String("token_id", tokenID),
		slog.String("owner", ownerUID),
	)
	return token, nil
}

// Initiate opens a pending transfer for the caller's token. An OPEN,
// unexpired record belonging to someone else is a conflict; the caller's own
// record (or a dead one) is overwritten.
func (s *TransferService) Initiate(ctx context.Context, tokenID, caller string) (domain.PendingTransfer, error) {
	now := time.Now().UTC()

	var pending domain.PendingTransfer
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		token, err := tx.Tokens().GetToken(ctx, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		if token.CurrentOwner != caller {
			return ErrNotCurrentOwner
		}

		existing, err := tx.PendingTransfers().GetPendingTransfer(ctx, tokenID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil && existing.Open(now) && existing.FromUID != caller {
			return ErrTransferConflict
		}

		pending = domain.PendingTransfer{
			TokenID:   tokenID,
			FromUID:   caller,
			NNext:     token.Counter + 1,
			State:     domain.PendingOpen,
			ExpiresAt: now.Add(s.pendingTTL()),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.PendingTransfers().UpsertPendingTransfer(ctx, pending); err != nil {
			return err
		}

		token.Status = domain.TokenStatusPending
		return tx.Tokens().UpdateToken(ctx, token)
	})
	if err != nil {
		return domain.PendingTransfer{}, mapBusy(err)
	}
	return pending, nil
}

// Finalize completes a pending transfer: the caller becomes the owner, the
// counter lands on n_next, the history gains the previous owner, and the
// pending record is deleted in the same transaction. tagUID, when supplied,
// must match a previously bound physical tag.
func (s *TransferService) Finalize(ctx context.Context, tokenID, caller, tagUID string) (domain.Token, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// Expiry flips state on the failure path; the flip must commit, so the
	// error is surfaced only after WithTx returns.
	var result domain.Token
	var expiredErr error
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		token, err := tx.Tokens().GetToken(ctx, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		pending, err := tx.PendingTransfers().GetPendingTransfer(ctx, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoPendingTransfer
			}
			return err
		}

		// 1. A COMMITTED record is a crash artifact: reconcile and succeed
		// idempotently. Finalize deletes the record in the same transaction
		// as the token mutation, so this path exists only as anomaly
		// handling, never as a designed transition.
		if pending.State == domain.PendingCommitted {
			result, err = s.healCommittedArtifact(ctx, tx, token, pending)
			return err
		}

		// 2. The record must be OPEN and unexpired.
		if pending.State != domain.PendingOpen {
			return ErrNoPendingTransfer
		}
		if !pending.ExpiresAt.After(now) {
			if err := tx.PendingTransfers().UpdatePendingTransferState(ctx, tokenID, domain.PendingExpired); err != nil {
				return err
			}
			token.Status = domain.TokenStatusOK
			if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
				return err
			}
			expiredErr = ErrTransferExpired
			return nil
		}

		// 3. Guard against an owner change racing the transfer.
		if pending.FromUID != token.CurrentOwner {
			return ErrStaleTransfer
		}

		// 4. Optional physical-tag sanity check.
		if tagUID != "" && token.TagUID != nil && *token.TagUID != tagUID {
			return ErrTagMismatch
		}

		// 5. Bind the receiver, or require a match if already bound.
		if pending.ToUID == "" {
			pending.ToUID = caller
		} else if pending.ToUID != caller {
			return ErrReceiverMismatch
		}

		// 6. Validate the append-only history before any write.
		proposed := proposedHistory(token.PreviousOwners, token.CurrentOwner)
		if err := validateAppendOnly(token.PreviousOwners, proposed, caller); err != nil {
			log.Warn("ownership history violation on finalize",
				slog.String("token_id", tokenID), slog.String("caller", caller))
			return err
		}

		// 7. Apply the transfer, delete the pending record and append the
		// audit event, all in this transaction.
		fromOwner := token.CurrentOwner
		token.CurrentOwner = caller
		token.PreviousOwners = proposed
		token.Counter = pending.NNext
		token.Status = domain.TokenStatusOK
		if tagUID != "" && token.TagUID == nil {
			token.TagUID = &tagUID
		}
		if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
			return err
		}
		if err := tx.PendingTransfers().DeletePendingTransfer(ctx, tokenID); err != nil {
			return err
		}
		if err := s.recordTransfer(ctx, tx, token, fromOwner, caller); err != nil {
			return err
		}

		result = token
		return nil
	})
	if err != nil {
		return domain.Token{}, mapBusy(err)
	}
	if expiredErr != nil {
		return domain.Token{}, expiredErr
	}

	log.Info("transfer finalized",
		slog.String("token_id", tokenID),
		slog.String("new_owner", caller),
		slog.Int64("counter", result.Counter),
	)
	return result, nil
}

// healCommittedArtifact reconciles token ownership to a COMMITTED pending
// record's intended recipient, then removes the record. Idempotent and safe
// to run repeatedly.
func (s *TransferService) healCommittedArtifact(ctx context.Context, tx store.Tx, token domain.Token, pending domain.PendingTransfer) (domain.Token, error) {
	log := slogx.FromContext(ctx)

	if pending.ToUID != "" && token.CurrentOwner != pending.ToUID {
		fromOwner := token.CurrentOwner
		token.PreviousOwners = proposedHistory(token.PreviousOwners, token.CurrentOwner)
		token.CurrentOwner = pending.ToUID
		token.Counter = pending.NNext
		token.Status = domain.TokenStatusOK
		if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
			return domain.Token{}, err
		}
		if err := s.recordTransfer(ctx, tx, token, fromOwner, pending.ToUID); err != nil {
			return domain.Token{}, err
		}
		log.Warn("reconciled committed transfer artifact",
			slog.String("token_id", token.ID),
			slog.String("recipient", pending.ToUID),
		)
	}

	if err := tx.PendingTransfers().DeletePendingTransfer(ctx, token.ID); err != nil {
		return domain.Token{}, err
	}
	return token, nil
}

// recordTransfer appends the immutable audit event and bumps the per-user
// aggregate counters inside the caller's transaction.
func (s *TransferService) recordTransfer(ctx context.Context, tx store.Tx, token domain.Token, fromOwner, toOwner string) error {
	event := domain.TransferEvent{
		ID:        idx.New().String(),
		TokenID:   token.ID,
		FromOwner: fromOwner,
		ToOwner:   toOwner,
		Counter:   token.Counter,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.TransferEvents().AppendTransferEvent(ctx, event); err != nil {
		return err
	}
	return tx.OwnerStats().RecordTransfer(ctx, fromOwner, toOwner)
}

// SweepExpired flips OPEN records past their expiry to EXPIRED and resets
// the token status, a bounded batch per run. Expiry is also checked
// synchronously on finalize, so correctness never depends on this sweep.
func (s *TransferService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var swept int
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		expired, err := tx.PendingTransfers().ListExpiredOpen(ctx, now, sweepBatchSize)
		if err != nil {
			return err
		}

		for _, pending := range expired {
			if err := tx.PendingTransfers().UpdatePendingTransferState(ctx, pending.TokenID, domain.PendingExpired); err != nil {
				return err
			}

			token, err := tx.Tokens().GetToken(ctx, pending.TokenID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			if token.Status == domain.TokenStatusPending {
				token.Status = domain.TokenStatusOK
				if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
					return err
				}
			}
			swept++
		}
		return nil
	})
	return swept, err
}

func (s *TransferService) pendingTTL() time.Duration {
	if s.PendingTTL > 0 {
		return s.PendingTTL
	}
	return defaultPendingTTL
}
