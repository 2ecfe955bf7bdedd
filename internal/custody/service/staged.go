package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/idx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

var (
	ErrStagedNotFound   = errors.New("staged transfer not found")
	ErrNotStaged        = errors.New("staged transfer is not in STAGED state")
	ErrSessionNotStaged = errors.New("session has no stageable transfer")
	ErrNoReplacementKey = errors.New("no replacement key staged on session")
	ErrSelfTransfer     = errors.New("cannot transfer a token to its current owner")
)

const defaultStagedTTL = 10 * time.Minute

// StagedTransferService implements the two-phase protocol. Stage validates
// and snapshots; the client performs the physical write; commit applies the
// post-image verbatim and rollback discards it. The token is mutated only on
// commit, which is why rollback is always safe regardless of what happened
// to the card.
type StagedTransferService struct {
	Store     store.Store
	StagedTTL time.Duration
}

// Stage prepares a transfer on an authenticated session. The authenticated
// phase is the proof that the caller holds the token's current key; the
// replacement key must already have been minted via change-key.
func (s *StagedTransferService) Stage(ctx context.Context, sessionID, toUID string) (domain.StagedTransfer, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	var staged domain.StagedTransfer
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := authenticatedSession(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		if session.TransferState != domain.SessionTransferPending {
			return ErrSessionNotStaged
		}
		if session.NewKeyHash == "" {
			return ErrNoReplacementKey
		}

		token, err := tx.Tokens().GetToken(ctx, session.TokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		// 1. The caller must still be the owner; authentication happened a
		// physical tap ago and ownership may have moved since.
		if token.CurrentOwner != session.UserID {
			return ErrNotCurrentOwner
		}
		if toUID == token.CurrentOwner {
			return ErrSelfTransfer
		}

		// 2. Compute and validate the post-image before persisting anything.
		proposed := proposedHistory(token.PreviousOwners, token.CurrentOwner)
		if err := validateAppendOnly(token.PreviousOwners, proposed, toUID); err != nil {
			log.Warn("ownership history violation on stage",
				slog.String("token_id", token.ID), slog.String("to", toUID))
			return err
		}

		original := domain.SnapshotOf(&token)
		proposedSnapshot := domain.Snapshot{
			CurrentOwner:   toUID,
			PreviousOwners: proposed,
			KeyHash:        session.NewKeyHash,
			Counter:        token.Counter + 1,
			Status:         domain.TokenStatusOK,
		}

		staged = domain.StagedTransfer{
			ID:               idx.New().String(),
			SessionID:        session.ID,
			TokenID:          token.ID,
			FromUID:          token.CurrentOwner,
			ToUID:            toUID,
			OriginalSnapshot: original,
			NewSnapshot:      proposedSnapshot,
			NewKeyEnc:        session.NewKeyEnc,
			State:            domain.StagedStaged,
			ExpiresAt:        now.Add(s.stagedTTL()),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.StagedTransfers().CreateStagedTransfer(ctx, staged); err != nil {
			return err
		}

		// 3. Mark the session so it cannot stage a second transfer. The
		// token itself is untouched.
		session.TransferState = domain.SessionTransferStaged
		return tx.AuthSessions().UpdateAuthSession(ctx, session)
	})
	if err != nil {
		return domain.StagedTransfer{}, mapBusy(err)
	}

	log.Info("transfer staged",
		slog.String("staged_id", staged.ID),
		slog.String("token_id", staged.TokenID),
		slog.String("to", toUID),
	)
	return staged, nil
}

// Commit applies the staged post-image to the token after the relay confirms
// the physical write succeeded.
func (s *StagedTransferService) Commit(ctx context.Context, stagedID string) (domain.Token, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// The STAGED to EXPIRED flip must commit even though commit itself fails,
	// so the expiry error is surfaced only after WithTx returns.
	var result domain.Token
	var expiredErr error
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		staged, err := tx.StagedTransfers().GetStagedTransfer(ctx, stagedID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStagedNotFound
			}
			return err
		}

		if staged.State != domain.StagedStaged {
			return ErrNotStaged
		}
		if !staged.ExpiresAt.After(now) {
			if err := s.expireStaged(ctx, tx, staged); err != nil {
				return err
			}
			expiredErr = ErrTransferExpired
			return nil
		}

		token, err := tx.Tokens().GetToken(ctx, staged.TokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		// 1. The pre-image must still hold; anything else means the token
		// moved underneath the staged transfer.
		if token.CurrentOwner != staged.FromUID {
			return ErrStaleTransfer
		}

		// 2. Apply the post-image verbatim, replacement key included.
		token.CurrentOwner = staged.NewSnapshot.CurrentOwner
		token.PreviousOwners = staged.NewSnapshot.PreviousOwners
		token.KeyHash = staged.NewSnapshot.KeyHash
		token.Counter = staged.NewSnapshot.Counter
		token.Status = staged.NewSnapshot.Status
		if len(staged.NewKeyEnc) > 0 {
			token.KeyEnc = staged.NewKeyEnc
		}
		if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
			return err
		}

		staged.State = domain.StagedCommitted
		if err := tx.StagedTransfers().UpdateStagedTransfer(ctx, staged); err != nil {
			return err
		}

		if err := s.setSessionTransferState(ctx, tx, staged.SessionID, domain.SessionTransferCommitted); err != nil {
			return err
		}

		event := domain.TransferEvent{
			ID:        idx.New().String(),
			TokenID:   token.ID,
			FromOwner: staged.FromUID,
			ToOwner:   staged.ToUID,
			Counter:   token.Counter,
			CreatedAt: now,
		}
		if err := tx.TransferEvents().AppendTransferEvent(ctx, event); err != nil {
			return err
		}
		if err := tx.OwnerStats().RecordTransfer(ctx, staged.FromUID, staged.ToUID); err != nil {
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

	log.Info("staged transfer committed",
		slog.String("staged_id", stagedID),
		slog.String("token_id", result.ID),
		slog.String("new_owner", result.CurrentOwner),
	)
	return result, nil
}

// Rollback discards a staged transfer after a failed physical write. The
// session returns to PENDING so the caller can stage again with the same
// authentication; the token was never touched.
func (s *StagedTransferService) Rollback(ctx context.Context, stagedID, reason string) error {
	log := slogx.FromContext(ctx)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		staged, err := tx.StagedTransfers().GetStagedTransfer(ctx, stagedID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStagedNotFound
			}
			return err
		}
		if staged.State != domain.StagedStaged {
			return ErrNotStaged
		}

		staged.State = domain.StagedRolledBack
		staged.Reason = reason
		if err := tx.StagedTransfers().UpdateStagedTransfer(ctx, staged); err != nil {
			return err
		}

		return s.setSessionTransferState(ctx, tx, staged.SessionID, domain.SessionTransferPending)
	})
	if err != nil {
		return err
	}

	log.Info("staged transfer rolled back",
		slog.String("staged_id", stagedID),
		slog.String("reason", reason),
	)
	return nil
}

// SweepExpired flips STAGED records past expiry to EXPIRED and returns their
// sessions to PENDING, a bounded batch per run.
func (s *StagedTransferService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var swept int
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		expired, err := tx.StagedTransfers().ListExpiredStaged(ctx, now, sweepBatchSize)
		if err != nil {
			return err
		}
		for _, staged := range expired {
			if err := s.expireStaged(ctx, tx, staged); err != nil {
				return err
			}
			swept++
		}
		return nil
	})
	return swept, err
}

func (s *StagedTransferService) expireStaged(ctx context.Context, tx store.Tx, staged domain.StagedTransfer) error {
	staged.State = domain.StagedExpired
	if err := tx.StagedTransfers().UpdateStagedTransfer(ctx, staged); err != nil {
		return err
	}
	return s.setSessionTransferState(ctx, tx, staged.SessionID, domain.SessionTransferPending)
}

// setSessionTransferState updates the backing session if it still exists.
// Sessions expire on their own schedule; a vanished session is not an error
// for the staged lifecycle.
func (s *StagedTransferService) setSessionTransferState(ctx context.Context, tx store.Tx, sessionID string, state domain.SessionTransferState) error {
	session, err := tx.AuthSessions().GetAuthSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	session.TransferState = state
	return tx.AuthSessions().UpdateAuthSession(ctx, session)
}

func (s *StagedTransferService) stagedTTL() time.Duration {
	if s.StagedTTL > 0 {
		return s.StagedTTL
	}
	return defaultStagedTTL
}
