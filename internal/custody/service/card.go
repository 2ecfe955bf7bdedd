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
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// CardService builds secure-messaging command frames for an authenticated
// session. It never performs I/O to the card; the relay forwards the frames
// and returns raw responses.
type CardService struct {
	Store   store.Store
	Keyring *cryptox.Keyring
}

// WriteFrames builds the ordered WriteData frame sequence for the session's
// derived key. The relay must send each frame in order and stop on any
// status other than "more frames".
func (s *CardService) WriteFrames(ctx context.Context, sessionID string, fileNo byte, offset int, data []byte, mode desfire.CommMode) ([][]byte, error) {
	session, err := authenticatedSession(ctx, s.Store, sessionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	sessionKey, err := s.openSessionKey(session.SessionKeyEnc)
	if err != nil {
		return nil, s.failOnWeakKey(ctx, session, err)
	}

	frames, err := desfire.BuildWriteFrames(fileNo, offset, data, sessionKey, mode)
	if err != nil {
		return nil, s.failOnWeakKey(ctx, session, err)
	}
	return frames, nil
}

// failOnWeakKey destroys the backing session when the codec rejected a key as
// weak. The derived key is unusable, so the caller must authenticate again;
// any other error passes through with the session intact.
func (s *CardService) failOnWeakKey(ctx context.Context, session domain.AuthSession, cause error) error {
	if !errors.Is(cause, desfire.ErrWeakKey) {
		return cause
	}
	if err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		return destroyAuthSession(ctx, tx, session)
	}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// ChangeKey mints a replacement card key, builds the ChangeKey cryptogram
// frames and records the sealed new key on the session. The plaintext key
// never leaves this process; callers only ever see its fingerprint.
func (s *CardService) ChangeKey(ctx context.Context, sessionID string, keyNo byte, keyVersion byte) ([][]byte, string, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// A weak key surfaced by the codec invalidates the session; the teardown
	// must commit, so that error is surfaced only after WithTx returns.
	var (
		frames     [][]byte
		keyHash    string
		weakKeyErr error
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := authenticatedSession(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}

		token, err := tx.Tokens().GetToken(ctx, session.TokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		// 1. Mint the replacement key and build the cryptogram frames.
		newKeyRaw, built, err := s.buildReplacementFrames(session, token, keyNo, keyVersion)
		if err != nil {
			if errors.Is(err, desfire.ErrWeakKey) {
				if derr := destroyAuthSession(ctx, tx, session); derr != nil {
					return derr
				}
				weakKeyErr = err
				return nil
			}
			return err
		}
		frames = built

		// 2. Record the sealed new key on the session for the staged
		// transfer to pick up. The token itself is untouched until commit.
		newKeyEnc, err := s.Keyring.EncryptKey(newKeyRaw)
		if err != nil {
			return err
		}
		session.NewKeyEnc = newKeyEnc
		session.NewKeyHash = cryptox.FingerprintKey(newKeyRaw)
		keyHash = session.NewKeyHash

		return tx.AuthSessions().UpdateAuthSession(ctx, session)
	})
	if err != nil {
		return nil, "", err
	}
	if weakKeyErr != nil {
		return nil, "", weakKeyErr
	}

	log.Info("change-key frames built",
		slog.String("session_id", sessionID),
		slog.Int("frames", len(frames)),
	)
	return frames, keyHash, nil
}

// ReadFrames builds the ReadData request plus the empty continuation frame
// the relay repeats while the card answers "more frames". Read-back lets the
// relay verify a physical write before committing the ledger.
func (s *CardService) ReadFrames(ctx context.Context, sessionID string, fileNo byte, offset, length int) ([]byte, []byte, error) {
	if _, err := authenticatedSession(ctx, s.Store, sessionID, time.Now().UTC()); err != nil {
		return nil, nil, err
	}

	first, err := desfire.BuildReadDataFrame(fileNo, offset, length)
	if err != nil {
		return nil, nil, err
	}
	return first, desfire.BuildReadContinuationFrame(), nil
}

// buildReplacementFrames mints a fresh card key and builds the ChangeKey
// cryptogram against the session's derived key.
func (s *CardService) buildReplacementFrames(session domain.AuthSession, token domain.Token, keyNo, keyVersion byte) ([]byte, [][]byte, error) {
	newKeyRaw, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	if err != nil {
		return nil, nil, err
	}

	oldKeyRaw, err := s.Keyring.DecryptKey(token.KeyEnc)
	if err != nil {
		return nil, nil, err
	}

	oldKey, err := desfire.NormalizeKey(oldKeyRaw)
	if err != nil {
		return nil, nil, err
	}
	newKey, err := desfire.NormalizeKey(newKeyRaw)
	if err != nil {
		return nil, nil, err
	}

	sessionKey, err := s.openSessionKey(session.SessionKeyEnc)
	if err != nil {
		return nil, nil, err
	}

	frames, err := desfire.BuildChangeKeyFrames(keyNo, oldKey, newKey, sessionKey, keyVersion)
	if err != nil {
		return nil, nil, err
	}
	return newKeyRaw, frames, nil
}

func (s *CardService) openSessionKey(sealed []byte) (desfire.Key, error) {
	raw, err := s.Keyring.OpenSessionKey(sealed)
	if err != nil {
		return desfire.Key{}, err
	}
	return desfire.NormalizeKey(raw)
}
