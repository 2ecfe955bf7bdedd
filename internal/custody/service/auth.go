package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/idx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

var (
	ErrTokenNotFound     = errors.New("token not found")
	ErrNotCurrentOwner   = errors.New("caller is not the current owner")
	ErrTokenLeased       = errors.New("token is leased by another authentication")
	ErrSessionNotFound   = errors.New("auth session not found")
	ErrSessionExpired    = errors.New("auth session expired")
	ErrNotAuthenticated  = errors.New("session is not authenticated")
	ErrProtocolViolation = errors.New("authentication protocol violation")
)

const (
	defaultSessionTTL = 30 * time.Second
	defaultLeaseTTL   = 45 * time.Second
)

// AuthService drives the card's mutual-authentication handshake. Each round
// is an independent HTTP call; the protocol state lives in the auth_sessions
// table and a short lease on the token excludes overlapping authentications
// across the multi-second physical taps.
type AuthService struct {
	Store      store.Store
	Keyring    *cryptox.Keyring
	SessionTTL time.Duration
	LeaseTTL   time.Duration
}

// BeginResult is the opening round: the session handle plus the first native
// authenticate command for the relay to forward to the card.
type BeginResult struct {
	SessionID string
	Frame     []byte
	ExpiresAt time.Time
}

// ContinueResult is one handshake round. Frame is the next command to
// forward, empty once Authenticated.
type ContinueResult struct {
	Phase         domain.AuthPhase
	Frame         []byte
	Authenticated bool
}

// Begin verifies ownership, acquires the token lease and opens a session.
// allowUnowned permits authenticating against a token that has no owner yet
// (first registration).
func (s *AuthService) Begin(ctx context.Context, tokenID, userID string, keyNo byte, allowUnowned bool) (BeginResult, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	var result BeginResult
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 1. Load the token and verify the caller may authenticate against it.
		token, err := tx.Tokens().GetToken(ctx, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		if token.CurrentOwner != userID && !(allowUnowned && token.CurrentOwner == "") {
			log.Warn("authentication attempt by non-owner",
				slog.String("token_id", tokenID),
				slog.String("user_id", userID),
			)
			return ErrNotCurrentOwner
		}

		// 2. Acquire the lease. A live foreign lease rejects; the caller's
		// own live lease is replaced (restarted handshake), expired leases
		// are reclaimable by anyone.
		if token.LeaseLive(now) && (token.LeaseUserID == nil || *token.LeaseUserID != userID) {
			return ErrTokenLeased
		}

		leaseID := uuid.NewString()
		leaseExpiry := now.Add(s.leaseTTL())
		token.LeaseID = &leaseID
		token.LeaseUserID = &userID
		token.LeaseExpiresAt = &leaseExpiry

		if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
			return err
		}

		// 3. Open the protocol session in phase INIT.
		session := domain.AuthSession{
			ID:            idx.New().String(),
			TokenID:       tokenID,
			UserID:        userID,
			KeyNo:         keyNo,
			Phase:         domain.PhaseInit,
			TransferState: domain.SessionTransferPending,
			ExpiresAt:     now.Add(s.sessionTTL()),
			CreatedAt:     now,
		}
		if err := tx.AuthSessions().CreateAuthSession(ctx, session); err != nil {
			return err
		}

		result = BeginResult{
			SessionID: session.ID,
			Frame:     desfire.BuildAuthenticateFrame(keyNo),
			ExpiresAt: session.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return BeginResult{}, err
	}

	log.Info("authentication started",
		slog.String("token_id", tokenID),
		slog.String("session_id", result.SessionID),
	)
	return result, nil
}

// Continue advances the handshake with the card's latest response. Any
// malformed length, bad status word, weak key or verification mismatch is
// fatal: the session is destroyed and the caller must Begin again.
func (s *AuthService) Continue(ctx context.Context, sessionID string, cardResponse []byte) (ContinueResult, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// A failed round tears the session down. The teardown has to commit, so
	// the failure is captured here and surfaced only after WithTx returns;
	// returning it from inside the transaction would roll the teardown back.
	var result ContinueResult
	var handshakeErr error
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.AuthSessions().GetAuthSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if session.Expired(now) {
			if err := destroyAuthSession(ctx, tx, session); err != nil {
				return err
			}
			handshakeErr = ErrSessionExpired
			return nil
		}

		token, err := tx.Tokens().GetToken(ctx, session.TokenID)
		if err != nil {
			return err
		}

		resp, err := desfire.ParseResponse(cardResponse)
		if err != nil {
			if derr := destroyAuthSession(ctx, tx, session); derr != nil {
				return derr
			}
			log.Warn("card responded with error status",
				slog.String("session_id", sessionID), slog.Any("error", err))
			handshakeErr = errors.Join(ErrProtocolViolation, err)
			return nil
		}

		switch session.Phase {
		case domain.PhaseInit:
			result, err = s.continueInit(ctx, tx, &session, token, resp)
		case domain.PhaseChallengeSent:
			result, err = s.continueChallengeSent(ctx, tx, &session, token, resp)
		default:
			err = ErrProtocolViolation
		}
		if err != nil {
			if derr := destroyAuthSession(ctx, tx, session); derr != nil {
				return derr
			}
			handshakeErr = err
			return nil
		}
		return nil
	})
	if err != nil {
		return ContinueResult{}, err
	}
	if handshakeErr != nil {
		return ContinueResult{}, handshakeErr
	}
	return result, nil
}

// continueInit handles the card's encrypted challenge ek(RndB) and answers
// with ek(RndA || rotl(RndB)) chained on the card's ciphertext.
func (s *AuthService) continueInit(ctx context.Context, tx store.Tx, session *domain.AuthSession, token domain.Token, resp desfire.Response) (ContinueResult, error) {
	// 1. The first round must signal more frames and carry exactly one block.
	if !resp.More || len(resp.Data) != desfire.BlockSize {
		return ContinueResult{}, ErrProtocolViolation
	}

	rawKey, err := s.Keyring.DecryptKey(token.KeyEnc)
	if err != nil {
		return ContinueResult{}, err
	}
	key, err := desfire.NormalizeKey(rawKey)
	if err != nil {
		return ContinueResult{}, err
	}

	// 2. Recover RndB and mint a fresh RndA.
	rndB, err := desfire.Decrypt(key, desfire.ZeroIV(), resp.Data)
	if err != nil {
		return ContinueResult{}, err
	}
	rndA := make([]byte, desfire.BlockSize)
	if _, err := rand.Read(rndA); err != nil {
		return ContinueResult{}, err
	}

	// 3. Encrypt RndA || rotl(RndB) chained on the card's ciphertext.
	challenge := append(append([]byte(nil), rndA...), desfire.RotateLeft(rndB)...)
	ct, err := desfire.Encrypt(key, resp.Data, challenge)
	if err != nil {
		return ContinueResult{}, err
	}
	frame, err := desfire.BuildAuthContinuationFrame(ct)
	if err != nil {
		return ContinueResult{}, err
	}

	session.Phase = domain.PhaseChallengeSent
	session.RndA = rndA
	session.RndB = rndB
	session.ChainIV = ct[desfire.BlockSize:]
	if err := tx.AuthSessions().UpdateAuthSession(ctx, *session); err != nil {
		return ContinueResult{}, err
	}

	return ContinueResult{Phase: domain.PhaseChallengeSent, Frame: frame}, nil
}

// continueChallengeSent verifies the card's proof ek(rotl(RndA)), derives
// the session key and releases the token lease.
func (s *AuthService) continueChallengeSent(ctx context.Context, tx store.Tx, session *domain.AuthSession, token domain.Token, resp desfire.Response) (ContinueResult, error) {
	if resp.More || len(resp.Data) != desfire.BlockSize {
		return ContinueResult{}, ErrProtocolViolation
	}

	rawKey, err := s.Keyring.DecryptKey(token.KeyEnc)
	if err != nil {
		return ContinueResult{}, err
	}
	key, err := desfire.NormalizeKey(rawKey)
	if err != nil {
		return ContinueResult{}, err
	}

	// 1. The card's proof must decrypt to exactly rotl(RndA).
	proof, err := desfire.Decrypt(key, session.ChainIV, resp.Data)
	if err != nil {
		return ContinueResult{}, err
	}
	if !bytes.Equal(proof, desfire.RotateLeft(session.RndA)) {
		return ContinueResult{}, ErrProtocolViolation
	}

	// 2. Derive and seal the session key.
	sessionKey, err := desfire.SessionKey(key.Type(), session.RndA, session.RndB)
	if err != nil {
		return ContinueResult{}, err
	}
	sealed, err := s.Keyring.SealSessionKey(sessionKey.Bytes())
	if err != nil {
		return ContinueResult{}, err
	}

	session.Phase = domain.PhaseAuthenticated
	session.SessionKeyEnc = sealed
	if err := tx.AuthSessions().UpdateAuthSession(ctx, *session); err != nil {
		return ContinueResult{}, err
	}

	// 3. Release the lease; the handshake no longer needs exclusivity. Only
	// the holder's own lease is cleared: if this handshake outlived its lease
	// and someone else has since acquired one, theirs must survive.
	if token.LeaseUserID != nil && *token.LeaseUserID == session.UserID {
		token.ClearLease()
		if err := tx.Tokens().UpdateToken(ctx, token); err != nil {
			return ContinueResult{}, err
		}
	}

	return ContinueResult{Phase: domain.PhaseAuthenticated, Authenticated: true}, nil
}

// destroyAuthSession deletes the session and releases the token lease it
// holds. Failed handshakes must not keep the token locked until the lease
// TTL. Shared with the card service, which tears sessions down on weak keys.
func destroyAuthSession(ctx context.Context, tx store.Tx, session domain.AuthSession) error {
	if err := tx.AuthSessions().DeleteAuthSession(ctx, session.ID); err != nil {
		return err
	}

	token, err := tx.Tokens().GetToken(ctx, session.TokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if token.LeaseUserID != nil && *token.LeaseUserID == session.UserID {
		token.ClearLease()
		return tx.Tokens().UpdateToken(ctx, token)
	}
	return nil
}

// authenticatedSession loads a session and requires it to be AUTHENTICATED
// and unexpired. Shared by the card and staged-transfer services.
func authenticatedSession(ctx context.Context, st store.Store, sessionID string, now time.Time) (domain.AuthSession, error) {
	session, err := st.AuthSessions().GetAuthSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthSession{}, ErrSessionNotFound
		}
		return domain.AuthSession{}, err
	}
	if session.Expired(now) {
		return domain.AuthSession{}, ErrSessionExpired
	}
	if session.Phase != domain.PhaseAuthenticated {
		return domain.AuthSession{}, ErrNotAuthenticated
	}
	return session, nil
}

func (s *AuthService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return defaultSessionTTL
}

func (s *AuthService) leaseTTL() time.Duration {
	if s.LeaseTTL > 0 {
		return s.LeaseTTL
	}
	return defaultLeaseTTL
}
