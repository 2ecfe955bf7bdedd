package sqlite

import (
	"context"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type authSessionsRepo struct {
	db dbtx
}

const authSessionColumns = `id, token_id, user_id, key_no, phase, rnd_a, rnd_b, chain_iv,
	session_key_enc, new_key_enc, new_key_hash, transfer_state, expires_at, created_at`

func (r *authSessionsRepo) CreateAuthSession(ctx context.Context, s domain.AuthSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (`+authSessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TokenID, s.UserID, int64(s.KeyNo), string(s.Phase), s.RndA, s.RndB, s.ChainIV,
		s.SessionKeyEnc, s.NewKeyEnc, s.NewKeyHash, string(s.TransferState), s.ExpiresAt, s.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *authSessionsRepo) GetAuthSession(ctx context.Context, id string) (domain.AuthSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authSessionColumns+` FROM auth_sessions WHERE id = ?`, id)

	var (
		s             domain.AuthSession
		keyNo         int64
		phase         string
		transferState string
	)
	err := row.Scan(&s.ID, &s.TokenID, &s.UserID, &keyNo, &phase, &s.RndA, &s.RndB, &s.ChainIV,
		&s.SessionKeyEnc, &s.NewKeyEnc, &s.NewKeyHash, &transferState, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return domain.AuthSession{}, mapNotFound(err)
	}

	s.KeyNo = byte(keyNo)
	s.Phase = domain.AuthPhase(phase)
	s.TransferState = domain.SessionTransferState(transferState)
	return s, nil
}

func (r *authSessionsRepo) UpdateAuthSession(ctx context.Context, s domain.AuthSession) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_sessions SET phase = ?, rnd_a = ?, rnd_b = ?, chain_iv = ?,
		 session_key_enc = ?, new_key_enc = ?, new_key_hash = ?, transfer_state = ?, expires_at = ?
		 WHERE id = ?`,
		string(s.Phase), s.RndA, s.RndB, s.ChainIV,
		s.SessionKeyEnc, s.NewKeyEnc, s.NewKeyHash, string(s.TransferState), s.ExpiresAt,
		s.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *authSessionsRepo) DeleteAuthSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, id)
	return err
}

func (r *authSessionsRepo) DeleteExpiredAuthSessions(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, now.UTC())
	return err
}
