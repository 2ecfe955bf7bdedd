package sqlite

import (
	"context"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type stagedTransfersRepo struct {
	db dbtx
}

const stagedColumns = `id, session_id, token_id, from_uid, to_uid, original_snapshot,
	new_snapshot, new_key_enc, state, reason, expires_at, created_at, updated_at`

func (r *stagedTransfersRepo) CreateStagedTransfer(ctx context.Context, s domain.StagedTransfer) error {
	original, err := encodeJSON(s.OriginalSnapshot)
	if err != nil {
		return err
	}
	proposed, err := encodeJSON(s.NewSnapshot)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO staged_transfers (`+stagedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SessionID, s.TokenID, s.FromUID, s.ToUID, original,
		proposed, s.NewKeyEnc, string(s.State), s.Reason, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *stagedTransfersRepo) GetStagedTransfer(ctx context.Context, id string) (domain.StagedTransfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_transfers WHERE id = ?`, id)
	return scanStagedTransfer(row)
}

func (r *stagedTransfersRepo) UpdateStagedTransfer(ctx context.Context, s domain.StagedTransfer) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE staged_transfers SET state = ?, reason = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(s.State), s.Reason, s.ExpiresAt, time.Now().UTC(), s.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *stagedTransfersRepo) ListExpiredStaged(ctx context.Context, now time.Time, limit int) ([]domain.StagedTransfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_transfers
		 WHERE state = ? AND expires_at <= ?
		 ORDER BY expires_at ASC LIMIT ?`,
		string(domain.StagedStaged), now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StagedTransfer
	for rows.Next() {
		s, err := scanStagedTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStagedTransfer(row rowScanner) (domain.StagedTransfer, error) {
	var (
		s        domain.StagedTransfer
		original string
		proposed string
		state    string
	)
	err := row.Scan(&s.ID, &s.SessionID, &s.TokenID, &s.FromUID, &s.ToUID, &original,
		&proposed, &s.NewKeyEnc, &state, &s.Reason, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.StagedTransfer{}, mapNotFound(err)
	}

	if err := decodeJSON(original, &s.OriginalSnapshot); err != nil {
		return domain.StagedTransfer{}, err
	}
	if err := decodeJSON(proposed, &s.NewSnapshot); err != nil {
		return domain.StagedTransfer{}, err
	}
	s.State = domain.StagedTransferState(state)
	return s, nil
}
