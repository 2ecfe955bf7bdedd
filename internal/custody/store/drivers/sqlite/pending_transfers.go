package sqlite

import (
	"context"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type pendingTransfersRepo struct {
	db dbtx
}

const pendingColumns = `token_id, from_uid, to_uid, n_next, state, expires_at, created_at, updated_at`

func (r *pendingTransfersRepo) GetPendingTransfer(ctx context.Context, tokenID string) (domain.PendingTransfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_transfers WHERE token_id = ?`, tokenID)
	return scanPendingTransfer(row)
}

func (r *pendingTransfersRepo) UpsertPendingTransfer(ctx context.Context, p domain.PendingTransfer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_transfers (`+pendingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token_id) DO UPDATE SET
		   from_uid = excluded.from_uid, to_uid = excluded.to_uid, n_next = excluded.n_next,
		   state = excluded.state, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		p.TokenID, p.FromUID, p.ToUID, p.NNext, string(p.State), p.ExpiresAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *pendingTransfersRepo) UpdatePendingTransferState(ctx context.Context, tokenID string, state domain.PendingTransferState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_transfers SET state = ?, updated_at = ? WHERE token_id = ?`,
		string(state), time.Now().UTC(), tokenID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *pendingTransfersRepo) DeletePendingTransfer(ctx context.Context, tokenID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_transfers WHERE token_id = ?`, tokenID)
	return err
}

func (r *pendingTransfersRepo) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.PendingTransfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_transfers
		 WHERE state = ? AND expires_at <= ?
		 ORDER BY expires_at ASC LIMIT ?`,
		string(domain.PendingOpen), now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PendingTransfer
	for rows.Next() {
		p, err := scanPendingTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPendingTransfer(row rowScanner) (domain.PendingTransfer, error) {
	var (
		p     domain.PendingTransfer
		state string
	)
	err := row.Scan(&p.TokenID, &p.FromUID, &p.ToUID, &p.NNext, &state,
		&p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.PendingTransfer{}, mapNotFound(err)
	}
	p.State = domain.PendingTransferState(state)
	return p, nil
}
