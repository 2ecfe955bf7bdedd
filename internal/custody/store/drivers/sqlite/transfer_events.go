package sqlite

import (
	"context"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type transferEventsRepo struct {
	db dbtx
}

func (r *transferEventsRepo) AppendTransferEvent(ctx context.Context, e domain.TransferEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfer_events (id, token_id, from_owner, to_owner, counter, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TokenID, e.FromOwner, e.ToOwner, e.Counter, e.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *transferEventsRepo) ListTransferEvents(ctx context.Context, tokenID string) ([]domain.TransferEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, token_id, from_owner, to_owner, counter, created_at
		 FROM transfer_events WHERE token_id = ? ORDER BY created_at ASC, id ASC`,
		tokenID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransferEvent
	for rows.Next() {
		var e domain.TransferEvent
		if err := rows.Scan(&e.ID, &e.TokenID, &e.FromOwner, &e.ToOwner, &e.Counter, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
