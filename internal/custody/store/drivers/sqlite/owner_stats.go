package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type ownerStatsRepo struct {
	db dbtx
}

func (r *ownerStatsRepo) RecordTransfer(ctx context.Context, fromUID, toUID string) error {
	if fromUID != "" {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO owner_stats (user_id, transfers_out) VALUES (?, 1)
			 ON CONFLICT(user_id) DO UPDATE SET transfers_out = transfers_out + 1`,
			fromUID,
		)
		if err != nil {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owner_stats (user_id, transfers_in) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET transfers_in = transfers_in + 1`,
		toUID,
	)
	return err
}

func (r *ownerStatsRepo) GetOwnerStats(ctx context.Context, userID string) (domain.OwnerStats, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, transfers_in, transfers_out FROM owner_stats WHERE user_id = ?`, userID)

	var s domain.OwnerStats
	err := row.Scan(&s.UserID, &s.TransfersIn, &s.TransfersOut)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent row reads as zero counters, not an error.
		return domain.OwnerStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.OwnerStats{}, err
	}
	return s, nil
}
