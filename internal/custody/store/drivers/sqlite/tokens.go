package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `id, current_owner, previous_owners, key_enc, key_hash, counter, status,
	lease_id, lease_user_id, lease_expires_at, tag_uid, created_at, updated_at`

func (r *tokensRepo) GetToken(ctx context.Context, id string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id)
	return scanToken(row)
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	owners, err := encodeJSON(t.PreviousOwners)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CurrentOwner, owners, t.KeyEnc, t.KeyHash, t.Counter, string(t.Status),
		mapOptionalString(t.LeaseID), mapOptionalString(t.LeaseUserID), mapOptionalTime(t.LeaseExpiresAt),
		mapOptionalString(t.TagUID), t.CreatedAt, t.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *tokensRepo) UpdateToken(ctx context.Context, t domain.Token) error {
	owners, err := encodeJSON(t.PreviousOwners)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET current_owner = ?, previous_owners = ?, key_enc = ?, key_hash = ?,
		 counter = ?, status = ?, lease_id = ?, lease_user_id = ?, lease_expires_at = ?,
		 tag_uid = ?, updated_at = ?
		 WHERE id = ?`,
		t.CurrentOwner, owners, t.KeyEnc, t.KeyHash,
		t.Counter, string(t.Status),
		mapOptionalString(t.LeaseID), mapOptionalString(t.LeaseUserID), mapOptionalTime(t.LeaseExpiresAt),
		mapOptionalString(t.TagUID), time.Now().UTC(),
		t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *tokensRepo) ReleaseExpiredLeases(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET lease_id = NULL, lease_user_id = NULL, lease_expires_at = NULL, updated_at = ?
		 WHERE lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		now.UTC(), now.UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (domain.Token, error) {
	var (
		t           domain.Token
		owners      string
		status      string
		leaseID     sql.NullString
		leaseUserID sql.NullString
		leaseExpiry sql.NullTime
		tagUID      sql.NullString
	)

	err := row.Scan(&t.ID, &t.CurrentOwner, &owners, &t.KeyEnc, &t.KeyHash, &t.Counter, &status,
		&leaseID, &leaseUserID, &leaseExpiry, &tagUID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}

	if err := decodeJSON(owners, &t.PreviousOwners); err != nil {
		return domain.Token{}, err
	}

	t.Status = domain.TokenStatus(status)
	t.LeaseID = mapNullStringPtr(leaseID)
	t.LeaseUserID = mapNullStringPtr(leaseUserID)
	t.LeaseExpiresAt = mapNullTimePtr(leaseExpiry)
	t.TagUID = mapNullStringPtr(tagUID)
	return t, nil
}

// requireRow turns a zero-row UPDATE/DELETE into ErrNotFound so services can
// distinguish "vanished underneath us" from success.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
