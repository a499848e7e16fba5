package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/model"
)

// TrustRepo stores lockout fields on the identity row and serializes updates with
// a row lock.
type TrustRepo struct {
	pool *pgxpool.Pool
}

func NewTrustRepo(pool *pgxpool.Pool) *TrustRepo {
	return &TrustRepo{pool: pool}
}

func (r *TrustRepo) Get(ctx context.Context, identityID int64) (model.TrustRecord, error) {
	if r.pool == nil {
		return model.TrustRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec := model.TrustRecord{IdentityID: identityID}
	err := r.pool.QueryRow(ctx, `
SELECT spam_warnings, spam_suspended_until
FROM identities
WHERE id = $1
`, identityID).Scan(&rec.SpamWarnings, &rec.SpamSuspendedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrustRecord{}, ErrIdentityNotFound
		}
		return model.TrustRecord{}, fmt.Errorf("get trust record: %w", err)
	}
	return rec, nil
}

func (r *TrustRepo) Update(ctx context.Context, identityID int64, fn model.TrustUpdateFunc) (model.TrustRecord, error) {
	var out model.TrustRecord
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		current := model.TrustRecord{IdentityID: identityID}
		err := tx.QueryRow(ctx, `
SELECT spam_warnings, spam_suspended_until
FROM identities
WHERE id = $1
FOR UPDATE
`, identityID).Scan(&current.SpamWarnings, &current.SpamSuspendedUntil)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrIdentityNotFound
			}
			return fmt.Errorf("lock trust record: %w", err)
		}

		next, changed := fn(current)
		if !changed {
			out = current
			return nil
		}
		next.IdentityID = identityID

		if _, err := tx.Exec(ctx, `
UPDATE identities SET
	spam_warnings = $2,
	spam_suspended_until = $3,
	updated_at = NOW()
WHERE id = $1
`, identityID, next.SpamWarnings, next.SpamSuspendedUntil); err != nil {
			return fmt.Errorf("update trust record: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return model.TrustRecord{}, err
	}
	return out, nil
}
