package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

var ErrIdentityNotFound = errors.New("identity not found")

type IdentityRepo struct {
	pool *pgxpool.Pool
}

func NewIdentityRepo(pool *pgxpool.Pool) *IdentityRepo {
	return &IdentityRepo{pool: pool}
}

const identityColumns = `
	id,
	created_at,
	email_verified,
	plan,
	spam_warnings,
	spam_suspended_until,
	rejected_report_count,
	report_rate_limited_until,
	seller_verification_status,
	verification_status,
	seller_verification_expires_at,
	contractor_verification_status,
	contractor_verification_expires_at`

func (r *IdentityRepo) Get(ctx context.Context, identityID int64) (model.Identity, error) {
	if r.pool == nil {
		return model.Identity{}, fmt.Errorf("postgres pool is nil")
	}
	if identityID <= 0 {
		return model.Identity{}, fmt.Errorf("invalid identity id")
	}

	row := r.pool.QueryRow(ctx, `SELECT`+identityColumns+`
FROM identities
WHERE id = $1
`, identityID)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, ErrIdentityNotFound
		}
		return model.Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// GetMany returns the identities found; missing ids are absent from the map.
func (r *IdentityRepo) GetMany(ctx context.Context, identityIDs []int64) (map[int64]model.Identity, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	out := make(map[int64]model.Identity, len(identityIDs))
	if len(identityIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT`+identityColumns+`
FROM identities
WHERE id = ANY($1)
`, identityIDs)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out[identity.ID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// MarkVerificationExpired rewrites a stored status to EXPIRED once its expiry
// passed. Rows already expired or not yet past expiry are left alone.
func (r *IdentityRepo) MarkVerificationExpired(ctx context.Context, identityID int64, vt enums.VerificationType, now time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	var query string
	switch vt {
	case enums.VerificationTypeContractor:
		query = `
UPDATE identities SET
	contractor_verification_status = 'EXPIRED',
	updated_at = NOW()
WHERE id = $1
	AND contractor_verification_expires_at <= $2
	AND COALESCE(contractor_verification_status, '') <> 'EXPIRED'
`
	case enums.VerificationTypeSeller:
		query = `
UPDATE identities SET
	seller_verification_status = 'EXPIRED',
	updated_at = NOW()
WHERE id = $1
	AND seller_verification_expires_at <= $2
	AND COALESCE(seller_verification_status, '') <> 'EXPIRED'
`
	default:
		return nil
	}

	if _, err := r.pool.Exec(ctx, query, identityID, now.UTC()); err != nil {
		return fmt.Errorf("mark verification expired: %w", err)
	}
	return nil
}

// ExpireVerifications is the sweep counterpart of MarkVerificationExpired.
func (r *IdentityRepo) ExpireVerifications(ctx context.Context, now time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var total int64
	tag, err := r.pool.Exec(ctx, `
UPDATE identities SET
	contractor_verification_status = 'EXPIRED',
	updated_at = NOW()
WHERE contractor_verification_expires_at <= $1
	AND contractor_verification_status IS NOT NULL
	AND contractor_verification_status <> 'EXPIRED'
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire contractor verifications: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = r.pool.Exec(ctx, `
UPDATE identities SET
	seller_verification_status = 'EXPIRED',
	updated_at = NOW()
WHERE seller_verification_expires_at <= $1
	AND COALESCE(seller_verification_status, verification_status) IS NOT NULL
	AND COALESCE(seller_verification_status, '') <> 'EXPIRED'
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire seller verifications: %w", err)
	}
	total += tag.RowsAffected()

	return total, nil
}

func scanIdentity(row pgx.Row) (model.Identity, error) {
	var (
		identity model.Identity
		plan     string
	)
	err := row.Scan(
		&identity.ID,
		&identity.CreatedAt,
		&identity.EmailVerified,
		&plan,
		&identity.SpamWarnings,
		&identity.SpamSuspendedUntil,
		&identity.RejectedReportCount,
		&identity.ReportRateLimitedUntil,
		&identity.Verification.SellerStatus,
		&identity.Verification.SellerStatusLegacy,
		&identity.Verification.SellerExpiresAt,
		&identity.Verification.ContractorStatus,
		&identity.Verification.ContractorExpiresAt,
	)
	if err != nil {
		return model.Identity{}, err
	}
	identity.Plan = enums.ParsePlan(plan)
	return identity, nil
}
