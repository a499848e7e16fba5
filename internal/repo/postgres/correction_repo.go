package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/model"
)

// CorrectionRepo writes back expirations discovered on the read path.
type CorrectionRepo struct {
	identities *IdentityRepo
	listings   *ListingRepo
}

func NewCorrectionRepo(pool *pgxpool.Pool) *CorrectionRepo {
	return &CorrectionRepo{
		identities: NewIdentityRepo(pool),
		listings:   NewListingRepo(pool),
	}
}

// Apply attempts every correction and joins the failures.
func (r *CorrectionRepo) Apply(ctx context.Context, corrections []model.Correction, now time.Time) error {
	var errs []error
	for _, c := range corrections {
		var err error
		switch c.Kind {
		case model.CorrectionVerificationExpired:
			err = r.identities.MarkVerificationExpired(ctx, c.IdentityID, c.VerificationType, now)
		case model.CorrectionVisibilityExpired:
			err = r.listings.ExpireVisibility(ctx, c.ListingID, now)
		case model.CorrectionAddOnExpired:
			err = r.listings.DeleteExpiredAddOn(ctx, c.ListingID, c.AddOn, now)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
