package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

var ErrListingNotFound = errors.New("listing not found")

type ListingRepo struct {
	pool *pgxpool.Pool
}

// CandidateFilter narrows the read path. A non-zero VisibleAt drops rows that
// the visibility gate would reject on listing fields alone.
type CandidateFilter struct {
	Text      string
	Category  string
	SellerIDs []int64
	VisibleAt time.Time
	Limit     int
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `
	l.id,
	l.seller_id,
	l.title,
	l.description,
	l.category,
	l.status,
	l.image_keys,
	l.image_hashes,
	l.base_score,
	l.created_at,
	l.expires_at,
	l.visibility_tier,
	l.subscription_status,
	l.visibility_expires_at`

func (r *ListingRepo) Get(ctx context.Context, listingID int64) (model.Listing, error) {
	if r.pool == nil {
		return model.Listing{}, fmt.Errorf("postgres pool is nil")
	}
	if listingID <= 0 {
		return model.Listing{}, fmt.Errorf("invalid listing id")
	}

	listing, err := scanListing(r.pool.QueryRow(ctx, `SELECT`+listingColumns+`
FROM listings l
WHERE l.id = $1
`, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Listing{}, ErrListingNotFound
		}
		return model.Listing{}, fmt.Errorf("get listing: %w", err)
	}

	addOns, err := r.addOnsFor(ctx, []int64{listingID})
	if err != nil {
		return model.Listing{}, err
	}
	listing.Visibility.AddOns = addOns[listingID]
	return listing, nil
}

// ActiveTitlesBySeller returns titles of the seller's active listings other than
// excludeListingID.
func (r *ListingRepo) ActiveTitlesBySeller(ctx context.Context, sellerID, excludeListingID int64) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT title
FROM listings
WHERE seller_id = $1
	AND status = 'active'
	AND id <> $2
`, sellerID, excludeListingID)
	if err != nil {
		return nil, fmt.Errorf("query seller titles: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0, 8)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan seller title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seller titles: %w", err)
	}
	return titles, nil
}

// MatchingHashesFromOtherSellers returns the subset of hashes that already appear
// on active listings owned by anyone but sellerID.
func (r *ListingRepo) MatchingHashesFromOtherSellers(ctx context.Context, sellerID int64, hashes []string) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT h
FROM listings l, UNNEST(l.image_hashes) AS h
WHERE l.seller_id <> $1
	AND l.status = 'active'
	AND l.image_hashes && $2::text[]
	AND h = ANY($2::text[])
`, sellerID, hashes)
	if err != nil {
		return nil, fmt.Errorf("query matching image hashes: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, len(hashes))
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan image hash: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image hashes: %w", err)
	}
	return out, nil
}

// Publish makes a draft listing active. It only affects a listing owned by sellerID.
func (r *ListingRepo) Publish(ctx context.Context, listingID, sellerID int64, imageHashes []string, expiresAt *time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if imageHashes == nil {
		imageHashes = []string{}
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE listings SET
	status = 'active',
	image_hashes = $3,
	expires_at = $4,
	updated_at = NOW()
WHERE id = $1 AND seller_id = $2
`, listingID, sellerID, imageHashes, expiresAt)
	if err != nil {
		return fmt.Errorf("publish listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Candidates loads active listings for the read path together with their add-ons.
// Owner verification is not filtered here; the gate still runs on every row.
func (r *ListingRepo) Candidates(ctx context.Context, filter CandidateFilter) ([]model.Listing, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if filter.Limit <= 0 {
		filter.Limit = 500
	}

	args := []any{filter.Limit}
	where := []string{"l.status = 'active'"}
	if text := strings.TrimSpace(filter.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		where = append(where, fmt.Sprintf(`(l.title ILIKE $%d ESCAPE '\' OR l.description ILIKE $%d ESCAPE '\')`, len(args), len(args)))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, category)
		where = append(where, fmt.Sprintf("l.category = $%d", len(args)))
	}
	if len(filter.SellerIDs) > 0 {
		args = append(args, filter.SellerIDs)
		where = append(where, fmt.Sprintf("l.seller_id = ANY($%d)", len(args)))
	}
	if !filter.VisibleAt.IsZero() {
		args = append(args, filter.VisibleAt.UTC())
		where = append(where,
			"UPPER(BTRIM(l.visibility_tier)) IN ('STANDARD', 'VERIFIED', 'FEATURED', 'PRIORITY')",
			"UPPER(BTRIM(l.subscription_status)) = 'ACTIVE'",
			fmt.Sprintf("(l.visibility_expires_at IS NULL OR l.visibility_expires_at > $%d)", len(args)),
		)
	}

	rows, err := r.pool.Query(ctx, `SELECT`+listingColumns+`
FROM listings l
WHERE `+strings.Join(where, " AND ")+`
ORDER BY l.created_at DESC, l.id ASC
LIMIT $1
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidate listings: %w", err)
	}
	defer rows.Close()

	listings := make([]model.Listing, 0, 64)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate listing: %w", err)
		}
		listings = append(listings, listing)
		ids = append(ids, listing.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate listings: %w", err)
	}

	addOns, err := r.addOnsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Visibility.AddOns = addOns[listings[i].ID]
	}
	return listings, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user text match literally inside an ILIKE pattern.
func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}

// GrantAddOn stores the add-on expiry. Only the timestamp is persisted.
func (r *ListingRepo) GrantAddOn(ctx context.Context, listingID int64, name string, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	name = strings.TrimSpace(name)
	if listingID <= 0 || name == "" {
		return fmt.Errorf("invalid add-on payload")
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO listing_addons (listing_id, name, expires_at, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (listing_id, name) DO UPDATE SET
	expires_at = EXCLUDED.expires_at
`, listingID, name, expiresAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrListingNotFound
		}
		return fmt.Errorf("grant add-on: %w", err)
	}
	return nil
}

func (r *ListingRepo) ExpireVisibility(ctx context.Context, listingID int64, now time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := r.pool.Exec(ctx, `
UPDATE listings SET
	visibility_tier = 'NONE',
	updated_at = NOW()
WHERE id = $1 AND visibility_expires_at <= $2 AND visibility_tier <> 'NONE'
`, listingID, now.UTC()); err != nil {
		return fmt.Errorf("expire listing visibility: %w", err)
	}
	return nil
}

func (r *ListingRepo) DeleteExpiredAddOn(ctx context.Context, listingID int64, name string, now time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := r.pool.Exec(ctx, `
DELETE FROM listing_addons
WHERE listing_id = $1 AND name = $2 AND expires_at <= $3
`, listingID, name, now.UTC()); err != nil {
		return fmt.Errorf("delete expired add-on: %w", err)
	}
	return nil
}

// DeleteExpiredAddOns drops every add-on row whose expiry passed, in batches.
func (r *ListingRepo) DeleteExpiredAddOns(ctx context.Context, now time.Time, batch int) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if batch <= 0 {
		batch = 1000
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM listing_addons
WHERE ctid IN (
	SELECT ctid FROM listing_addons
	WHERE expires_at <= $1
	LIMIT $2
)
`, now.UTC(), batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired add-ons: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ListingRepo) addOnsFor(ctx context.Context, listingIDs []int64) (map[int64]map[string]model.AddOn, error) {
	out := make(map[int64]map[string]model.AddOn, len(listingIDs))
	if len(listingIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT listing_id, name, expires_at
FROM listing_addons
WHERE listing_id = ANY($1)
`, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("query listing add-ons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listingID int64
			name      string
			expiresAt time.Time
		)
		if err := rows.Scan(&listingID, &name, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan listing add-on: %w", err)
		}
		if out[listingID] == nil {
			out[listingID] = make(map[string]model.AddOn)
		}
		out[listingID][name] = model.AddOn{ExpiresAt: expiresAt.UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing add-ons: %w", err)
	}
	return out, nil
}

func scanListing(row pgx.Row) (model.Listing, error) {
	var (
		listing      model.Listing
		status       string
		tier         string
		subscription string
	)
	err := row.Scan(
		&listing.ID,
		&listing.SellerID,
		&listing.Title,
		&listing.Description,
		&listing.Category,
		&status,
		&listing.ImageKeys,
		&listing.ImageHashes,
		&listing.BaseScore,
		&listing.CreatedAt,
		&listing.ExpiresAt,
		&tier,
		&subscription,
		&listing.Visibility.VisibilityExpiresAt,
	)
	if err != nil {
		return model.Listing{}, err
	}
	listing.Status = model.ListingStatus(status)
	listing.Visibility.Tier = enums.ParseVisibilityTier(tier)
	listing.Visibility.SubscriptionStatus = enums.ParseSubscriptionStatus(subscription)
	return listing, nil
}
