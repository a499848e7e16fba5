package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	"github.com/ivankudzin/marketplace/internal/services/ranking"
)

type memListings struct {
	items  []model.Listing
	err    error
	filter pgrepo.CandidateFilter
}

func (m *memListings) Candidates(_ context.Context, filter pgrepo.CandidateFilter) ([]model.Listing, error) {
	m.filter = filter
	if filter.Limit > 0 && len(m.items) > filter.Limit {
		return m.items[:filter.Limit], m.err
	}
	return m.items, m.err
}

type memOwners struct {
	items map[int64]model.Identity
	err   error
}

func (m *memOwners) GetMany(_ context.Context, _ []int64) (map[int64]model.Identity, error) {
	return m.items, m.err
}

type memCorrections struct {
	applied []model.Correction
	err     error
}

func (m *memCorrections) Apply(_ context.Context, corrections []model.Correction, _ time.Time) error {
	m.applied = append(m.applied, corrections...)
	return m.err
}

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func owner(id int64, sellerStatus, contractorStatus string, expires time.Time) model.Identity {
	identity := model.Identity{ID: id, Plan: enums.PlanFree}
	if sellerStatus != "" {
		identity.Verification.SellerStatus = strPtr(sellerStatus)
		identity.Verification.SellerExpiresAt = timePtr(expires)
	}
	if contractorStatus != "" {
		identity.Verification.ContractorStatus = strPtr(contractorStatus)
		identity.Verification.ContractorExpiresAt = timePtr(expires)
	}
	return identity
}

func listing(id, sellerID int64, created time.Time, tier enums.VisibilityTier) model.Listing {
	return model.Listing{
		ID:        id,
		SellerID:  sellerID,
		Title:     "listing",
		Status:    model.ListingStatusActive,
		CreatedAt: created,
		Visibility: model.VisibilityRecord{
			Tier:               tier,
			SubscriptionStatus: enums.SubscriptionStatusActive,
		},
	}
}

func newTestService(now time.Time, listings *memListings, owners *memOwners) (*Service, *memCorrections) {
	svc := NewService(listings, owners, ranking.NewComposer(ranking.Config{}), nil)
	corrections := &memCorrections{}
	svc.AttachCorrections(corrections)
	svc.now = func() time.Time { return now }
	return svc, corrections
}

func TestSearchGatesRanksAndPaginates(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(30 * 24 * time.Hour)

	listings := &memListings{items: []model.Listing{
		listing(1, 10, now.Add(-3*time.Hour), enums.VisibilityTierStandard),
		listing(2, 10, now.Add(-2*time.Hour), enums.VisibilityTierPriority),
		listing(3, 11, now.Add(-1*time.Hour), enums.VisibilityTierStandard),
		listing(4, 12, now.Add(-1*time.Hour), enums.VisibilityTierPriority),
		listing(5, 10, now.Add(-1*time.Hour), enums.VisibilityTierNone),
	}}
	owners := &memOwners{items: map[int64]model.Identity{
		10: owner(10, "ACTIVE", "", future),
		11: owner(11, "ACTIVE", "", future),
		12: owner(12, "ACTIVE", "", now.Add(-time.Hour)),
	}}

	svc, corrections := newTestService(now, listings, owners)
	page, err := svc.Search(context.Background(), Query{Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 visible listings, got %d", page.Total)
	}
	if len(page.Items) != 2 || page.Items[0].Listing.ID != 2 || page.Items[1].Listing.ID != 3 {
		t.Fatalf("unexpected first page: %+v", page.Items)
	}

	next, err := svc.Search(context.Background(), Query{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].Listing.ID != 1 {
		t.Fatalf("unexpected second page: %+v", next.Items)
	}

	if len(corrections.applied) == 0 || corrections.applied[0].Kind != model.CorrectionVerificationExpired ||
		corrections.applied[0].IdentityID != 12 {
		t.Fatalf("expected expired verification correction for owner 12, got %+v", corrections.applied)
	}
}

func TestSearchFailsClosedWhenOwnersUnavailable(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	listings := &memListings{items: []model.Listing{listing(1, 10, now, enums.VisibilityTierPriority)}}
	owners := &memOwners{err: errors.New("connection refused")}

	svc, _ := newTestService(now, listings, owners)
	page, err := svc.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !page.Degraded || len(page.Items) != 0 || page.Total != 0 {
		t.Fatalf("expected empty degraded page, got %+v", page)
	}
}

func TestSearchExcludesListingsWithoutLoadedOwner(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	listings := &memListings{items: []model.Listing{listing(1, 99, now, enums.VisibilityTierPriority)}}
	owners := &memOwners{items: map[int64]model.Identity{}}

	svc, _ := newTestService(now, listings, owners)
	page, err := svc.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("listing without owner must not appear")
	}
}

func TestContractorsRequireContractorVerification(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	listings := &memListings{items: []model.Listing{
		listing(1, 10, now, enums.VisibilityTierStandard),
		listing(2, 11, now, enums.VisibilityTierStandard),
	}}
	owners := &memOwners{items: map[int64]model.Identity{
		10: owner(10, "ACTIVE", "", future),
		11: owner(11, "", "ACTIVE", future),
	}}

	svc, _ := newTestService(now, listings, owners)
	page, err := svc.Contractors(context.Background(), Query{})
	if err != nil {
		t.Fatalf("contractors: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Listing.ID != 2 || !page.Items[0].Verification.CanContract {
		t.Fatalf("unexpected directory: %+v", page.Items)
	}
}

func TestSearchCorrectionFailureDoesNotFailRead(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	l := listing(1, 10, now, enums.VisibilityTierStandard)
	l.Visibility.VisibilityExpiresAt = &past
	listings := &memListings{items: []model.Listing{l}}
	owners := &memOwners{items: map[int64]model.Identity{10: owner(10, "ACTIVE", "", now.Add(time.Hour))}}

	svc, corrections := newTestService(now, listings, owners)
	corrections.err = errors.New("write failed")

	page, err := svc.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expired visibility must exclude the listing")
	}
	if len(corrections.applied) != 1 || corrections.applied[0].Kind != model.CorrectionVisibilityExpired {
		t.Fatalf("unexpected corrections: %+v", corrections.applied)
	}
}

func TestSearchPrefiltersAndReportsTruncatedWindow(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)

	listings := &memListings{}
	for i := int64(1); i <= 5; i++ {
		listings.items = append(listings.items, listing(i, 10, now.Add(-time.Duration(i)*time.Minute), enums.VisibilityTierStandard))
	}
	owners := &memOwners{items: map[int64]model.Identity{10: owner(10, "ACTIVE", "", future)}}

	svc, _ := newTestService(now, listings, owners)
	svc.window = 3

	page, err := svc.Search(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !listings.filter.VisibleAt.Equal(now) || listings.filter.Limit != 4 {
		t.Fatalf("unexpected candidate filter: %+v", listings.filter)
	}
	if !page.Truncated || page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("expected truncated page of 3, got total=%d items=%d truncated=%v", page.Total, len(page.Items), page.Truncated)
	}

	svc.window = 5
	page, err = svc.Search(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Truncated || page.Total != 5 {
		t.Fatalf("expected full untruncated page, got total=%d truncated=%v", page.Total, page.Truncated)
	}
}
