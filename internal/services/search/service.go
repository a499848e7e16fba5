package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/model"
	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	"github.com/ivankudzin/marketplace/internal/services/ranking"
	"github.com/ivankudzin/marketplace/internal/services/verification"
	"github.com/ivankudzin/marketplace/internal/services/visibility"
)

const (
	defaultLimit   = 20
	maxLimit       = 100
	candidateLimit = 500

	conditionOwnerMissing      = "owner_missing"
	conditionContractorMissing = "contractor_required"
)

var ErrDependenciesNil = errors.New("search dependencies are not configured")

type ListingSource interface {
	Candidates(ctx context.Context, filter pgrepo.CandidateFilter) ([]model.Listing, error)
}

type OwnerSource interface {
	GetMany(ctx context.Context, identityIDs []int64) (map[int64]model.Identity, error)
}

type CorrectionWriter interface {
	Apply(ctx context.Context, corrections []model.Correction, now time.Time) error
}

type Ranker interface {
	Rank(entities []ranking.Entity, now time.Time) []ranking.Entity
}

type Query struct {
	Text     string
	Category string
	Limit    int
	Offset   int
}

type Item struct {
	Listing      model.Listing       `json:"listing"`
	Score        float64             `json:"score"`
	Verification verification.Result `json:"verification"`
}

type Page struct {
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	// Degraded is set when owners could not be loaded and every candidate was
	// excluded.
	Degraded bool `json:"degraded,omitempty"`
	// Truncated is set when more listings matched than one read considers.
	// Total then counts only the considered window.
	Truncated bool `json:"truncated,omitempty"`
}

type Service struct {
	listings    ListingSource
	owners      OwnerSource
	ranker      Ranker
	corrections CorrectionWriter
	log         *zap.Logger
	metrics     *metrics.Engine
	window      int
	now         func() time.Time
}

func NewService(listings ListingSource, owners OwnerSource, ranker Ranker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		listings: listings,
		owners:   owners,
		ranker:   ranker,
		log:      log,
		window:   candidateLimit,
		now:      time.Now,
	}
}

func (s *Service) AttachCorrections(w CorrectionWriter) {
	s.corrections = w
}

func (s *Service) AttachMetrics(m *metrics.Engine) {
	s.metrics = m
}

func (s *Service) Search(ctx context.Context, q Query) (Page, error) {
	return s.run(ctx, q, false)
}

// Contractors is the directory of listings whose owners may take contracts.
func (s *Service) Contractors(ctx context.Context, q Query) (Page, error) {
	return s.run(ctx, q, true)
}

func (s *Service) run(ctx context.Context, q Query, contractorsOnly bool) (Page, error) {
	if s.listings == nil || s.owners == nil || s.ranker == nil {
		return Page{}, ErrDependenciesNil
	}
	q = normalizeQuery(q)
	page := Page{Items: []Item{}, Limit: q.Limit, Offset: q.Offset}
	now := s.now().UTC()

	// One extra row tells a full window apart from a truncated one.
	candidates, err := s.listings.Candidates(ctx, pgrepo.CandidateFilter{
		Text:      q.Text,
		Category:  q.Category,
		VisibleAt: now,
		Limit:     s.window + 1,
	})
	if err != nil {
		return Page{}, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) > s.window {
		candidates = candidates[:s.window]
		page.Truncated = true
		s.log.Warn("search candidate window truncated",
			zap.Int("window", s.window),
			zap.String("category", q.Category),
		)
	}
	if len(candidates) == 0 {
		return page, nil
	}

	owners, err := s.owners.GetMany(ctx, ownerIDs(candidates))
	if err != nil {
		s.log.Error("load listing owners, excluding all candidates", zap.Int("candidates", len(candidates)), zap.Error(err))
		s.metrics.StoreFailure("visibility", "fail_closed")
		page.Degraded = true
		return page, nil
	}

	var (
		entities    = make([]ranking.Entity, 0, len(candidates))
		byID        = make(map[int64]Item, len(candidates))
		corrections []model.Correction
	)
	for _, listing := range candidates {
		owner, ok := owners[listing.SellerID]
		if !ok {
			s.metrics.VisibilityExclusion(conditionOwnerMissing)
			continue
		}

		decision := visibility.Evaluate(visibility.Snapshot{
			ListingID:    listing.ID,
			OwnerID:      owner.ID,
			Verification: owner.Verification,
			Visibility:   listing.Visibility,
		}, now)
		corrections = append(corrections, decision.Corrections...)
		if !decision.Visible {
			for _, c := range decision.Failed {
				s.metrics.VisibilityExclusion(string(c))
			}
			continue
		}
		if contractorsOnly && !decision.Verification.CanContract {
			s.metrics.VisibilityExclusion(conditionContractorMissing)
			continue
		}

		entities = append(entities, ranking.Entity{
			ListingID: listing.ID,
			OwnerID:   owner.ID,
			CreatedAt: listing.CreatedAt,
			ExpiresAt: listing.ExpiresAt,
			BaseScore: listing.BaseScore,
			Tier:      listing.Visibility.Tier,
			Plan:      owner.Plan,
			AddOns:    listing.Visibility.AddOns,
		})
		byID[listing.ID] = Item{Listing: listing, Verification: decision.Verification}
	}

	s.writeCorrections(ctx, corrections, now)

	ranked := s.ranker.Rank(entities, now)
	page.Total = len(ranked)
	if q.Offset >= len(ranked) {
		return page, nil
	}
	end := q.Offset + q.Limit
	if end > len(ranked) {
		end = len(ranked)
	}
	for _, e := range ranked[q.Offset:end] {
		item := byID[e.ListingID]
		item.Score = e.Score
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// writeCorrections is best effort; reads stay correct without it because every
// check is lazy.
func (s *Service) writeCorrections(ctx context.Context, corrections []model.Correction, now time.Time) {
	if s.corrections == nil || len(corrections) == 0 {
		return
	}
	if err := s.corrections.Apply(ctx, corrections, now); err != nil {
		s.log.Warn("apply visibility corrections", zap.Int("count", len(corrections)), zap.Error(err))
	}
}

func normalizeQuery(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func ownerIDs(listings []model.Listing) []int64 {
	seen := make(map[int64]struct{}, len(listings))
	ids := make([]int64, 0, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.SellerID]; ok {
			continue
		}
		seen[l.SellerID] = struct{}{}
		ids = append(ids, l.SellerID)
	}
	return ids
}
