package ranking

import (
	"errors"
	"sort"
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

var ErrUnknownAddOn = errors.New("unknown add-on")

type AddOnPolicy struct {
	Boost    float64
	Duration time.Duration
}

type Config struct {
	TierWeights    map[enums.VisibilityTier]float64
	AddOns         map[string]AddOnPolicy
	PlanBonus      map[enums.Plan]float64
	ExpiredPenalty float64
}

type Entity struct {
	ListingID int64
	OwnerID   int64
	CreatedAt time.Time
	ExpiresAt *time.Time
	BaseScore float64
	Tier      enums.VisibilityTier
	Plan      enums.Plan
	AddOns    map[string]model.AddOn
	Score     float64
}

type Composer struct {
	cfg Config
}

func NewComposer(cfg Config) *Composer {
	if cfg.TierWeights == nil {
		cfg.TierWeights = map[enums.VisibilityTier]float64{
			enums.VisibilityTierNone:     0,
			enums.VisibilityTierStandard: 10,
			enums.VisibilityTierVerified: 15,
			enums.VisibilityTierFeatured: 25,
			enums.VisibilityTierPriority: 40,
		}
	}
	if cfg.AddOns == nil {
		cfg.AddOns = map[string]AddOnPolicy{}
	}
	if cfg.PlanBonus == nil {
		cfg.PlanBonus = map[enums.Plan]float64{}
	}
	return &Composer{cfg: cfg}
}

// Score recomputes add-on activity from expiry timestamps on every call.
// Boosts are summed in name order so equal input always yields the same float.
func (c *Composer) Score(e Entity, now time.Time) float64 {
	score := e.BaseScore + c.cfg.TierWeights[e.Tier] + c.cfg.PlanBonus[e.Plan]
	for _, name := range activeAddOns(e.AddOns, now) {
		score += c.cfg.AddOns[name].Boost
	}
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		score -= c.cfg.ExpiredPenalty
	}
	return score
}

// Rank returns a new slice ordered by score desc, CreatedAt desc, ListingID asc.
// The order is total so that pages over an unchanged input never shift.
func (c *Composer) Rank(entities []Entity, now time.Time) []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	for i := range out {
		out[i].Score = c.Score(out[i], now)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ListingID < out[j].ListingID
	})
	return out
}

func activeAddOns(addOns map[string]model.AddOn, now time.Time) []string {
	names := make([]string, 0, len(addOns))
	for name, addOn := range addOns {
		if addOn.ActiveAt(now) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AddOnExpiry is the expiry of an add-on granted at from.
func (c *Composer) AddOnExpiry(name string, from time.Time) (time.Time, error) {
	policy, ok := c.cfg.AddOns[name]
	if !ok || policy.Duration <= 0 {
		return time.Time{}, ErrUnknownAddOn
	}
	return from.Add(policy.Duration).UTC(), nil
}
