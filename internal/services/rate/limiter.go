package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/rules"
	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
)

var (
	ErrStoreUnavailable = errors.New("rate store unavailable")
	ErrUnknownAction    = errors.New("unknown rate limited action")
	ErrValidation       = errors.New("validation error")
)

const TierDaily = "daily"

type FailMode string

const (
	FailDefault FailMode = ""
	FailOpen    FailMode = "open"
	FailClosed  FailMode = "closed"
)

func ParseFailMode(raw string) FailMode {
	switch FailMode(strings.ToLower(strings.TrimSpace(raw))) {
	case FailClosed:
		return FailClosed
	case FailOpen:
		return FailOpen
	default:
		return FailDefault
	}
}

type CounterStore interface {
	ConsumeTiers(ctx context.Context, tiers []redrepo.TierCounter) (redrepo.ConsumeResult, error)
	RefundTiers(ctx context.Context, keys []string) error
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

type Window struct {
	Size  time.Duration
	Limit int
}

// DailyQuota is keyed by (verified, account age bucket). A limit <= 0 disables
// the daily tier for that combination.
type DailyQuota struct {
	UnverifiedNew  int
	UnverifiedAged int
	VerifiedNew    int
	VerifiedAged   int
}

func (q DailyQuota) Limit(verified bool, bucket string) int {
	switch {
	case verified && bucket == rules.AgeBucketAged:
		return q.VerifiedAged
	case verified:
		return q.VerifiedNew
	case bucket == rules.AgeBucketAged:
		return q.UnverifiedAged
	default:
		return q.UnverifiedNew
	}
}

// ActionPolicy lists burst windows in evaluation order. The daily tier is
// evaluated after all of them.
type ActionPolicy struct {
	Burst    []Window
	Daily    DailyQuota
	FailMode FailMode
}

type Config struct {
	Location      *time.Location
	NewAccountAge time.Duration
	Actions       map[enums.ActionType]ActionPolicy
}

type Request struct {
	IdentityID       int64
	Action           enums.ActionType
	Verified         bool
	AccountCreatedAt time.Time
	// FailMode overrides the action default for this call.
	FailMode FailMode
}

type Decision struct {
	Allowed bool
	// Remaining is the smallest number of actions left across tiers, -1 when no
	// tier applies.
	Remaining     int64
	RetryAfterSec int64
	Tier          string
	// Degraded is set when the store failed and the call was allowed by policy.
	Degraded bool

	keys []string
}

func (d Decision) IsBurst() bool {
	return !d.Allowed && d.Tier != "" && d.Tier != TierDaily
}

type Limiter struct {
	store   CounterStore
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewLimiter(store CounterStore, cfg Config, log *zap.Logger) *Limiter {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.NewAccountAge <= 0 {
		cfg.NewAccountAge = 7 * 24 * time.Hour
	}
	if cfg.Actions == nil {
		cfg.Actions = map[enums.ActionType]ActionPolicy{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Limiter{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func (l *Limiter) AttachMetrics(m *metrics.Engine) {
	l.metrics = m
}

// Check consumes one unit on every tier of the action, or none if any tier is
// exhausted. The first exhausted tier in evaluation order is reported.
func (l *Limiter) Check(ctx context.Context, req Request) (Decision, error) {
	policy, tiers, err := l.plan(req)
	if err != nil {
		return Decision{}, err
	}
	if len(tiers) == 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	if l.store == nil {
		return l.storeFailure(req, policy, fmt.Errorf("rate limiter store is nil"))
	}

	counters := make([]redrepo.TierCounter, 0, len(tiers))
	keys := make([]string, 0, len(tiers))
	for _, t := range tiers {
		counters = append(counters, t.counter)
		keys = append(keys, t.counter.Key)
	}

	res, err := l.store.ConsumeTiers(ctx, counters)
	if err != nil {
		if errors.Is(err, redrepo.ErrInvalidWindow) {
			return Decision{}, err
		}
		return l.storeFailure(req, policy, err)
	}

	if !res.Allowed {
		tier := tiers[res.DeniedIndex]
		l.metrics.RateDecision(string(req.Action), "denied", tier.name)
		return Decision{
			Allowed:       false,
			RetryAfterSec: ceilSeconds(res.RetryAfter),
			Tier:          tier.name,
		}, nil
	}

	l.metrics.RateDecision(string(req.Action), "allowed", "")
	return Decision{
		Allowed:   true,
		Remaining: res.Remaining,
		keys:      keys,
	}, nil
}

// Refund gives back the units consumed by an allowed decision. Counters never
// go below zero.
func (l *Limiter) Refund(ctx context.Context, d Decision) error {
	if !d.Allowed || len(d.keys) == 0 || l.store == nil {
		return nil
	}
	if err := l.store.RefundTiers(ctx, d.keys); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Peek reports what Check would decide without consuming anything.
func (l *Limiter) Peek(ctx context.Context, req Request) (Decision, error) {
	_, tiers, err := l.plan(req)
	if err != nil {
		return Decision{}, err
	}
	if l.store == nil {
		return Decision{}, fmt.Errorf("rate limiter store is nil")
	}

	remaining := int64(-1)
	for _, t := range tiers {
		count, ttl, err := l.store.WindowState(ctx, t.counter.Key)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if count >= t.counter.Limit {
			return Decision{
				Allowed:       false,
				RetryAfterSec: ceilSeconds(ttl),
				Tier:          t.name,
			}, nil
		}
		left := t.counter.Limit - count
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

type plannedTier struct {
	name    string
	counter redrepo.TierCounter
}

func (l *Limiter) plan(req Request) (ActionPolicy, []plannedTier, error) {
	if req.IdentityID <= 0 {
		return ActionPolicy{}, nil, ErrValidation
	}
	policy, ok := l.cfg.Actions[req.Action]
	if !ok {
		return ActionPolicy{}, nil, ErrUnknownAction
	}

	now := l.now().UTC()
	tiers := make([]plannedTier, 0, len(policy.Burst)+1)
	for _, w := range policy.Burst {
		if w.Limit <= 0 || w.Size <= 0 {
			continue
		}
		windowID, end := rules.FixedWindow(now, w.Size)
		name := burstTierName(w.Size)
		tiers = append(tiers, plannedTier{
			name: name,
			counter: redrepo.TierCounter{
				Key:   counterKey(req, name, strconv.FormatInt(windowID, 10)),
				Limit: int64(w.Limit),
				TTL:   ttlUntil(now, end),
			},
		})
	}

	bucket := rules.AccountAgeBucket(req.AccountCreatedAt, now, l.cfg.NewAccountAge)
	if limit := policy.Daily.Limit(req.Verified, bucket); limit > 0 {
		tiers = append(tiers, plannedTier{
			name: TierDaily,
			counter: redrepo.TierCounter{
				Key:   counterKey(req, TierDaily, rules.DayKey(now, l.cfg.Location)),
				Limit: int64(limit),
				TTL:   ttlUntil(now, rules.NextResetAt(now, l.cfg.Location)),
			},
		})
	}

	return policy, tiers, nil
}

func (l *Limiter) storeFailure(req Request, policy ActionPolicy, err error) (Decision, error) {
	mode := req.FailMode
	if mode == FailDefault {
		mode = policy.FailMode
	}
	if mode == FailDefault {
		mode = FailOpen
	}

	if mode == FailClosed {
		l.metrics.StoreFailure("rate", string(FailClosed))
		l.log.Error("rate store unavailable, denying",
			zap.Int64("identity_id", req.IdentityID),
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	l.metrics.StoreFailure("rate", string(FailOpen))
	l.log.Warn("rate store unavailable, allowing",
		zap.Int64("identity_id", req.IdentityID),
		zap.String("action", string(req.Action)),
		zap.Error(err),
	)
	return Decision{Allowed: true, Remaining: -1, Degraded: true}, nil
}

func counterKey(req Request, tier, windowID string) string {
	return "rate:" + string(req.Action) + ":" + strconv.FormatInt(req.IdentityID, 10) + ":" + tier + ":" + windowID
}

func burstTierName(size time.Duration) string {
	if size%time.Second != 0 {
		return "burst_" + strconv.FormatInt(size.Milliseconds(), 10) + "ms"
	}
	return "burst_" + strconv.FormatInt(int64(size/time.Second), 10) + "s"
}

func ttlUntil(now, end time.Time) time.Duration {
	ttl := end.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
