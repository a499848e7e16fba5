package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	CounterContentBlocked1hKey   = "cnt:content_blocked:1h"
	CounterRateLimited1hKey      = "cnt:rate_limited:1h"
	CounterLockoutApplied24hKey  = "cnt:lockout_applied:24h"
	CounterReporterFlagged24hKey = "cnt:reporter_flagged:24h"

	OffendersIdentity24hKey = "zset:offenders:identity:24h"
	OffendersReporter7dKey  = "zset:offenders:reporter:7d"
)

// Engine events recorded on the dashboard.
const (
	EventContentBlocked  = "antiabuse_content_blocked"
	EventRateLimited     = "antiabuse_rate_limited"
	EventLockoutApplied  = "antiabuse_lockout_applied"
	EventReporterFlagged = "antiabuse_reporter_flagged"
)

type AntiAbuseDashboardRepo struct {
	client *goredis.Client
	rate   *RateRepo
}

type AntiAbuseSummary struct {
	ContentBlocked1h   int64 `json:"content_blocked_1h"`
	RateLimited1h      int64 `json:"rate_limited_1h"`
	LockoutApplied24h  int64 `json:"lockout_applied_24h"`
	ReporterFlagged24h int64 `json:"reporter_flagged_24h"`
}

type OffenderItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func NewAntiAbuseDashboardRepo(client *goredis.Client) *AntiAbuseDashboardRepo {
	return &AntiAbuseDashboardRepo{client: client, rate: NewRateRepo(client)}
}

func (r *AntiAbuseDashboardRepo) ObserveEvent(ctx context.Context, identityID int64, name string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	eventName := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(eventName, "antiabuse_") {
		return nil
	}

	if identityID > 0 && eventName != EventReporterFlagged {
		if err := r.incrementOffender(ctx, OffendersIdentity24hKey, strconv.FormatInt(identityID, 10), 24*time.Hour); err != nil {
			return err
		}
	}

	switch eventName {
	case EventContentBlocked:
		return r.incrementCounter(ctx, CounterContentBlocked1hKey, time.Hour)
	case EventRateLimited:
		return r.incrementCounter(ctx, CounterRateLimited1hKey, time.Hour)
	case EventLockoutApplied:
		return r.incrementCounter(ctx, CounterLockoutApplied24hKey, 24*time.Hour)
	case EventReporterFlagged:
		return r.incrementCounter(ctx, CounterReporterFlagged24hKey, 24*time.Hour)
	default:
		return nil
	}
}

// FlagReporter marks a reporter as flagged until the given instant. The flag only
// moves forward; an earlier deadline never shortens an existing one. It reports
// whether this call raised the flag.
func (r *AntiAbuseDashboardRepo) FlagReporter(ctx context.Context, reporterID int64, until time.Time, now time.Time) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if reporterID <= 0 {
		return false, fmt.Errorf("invalid reporter id")
	}
	ttl := until.Sub(now)
	if ttl <= 0 {
		return false, nil
	}

	written, _, err := r.rate.SetIfGreater(ctx, reporterFlagKey(reporterID), until.UTC().Unix(), ttl)
	if err != nil {
		return false, fmt.Errorf("flag reporter: %w", err)
	}
	if written {
		if err := r.incrementOffender(ctx, OffendersReporter7dKey, strconv.FormatInt(reporterID, 10), 7*24*time.Hour); err != nil {
			return true, err
		}
	}
	return written, nil
}

// ReporterFlaggedUntil returns nil when the reporter carries no live flag.
func (r *AntiAbuseDashboardRepo) ReporterFlaggedUntil(ctx context.Context, reporterID int64, now time.Time) (*time.Time, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	value, err := r.counterValue(ctx, reporterFlagKey(reporterID))
	if err != nil {
		return nil, err
	}
	if value <= 0 {
		return nil, nil
	}
	until := time.Unix(value, 0).UTC()
	if !until.After(now) {
		return nil, nil
	}
	return &until, nil
}

func (r *AntiAbuseDashboardRepo) Summary(ctx context.Context) (AntiAbuseSummary, error) {
	if r.client == nil {
		return AntiAbuseSummary{}, fmt.Errorf("redis client is nil")
	}

	contentBlocked, err := r.counterValue(ctx, CounterContentBlocked1hKey)
	if err != nil {
		return AntiAbuseSummary{}, err
	}
	rateLimited, err := r.counterValue(ctx, CounterRateLimited1hKey)
	if err != nil {
		return AntiAbuseSummary{}, err
	}
	lockouts, err := r.counterValue(ctx, CounterLockoutApplied24hKey)
	if err != nil {
		return AntiAbuseSummary{}, err
	}
	flagged, err := r.counterValue(ctx, CounterReporterFlagged24hKey)
	if err != nil {
		return AntiAbuseSummary{}, err
	}

	return AntiAbuseSummary{
		ContentBlocked1h:   contentBlocked,
		RateLimited1h:      rateLimited,
		LockoutApplied24h:  lockouts,
		ReporterFlagged24h: flagged,
	}, nil
}

func (r *AntiAbuseDashboardRepo) Top(ctx context.Context, kind string, limit int64) ([]OffenderItem, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	key, ok := offendersKeyByKind(kind)
	if !ok {
		return nil, fmt.Errorf("invalid offenders kind")
	}

	pairs, err := r.client.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read top offenders: %w", err)
	}

	items := make([]OffenderItem, 0, len(pairs))
	for _, pair := range pairs {
		member, ok := pair.Member.(string)
		if !ok {
			member = fmt.Sprint(pair.Member)
		}
		items = append(items, OffenderItem{ID: member, Score: pair.Score})
	}
	return items, nil
}

func (r *AntiAbuseDashboardRepo) incrementCounter(ctx context.Context, key string, ttl time.Duration) error {
	if _, _, err := r.rate.IncrementWindow(ctx, key, ttl); err != nil {
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}

func (r *AntiAbuseDashboardRepo) incrementOffender(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.ZIncrBy(ctx, key, 1, member)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment offenders zset %s: %w", key, err)
	}
	return nil
}

func (r *AntiAbuseDashboardRepo) counterValue(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return value, nil
}

func offendersKeyByKind(kind string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "identity", "user":
		return OffendersIdentity24hKey, true
	case "reporter":
		return OffendersReporter7dKey, true
	default:
		return "", false
	}
}

func reporterFlagKey(reporterID int64) string {
	return "reports:flagged_until:" + strconv.FormatInt(reporterID, 10)
}
