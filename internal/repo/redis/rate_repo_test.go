package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConsumeTiersIsAllOrNothing(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	tiers := []TierCounter{
		{Key: "rate:test:1:burst", Limit: 5, TTL: time.Minute},
		{Key: "rate:test:1:day", Limit: 2, TTL: time.Hour},
	}

	for i := 0; i < 2; i++ {
		res, err := repo.ConsumeTiers(ctx, tiers)
		if err != nil {
			t.Fatalf("consume #%d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("expected consume #%d to be allowed", i+1)
		}
	}

	res, err := repo.ConsumeTiers(ctx, tiers)
	if err != nil {
		t.Fatalf("consume #3: %v", err)
	}
	if res.Allowed || res.DeniedIndex != 1 {
		t.Fatalf("expected denial on day tier, got allowed=%v index=%d", res.Allowed, res.DeniedIndex)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Hour {
		t.Fatalf("unexpected retry after %s", res.RetryAfter)
	}

	burst, _, err := repo.WindowState(ctx, "rate:test:1:burst")
	if err != nil {
		t.Fatalf("burst state: %v", err)
	}
	if burst != 2 {
		t.Fatalf("denied request must not consume earlier tiers, burst=%d", burst)
	}
}

func TestConsumeTiersFirstViolatedTierWins(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	tiers := []TierCounter{
		{Key: "rate:test:2:burst", Limit: 1, TTL: time.Minute},
		{Key: "rate:test:2:day", Limit: 1, TTL: time.Hour},
	}
	if _, err := repo.ConsumeTiers(ctx, tiers); err != nil {
		t.Fatalf("consume: %v", err)
	}
	res, err := repo.ConsumeTiers(ctx, tiers)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if res.Allowed || res.DeniedIndex != 0 {
		t.Fatalf("expected first tier to be reported, got %+v", res)
	}
}

func TestConsumeTiersConcurrentNeverExceedsLimit(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	const limit = 7
	tiers := []TierCounter{{Key: "rate:test:3:burst", Limit: limit, TTL: time.Minute}}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.ConsumeTiers(ctx, tiers)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("expected exactly %d successes, got %d", limit, allowed)
	}
}

func TestConsumeTiersRejectsInvalidTier(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)

	_, err := repo.ConsumeTiers(context.Background(), []TierCounter{{Key: "k", Limit: 0, TTL: time.Second}})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestRefundTiersFloorsAtZero(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	tiers := []TierCounter{{Key: "rate:test:4:burst", Limit: 3, TTL: time.Minute}}
	if _, err := repo.ConsumeTiers(ctx, tiers); err != nil {
		t.Fatalf("consume: %v", err)
	}

	keys := []string{"rate:test:4:burst", "rate:test:4:missing"}
	for i := 0; i < 3; i++ {
		if err := repo.RefundTiers(ctx, keys); err != nil {
			t.Fatalf("refund #%d: %v", i+1, err)
		}
	}

	count, _, err := repo.WindowState(ctx, "rate:test:4:burst")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter floored at 0, got %d", count)
	}
	missing, _, err := repo.WindowState(ctx, "rate:test:4:missing")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if missing != 0 {
		t.Fatalf("refund must not create negative counters, got %d", missing)
	}
}

func TestCounterExpiresAtWindowEnd(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	tiers := []TierCounter{{Key: "rate:test:5:burst", Limit: 1, TTL: 10 * time.Second}}
	if _, err := repo.ConsumeTiers(ctx, tiers); err != nil {
		t.Fatalf("consume: %v", err)
	}
	res, err := repo.ConsumeTiers(ctx, tiers)
	if err != nil || res.Allowed {
		t.Fatalf("expected denial, got %+v err=%v", res, err)
	}

	mr.FastForward(11 * time.Second)

	res, err = repo.ConsumeTiers(ctx, tiers)
	if err != nil {
		t.Fatalf("consume after window: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected fresh window to allow")
	}
}

func TestSetIfGreaterOnlyMovesForward(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	written, value, err := repo.SetIfGreater(ctx, "flag", 100, time.Minute)
	if err != nil || !written || value != 100 {
		t.Fatalf("first write: written=%v value=%d err=%v", written, value, err)
	}

	written, value, err = repo.SetIfGreater(ctx, "flag", 50, time.Minute)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if written || value != 100 {
		t.Fatalf("lower value must not overwrite, written=%v value=%d", written, value)
	}

	written, value, err = repo.SetIfGreater(ctx, "flag", 150, time.Minute)
	if err != nil || !written || value != 150 {
		t.Fatalf("higher write: written=%v value=%d err=%v", written, value, err)
	}
}
