package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
)

func testConfig() Config {
	return Config{
		Location:      time.UTC,
		NewAccountAge: 7 * 24 * time.Hour,
		Actions: map[enums.ActionType]ActionPolicy{
			enums.ActionInquiry: {
				Burst: []Window{{Size: time.Minute, Limit: 100}},
				Daily: DailyQuota{UnverifiedNew: 2, UnverifiedAged: 4, VerifiedNew: 5, VerifiedAged: 10},
			},
			enums.ActionReport: {
				Burst: []Window{{Size: time.Minute, Limit: 2}},
				Daily: DailyQuota{UnverifiedNew: 10, UnverifiedAged: 10, VerifiedNew: 10, VerifiedAged: 10},
			},
		},
	}
}

func newTestLimiter(t *testing.T, now time.Time) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, client := newMiniRedisClient(t)
	limiter := NewLimiter(redrepo.NewRateRepo(client), testConfig(), nil)
	limiter.now = func() time.Time { return now }
	return limiter, mr
}

func TestSixthSameDayInquiryDeniedForNewVerifiedIdentity(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	req := Request{
		IdentityID:       42,
		Action:           enums.ActionInquiry,
		Verified:         true,
		AccountCreatedAt: now.Add(-2 * time.Hour),
	}

	for i := 0; i < 5; i++ {
		d, err := limiter.Check(ctx, req)
		if err != nil {
			t.Fatalf("check #%d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("expected check #%d to be allowed", i+1)
		}
		if d.Remaining != int64(4-i) {
			t.Fatalf("unexpected remaining on #%d: %d", i+1, d.Remaining)
		}
	}

	d, err := limiter.Check(ctx, req)
	if err != nil {
		t.Fatalf("check #6: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected 6th inquiry to be denied")
	}
	if d.Tier != TierDaily || d.IsBurst() {
		t.Fatalf("expected daily tier denial, got %q", d.Tier)
	}
	if d.RetryAfterSec != 12*3600 {
		t.Fatalf("expected retry until midnight, got %d", d.RetryAfterSec)
	}
}

func TestBurstTierEvaluatedFirst(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 10, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	req := Request{IdentityID: 7, Action: enums.ActionReport, Verified: true, AccountCreatedAt: now.AddDate(-1, 0, 0)}
	for i := 0; i < 2; i++ {
		if d, err := limiter.Check(ctx, req); err != nil || !d.Allowed {
			t.Fatalf("check #%d: allowed=%v err=%v", i+1, d.Allowed, err)
		}
	}

	d, err := limiter.Check(ctx, req)
	if err != nil {
		t.Fatalf("check #3: %v", err)
	}
	if d.Allowed || d.Tier != "burst_60s" || !d.IsBurst() {
		t.Fatalf("expected burst denial, got %+v", d)
	}
	if d.RetryAfterSec != 50 {
		t.Fatalf("expected retry at the minute boundary, got %d", d.RetryAfterSec)
	}
}

func TestQuotaDependsOnVerificationAndAge(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	cases := []struct {
		name     string
		req      Request
		expected int
	}{
		{"unverified new", Request{IdentityID: 1, Verified: false, AccountCreatedAt: now.Add(-time.Hour)}, 2},
		{"unverified aged", Request{IdentityID: 2, Verified: false, AccountCreatedAt: now.AddDate(0, -1, 0)}, 4},
		{"verified new", Request{IdentityID: 3, Verified: true, AccountCreatedAt: now.Add(-time.Hour)}, 5},
		{"verified aged", Request{IdentityID: 4, Verified: true, AccountCreatedAt: now.AddDate(0, -1, 0)}, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.Action = enums.ActionInquiry
			allowed := 0
			for i := 0; i < tc.expected+3; i++ {
				d, err := limiter.Check(ctx, tc.req)
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if d.Allowed {
					allowed++
				}
			}
			if allowed != tc.expected {
				t.Fatalf("expected %d allowed, got %d", tc.expected, allowed)
			}
		})
	}
}

func TestConcurrentChecksYieldExactlyLimitSuccesses(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	req := Request{IdentityID: 99, Action: enums.ActionInquiry, Verified: true, AccountCreatedAt: now.AddDate(-1, 0, 0)}

	const n = 50
	var allowed, denied int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Check(ctx, req)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if d.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 10 || denied != n-10 {
		t.Fatalf("expected 10 allowed and %d denied, got %d/%d", n-10, allowed, denied)
	}
}

func TestDailyWindowResetsAtLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	_, client := newMiniRedisClient(t)
	cfg := testConfig()
	cfg.Location = loc
	limiter := NewLimiter(redrepo.NewRateRepo(client), cfg, nil)
	ctx := context.Background()

	beforeMidnight := time.Date(2026, 2, 8, 22, 50, 0, 0, time.UTC)
	limiter.now = func() time.Time { return beforeMidnight }
	req := Request{IdentityID: 5, Action: enums.ActionInquiry, AccountCreatedAt: beforeMidnight.Add(-time.Hour)}

	for i := 0; i < 2; i++ {
		if d, err := limiter.Check(ctx, req); err != nil || !d.Allowed {
			t.Fatalf("check #%d: allowed=%v err=%v", i+1, d.Allowed, err)
		}
	}
	d, err := limiter.Check(ctx, req)
	if err != nil || d.Allowed {
		t.Fatalf("expected denial before midnight, allowed=%v err=%v", d.Allowed, err)
	}
	if d.RetryAfterSec != 10*60 {
		t.Fatalf("expected retry at Berlin midnight, got %d", d.RetryAfterSec)
	}

	limiter.now = func() time.Time { return beforeMidnight.Add(11 * time.Minute) }
	d, err = limiter.Check(ctx, req)
	if err != nil {
		t.Fatalf("check after midnight: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected a fresh daily window after local midnight")
	}
}

func TestRefundRestoresQuota(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	req := Request{IdentityID: 11, Action: enums.ActionInquiry, AccountCreatedAt: now.Add(-time.Hour)}
	first, err := limiter.Check(ctx, req)
	if err != nil || !first.Allowed {
		t.Fatalf("first check: allowed=%v err=%v", first.Allowed, err)
	}
	if err := limiter.Refund(ctx, first); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := limiter.Refund(ctx, first); err != nil {
		t.Fatalf("second refund: %v", err)
	}

	peek, err := limiter.Peek(ctx, req)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !peek.Allowed || peek.Remaining != 2 {
		t.Fatalf("expected full quota after refunds, got %+v", peek)
	}

	denied := Decision{Allowed: false, Tier: TierDaily}
	if err := limiter.Refund(ctx, denied); err != nil {
		t.Fatalf("refund of denied decision must be a no-op: %v", err)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, now)
	ctx := context.Background()

	req := Request{IdentityID: 12, Action: enums.ActionInquiry, AccountCreatedAt: now.Add(-time.Hour)}
	for i := 0; i < 3; i++ {
		if _, err := limiter.Peek(ctx, req); err != nil {
			t.Fatalf("peek: %v", err)
		}
	}
	d, err := limiter.Check(ctx, req)
	if err != nil || !d.Allowed || d.Remaining != 1 {
		t.Fatalf("unexpected check after peeks: %+v err=%v", d, err)
	}
}

type failingStore struct{}

func (failingStore) ConsumeTiers(context.Context, []redrepo.TierCounter) (redrepo.ConsumeResult, error) {
	return redrepo.ConsumeResult{}, errors.New("dial tcp: connection refused")
}

func (failingStore) RefundTiers(context.Context, []string) error {
	return errors.New("dial tcp: connection refused")
}

func (failingStore) WindowState(context.Context, string) (int64, time.Duration, error) {
	return 0, 0, errors.New("dial tcp: connection refused")
}

func TestStoreFailurePolicyIsPerCall(t *testing.T) {
	limiter := NewLimiter(failingStore{}, testConfig(), nil)
	ctx := context.Background()
	base := Request{IdentityID: 1, Action: enums.ActionInquiry}

	d, err := limiter.Check(ctx, base)
	if err != nil {
		t.Fatalf("default policy should fail open: %v", err)
	}
	if !d.Allowed || !d.Degraded {
		t.Fatalf("expected degraded allow, got %+v", d)
	}

	closed := base
	closed.FailMode = FailClosed
	if _, err := limiter.Check(ctx, closed); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestActionDefaultFailModeApplies(t *testing.T) {
	cfg := testConfig()
	policy := cfg.Actions[enums.ActionReport]
	policy.FailMode = FailClosed
	cfg.Actions[enums.ActionReport] = policy

	limiter := NewLimiter(failingStore{}, cfg, nil)
	_, err := limiter.Check(context.Background(), Request{IdentityID: 1, Action: enums.ActionReport})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected action default fail closed, got %v", err)
	}

	d, err := limiter.Check(context.Background(), Request{IdentityID: 1, Action: enums.ActionReport, FailMode: FailOpen})
	if err != nil || !d.Allowed {
		t.Fatalf("per-call fail open should override, got %+v err=%v", d, err)
	}
}

func TestUnknownActionAndInvalidIdentity(t *testing.T) {
	limiter := NewLimiter(failingStore{}, testConfig(), nil)
	ctx := context.Background()

	if _, err := limiter.Check(ctx, Request{IdentityID: 1, Action: "wire_money"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := limiter.Check(ctx, Request{IdentityID: 0, Action: enums.ActionInquiry}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseFailMode(t *testing.T) {
	if ParseFailMode(" Closed ") != FailClosed || ParseFailMode("open") != FailOpen || ParseFailMode("x") != FailDefault {
		t.Fatalf("unexpected fail mode parsing")
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}
