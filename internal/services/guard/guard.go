// Package guard runs every protected write through the same pipeline:
// lockout check, verification, content check, atomic rate consume, write.
// A denied request never persists anything; a failed write refunds its counters.
package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
	"github.com/ivankudzin/marketplace/internal/services/abuse"
	"github.com/ivankudzin/marketplace/internal/services/rate"
	"github.com/ivankudzin/marketplace/internal/services/trust"
	"github.com/ivankudzin/marketplace/internal/services/verification"
)

type TrustService interface {
	State(ctx context.Context, identityID int64) (trust.Status, error)
	RecordViolation(ctx context.Context, identityID int64, kind enums.ViolationKind) (trust.Outcome, error)
}

type RateLimiter interface {
	Check(ctx context.Context, req rate.Request) (rate.Decision, error)
	Refund(ctx context.Context, d rate.Decision) error
}

type ContentEvaluator interface {
	EvaluateContent(p abuse.Payload) abuse.Finding
}

type EventSink interface {
	ObserveEvent(ctx context.Context, identityID int64, name string) error
}

type Config struct {
	// CountBurstViolations feeds burst-tier denials to the lockout machine.
	CountBurstViolations bool
}

type Action struct {
	Identity model.Identity
	Type     enums.ActionType
	// Content is nil for actions without user text.
	Content *abuse.Payload
	// RequireSeller demands an active seller-level verification.
	RequireSeller bool
	FailMode      rate.FailMode
	Write         func(ctx context.Context) error
}

type Result struct {
	Decision rate.Decision
	Finding  abuse.Finding
}

type Guard struct {
	trust    TrustService
	limiter  RateLimiter
	detector ContentEvaluator
	events   EventSink
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Engine
	now      func() time.Time
}

func New(trustSvc TrustService, limiter RateLimiter, detector ContentEvaluator, cfg Config, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		trust:    trustSvc,
		limiter:  limiter,
		detector: detector,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (g *Guard) AttachEvents(events EventSink) {
	g.events = events
}

func (g *Guard) AttachMetrics(m *metrics.Engine) {
	g.metrics = m
}

func (g *Guard) Protect(ctx context.Context, action Action) (Result, error) {
	if g.trust == nil || g.limiter == nil || g.detector == nil {
		return Result{}, ErrDependenciesNil
	}
	identityID := action.Identity.ID
	if identityID <= 0 || action.Type == "" || action.Write == nil {
		return Result{}, ErrValidation
	}
	now := g.now().UTC()

	status, err := g.trust.State(ctx, identityID)
	if err != nil {
		return Result{}, fmt.Errorf("check lockout: %w", err)
	}
	if status.State == trust.StateLocked && status.LockedUntil != nil {
		return Result{}, AccountLockedError{Until: *status.LockedUntil}
	}

	if action.RequireSeller {
		if res := verification.Resolve(action.Identity.Verification, now); !res.CanSell {
			return Result{}, VerificationRequiredError{Remediation: RemediationVerify}
		}
	}

	var result Result
	if action.Content != nil {
		result.Finding = g.detector.EvaluateContent(*action.Content)
		g.logFinding(identityID, action, result.Finding)
		if result.Finding.Blocked {
			g.observe(ctx, identityID, redrepo.EventContentBlocked)
			if locked := g.recordViolation(ctx, identityID, enums.ViolationContentBlocked); locked != nil {
				return result, *locked
			}
			reason := result.Finding.Reason
			return result, ContentRejectedError{
				Rule:     reason.Rule,
				Category: reason.Category,
				Reason:   reason.ReasonText,
				FixStep:  reason.RequiredFixStep,
			}
		}
	}

	decision, err := g.limiter.Check(ctx, rate.Request{
		IdentityID:       identityID,
		Action:           action.Type,
		Verified:         action.Identity.EmailVerified,
		AccountCreatedAt: action.Identity.CreatedAt,
		FailMode:         action.FailMode,
	})
	if err != nil {
		return result, fmt.Errorf("rate check: %w", err)
	}
	result.Decision = decision
	if !decision.Allowed {
		g.observe(ctx, identityID, redrepo.EventRateLimited)
		if decision.IsBurst() && g.cfg.CountBurstViolations {
			if locked := g.recordViolation(ctx, identityID, enums.ViolationBurstAbuse); locked != nil {
				return result, *locked
			}
		}
		return result, RateLimitedError{RetryAfterSec: decision.RetryAfterSec, Tier: decision.Tier}
	}

	if err := action.Write(ctx); err != nil {
		if refundErr := g.limiter.Refund(ctx, decision); refundErr != nil {
			g.log.Warn("refund rate counters",
				zap.Int64("identity_id", identityID),
				zap.String("action", string(action.Type)),
				zap.Error(refundErr),
			)
		}
		return result, err
	}
	return result, nil
}

// recordViolation returns a lock error when this violation locked the identity.
// Store failures are logged and the original rejection stands.
func (g *Guard) recordViolation(ctx context.Context, identityID int64, kind enums.ViolationKind) *AccountLockedError {
	out, err := g.trust.RecordViolation(ctx, identityID, kind)
	if err != nil {
		g.log.Error("record violation", zap.Int64("identity_id", identityID), zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	if out.Effect == trust.EffectLocked && out.Status.LockedUntil != nil {
		return &AccountLockedError{Until: *out.Status.LockedUntil}
	}
	return nil
}

func (g *Guard) observe(ctx context.Context, identityID int64, event string) {
	if g.events == nil {
		return
	}
	if err := g.events.ObserveEvent(ctx, identityID, event); err != nil {
		g.log.Warn("observe antiabuse event", zap.String("event", event), zap.Error(err))
	}
}

func (g *Guard) logFinding(identityID int64, action Action, finding abuse.Finding) {
	soft := make(map[abuse.RuleID]struct{}, len(finding.SoftFlags))
	for _, rule := range finding.SoftFlags {
		soft[rule] = struct{}{}
	}
	for _, rule := range finding.TriggeredRules {
		_, isSoft := soft[rule]
		g.metrics.ContentFinding(string(rule), !isSoft)
	}
	if !finding.Blocked && len(finding.SoftFlags) == 0 {
		return
	}
	g.log.Info("content finding",
		zap.Int64("identity_id", identityID),
		zap.String("action", string(action.Type)),
		zap.Bool("blocked", finding.Blocked),
		zap.Any("rules", finding.TriggeredRules),
		zap.Any("soft_flags", finding.SoftFlags),
	)
}
