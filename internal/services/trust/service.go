package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	Get(ctx context.Context, identityID int64) (model.TrustRecord, error)
	Update(ctx context.Context, identityID int64, fn model.TrustUpdateFunc) (model.TrustRecord, error)
}

type EventSink interface {
	ObserveEvent(ctx context.Context, identityID int64, name string) error
}

type Config struct {
	SpamFlagThreshold    int
	LockoutHours         int
	MaxReports24h        int
	MaxReports7d         int
	ReporterFlagDuration time.Duration
}

type Status struct {
	State         State      `json:"state"`
	SpamWarnings  int        `json:"spam_warnings"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	RetryAfterSec int64      `json:"retry_after_sec"`
}

type Outcome struct {
	Effect Effect
	Status Status
}

type Service struct {
	store   Store
	events  EventSink
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewService(store Store, cfg Config, log *zap.Logger) *Service {
	if cfg.SpamFlagThreshold <= 0 {
		cfg.SpamFlagThreshold = 3
	}
	if cfg.LockoutHours <= 0 {
		cfg.LockoutHours = 24
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func (s *Service) AttachEvents(events EventSink) {
	s.events = events
}

func (s *Service) AttachMetrics(m *metrics.Engine) {
	s.metrics = m
}

func (s *Service) policy() Policy {
	return Policy{
		SpamFlagThreshold: s.cfg.SpamFlagThreshold,
		LockoutDuration:   time.Duration(s.cfg.LockoutHours) * time.Hour,
	}
}

func (s *Service) IsLocked(ctx context.Context, identityID int64) (bool, error) {
	status, err := s.State(ctx, identityID)
	if err != nil {
		return false, err
	}
	return status.State == StateLocked, nil
}

func (s *Service) State(ctx context.Context, identityID int64) (Status, error) {
	if identityID <= 0 {
		return Status{}, ErrValidation
	}
	if s.store == nil {
		return Status{}, fmt.Errorf("trust store is nil")
	}

	rec, err := s.store.Get(ctx, identityID)
	if err != nil {
		return Status{}, fmt.Errorf("read trust record: %w", err)
	}
	return statusOf(rec, s.now().UTC()), nil
}

// RecordViolation feeds one confirmed violation through Transition as a single
// compare-and-set on the store.
func (s *Service) RecordViolation(ctx context.Context, identityID int64, kind enums.ViolationKind) (Outcome, error) {
	if identityID <= 0 {
		return Outcome{}, ErrValidation
	}
	if s.store == nil {
		return Outcome{}, fmt.Errorf("trust store is nil")
	}

	now := s.now().UTC()
	policy := s.policy()

	var effect Effect
	rec, err := s.store.Update(ctx, identityID, func(current model.TrustRecord) (model.TrustRecord, bool) {
		next, e := Transition(current, kind, now, policy)
		effect = e
		return next, e != EffectIgnored
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("record violation: %w", err)
	}

	status := statusOf(rec, now)
	s.log.Info("trust violation recorded",
		zap.Int64("identity_id", identityID),
		zap.String("kind", string(kind)),
		zap.String("effect", string(effect)),
		zap.String("state", string(status.State)),
	)

	if effect == EffectLocked {
		s.metrics.Lockout()
		if s.events != nil {
			if err := s.events.ObserveEvent(ctx, identityID, redrepo.EventLockoutApplied); err != nil {
				s.log.Warn("observe lockout event", zap.Int64("identity_id", identityID), zap.Error(err))
			}
		}
	}

	return Outcome{Effect: effect, Status: status}, nil
}

func statusOf(rec model.TrustRecord, now time.Time) Status {
	status := Status{
		State:        StateOf(rec, now),
		SpamWarnings: rec.SpamWarnings,
	}
	if status.State == StateLocked {
		until := rec.SpamSuspendedUntil.UTC()
		status.LockedUntil = &until
		status.RetryAfterSec = ceilSeconds(until.Sub(now))
	}
	return status
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
