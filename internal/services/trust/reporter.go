package trust

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
)

const (
	reportWindow24h = 24 * time.Hour
	reportWindow7d  = 7 * 24 * time.Hour
)

type ReportWindowStore interface {
	RecordAndCount(ctx context.Context, reporterID int64, reportID string, at time.Time, windows []time.Duration, retention time.Duration) ([]int64, error)
}

type ReporterFlagStore interface {
	EventSink
	FlagReporter(ctx context.Context, reporterID int64, until, now time.Time) (bool, error)
	ReporterFlaggedUntil(ctx context.Context, reporterID int64, now time.Time) (*time.Time, error)
}

type ReporterStatus struct {
	Reports24h   int64      `json:"reports_24h"`
	Reports7d    int64      `json:"reports_7d"`
	Flagged      bool       `json:"flagged"`
	FlaggedUntil *time.Time `json:"flagged_until,omitempty"`
}

// ReporterTracker counts reports per reporter in rolling windows and raises an
// admin-only flag past the thresholds. It never denies a report.
type ReporterTracker struct {
	windows ReportWindowStore
	flags   ReporterFlagStore
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Engine
}

func NewReporterTracker(windows ReportWindowStore, flags ReporterFlagStore, cfg Config, log *zap.Logger) *ReporterTracker {
	if cfg.MaxReports24h <= 0 {
		cfg.MaxReports24h = 10
	}
	if cfg.MaxReports7d <= 0 {
		cfg.MaxReports7d = 30
	}
	if cfg.ReporterFlagDuration <= 0 {
		cfg.ReporterFlagDuration = reportWindow7d
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReporterTracker{
		windows: windows,
		flags:   flags,
		cfg:     cfg,
		log:     log,
	}
}

func (t *ReporterTracker) AttachMetrics(m *metrics.Engine) {
	t.metrics = m
}

// RecordReport appends the report and updates the flag. Callers treat an error
// as a logging concern only.
func (t *ReporterTracker) RecordReport(ctx context.Context, reporterID int64, reportID string, at time.Time) (ReporterStatus, error) {
	if reporterID <= 0 || reportID == "" {
		return ReporterStatus{}, ErrValidation
	}
	if t.windows == nil || t.flags == nil {
		return ReporterStatus{}, fmt.Errorf("reporter tracking is not configured")
	}

	counts, err := t.windows.RecordAndCount(ctx, reporterID, reportID, at,
		[]time.Duration{reportWindow24h, reportWindow7d}, reportWindow7d)
	if err != nil {
		return ReporterStatus{}, fmt.Errorf("count reporter windows: %w", err)
	}

	status := ReporterStatus{Reports24h: counts[0], Reports7d: counts[1]}
	if status.Reports24h > int64(t.cfg.MaxReports24h) || status.Reports7d > int64(t.cfg.MaxReports7d) {
		raised, err := t.flags.FlagReporter(ctx, reporterID, at.Add(t.cfg.ReporterFlagDuration), at)
		if err != nil {
			return status, fmt.Errorf("flag reporter: %w", err)
		}
		if raised {
			t.metrics.ReporterFlag()
			t.log.Info("serial reporter flagged",
				zap.Int64("reporter_id", reporterID),
				zap.Int64("reports_24h", status.Reports24h),
				zap.Int64("reports_7d", status.Reports7d),
			)
			if err := t.flags.ObserveEvent(ctx, reporterID, redrepo.EventReporterFlagged); err != nil {
				t.log.Warn("observe reporter flag event", zap.Int64("reporter_id", reporterID), zap.Error(err))
			}
		}
	}

	until, err := t.flags.ReporterFlaggedUntil(ctx, reporterID, at)
	if err != nil {
		return status, fmt.Errorf("read reporter flag: %w", err)
	}
	status.Flagged = until != nil
	status.FlaggedUntil = until
	return status, nil
}
