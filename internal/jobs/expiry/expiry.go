package expiry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job pre-writes expirations that every read already derives lazily. Skipping
// a run never changes what users can see.
type Job struct {
	verifications verificationExpirer
	addOns        addOnExpirer
	batch         int
	now           func() time.Time
	logger        *zap.Logger
}

type verificationExpirer interface {
	ExpireVerifications(ctx context.Context, now time.Time) (int64, error)
}

type addOnExpirer interface {
	DeleteExpiredAddOns(ctx context.Context, now time.Time, batch int) (int64, error)
}

func New(verifications verificationExpirer, addOns addOnExpirer, batch int, logger *zap.Logger) *Job {
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		verifications: verifications,
		addOns:        addOns,
		batch:         batch,
		now:           time.Now,
		logger:        logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	now := j.now().UTC()

	if j.verifications != nil {
		rows, err := j.verifications.ExpireVerifications(ctx, now)
		if err != nil {
			return fmt.Errorf("expire verifications: %w", err)
		}
		if rows > 0 {
			j.logger.Info("expire verifications completed", zap.Int64("expired", rows))
		}
	}

	if j.addOns == nil {
		return nil
	}

	var total int64
	for {
		rows, err := j.addOns.DeleteExpiredAddOns(ctx, now, j.batch)
		if err != nil {
			return fmt.Errorf("delete expired add-ons: %w", err)
		}
		total += rows
		if rows < int64(j.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if total > 0 {
		j.logger.Info("delete expired add-ons completed", zap.Int64("deleted", total))
	}
	return nil
}

// Loop runs the job every interval until ctx is done. Failed runs are logged.
func (j *Job) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
