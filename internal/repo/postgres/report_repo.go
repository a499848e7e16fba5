package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

var (
	ErrReportNotFound        = errors.New("report not found")
	ErrReportAlreadyResolved = errors.New("report already resolved")
)

// ReportRepo is append-only for reporters; admins only move a report out of "new".
type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

func (r *ReportRepo) Create(ctx context.Context, report model.Report) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if report.ReporterID <= 0 || report.TargetID <= 0 || report.ReporterID == report.TargetID {
		return fmt.Errorf("invalid report payload")
	}
	if strings.TrimSpace(string(report.Reason)) == "" {
		return fmt.Errorf("report reason is required")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO reports (
	id,
	reporter_id,
	target_id,
	listing_id,
	reason,
	details,
	status,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, 'new', $7)
`, report.ID, report.ReporterID, report.TargetID, report.ListingID,
		strings.ToLower(strings.TrimSpace(string(report.Reason))), strings.TrimSpace(report.Details), report.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// Resolve moves a new report to status. Rejecting a report counts against the
// reporter in the same transaction. Confirming a report that is already
// confirmed but whose violation was never recorded returns it unchanged, so the
// caller can retry the violation.
func (r *ReportRepo) Resolve(ctx context.Context, reportID uuid.UUID, status enums.ReportStatus, now time.Time) (model.Report, error) {
	if status != enums.ReportStatusConfirmed && status != enums.ReportStatusRejected {
		return model.Report{}, fmt.Errorf("invalid report resolution")
	}

	var report model.Report
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var (
			reason  string
			current string
		)
		err := tx.QueryRow(ctx, `
SELECT id, reporter_id, target_id, listing_id, reason, details, status, created_at, violation_recorded_at
FROM reports
WHERE id = $1
FOR UPDATE
`, reportID).Scan(
			&report.ID,
			&report.ReporterID,
			&report.TargetID,
			&report.ListingID,
			&reason,
			&report.Details,
			&current,
			&report.CreatedAt,
			&report.ViolationRecordedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReportNotFound
			}
			return fmt.Errorf("load report: %w", err)
		}
		report.Reason = enums.ReportReason(reason)
		report.Status = enums.ReportStatus(current)
		if report.Status == enums.ReportStatusConfirmed && status == enums.ReportStatusConfirmed && report.ViolationRecordedAt == nil {
			return nil
		}
		if report.Status != enums.ReportStatusNew {
			return ErrReportAlreadyResolved
		}

		if _, err := tx.Exec(ctx, `
UPDATE reports SET
	status = $2,
	resolved_at = $3
WHERE id = $1
`, reportID, string(status), now.UTC()); err != nil {
			return fmt.Errorf("resolve report: %w", err)
		}

		if status == enums.ReportStatusRejected {
			if _, err := tx.Exec(ctx, `
UPDATE identities SET
	rejected_report_count = rejected_report_count + 1,
	updated_at = NOW()
WHERE id = $1
`, report.ReporterID); err != nil {
				return fmt.Errorf("increment rejected reports: %w", err)
			}
		}

		report.Status = status
		return nil
	})
	if err != nil {
		return model.Report{}, err
	}
	return report, nil
}

// MarkViolationRecorded closes a confirmed report for good. Marking twice is a no-op.
func (r *ReportRepo) MarkViolationRecorded(ctx context.Context, reportID uuid.UUID, now time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE reports SET violation_recorded_at = $2
WHERE id = $1 AND status = 'confirmed_spam' AND violation_recorded_at IS NULL
`, reportID, now.UTC())
	if err != nil {
		return fmt.Errorf("mark report violation recorded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, reportID).Scan(&exists); err != nil {
			return fmt.Errorf("check report: %w", err)
		}
		if !exists {
			return ErrReportNotFound
		}
	}
	return nil
}
