package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
)

type Report struct {
	ID         uuid.UUID          `json:"id"`
	ReporterID int64              `json:"reporter_id"`
	TargetID   int64              `json:"target_id"`
	ListingID  *int64             `json:"listing_id"`
	Reason     enums.ReportReason `json:"reason"`
	Details    string             `json:"details"`
	Status     enums.ReportStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	// ViolationRecordedAt is set once a confirmed report has counted against
	// its target. A confirmed report without it may be confirmed again.
	ViolationRecordedAt *time.Time `json:"violation_recorded_at,omitempty"`
}
