package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	"github.com/ivankudzin/marketplace/internal/services/abuse"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/guard"
	"github.com/ivankudzin/marketplace/internal/services/trust"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

const maxReportDetailsLength = 2000

type ReportStore interface {
	Create(ctx context.Context, report model.Report) error
}

type ReporterRecorder interface {
	RecordReport(ctx context.Context, reporterID int64, reportID string, at time.Time) (trust.ReporterStatus, error)
}

type ReportHandler struct {
	identities IdentityReader
	reports    ReportStore
	reporters  ReporterRecorder
	guard      Protector
	log        *zap.Logger
	now        func() time.Time
}

func NewReportHandler(identities IdentityReader, reports ReportStore, reporters ReporterRecorder, g Protector, log *zap.Logger) *ReportHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportHandler{
		identities: identities,
		reports:    reports,
		reporters:  reporters,
		guard:      g,
		log:        log,
		now:        time.Now,
	}
}

func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := authsvc.CallerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.identities == nil || h.reports == nil || h.guard == nil {
		writeInternal(w, "REPORT_SERVICE_UNAVAILABLE", "report service is unavailable")
		return
	}

	var req dto.CreateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	details := strings.TrimSpace(req.Details)
	if req.TargetID <= 0 || req.TargetID == caller.IdentityID || len(details) > maxReportDetailsLength {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid report target")
		return
	}
	if !enums.IsValidReportReason(req.Reason) {
		writeBadRequest(w, "VALIDATION_ERROR", "unsupported report reason")
		return
	}

	ctx := r.Context()
	identity, err := h.identities.Get(ctx, caller.IdentityID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrIdentityNotFound) {
			writeUnauthorized(w, "UNAUTHORIZED", "unknown identity")
			return
		}
		h.log.Error("load reporter", zap.Int64("identity_id", caller.IdentityID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create report")
		return
	}

	report := model.Report{
		ID:         uuid.New(),
		ReporterID: identity.ID,
		TargetID:   req.TargetID,
		ListingID:  req.ListingID,
		Reason:     enums.ReportReason(req.Reason),
		Details:    details,
		Status:     enums.ReportStatusNew,
		CreatedAt:  h.now().UTC(),
	}
	action := guard.Action{
		Identity: identity,
		Type:     enums.ActionReport,
		Write: func(ctx context.Context) error {
			return h.reports.Create(ctx, report)
		},
	}
	if details != "" {
		action.Content = &abuse.Payload{Surface: abuse.SurfaceReport, Body: details}
	}

	if _, err := h.guard.Protect(ctx, action); err != nil {
		if writeGuardError(w, err, h.now()) {
			return
		}
		h.log.Error("create report", zap.Int64("identity_id", identity.ID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create report")
		return
	}

	if h.reporters != nil {
		if _, err := h.reporters.RecordReport(ctx, identity.ID, report.ID.String(), report.CreatedAt); err != nil {
			h.log.Warn("record report window", zap.Int64("reporter_id", identity.ID), zap.Error(err))
		}
	}

	httperrors.Write(w, http.StatusCreated, dto.ReportResponse{
		ID:        report.ID.String(),
		Status:    string(report.Status),
		CreatedAt: report.CreatedAt,
	})
}
