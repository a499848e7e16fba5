package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	rankingsvc "github.com/ivankudzin/marketplace/internal/services/ranking"
	"github.com/ivankudzin/marketplace/internal/services/trust"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

type ReportResolver interface {
	Resolve(ctx context.Context, reportID uuid.UUID, status enums.ReportStatus, now time.Time) (model.Report, error)
	MarkViolationRecorded(ctx context.Context, reportID uuid.UUID, now time.Time) error
}

type ViolationRecorder interface {
	RecordViolation(ctx context.Context, identityID int64, kind enums.ViolationKind) (trust.Outcome, error)
}

type AddOnGranter interface {
	GrantAddOn(ctx context.Context, listingID int64, name string, expiresAt time.Time) error
}

type AddOnPricer interface {
	AddOnExpiry(name string, from time.Time) (time.Time, error)
}

type AntiAbuseDashboardReader interface {
	Summary(ctx context.Context) (redrepo.AntiAbuseSummary, error)
	Top(ctx context.Context, kind string, limit int64) ([]redrepo.OffenderItem, error)
}

type AdminHandler struct {
	reports    ReportResolver
	violations ViolationRecorder
	addOns     AddOnGranter
	pricing    AddOnPricer
	antiabuse  AntiAbuseDashboardReader
	log        *zap.Logger
	now        func() time.Time
}

func NewAdminHandler(reports ReportResolver, violations ViolationRecorder, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		reports:    reports,
		violations: violations,
		log:        log,
		now:        time.Now,
	}
}

func (h *AdminHandler) AttachAddOns(granter AddOnGranter, pricing AddOnPricer) {
	h.addOns = granter
	h.pricing = pricing
}

func (h *AdminHandler) AttachAntiAbuseDashboard(reader AntiAbuseDashboardReader) {
	h.antiabuse = reader
}

// ConfirmSpam resolves a report as confirmed spam and counts a violation
// against the reported identity. The report stays open for a retry until the
// violation is recorded.
func (h *AdminHandler) ConfirmSpam(w http.ResponseWriter, r *http.Request) {
	report, ok := h.resolveReport(w, r, enums.ReportStatusConfirmed)
	if !ok {
		return
	}

	resp := dto.AdminReportResolutionResponse{
		ReportID: report.ID.String(),
		Status:   string(report.Status),
		TargetID: report.TargetID,
	}
	if h.violations != nil {
		out, err := h.violations.RecordViolation(r.Context(), report.TargetID, enums.ViolationConfirmedSpamReport)
		if err != nil {
			h.log.Error("record confirmed spam violation", zap.Int64("target_id", report.TargetID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "violation was not recorded, retry the confirmation")
			return
		}
		resp.TrustEffect = string(out.Effect)
	}
	if err := h.reports.MarkViolationRecorded(r.Context(), report.ID, h.now().UTC()); err != nil {
		// The violation already counted; a retry would count it again.
		h.log.Error("mark report violation recorded", zap.String("report_id", report.ID.String()), zap.Error(err))
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *AdminHandler) RejectReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.resolveReport(w, r, enums.ReportStatusRejected)
	if !ok {
		return
	}
	httperrors.Write(w, http.StatusOK, dto.AdminReportResolutionResponse{
		ReportID: report.ID.String(),
		Status:   string(report.Status),
		TargetID: report.TargetID,
	})
}

func (h *AdminHandler) resolveReport(w http.ResponseWriter, r *http.Request, status enums.ReportStatus) (model.Report, bool) {
	caller, ok := authsvc.CallerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return model.Report{}, false
	}
	if h.reports == nil {
		writeInternal(w, "REPORT_SERVICE_UNAVAILABLE", "report service is unavailable")
		return model.Report{}, false
	}
	reportID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid report id")
		return model.Report{}, false
	}

	report, err := h.reports.Resolve(r.Context(), reportID, status, h.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrReportNotFound):
			writeNotFound(w, "NOT_FOUND", "report not found")
		case errors.Is(err, pgrepo.ErrReportAlreadyResolved):
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    "ALREADY_RESOLVED",
				Message: "report is already resolved",
			})
		default:
			h.log.Error("resolve report", zap.String("report_id", reportID.String()), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to resolve report")
		}
		return model.Report{}, false
	}

	h.log.Info("report resolved",
		zap.String("report_id", report.ID.String()),
		zap.String("status", string(report.Status)),
		zap.Int64("admin_id", caller.IdentityID),
	)
	return report, true
}

func (h *AdminHandler) GrantAddOn(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.CallerFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.addOns == nil || h.pricing == nil {
		writeInternal(w, "ADDON_SERVICE_UNAVAILABLE", "add-on service is unavailable")
		return
	}
	listingID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid listing id")
		return
	}

	var req dto.AdminGrantAddOnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))

	expiresAt, err := h.pricing.AddOnExpiry(name, h.now().UTC())
	if err != nil {
		if errors.Is(err, rankingsvc.ErrUnknownAddOn) {
			writeBadRequest(w, "VALIDATION_ERROR", "unknown add-on")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to grant add-on")
		return
	}

	if err := h.addOns.GrantAddOn(r.Context(), listingID, name, expiresAt); err != nil {
		if errors.Is(err, pgrepo.ErrListingNotFound) {
			writeNotFound(w, "NOT_FOUND", "listing not found")
			return
		}
		h.log.Error("grant add-on", zap.Int64("listing_id", listingID), zap.String("add_on", name), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to grant add-on")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdminGrantAddOnResponse{
		ListingID: listingID,
		Name:      name,
		ExpiresAt: expiresAt,
	})
}

func (h *AdminHandler) AntiAbuseSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.CallerFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.antiabuse == nil {
		writeInternal(w, "ANTIABUSE_DASHBOARD_UNAVAILABLE", "antiabuse dashboard is unavailable")
		return
	}

	summary, err := h.antiabuse.Summary(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load antiabuse summary")
		return
	}
	reporters, err := h.antiabuse.Top(r.Context(), "reporter", 10)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load flagged reporters")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdminAntiAbuseSummaryResponse{
		ContentBlocked1h:   summary.ContentBlocked1h,
		RateLimited1h:      summary.RateLimited1h,
		LockoutApplied24h:  summary.LockoutApplied24h,
		ReporterFlagged24h: summary.ReporterFlagged24h,
		TopReporters:       topItems(reporters),
	})
}

func (h *AdminHandler) AntiAbuseTop(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.CallerFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.antiabuse == nil {
		writeInternal(w, "ANTIABUSE_DASHBOARD_UNAVAILABLE", "antiabuse dashboard is unavailable")
		return
	}

	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = "identity"
	}
	if kind != "identity" && kind != "reporter" {
		writeBadRequest(w, "VALIDATION_ERROR", "kind must be identity or reporter")
		return
	}

	limit := int64(20)
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		parsed, err := strconv.ParseInt(rawLimit, 10, 64)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	items, err := h.antiabuse.Top(r.Context(), kind, limit)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load antiabuse top offenders")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdminAntiAbuseTopResponse{
		Kind:  kind,
		Limit: limit,
		Items: topItems(items),
	})
}

func topItems(items []redrepo.OffenderItem) []dto.AdminAntiAbuseTopItem {
	out := make([]dto.AdminAntiAbuseTopItem, 0, len(items))
	for _, item := range items {
		out = append(out, dto.AdminAntiAbuseTopItem{
			ID:    item.ID,
			Score: item.Score,
		})
	}
	return out
}
