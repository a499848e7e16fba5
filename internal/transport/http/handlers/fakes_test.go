package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/guard"
	searchsvc "github.com/ivankudzin/marketplace/internal/services/search"
	"github.com/ivankudzin/marketplace/internal/services/trust"
)

type fakeIdentities struct {
	items map[int64]model.Identity
}

func (f *fakeIdentities) Get(_ context.Context, identityID int64) (model.Identity, error) {
	item, ok := f.items[identityID]
	if !ok {
		return model.Identity{}, pgrepo.ErrIdentityNotFound
	}
	return item, nil
}

type fakeListings struct {
	mu        sync.Mutex
	items     map[int64]model.Listing
	titles    []string
	published []int64
	granted   map[int64]time.Time
}

func (f *fakeListings) Get(_ context.Context, listingID int64) (model.Listing, error) {
	item, ok := f.items[listingID]
	if !ok {
		return model.Listing{}, pgrepo.ErrListingNotFound
	}
	return item, nil
}

func (f *fakeListings) ActiveTitlesBySeller(context.Context, int64, int64) ([]string, error) {
	return f.titles, nil
}

func (f *fakeListings) MatchingHashesFromOtherSellers(context.Context, int64, []string) ([]string, error) {
	return nil, nil
}

func (f *fakeListings) Publish(_ context.Context, listingID, _ int64, _ []string, _ *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, listingID)
	return nil
}

func (f *fakeListings) GrantAddOn(_ context.Context, listingID int64, name string, expiresAt time.Time) error {
	if _, ok := f.items[listingID]; !ok {
		return pgrepo.ErrListingNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.granted == nil {
		f.granted = make(map[int64]time.Time)
	}
	f.granted[listingID] = expiresAt
	return nil
}

type fakeInquiries struct {
	prior   bool
	created []model.Inquiry
}

func (f *fakeInquiries) Create(_ context.Context, inquiry model.Inquiry) error {
	f.created = append(f.created, inquiry)
	return nil
}

func (f *fakeInquiries) HasPriorContact(context.Context, int64, int64) (bool, error) {
	return f.prior, nil
}

// fakeProtector runs the write unless err is set, like the real guard on allow.
type fakeProtector struct {
	err     error
	result  guard.Result
	actions []guard.Action
}

func (f *fakeProtector) Protect(ctx context.Context, action guard.Action) (guard.Result, error) {
	f.actions = append(f.actions, action)
	if f.err != nil {
		return guard.Result{}, f.err
	}
	if action.Write != nil {
		if err := action.Write(ctx); err != nil {
			return guard.Result{}, err
		}
	}
	return f.result, nil
}

type fakeReports struct {
	created  []model.Report
	resolved map[uuid.UUID]model.Report
	markErr  error
}

func (f *fakeReports) Create(_ context.Context, report model.Report) error {
	f.created = append(f.created, report)
	return nil
}

func (f *fakeReports) Resolve(_ context.Context, reportID uuid.UUID, status enums.ReportStatus, _ time.Time) (model.Report, error) {
	report, ok := f.resolved[reportID]
	if !ok {
		return model.Report{}, pgrepo.ErrReportNotFound
	}
	if report.Status == enums.ReportStatusConfirmed && status == enums.ReportStatusConfirmed && report.ViolationRecordedAt == nil {
		return report, nil
	}
	if report.Status != enums.ReportStatusNew {
		return model.Report{}, pgrepo.ErrReportAlreadyResolved
	}
	report.Status = status
	f.resolved[reportID] = report
	return report, nil
}

func (f *fakeReports) MarkViolationRecorded(_ context.Context, reportID uuid.UUID, now time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	report, ok := f.resolved[reportID]
	if !ok {
		return pgrepo.ErrReportNotFound
	}
	report.ViolationRecordedAt = &now
	f.resolved[reportID] = report
	return nil
}

type fakeReporters struct {
	err   error
	calls int
}

func (f *fakeReporters) RecordReport(context.Context, int64, string, time.Time) (trust.ReporterStatus, error) {
	f.calls++
	return trust.ReporterStatus{}, f.err
}

type fakeTrust struct {
	status       trust.Status
	violations   []int64
	violationErr error
}

func (f *fakeTrust) State(context.Context, int64) (trust.Status, error) {
	return f.status, nil
}

func (f *fakeTrust) RecordViolation(_ context.Context, identityID int64, _ enums.ViolationKind) (trust.Outcome, error) {
	if f.violationErr != nil {
		return trust.Outcome{}, f.violationErr
	}
	f.violations = append(f.violations, identityID)
	return trust.Outcome{Effect: trust.EffectWarned}, nil
}

type fakeSearcher struct {
	page        searchsvc.Page
	lastQuery   searchsvc.Query
	contractors bool
}

func (f *fakeSearcher) Search(_ context.Context, q searchsvc.Query) (searchsvc.Page, error) {
	f.lastQuery = q
	return f.page, nil
}

func (f *fakeSearcher) Contractors(_ context.Context, q searchsvc.Query) (searchsvc.Page, error) {
	f.lastQuery = q
	f.contractors = true
	return f.page, nil
}

type fakeDashboard struct {
	summary redrepo.AntiAbuseSummary
	top     map[string][]redrepo.OffenderItem
}

func (f *fakeDashboard) Summary(context.Context) (redrepo.AntiAbuseSummary, error) {
	return f.summary, nil
}

func (f *fakeDashboard) Top(_ context.Context, kind string, limit int64) ([]redrepo.OffenderItem, error) {
	items := f.top[kind]
	if int64(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

var errPingFailed = errors.New("connection refused")

func withIdentity(req *http.Request, identityID int64, role string) *http.Request {
	ctx := authsvc.WithCaller(req.Context(), authsvc.Caller{IdentityID: identityID, SessionID: "sid", Role: role})
	return req.WithContext(ctx)
}

func withURLParam(ctx context.Context, key, value string) context.Context {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}

func strPtr(v string) *string {
	return &v
}

func verifiedSeller(id int64, now time.Time) model.Identity {
	expires := now.Add(30 * 24 * time.Hour)
	return model.Identity{
		ID:            id,
		EmailVerified: true,
		Plan:          enums.PlanFree,
		Verification: model.VerificationFields{
			SellerStatus:    strPtr("ACTIVE"),
			SellerExpiresAt: &expires,
		},
	}
}
