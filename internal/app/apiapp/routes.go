package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/config"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/transport/http/handlers"
)

type ListingStore interface {
	handlers.ListingPublisher
	handlers.AddOnGranter
}

type ReportStore interface {
	handlers.ReportStore
	handlers.ReportResolver
}

type TrustService interface {
	handlers.TrustReader
	handlers.ViolationRecorder
}

type Dependencies struct {
	AuthService        *authsvc.Service
	Identities         handlers.IdentityReader
	Listings           ListingStore
	Inquiries          handlers.InquiryStore
	Reports            ReportStore
	Images             handlers.ImageHasher
	Guard              handlers.Protector
	Trust              TrustService
	Reporters          handlers.ReporterRecorder
	Quotas             handlers.QuotaReader
	Search             handlers.Searcher
	Composer           handlers.AddOnPricer
	AntiAbuseDashboard handlers.AntiAbuseDashboardReader
	HealthChecks       map[string]handlers.Pinger
	Metrics            prometheus.Gatherer
	Logger             *zap.Logger
	Config             config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	inquiryHandler := handlers.NewInquiryHandler(deps.Identities, deps.Listings, deps.Inquiries, deps.Guard, deps.Logger)
	listingHandler := handlers.NewListingHandler(deps.Identities, deps.Listings, deps.Images, deps.Guard, deps.Config.Engine.ListingTTL, deps.Logger)
	reportHandler := handlers.NewReportHandler(deps.Identities, deps.Reports, deps.Reporters, deps.Guard, deps.Logger)
	searchHandler := handlers.NewSearchHandler(deps.Search, deps.Logger)
	contentRulesHandler := handlers.NewContentRulesHandler()
	meHandler := handlers.NewMeHandler(deps.Identities, deps.Trust, deps.Logger)
	meHandler.AttachQuotas(deps.Quotas)
	adminHandler := handlers.NewAdminHandler(deps.Reports, deps.Trust, deps.Logger)
	adminHandler.AttachAddOns(deps.Listings, deps.Composer)
	adminHandler.AttachAntiAbuseDashboard(deps.AntiAbuseDashboard)

	authMW := AuthMiddleware(deps.AuthService, deps.Logger)
	adminRoleMW := RequireRole(deps.Config.Auth.AdminRole)

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", searchHandler.Search)
		r.Get("/directory/contractors", searchHandler.Contractors)
		r.Get("/content-rules", contentRulesHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(authMW)
			r.Post("/inquiries", inquiryHandler.Create)
			r.Post("/listings/{id}/publish", listingHandler.Publish)
			r.Post("/reports", reportHandler.Create)
			r.Get("/me/trust", meHandler.Trust)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW, adminRoleMW)
		r.Post("/reports/{id}/confirm-spam", adminHandler.ConfirmSpam)
		r.Post("/reports/{id}/reject", adminHandler.RejectReport)
		r.Post("/listings/{id}/addons", adminHandler.GrantAddOn)
		r.Get("/antiabuse/summary", adminHandler.AntiAbuseSummary)
		r.Get("/antiabuse/top", adminHandler.AntiAbuseTop)
	})
}
