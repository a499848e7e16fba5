package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/config"
	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/infra/metrics"
	s3infra "github.com/ivankudzin/marketplace/internal/infra/s3"
	"github.com/ivankudzin/marketplace/internal/migrations"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	redrepo "github.com/ivankudzin/marketplace/internal/repo/redis"
	"github.com/ivankudzin/marketplace/internal/services/abuse"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/guard"
	mediasvc "github.com/ivankudzin/marketplace/internal/services/media"
	"github.com/ivankudzin/marketplace/internal/services/ranking"
	"github.com/ivankudzin/marketplace/internal/services/rate"
	searchsvc "github.com/ivankudzin/marketplace/internal/services/search"
	"github.com/ivankudzin/marketplace/internal/services/trust"
	"github.com/ivankudzin/marketplace/internal/transport/http/handlers"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics, err := metrics.New(metrics.Options{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, engineMetrics, cfg.HTTP.RequestTimeout)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, pgrepo.PoolOptions{
		DSN:            cfg.Postgres.DSN,
		MaxConns:       cfg.Postgres.MaxConns,
		MinConns:       cfg.Postgres.MinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	}); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
		if cfg.Postgres.AutoMigrate {
			version, err := migrations.Up(pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("schema migrated", zap.Uint("version", version))
		}
	}

	redisClient := redrepo.NewClient(redrepo.ClientOptions{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		OpTimeout: cfg.Redis.OpTimeout,
	})

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, image checks disabled", zap.Error(err))
	} else {
		s3Client = c
	}

	identityRepo := pgrepo.NewIdentityRepo(pool)
	listingRepo := pgrepo.NewListingRepo(pool)
	inquiryRepo := pgrepo.NewInquiryRepo(pool)
	reportRepo := pgrepo.NewReportRepo(pool)
	correctionRepo := pgrepo.NewCorrectionRepo(pool)
	rateRepo := redrepo.NewRateRepo(redisClient)
	reportWindowRepo := redrepo.NewReportWindowRepo(redisClient)
	dashboardRepo := redrepo.NewAntiAbuseDashboardRepo(redisClient)

	rateCfg, err := rateConfig(cfg.Engine.Rate)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rateRepo, rateCfg, log)
	limiter.AttachMetrics(engineMetrics)

	trustService := trust.NewService(trustStore(cfg.Engine.Trust, pool, redisClient), trustConfig(cfg.Engine.Trust), log)
	trustService.AttachEvents(dashboardRepo)
	trustService.AttachMetrics(engineMetrics)
	reporters := trust.NewReporterTracker(reportWindowRepo, dashboardRepo, trustConfig(cfg.Engine.Trust), log)
	reporters.AttachMetrics(engineMetrics)

	detector := abuse.NewDetector(abuseConfig(cfg.Engine.Abuse))

	guardService := guard.New(trustService, limiter, detector, guard.Config{
		CountBurstViolations: cfg.Engine.Rate.CountBurstViolations,
	}, log)
	guardService.AttachEvents(dashboardRepo)
	guardService.AttachMetrics(engineMetrics)

	composer := ranking.NewComposer(rankingConfig(cfg.Engine.Ranking))
	searchService := searchsvc.NewService(listingRepo, identityRepo, composer, log)
	searchService.AttachCorrections(correctionRepo)
	searchService.AttachMetrics(engineMetrics)

	var images handlers.ImageHasher
	if s3Client != nil {
		images = mediasvc.NewService(mediasvc.NewS3Storage(s3Client, cfg.S3.Bucket))
	}

	authService := authsvc.NewService(authsvc.NewVerifier(cfg.Auth.JWTSecret, authsvc.VerifierOptions{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	}))

	checks := map[string]handlers.Pinger{
		"redis": redisPinger{client: redisClient},
	}
	if pool != nil {
		checks["postgres"] = pool
	}
	if s3Client != nil {
		checks["s3"] = bucketPinger{client: s3Client, bucket: cfg.S3.Bucket}
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:        authService,
		Identities:         identityRepo,
		Listings:           listingRepo,
		Inquiries:          inquiryRepo,
		Reports:            reportRepo,
		Images:             images,
		Guard:              guardService,
		Trust:              trustService,
		Reporters:          reporters,
		Quotas:             limiter,
		Search:             searchService,
		Composer:           composer,
		AntiAbuseDashboard: dashboardRepo,
		HealthChecks:       checks,
		Metrics:            registry,
		Logger:             log,
		Config:             cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

type bucketPinger struct {
	client *minio.Client
	bucket string
}

func (p bucketPinger) Ping(ctx context.Context) error {
	return s3infra.CheckBucket(ctx, p.client, p.bucket)
}

func trustStore(cfg config.TrustConfig, pool *pgxpool.Pool, client *goredis.Client) trust.Store {
	if strings.EqualFold(strings.TrimSpace(cfg.Store), "redis") {
		return redrepo.NewTrustRepo(client)
	}
	return pgrepo.NewTrustRepo(pool)
}

func trustConfig(cfg config.TrustConfig) trust.Config {
	return trust.Config{
		SpamFlagThreshold:    cfg.SpamFlagThreshold,
		LockoutHours:         cfg.LockoutHours,
		MaxReports24h:        cfg.MaxReports24h,
		MaxReports7d:         cfg.MaxReports7d,
		ReporterFlagDuration: cfg.ReporterFlagDuration,
	}
}

func rateConfig(cfg config.RateConfig) (rate.Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return rate.Config{}, fmt.Errorf("load rate timezone: %w", err)
	}

	actions := make(map[enums.ActionType]rate.ActionPolicy, len(cfg.Actions))
	for name, action := range cfg.Actions {
		burst := make([]rate.Window, 0, len(action.Burst))
		for _, w := range action.Burst {
			burst = append(burst, rate.Window{Size: w.Window, Limit: w.Limit})
		}
		actions[enums.ActionType(strings.ToLower(strings.TrimSpace(name)))] = rate.ActionPolicy{
			Burst: burst,
			Daily: rate.DailyQuota{
				UnverifiedNew:  action.Daily.UnverifiedNew,
				UnverifiedAged: action.Daily.UnverifiedAged,
				VerifiedNew:    action.Daily.VerifiedNew,
				VerifiedAged:   action.Daily.VerifiedAged,
			},
			FailMode: rate.ParseFailMode(action.FailMode),
		}
	}

	return rate.Config{
		Location:      loc,
		NewAccountAge: cfg.NewAccountAge,
		Actions:       actions,
	}, nil
}

func abuseConfig(cfg config.AbuseConfig) abuse.Config {
	return abuse.Config{
		StuffingRatio:  cfg.StuffingRatio,
		MinTokens:      cfg.MinTokens,
		CapsRatio:      cfg.CapsRatio,
		SymbolRatio:    cfg.SymbolRatio,
		MinLetters:     cfg.MinLetters,
		PhoneMinDigits: cfg.PhoneMinDigits,
		PromoPhrases:   cfg.PromoPhrases,
	}
}

func rankingConfig(cfg config.RankingConfig) ranking.Config {
	out := ranking.Config{
		AddOns:         make(map[string]ranking.AddOnPolicy, len(cfg.AddOns)),
		PlanBonus:      make(map[enums.Plan]float64, len(cfg.PlanBonus)),
		ExpiredPenalty: cfg.ExpiredPenalty,
	}
	if len(cfg.TierWeights) > 0 {
		out.TierWeights = make(map[enums.VisibilityTier]float64, len(cfg.TierWeights))
		for tier, weight := range cfg.TierWeights {
			out.TierWeights[enums.ParseVisibilityTier(tier)] = weight
		}
	}
	for name, addOn := range cfg.AddOns {
		out.AddOns[strings.ToLower(strings.TrimSpace(name))] = ranking.AddOnPolicy{
			Boost:    addOn.Boost,
			Duration: addOn.Duration,
		}
	}
	for plan, bonus := range cfg.PlanBonus {
		out.PlanBonus[enums.ParsePlan(plan)] = bonus
	}
	return out
}
