package sweeperapp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/config"
	"github.com/ivankudzin/marketplace/internal/jobs/expiry"
	"github.com/ivankudzin/marketplace/internal/migrations"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
)

// App persists lazily derived expirations so stored rows converge with what
// reads already report.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	job      *expiry.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, pgrepo.PoolOptions{
		DSN:            cfg.Postgres.DSN,
		MaxConns:       cfg.Postgres.MaxConns,
		MinConns:       cfg.Postgres.MinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres for sweeper: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		version, err := migrations.Up(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("schema migrated", zap.Uint("version", version))
	}

	job := expiry.New(pgrepo.NewIdentityRepo(pool), pgrepo.NewListingRepo(pool), cfg.Sweeper.Batch, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		postgres: pool,
		job:      job,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sweeper started", zap.Duration("interval", a.cfg.Sweeper.Interval))
	a.job.Loop(ctx, a.cfg.Sweeper.Interval)
	a.logger.Info("sweeper stopped")
	return nil
}

// RunOnce performs a single sweep, for cron-style deployments.
func (a *App) RunOnce(ctx context.Context) error {
	return a.job.Run(ctx)
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}
