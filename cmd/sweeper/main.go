package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/app/sweeperapp"
	"github.com/ivankudzin/marketplace/internal/config"
	"github.com/ivankudzin/marketplace/internal/infra/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml (defaults to $APP_CONFIG)")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, "sweeper")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sweeperapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create sweeper app", zap.Error(err))
	}
	defer app.Close()

	if *once {
		if err := app.RunOnce(ctx); err != nil {
			log.Fatal("sweep failed", zap.Error(err))
		}
		return
	}
	if err := app.Run(ctx); err != nil {
		log.Fatal("sweeper failed", zap.Error(err))
	}
}
