package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"room-triage/config"
	"room-triage/directions"
	"room-triage/scraper/spareroom"
	"room-triage/services"
	"room-triage/shell"
	"room-triage/storage"
	"room-triage/triage"
	"room-triage/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(os.Stdout, cfg.LogLevel)

	logger.Info("=== Room triage starting ===")
	logger.Info("Config: store: %s | max price: £%d | max commute: %d min | destinations: %d",
		cfg.StoreBackend, cfg.Thresholds.MaxMonthlyPrice, cfg.Thresholds.MaxCommuteMinutes, len(cfg.Destinations))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		return 1
	}
	defer backend.Close()
	repo := storage.NewRepository(storage.NewChunkedStore(backend))

	if cfg.GoogleMapsAPIKey == "" {
		logger.Warn("GOOGLE_MAPS_API_KEY is not set, distance scoring will fail")
	}

	session := spareroom.NewSession(spareroom.SessionOptions{
		RootURL:   cfg.SiteRootURL,
		Email:     cfg.SiteEmail,
		Password:  cfg.SitePassword,
		ChromeBin: cfg.ChromeBin,
		Headless:  cfg.Headless,
	}, repo, logger)
	// Always release the browser, including after a failed pass.
	defer session.Close(context.Background())

	urls := services.NewURLNormalizer(cfg.SiteRootURL)
	site := spareroom.NewSite(session, urls, services.NewPriceNormalizer(logger),
		utils.NewThrottle(cfg.RateLimitMs), cfg.LinkDepthLimit, logger)

	routes := directions.NewClient(directions.Options{
		BaseURL:     cfg.DirectionsURL,
		APIKey:      cfg.GoogleMapsAPIKey,
		RateLimitMs: cfg.RateLimitMs,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     30 * time.Second,
		Logger:      logger,
	})
	scorer := services.Scorer{
		MaxMinutes: cfg.Thresholds.MaxCommuteMinutes,
		Weights:    cfg.DestinationWeights(),
	}

	orch := triage.New(site, repo,
		services.NewDistanceScorer(routes, cfg.Destinations, logger),
		services.NewValidator(cfg.Thresholds),
		scorer, urls, logger)

	if cfg.Schedule != "" {
		sched := triage.NewScheduler(orch, cfg.ExportCSVPath, logger)
		if err := sched.Start(ctx, cfg.Schedule); err != nil {
			logger.Error("%v", err)
			return 1
		}
		<-ctx.Done()
		sched.Stop()
		return 0
	}

	sh := shell.New(os.Stdin, os.Stdout, logger)
	sh.RegisterTriage(shell.Deps{
		Orchestrator: orch,
		Repo:         repo,
		Insights:     services.NewInsightService(scorer, logger),
		ExportPath:   cfg.ExportCSVPath,
	})
	if err := sh.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Shell stopped: %v", err)
		return 1
	}

	logger.Info("=== Room triage finished ===")
	return 0
}
