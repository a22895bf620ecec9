package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchalong/internal/platform/config"
	"watchalong/internal/platform/logger"
	"watchalong/internal/platform/metrics"
	"watchalong/internal/platform/supervisor"
	"watchalong/internal/relay"
)

func main() {
	_ = config.Load()

	cfg, err := config.LoadRelay()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	listing := relay.NewListing(log, relay.NewUpgrader())
	r := relay.New(log, relay.NewInMemoryRegistry(), listing, relay.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ApprovalTimeout:  cfg.ApprovalTimeout,
		Metrics:          met,
	})
	hub := relay.NewHub(r, relay.NewUpgrader())

	router := relay.NewRouter(r, hub, listing, relay.RouterConfig{
		Log:            log,
		Metrics:        met,
		LoginRateLimit: cfg.LoginRateLimit,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree("relay", log, supervisor.TreeConfig{ShutdownTimeout: cfg.ShutdownTimeout})
	tree.AddLinkService(listing)
	for _, addr := range cfg.Origins {
		tree.AddLinkService(relay.NewOriginService(addr, r))
	}
	tree.AddAPIService(supervisor.NewHTTPService("relay http", srv, cfg.ShutdownTimeout))

	log.Info("relay starting",
		"addr", cfg.Addr,
		"origins", len(cfg.Origins),
		"log_level", cfg.LogLevel,
	)
	if len(cfg.Origins) == 0 {
		log.Warn("no origins configured; set RELAY_ORIGINS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	log.Info("relay stopped")
}
