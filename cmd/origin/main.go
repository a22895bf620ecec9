package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"watchalong/internal/origin"
	"watchalong/internal/platform/config"
	"watchalong/internal/platform/logger"
	"watchalong/internal/platform/metrics"
	"watchalong/internal/platform/supervisor"
)

func main() {
	_ = config.Load()

	cfg, err := config.LoadOrigin()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	fs := afero.NewOsFs()
	ocfg := origin.Config{
		Name:               cfg.Name,
		Password:           cfg.Password,
		PublicURL:          cfg.PublicURL,
		MediaDir:           cfg.MediaDir,
		DownloadDir:        cfg.DownloadDir,
		SubtitleDir:        cfg.SubtitleDir,
		ImagePath:          cfg.ImagePath,
		BlockedUsernames:   cfg.BlockedUsernames,
		ExtractConcurrency: cfg.ExtractConcurrency,
	}
	if err := origin.PrepareDirs(fs, ocfg); err != nil {
		log.Error("preparing directories", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	srv := origin.New(fs, ocfg, origin.Tools{
		Prober:    origin.FFprobe{Path: cfg.ProbeTool},
		Extractor: origin.FFmpeg{Path: cfg.ExtractTool},
		Resolver:  origin.YtDlp{Path: cfg.ResolverTool},
	}, met, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := srv.Rescan(ctx); err != nil {
		log.Error("initial scan failed", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           origin.NewRouter(srv, origin.RouterConfig{Log: log, Metrics: met}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree("origin", log, supervisor.TreeConfig{ShutdownTimeout: cfg.ShutdownTimeout})
	tree.AddLinkService(srv.Watcher(cfg.RescanDebounce))
	tree.AddLinkService(srv.Acquirer())
	tree.AddAPIService(supervisor.NewHTTPService("origin http", httpSrv, cfg.ShutdownTimeout))

	log.Info("origin starting",
		"name", cfg.Name,
		"addr", cfg.Addr,
		"public_url", cfg.PublicURL,
		"items", len(srv.Library().Items()),
		"password", cfg.Password != "",
	)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("origin stopped", "error", err)
		os.Exit(1)
	}
	log.Info("origin stopped")
}
