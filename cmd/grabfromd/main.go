package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grabfrom/core/internal/api"
	"github.com/grabfrom/core/internal/cache"
	"github.com/grabfrom/core/internal/config"
	"github.com/grabfrom/core/internal/fetch"
	"github.com/grabfrom/core/internal/health"
	"github.com/grabfrom/core/internal/history"
	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/manager"
	"github.com/grabfrom/core/internal/notify"
	"github.com/grabfrom/core/internal/resolver"
	"github.com/grabfrom/core/internal/snapshot"
)

// version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

// installTimeout bounds the one-time yt-dlp provisioning on first start.
const installTimeout = 2 * time.Minute

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s\n", api.AppName, version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "grabfromd: %v\n", err)
		os.Exit(1)
	}

	logger.SetDefault(logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), ""))
	log := logger.Default().WithComponent("main")
	ctx := context.Background()

	if err := cfg.EnsureDirs(); err != nil {
		log.Error(ctx, "failed to create directories", err)
		os.Exit(1)
	}

	if cfg.YtdlpPath != "" {
		// A user-supplied binary takes precedence over the managed install.
		os.Setenv("PATH", filepath.Dir(cfg.YtdlpPath)+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	installCtx, cancelInstall := context.WithTimeout(ctx, installTimeout)
	err = fetch.EnsureInstalled(installCtx)
	cancelInstall()
	if err != nil {
		log.Error(ctx, "yt-dlp unavailable", err)
		os.Exit(1)
	}

	hist, err := history.Open(cfg.HistoryDBPath(), history.Options{
		MaxRows: cfg.HistoryMaxRows,
		MaxAge:  time.Duration(cfg.HistoryMaxDays) * 24 * time.Hour,
	})
	if err != nil {
		log.Error(ctx, "failed to open history store", err)
		os.Exit(1)
	}

	hub := notify.NewHub()
	hubCtx, stopHub := context.WithCancel(ctx)
	go hub.Run(hubCtx)

	engine := fetch.NewYTDLPEngine(cfg.FfmpegPath)
	mgr := manager.New(manager.Config{
		DownloadDir:      cfg.DownloadDir,
		MaxConcurrent:    cfg.MaxConcurrentDL,
		NotifyInterval:   time.Duration(cfg.NotifyIntervalMs) * time.Millisecond,
		SnapshotInterval: time.Duration(cfg.SnapshotInterval) * time.Second,
	}, engine, hist, snapshot.NewStore(cfg.SnapshotPath()), hub)
	mgr.Start()

	resolveCache := cache.New(0)
	checker := health.NewChecker(&health.CheckerConfig{
		DB:          hist.DB(),
		DownloadDir: cfg.DownloadDir,
		FfmpegPath:  cfg.FfmpegPath,
		EngineCheck: fetch.EnsureInstalled,
		Version:     version,
	})

	router := api.NewRouter(
		api.Config{
			Version:        version,
			DownloadDir:    cfg.DownloadDir,
			AllowedOrigins: cfg.AllowedOrigins,
		},
		api.NewTaskHandlers(mgr),
		api.NewResolveHandlers(resolver.New(engine, time.Duration(cfg.ResolveTimeout)*time.Second), resolveCache),
		api.NewHistoryHandlers(hist),
		health.NewHandler(checker),
		notify.NewHandler(hub, cfg.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(ctx, "shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "http shutdown incomplete", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	log.Info(ctx, "daemon listening", map[string]interface{}{
		"addr":           cfg.ListenAddr,
		"version":        version,
		"download_dir":   cfg.DownloadDir,
		"max_concurrent": cfg.MaxConcurrentDL,
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "server failed", err)
		os.Exit(1)
	}

	// HTTP is drained; interrupt active downloads so their resume markers
	// land in the final snapshot, then release everything else.
	stopCtx, cancelStop := context.WithTimeout(ctx, 15*time.Second)
	if err := mgr.Stop(stopCtx); err != nil {
		log.Warn(ctx, "task manager stop incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
	cancelStop()
	stopHub()
	resolveCache.Close()
	hist.Close()

	log.Info(ctx, "daemon stopped")
}
