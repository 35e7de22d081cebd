package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iconidentify/aliaff/internal/api"
	"github.com/iconidentify/aliaff/internal/api/handler"
	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/preview"
	"github.com/iconidentify/aliaff/internal/promo"
	"github.com/iconidentify/aliaff/internal/publisher"
	"github.com/iconidentify/aliaff/internal/repository"
	"github.com/iconidentify/aliaff/internal/resolver"
	"github.com/iconidentify/aliaff/internal/scheduler"
	"github.com/iconidentify/aliaff/internal/service"
	"github.com/iconidentify/aliaff/pkg/aliexpress"
	"github.com/iconidentify/aliaff/pkg/assistant"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aliaff %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aliaff",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Affiliate pipeline
	aeClient := aliexpress.NewClient(cfg.AliExpress, logger)
	if !cfg.AliExpress.HasSigningSecret() {
		logger.Warn("aliexpress app key/secret not set, previews fall back to public sources")
	}
	affiliateSvc := service.NewAffiliateService(
		resolver.New(cfg.Resolver, logger),
		preview.New(cfg.Preview, aeClient, logger),
		promo.New(cfg.Promo, logger),
		cfg.Promo.DefaultCookie,
		logger,
	)

	// Telegram delivery
	var sender publisher.Sender
	switch cfg.Telegram.Transport {
	case "mtproto":
		if err := os.MkdirAll(cfg.Telegram.SessionDir, 0700); err != nil {
			logger.Error("failed to create session directory", "error", err)
			os.Exit(1)
		}
		sender = publisher.NewMTProtoSender(cfg.Telegram, logger)
	default:
		sender = publisher.NewBotAPISender(cfg.Telegram, logger)
	}
	pub := publisher.New(sender, logger)
	fallback := publisher.FallbackCredentials(cfg.Telegram)
	publishSvc := service.NewPublishService(pub, fallback, cfg.Message, logger)

	// Deferred publishing
	sched, err := scheduler.New(
		cfg.Scheduler,
		filepath.Join(cfg.Storage.DataDir, cfg.Storage.ScheduledFile),
		pub,
		fallback,
		logger,
	)
	if err != nil {
		logger.Error("failed to load scheduled posts", "error", err)
		os.Exit(1)
	}

	// Saved posts are optional; the API runs without them.
	var (
		savedPostHandler *handler.SavedPostHandler
		storePinger      handler.Pinger
	)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 15*time.Second)
	savedRepo, err := repository.NewSavedPostRepository(initCtx, savedPostsDSN(cfg.Storage), cfg.Storage.SavedPostLimit)
	cancelInit()
	if err != nil {
		logger.Warn("saved posts disabled", "error", err)
	} else {
		defer savedRepo.Close()
		savedPostHandler = handler.NewSavedPostHandler(savedRepo, logger)
		storePinger = savedRepo
	}

	// Text assistant
	rewriter := assistant.NewRewriter(
		assistant.NewKeyPool(cfg.Assistant.Keys()),
		assistant.NewGeminiClient(cfg.Assistant, logger),
		logger,
	)
	if st := rewriter.Status(); !st.Available {
		logger.Warn("no assistant keys configured, using fallback text")
	}

	// Setup router
	router := api.NewRouter(
		handler.NewHealthHandler(sched, storePinger, cfg.Storage.DataDir),
		handler.NewAffiliateHandler(affiliateSvc, logger),
		handler.NewPublishHandler(publishSvc, logger),
		handler.NewScheduleHandler(sched, logger),
		handler.NewAssistantHandler(rewriter, logger),
		savedPostHandler,
		cfg.Server.APIKey,
	)

	// Start scheduler
	schedCtx, cancelSched := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(schedCtx)
	}()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Let an in-flight pass record its outcome
	cancelSched()
	select {
	case <-schedDone:
	case <-ctx.Done():
		logger.Warn("scheduler did not stop in time")
	}

	logger.Info("shutdown complete")
}

// savedPostsDSN places a bare sqlite file name inside the data directory.
func savedPostsDSN(cfg config.StorageConfig) string {
	dsn := cfg.SavedPostsDSN
	if strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) {
		return dsn
	}
	return filepath.Join(cfg.DataDir, dsn)
}
