package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/feed-refresh/app/api"
	"github.com/lysyi3m/feed-refresh/app/cfg"
	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/feed"
	"github.com/lysyi3m/feed-refresh/app/fetcher"
	"github.com/lysyi3m/feed-refresh/app/metrics"
	"github.com/lysyi3m/feed-refresh/app/pubsub"
	"github.com/lysyi3m/feed-refresh/app/refresh"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	config, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if config == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting feed refresh engine", "version", config.Version)

	db, err := database.NewConnection(config.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", config.DBPath, "error", err)
		os.Exit(1)
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		os.Exit(1)
	}
	slog.Info("Database ready", "path", config.DBPath, "schema_version", version, "dirty", dirty)

	feedRepo := database.NewFeedRepository(db, config.RefreshInterval)
	entryRepo := database.NewEntryRepository(db)
	statusRepo := database.NewStatusRepository(db)
	subRepo := database.NewSubscriptionRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Left as a nil interface when WebSub is off so callers can skip renewal
	var renewer refresh.Renewer
	var webSub *pubsub.Renewer
	if config.PubSubHubbub {
		client := pubsub.NewClient(feedRepo, config.PublicURL, config.UserAgent)
		webSub = pubsub.NewRenewer(client, m)
		renewer = webSub
	}

	service := refresh.NewUpdateService(entryRepo, statusRepo, subRepo, feed.NewSanitizer(), m)
	giver := refresh.NewTaskGiver(feedRepo, m, renewer, config.BackgroundThreads, config.HeavyLoad)
	updater := refresh.NewUpdater(service, giver, renewer, m, refresh.UpdaterOptions{
		Threads:     config.DatabaseUpdateThreads,
		Stripes:     config.LockStripes,
		LockTimeout: config.LockTimeout,
	})
	worker := refresh.NewWorker(giver, updater, fetcher.New(config.UserAgent), feed.NewParser(), m, config.BackgroundThreads)

	seeded, err := feed.NewSeeder(config.SeedFile, feedRepo, subRepo).Run(context.Background(), giver)
	if err != nil {
		slog.Error("Failed to seed feeds", "path", config.SeedFile, "error", err)
		db.Close()
		os.Exit(1)
	}
	if seeded > 0 {
		slog.Info("Seeded feeds", "count", seeded, "path", config.SeedFile)
	}

	if webSub != nil {
		webSub.Start()
	}
	updater.Start()
	worker.Start()

	handler := api.NewHandler(feedRepo, entryRepo, giver, updater, prometheus.DefaultGatherer, config.Version)
	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      api.NewServer(handler, config.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port,
			"background_threads", config.BackgroundThreads,
			"update_threads", config.DatabaseUpdateThreads,
			"websub", config.PubSubHubbub)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	worker.Stop()
	slog.Info("Refresh workers stopped")

	updater.Stop()
	slog.Info("Update pipeline stopped", "dropped", updater.QueueSize())

	if webSub != nil {
		webSub.Stop()
		slog.Info("WebSub renewer stopped")
	}

	if err := db.Close(); err != nil {
		slog.Error("Database close error", "error", err)
	}

	slog.Info("Shutdown complete")
}
