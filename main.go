package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hookfeed/internal"
	"hookfeed/pkg/api"
	"hookfeed/pkg/storage"
	"hookfeed/pkg/storage/gormstore"
	"hookfeed/pkg/storage/mongostore"
	"hookfeed/pkg/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "", "Path to config file")
	envPath := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := run(logger, *configPath, *envPath); err != nil {
		logger.Fatal(err)
	}
}

// run serves until a shutdown signal or a listener failure. Every resource it
// opens is released before it returns.
func run(logger *log.Logger, configPath, envPath string) error {
	if err := internal.LoadDotEnv(envPath); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(config.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("close store: %v", err)
		}
	}()
	logger.Printf("event store driver=%s", config.Storage.Driver)

	opts := webhook.Options{
		EventHeader: config.Webhook.EventHeader,
		MaxBody:     config.Server.MaxBodyBytes,
		DebugEvents: config.Server.DebugEvents,
		Logger:      internal.NewLogger("webhook"),
	}
	if config.Notify.Enabled {
		notifier, err := internal.NewNotifier(config.Notify, internal.NewLogger("notify"))
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		defer notifier.Close()
		opts.Notifier = notifier
		opts.NotifyTimeout = config.Notify.Timeout()
		logger.Printf("notifications enabled topic=%s rules=%d", config.Notify.Topic, len(config.Notify.Rules))
	}

	apiLogger := internal.NewLogger("api")
	mux := http.NewServeMux()
	ingest := webhook.NewGitHubHandler(store, opts)
	mux.Handle(config.Webhook.Path, internal.NewRateLimitHandler(
		ingest,
		config.Server.RateLimitRPS,
		config.Server.RateLimitBurst,
		10*time.Minute,
	))
	logger.Printf("github webhook enabled on %s", config.Webhook.Path)
	mux.Handle(config.API.EventsPath, &api.EventsHandler{
		Store:  store,
		Limit:  config.API.ListLimit,
		Logger: apiLogger,
	})
	mux.Handle("/", &api.IndexHandler{EventsPath: config.API.EventsPath, Logger: apiLogger})
	mux.Handle("/healthz", api.HealthHandler())
	mux.Handle("/readyz", &api.ReadyHandler{Store: store, Timeout: 2 * time.Second, Logger: apiLogger})
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, internal.MetricsHandler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
		ErrorLog:          logger,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-shutdown:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		return nil
	}
}

func openStore(cfg internal.StorageConfig) (storage.EventStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "mongodb", "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout())
		defer cancel()
		return mongostore.Open(ctx, mongostore.Config{
			URI:            cfg.DSN,
			Database:       cfg.Database,
			Collection:     cfg.Collection,
			ConnectTimeout: cfg.ConnectTimeout(),
			AutoMigrate:    cfg.AutoMigrate,
		})
	default:
		return gormstore.Open(gormstore.Config{
			Driver:      cfg.Driver,
			DSN:         cfg.DSN,
			Table:       cfg.Collection,
			AutoMigrate: cfg.AutoMigrate,
		})
	}
}
