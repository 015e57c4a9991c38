package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/github-repo-inventory/internal/api"
	"github.com/kurihiro0119/github-repo-inventory/internal/config"
	"github.com/kurihiro0119/github-repo-inventory/internal/logging"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage/postgres"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage/sqlite"
)

func main() {
	cfgFile := flag.String("config", "", "config file, .env or .toml (default is .env)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger := logging.New(os.Stderr, *verbose)

	// Load configuration
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}
	if err := cfg.ValidateStorage(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Fatal("Failed to initialize PostgreSQL storage", "err", err)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to initialize SQLite storage", "err", err)
		}
	}
	defer store.Close()

	if !*verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(store)
	router := api.SetupRoutes(handler, logger)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting API server", "addr", addr, "storage", cfg.StorageType)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
