// Package main provides the main entry point for AdminKit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adminkit/adminkit/api"
	"github.com/adminkit/adminkit/pkg/cache"
	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/identity"
	"github.com/adminkit/adminkit/pkg/logger"
	"github.com/adminkit/adminkit/pkg/metrics"
	"github.com/adminkit/adminkit/pkg/permissions"
	"github.com/adminkit/adminkit/pkg/ratelimit"
)

// Version information (set by build process)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("AdminKit %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

// run builds the dependency graph explicitly and serves until the
// context is cancelled. No package-level singletons: everything the
// server needs is constructed here and passed down.
func run(ctx context.Context) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.NewConsoleLogger(cfg.LogLevel)
	appLogger.Info("Starting AdminKit", map[string]interface{}{
		"version":       Version,
		"cache_backend": cfg.Cache.Backend.String(),
	})

	backend, err := cache.New(&cfg.Cache, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			appLogger.Error("failed to close cache", err)
		}
	}()

	repo, err := identity.NewRepository(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error("failed to close repository", err)
		}
	}()

	perms := permissions.NewService(repo, backend, cfg.Permissions.CacheTTL(), appLogger)
	limiter := ratelimit.NewService(backend, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window(), appLogger)
	manager := identity.NewManager(repo, perms, appLogger)
	auth := identity.NewAuthService(&cfg.Auth, repo)

	server := api.NewServer(cfg, api.Deps{
		Cache:       backend,
		Permissions: perms,
		Limiter:     limiter,
		Repository:  repo,
		Manager:     manager,
		Auth:        auth,
		Metrics:     metrics.NewInMemoryMetrics(),
	}, appLogger)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	appLogger.Info("Shutdown complete", nil)
	return nil
}
