package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamscao/licenseserver/internal/api"
	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/logging"
	"github.com/adamscao/licenseserver/internal/metrics"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("License Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "license server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.Logging)
	logger.Info("starting license server", "version", Version, "commit", Commit, "config", configPath)

	// Initialize database and run migrations
	logger.Info("opening database", "path", cfg.Database.Path)
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	m := metrics.New()

	// Initialize repositories
	service := license.NewService(license.Dependencies{
		Keys:              repository.NewLicenseRepository(database.DB),
		Devices:           repository.NewDeviceRepository(database.DB),
		Audit:             repository.NewAuditRepository(database.DB),
		Logger:            logger,
		Metrics:           m,
		StrictTransitions: cfg.Lifecycle.StrictTransitions,
	})

	sessions, err := auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.Issuer, cfg.GetLicenseTTL(), cfg.GetAdminTTL())
	if err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(repository.NewAdminRepository(database.DB), sessions, service, logger)

	server, err := api.NewServer(api.Dependencies{
		Config:        cfg,
		Service:       service,
		Sessions:      sessions,
		Authenticator: authenticator,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
