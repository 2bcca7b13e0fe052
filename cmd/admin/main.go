package main

import (
	"fmt"
	"os"

	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// cliAddress is recorded as the audit IP of actions taken from this tool
const cliAddress = "cli"

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var (
	headerFmt = color.New(color.FgCyan, color.Bold).SprintFunc()
	okFmt     = color.New(color.FgGreen).SprintFunc()
	warnFmt   = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt    = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "License server administration tool",
	Long:          "Administrative tool for managing license keys, devices, admin accounts and audit logs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file path")

	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// newService opens the database and builds the license service over it.
// Log output is kept off stdout so command output stays readable.
func newService() (*license.Service, error) {
	if err := initDB(); err != nil {
		return nil, err
	}

	logger := logging.NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, os.Stderr)

	return license.NewService(license.Dependencies{
		Keys:              repository.NewLicenseRepository(database.DB),
		Devices:           repository.NewDeviceRepository(database.DB),
		Audit:             repository.NewAuditRepository(database.DB),
		Logger:            logger,
		StrictTransitions: cfg.Lifecycle.StrictTransitions,
	}), nil
}

func closeDB() {
	if database != nil {
		database.Close()
	}
}
