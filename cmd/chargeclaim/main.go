package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/avandenberg/chargeclaim/internal/cli"
	"github.com/avandenberg/chargeclaim/internal/config"
	"github.com/avandenberg/chargeclaim/internal/db"
	"github.com/avandenberg/chargeclaim/internal/invoice"
	"github.com/avandenberg/chargeclaim/internal/ledger"
	"github.com/avandenberg/chargeclaim/internal/portal"
	"github.com/avandenberg/chargeclaim/internal/telematics"
	"github.com/charmbracelet/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}
	defer database.Close()

	tokens := telematics.NewRefreshTokenSource(cfg.AuthURL, cfg.ClientID, cfg.RefreshToken)
	source := telematics.NewClient(telematics.Config{
		BaseURL:        cfg.TelematicsURL,
		InvoiceURL:     cfg.InvoiceURL,
		DeviceCountry:  cfg.DeviceCountry,
		DeviceLanguage: cfg.DeviceLanguage,
		Locale:         cfg.Locale,
	}, tokens, logger)

	app := &cli.App{
		Source:    source,
		Documents: source,
		Extractor: invoice.NewExtractor(logger),
		Portal: portal.NewClient(portal.Config{
			BaseURL:        cfg.PortalURL,
			Username:       cfg.PortalUsername,
			Password:       cfg.PortalPassword,
			LookbackMonths: cfg.LookbackMonths,
		}, logger),
		Ledger: ledger.NewSQLiteLedger(database),
		Config: cfg,
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
