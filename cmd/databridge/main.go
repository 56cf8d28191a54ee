// Command databridge runs one end-to-end import pass: acquisition
// then ingestion, against the object stores and document store named
// in the configuration file. Grounded on the teacher's cmd/main.go
// plain-flag entry point shape, generalized from "start the capture
// service" to "run one bridge import".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nrms/data-bridge/internal/acquisition"
	"github.com/nrms/data-bridge/internal/applog"
	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/config"
	"github.com/nrms/data-bridge/internal/crypto"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/lineage"
	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/internal/orchestrator"
	"github.com/nrms/data-bridge/internal/reporting"
	"github.com/nrms/data-bridge/internal/telemetry"
)

func main() {
	var configFile string
	var importID string
	var lookbackDays int

	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.StringVar(&importID, "import-id", "", "Identifier for this import run (defaults to a timestamp)")
	flag.IntVar(&lookbackDays, "days", 0, "Override the configured catalogue lookback window in days")
	flag.Parse()

	if configFile == "" {
		if v := os.Getenv("DATABRIDGE_CONFIG_FILE"); v != "" {
			configFile = v
		} else {
			configFile = "/etc/databridge/config.yaml"
		}
	}

	if err := run(configFile, importID, lookbackDays); err != nil {
		fmt.Fprintf(os.Stderr, "databridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, importID string, lookbackDaysOverride int) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lookbackDaysOverride > 0 {
		cfg.App.LookbackDays = lookbackDaysOverride
	}

	logger := applog.New(applog.Config{Level: cfg.App.LogLevel, Format: cfg.App.LogFormat})

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		ServiceName:  cfg.App.Name,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to shut down tracer provider")
		}
	}()

	storeFactory := objectstore.NewFactory(cfg.ObjectStore)

	externalStore, err := storeFactory.ReadOnlyStore(ctx, objectstore.External)
	if err != nil {
		return fmt.Errorf("resolving external store: %w", err)
	}

	internalStore, err := storeFactory.Store(ctx, objectstore.Internal)
	if err != nil {
		return fmt.Errorf("resolving internal store: %w", err)
	}

	registry, err := catalogue.NewRegistry(cfg.Definitions())
	if err != nil {
		return fmt.Errorf("loading dataset registry: %w", err)
	}

	db, err := docstore.NewMongoDatabase(ctx, cfg.DocStore.URI, cfg.DocStore.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting document store: %w", err)
	}

	credentials := crypto.NewEnvCredentialsProvider(cfg.Crypto.Salt, cfg.Crypto.PasswordEnvVar)

	reports := reporting.New(db)
	lineageStore := lineage.New(db)
	if err := lineageStore.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("failed to ensure lineage indexes")
	}

	externalCatalogue := catalogue.New(registry, externalStore)
	acquisitionPipeline := acquisition.New(externalCatalogue, externalStore, internalStore, credentials, reports, logger)

	orch := orchestrator.New(reports, acquisitionPipeline, registry, internalStore, db, lineageStore, logger, cfg.Delimiter())

	if importID == "" {
		importID = fmt.Sprintf("import-%s", time.Now().UTC().Format("20060102150405"))
	}

	logger.WithField("import_id", importID).Info("starting import")

	if err := orch.Start(ctx, importID, string(objectstore.External)); err != nil {
		return fmt.Errorf("import %s failed: %w", importID, err)
	}

	logger.WithField("import_id", importID).Info("import completed")

	return nil
}
