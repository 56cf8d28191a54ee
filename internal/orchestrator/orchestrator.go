// Package orchestrator runs one reported import: acquisition then
// ingestion, flipping the report to Completed or Failed. Grounded on
// the teacher's internal/app.Application top-level run-loop shape
// (start, run phases, report final status), narrowed from a
// long-lived service loop to one bounded two-phase run.
package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/ingestion"
	"github.com/nrms/data-bridge/internal/lineage"
	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/internal/reporting"
	"github.com/nrms/data-bridge/internal/telemetry"
	"github.com/nrms/data-bridge/pkg/apperr"
)

// AcquisitionRunner is the capability orchestrator needs from the
// acquisition pipeline; narrowed so tests can substitute a fake.
type AcquisitionRunner interface {
	Run(ctx context.Context, report *reporting.ImportReport, now time.Time) error
}

// Orchestrator sequences one import's phases.
type Orchestrator struct {
	reports     *reporting.Store
	acquisition AcquisitionRunner
	registry    *catalogue.Registry
	internal    objectstore.ReadOnlyStore
	db          docstore.Database
	lineage     *lineage.Store
	logger      *logrus.Logger
	delimiter   rune
}

// New builds an Orchestrator. delimiter is the CSV field delimiter
// ingestion should parse with (pipe in production, comma in tests).
func New(
	reports *reporting.Store,
	acquisitionRunner AcquisitionRunner,
	registry *catalogue.Registry,
	internalStore objectstore.ReadOnlyStore,
	db docstore.Database,
	lineageStore *lineage.Store,
	logger *logrus.Logger,
	delimiter rune,
) *Orchestrator {
	return &Orchestrator{
		reports:     reports,
		acquisition: acquisitionRunner,
		registry:    registry,
		internal:    internalStore,
		db:          db,
		lineage:     lineageStore,
		logger:      logger,
		delimiter:   delimiter,
	}
}

const ingestionLookbackDays = 100

// Start runs start_import -> acquisition -> ingestion for importID.
// On success the report is flipped to Completed; on any error it is
// flipped to Failed with the error message captured, persisted, and
// the error is re-raised. No retries, no partial-success recovery.
func (o *Orchestrator) Start(ctx context.Context, importID, sourceType string) error {
	now := time.Now()
	timer := time.Now()

	report, err := o.reports.StartImport(ctx, importID, sourceType, now)
	if err != nil {
		return apperr.Wrap(apperr.KindReporting, "orchestrator", "Start", "starting import report", err)
	}

	if err := o.runPhases(ctx, report, now); err != nil {
		report.Status = reporting.StatusFailed
		report.Error = err.Error()
		report.CompletedAt = time.Now()

		if persistErr := o.reports.Persist(ctx, report); persistErr != nil && o.logger != nil {
			o.logger.WithError(persistErr).Error("failed to persist failed import report")
		}

		telemetry.ImportDuration.WithLabelValues("failed").Observe(time.Since(timer).Seconds())

		return err
	}

	report.Status = reporting.StatusCompleted
	report.CompletedAt = time.Now()

	if err := o.reports.Persist(ctx, report); err != nil {
		return apperr.Wrap(apperr.KindReporting, "orchestrator", "Start", "persisting completed report", err)
	}

	telemetry.ImportDuration.WithLabelValues("completed").Observe(time.Since(timer).Seconds())

	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, report *reporting.ImportReport, now time.Time) error {
	if err := o.acquisition.Run(ctx, report, now); err != nil {
		return err
	}
	if err := o.reports.Persist(ctx, report); err != nil {
		return apperr.Wrap(apperr.KindReporting, "orchestrator", "runPhases", "persisting acquisition phase", err)
	}

	return o.runIngestion(ctx, report, now)
}

func (o *Orchestrator) runIngestion(ctx context.Context, report *reporting.ImportReport, now time.Time) error {
	cat := catalogue.New(o.registry, o.internal)

	fileSets, err := cat.DiscoverLookback(ctx, ingestionLookbackDays, now)
	if err != nil {
		return apperr.Wrap(apperr.KindCatalogue, "orchestrator", "runIngestion", "re-enumerating internal file sets", err)
	}

	report.Ingestion.Status = reporting.StatusStarted
	report.Ingestion.StartedAt = now

	pipeline := ingestion.NewPipeline(o.internal, o.db, o.lineage, o.logger, o.delimiter)

	for _, set := range fileSets {
		for _, file := range set.Files {
			outcome, err := pipeline.IngestFile(ctx, set.Dataset, file, report.ImportID, func(status reporting.CurrentFileStatus) {
				report.Ingestion.CurrentFileStatus = &status
				telemetry.IngestionRowsPerMinute.Set(status.RowsPerMinute)
			})
			if err != nil {
				_ = o.reports.RecordFile(ctx, &reporting.ImportFileRecord{
					ImportID:    report.ImportID,
					FileKey:     file.Key,
					DatasetName: set.Dataset.Name,
					Status:      reporting.FileFailed,
					Error:       err.Error(),
				})

				return apperr.Wrap(apperr.KindStorage, "orchestrator", "runIngestion", "ingesting "+file.Key, err)
			}

			report.Ingestion.FilesProcessed++
			report.Ingestion.RecordsCreated += outcome.RecordsCreated
			report.Ingestion.RecordsUpdated += outcome.RecordsUpdated
			report.Ingestion.RecordsDeleted += outcome.RecordsDeleted

			_ = o.reports.RecordFile(ctx, &reporting.ImportFileRecord{
				ImportID:           report.ImportID,
				FileKey:            file.Key,
				DatasetName:        set.Dataset.Name,
				Status:             reporting.FileIngested,
				RecordsProcessed:   outcome.RecordsProcessed,
				RecordsCreated:     outcome.RecordsCreated,
				RecordsUpdated:     outcome.RecordsUpdated,
				RecordsDeleted:     outcome.RecordsDeleted,
				DownloadDurationMS: outcome.DownloadDurationMS,
				ParseDurationMS:    outcome.ParseDurationMS,
			})
		}
	}

	report.Ingestion.Status = reporting.StatusCompleted
	report.Ingestion.CompletedAt = time.Now()

	return nil
}
