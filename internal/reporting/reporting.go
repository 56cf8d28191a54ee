// Package reporting tracks one ImportReport per orchestrator run plus
// one ImportFileRecord per file, grounded on the teacher's
// pkg/task_manager task-status-transition pattern (mutate an in-memory
// struct, persist the whole thing on every transition) generalized
// from a single task's lifecycle to a two-phase import's lifecycle.
package reporting

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/docstore"
)

const (
	reportsCollection = "import_reports"
	filesCollection   = "import_files"
)

// Status is shared by ImportReport, AcquisitionPhase and
// IngestionPhase.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusStarted    Status = "Started"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// FileRecordStatus is the lifecycle of one ImportFileRecord.
type FileRecordStatus string

const (
	FileAcquired FileRecordStatus = "Acquired"
	FileIngested FileRecordStatus = "Ingested"
	FileFailed   FileRecordStatus = "Failed"
)

// CurrentFileStatus is the live progress snapshot for the file the
// ingestion pipeline is currently processing.
type CurrentFileStatus struct {
	FileName               string
	TotalRowsEstimate      int64
	RowNumber              int64
	PercentageCompleted    int
	RowsPerMinute          float64
	EstimatedTimeRemaining time.Duration
	EstimatedCompletion    time.Time
}

// AcquisitionPhase tracks C4's counters.
type AcquisitionPhase struct {
	Status          Status
	FilesDiscovered int
	FilesProcessed  int
	FilesSkipped    int
	FilesFailed     int
	StartedAt       time.Time
	CompletedAt     time.Time
}

// IngestionPhase tracks C5's counters.
type IngestionPhase struct {
	Status            Status
	FilesProcessed    int
	RecordsCreated    int
	RecordsUpdated    int
	RecordsDeleted    int
	CurrentFileStatus *CurrentFileStatus
	StartedAt         time.Time
	CompletedAt       time.Time
}

// ImportReport is the single per-run document reporting mutates.
type ImportReport struct {
	ImportID    string
	SourceType  string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Acquisition AcquisitionPhase
	Ingestion   IngestionPhase
}

// ImportFileRecord is one (import, file) outcome record.
type ImportFileRecord struct {
	ImportID    string
	FileKey     string
	DatasetName string
	ETag        string
	FileSize    int64
	Status      FileRecordStatus
	Error       string

	DecryptionDurationMS int64

	RecordsProcessed   int
	RecordsCreated     int
	RecordsUpdated     int
	RecordsDeleted     int
	DownloadDurationMS int64
	ParseDurationMS    int64
}

// Store persists ImportReport and ImportFileRecord documents.
type Store struct {
	db docstore.Database
}

// New builds a reporting Store over db.
func New(db docstore.Database) *Store {
	return &Store{db: db}
}

// StartImport inserts a fresh report with both phases NotStarted.
func (s *Store) StartImport(ctx context.Context, importID, sourceType string, now time.Time) (*ImportReport, error) {
	report := &ImportReport{
		ImportID:    importID,
		SourceType:  sourceType,
		Status:      StatusStarted,
		StartedAt:   now,
		Acquisition: AcquisitionPhase{Status: StatusNotStarted},
		Ingestion:   IngestionPhase{Status: StatusNotStarted},
	}

	return report, s.Persist(ctx, report)
}

// Persist upserts the whole report document, preserving the
// "callers mutate in-memory, the service persists" contract.
func (s *Store) Persist(ctx context.Context, report *ImportReport) error {
	return s.db.Collection(reportsCollection).UpsertOne(ctx,
		bson.M{"_id": report.ImportID},
		bson.M{"$set": reportToDoc(report)},
	)
}

// RecordFile upserts one ImportFileRecord, keyed by (import_id, file_key).
func (s *Store) RecordFile(ctx context.Context, rec *ImportFileRecord) error {
	id := rec.ImportID + "__" + rec.FileKey

	return s.db.Collection(filesCollection).UpsertOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": fileRecordToDoc(rec)},
	)
}

// IsFileProcessed reports whether a file record already exists for
// fileKey/etag in status Acquired or Ingested — a defence-in-depth
// idempotency check; the object-store target-metadata compare in
// acquisition is the authoritative one.
func (s *Store) IsFileProcessed(ctx context.Context, fileKey, etag string) (bool, error) {
	docs, err := s.db.Collection(filesCollection).Find(ctx, bson.M{
		"file_key": fileKey,
		"etag":     etag,
	}, docstore.FindOptions{})
	if err != nil {
		return false, err
	}

	for _, doc := range docs {
		status, _ := doc["status"].(string)
		if status == string(FileAcquired) || status == string(FileIngested) {
			return true, nil
		}
	}

	return false, nil
}

// Summary is one row of GetImportSummaries' page.
type Summary struct {
	ImportID  string
	Status    Status
	StartedAt time.Time
}

// GetImportSummaries returns a descending-by-started_at page of
// reports.
func (s *Store) GetImportSummaries(ctx context.Context, skip, top int64) ([]Summary, error) {
	docs, err := s.db.Collection(reportsCollection).Find(ctx, bson.M{}, docstore.FindOptions{
		Sort:  []docstore.SortSpec{{Field: "started_at", Ascending: false}},
		Skip:  skip,
		Limit: top,
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(docs))
	for _, doc := range docs {
		importID, _ := doc["_id"].(string)
		status, _ := doc["status"].(string)
		startedAt, _ := doc["started_at"].(time.Time)

		summaries = append(summaries, Summary{ImportID: importID, Status: Status(status), StartedAt: startedAt})
	}

	return summaries, nil
}

func reportToDoc(r *ImportReport) bson.M {
	doc := bson.M{
		"_id":          r.ImportID,
		"source_type":  r.SourceType,
		"status":       string(r.Status),
		"started_at":   r.StartedAt,
		"completed_at": r.CompletedAt,
		"error":        r.Error,
		"acquisition": bson.M{
			"status":           string(r.Acquisition.Status),
			"files_discovered": r.Acquisition.FilesDiscovered,
			"files_processed":  r.Acquisition.FilesProcessed,
			"files_skipped":    r.Acquisition.FilesSkipped,
			"files_failed":     r.Acquisition.FilesFailed,
			"started_at":       r.Acquisition.StartedAt,
			"completed_at":     r.Acquisition.CompletedAt,
		},
		"ingestion": bson.M{
			"status":          string(r.Ingestion.Status),
			"files_processed": r.Ingestion.FilesProcessed,
			"records_created": r.Ingestion.RecordsCreated,
			"records_updated": r.Ingestion.RecordsUpdated,
			"records_deleted": r.Ingestion.RecordsDeleted,
			"started_at":      r.Ingestion.StartedAt,
			"completed_at":    r.Ingestion.CompletedAt,
		},
	}

	if cf := r.Ingestion.CurrentFileStatus; cf != nil {
		doc["ingestion"].(bson.M)["current_file_status"] = bson.M{
			"file_name":                cf.FileName,
			"total_rows_estimate":      cf.TotalRowsEstimate,
			"row_number":               cf.RowNumber,
			"percentage_completed":     cf.PercentageCompleted,
			"rows_per_minute":          cf.RowsPerMinute,
			"estimated_time_remaining": cf.EstimatedTimeRemaining.String(),
			"estimated_completion":     cf.EstimatedCompletion,
		}
	}

	return doc
}

func fileRecordToDoc(rec *ImportFileRecord) bson.M {
	return bson.M{
		"_id":                    rec.ImportID + "__" + rec.FileKey,
		"import_id":              rec.ImportID,
		"file_key":               rec.FileKey,
		"dataset_name":           rec.DatasetName,
		"etag":                   rec.ETag,
		"file_size":              rec.FileSize,
		"status":                 string(rec.Status),
		"error":                  rec.Error,
		"decryption_duration_ms": rec.DecryptionDurationMS,
		"records_processed":      rec.RecordsProcessed,
		"records_created":        rec.RecordsCreated,
		"records_updated":        rec.RecordsUpdated,
		"records_deleted":        rec.RecordsDeleted,
		"download_duration_ms":   rec.DownloadDurationMS,
		"parse_duration_ms":      rec.ParseDurationMS,
	}
}
