package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/reporting"
)

func TestStartImportAndPersistTransitions(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	store := reporting.New(db)
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)

	report, err := store.StartImport(ctx, "import-1", "external", now)
	require.NoError(t, err)
	require.Equal(t, reporting.StatusStarted, report.Status)
	require.Equal(t, reporting.StatusNotStarted, report.Acquisition.Status)

	report.Acquisition.Status = reporting.StatusCompleted
	report.Acquisition.FilesDiscovered = 10
	report.Acquisition.FilesProcessed = 7
	report.Acquisition.FilesSkipped = 3
	require.NoError(t, store.Persist(ctx, report))

	docs := db.Docs("import_reports")
	doc := docs["import-1"]
	require.Equal(t, "Completed", doc["acquisition"].(bson.M)["status"])
}

func TestIsFileProcessedRequiresAcquiredOrIngestedStatus(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	store := reporting.New(db)
	ctx := context.Background()

	processed, err := store.IsFileProcessed(ctx, "exports/farms/FARM_1.csv", "etag-1")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, store.RecordFile(ctx, &reporting.ImportFileRecord{
		ImportID: "import-1",
		FileKey:  "exports/farms/FARM_1.csv",
		ETag:     "etag-1",
		Status:   reporting.FileAcquired,
	}))

	processed, err = store.IsFileProcessed(ctx, "exports/farms/FARM_1.csv", "etag-1")
	require.NoError(t, err)
	require.True(t, processed)
}
