package ingestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/ingestion"
	"github.com/nrms/data-bridge/internal/lineage"
	"github.com/nrms/data-bridge/internal/objectstore"
)

func farmsDefinition() catalogue.DatasetDefinition {
	return catalogue.DatasetDefinition{
		Name:              "farms",
		FilePrefixFormat:  "exports/farms/FARM_{date}",
		DatePattern:       "20060102",
		DatetimePattern:   "20060102150405",
		PrimaryKeyHeaders: []string{"REGION", "FARM_ID"},
		ChangeTypeHeader:  "CHANGE_TYPE",
	}
}

func writeCSV(t *testing.T, store *objectstore.LocalStore, key, body string) {
	t.Helper()
	ctx := context.Background()
	w, err := store.OpenWrite(ctx, key, "text/csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestIngestFileHappyPathInsert(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	key := "exports/farms/FARM_20260731_20260731090000.csv"
	writeCSV(t, store, key, "REGION,FARM_ID,NAME,CHANGE_TYPE\nNORTH,F001,Alpha,I\nSOUTH,F002,Beta,I\n")

	db := docstore.NewMemoryDatabase()
	lineageStore := lineage.New(db)
	pipeline := ingestion.NewPipeline(store, db, lineageStore, nil, ',')

	file := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key}, Timestamp: time.Now()}

	outcome, err := pipeline.IngestFile(context.Background(), farmsDefinition(), file, "import-1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, outcome.RecordsCreated)
	require.Equal(t, 0, outcome.RecordsUpdated)

	docs := db.Docs("farms")
	require.Len(t, docs, 2)
	require.Contains(t, docs, "NORTH__F001")
	require.Contains(t, docs, "SOUTH__F002")
	require.Equal(t, false, docs["NORTH__F001"]["is_deleted"])

	lifecycle, err := lineageStore.GetLifecycle(context.Background(), "farms", "NORTH__F001")
	require.NoError(t, err)
	require.Len(t, lifecycle.Events, 1)
	require.Equal(t, "Created", lifecycle.Events[0]["event_type"])
}

func TestIngestFileSoftDeleteThenUndelete(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	db := docstore.NewMemoryDatabase()
	lineageStore := lineage.New(db)
	pipeline := ingestion.NewPipeline(store, db, lineageStore, nil, ',')
	ctx := context.Background()

	key1 := "exports/farms/FARM_20260730_20260730090000.csv"
	writeCSV(t, store, key1, "REGION,FARM_ID,NAME,CHANGE_TYPE\nNORTH,F001,Alpha,I\n")
	file1 := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key1}}
	_, err = pipeline.IngestFile(ctx, farmsDefinition(), file1, "import-1", nil)
	require.NoError(t, err)

	key2 := "exports/farms/FARM_20260730_20260730100000.csv"
	writeCSV(t, store, key2, "REGION,FARM_ID,NAME,CHANGE_TYPE\nNORTH,F001,,D\n")
	file2 := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key2}}
	outcome, err := pipeline.IngestFile(ctx, farmsDefinition(), file2, "import-2", nil)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.RecordsDeleted)

	docs := db.Docs("farms")
	require.Equal(t, true, docs["NORTH__F001"]["is_deleted"])
	require.NotNil(t, docs["NORTH__F001"]["deleted_at"])

	key3 := "exports/farms/FARM_20260730_20260730110000.csv"
	writeCSV(t, store, key3, "REGION,FARM_ID,NAME,CHANGE_TYPE\nNORTH,F001,Alpha Revived,I\n")
	file3 := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key3}}
	_, err = pipeline.IngestFile(ctx, farmsDefinition(), file3, "import-3", nil)
	require.NoError(t, err)

	docs = db.Docs("farms")
	require.Equal(t, false, docs["NORTH__F001"]["is_deleted"])
	require.Nil(t, docs["NORTH__F001"]["deleted_at"])
	require.Equal(t, "Alpha Revived", docs["NORTH__F001"]["NAME"])

	lifecycle, err := lineageStore.GetLifecycle(ctx, "farms", "NORTH__F001")
	require.NoError(t, err)
	require.Len(t, lifecycle.Events, 3)
	require.Equal(t, "Undeleted", lifecycle.Events[2]["event_type"])
}

func TestIngestFileAccumulatorUnion(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	db := docstore.NewMemoryDatabase()
	lineageStore := lineage.New(db)
	pipeline := ingestion.NewPipeline(store, db, lineageStore, nil, ',')
	ctx := context.Background()

	dataset := farmsDefinition()
	dataset.Accumulators = map[string]bool{"DISEASE_TYPE": true}

	key1 := "exports/farms/FARM_20260730_20260730090000.csv"
	writeCSV(t, store, key1, "REGION,FARM_ID,NAME,DISEASE_TYPE,CHANGE_TYPE\nNORTH,F001,Alpha,BVD,I\n")
	file1 := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key1}}
	_, err = pipeline.IngestFile(ctx, dataset, file1, "import-1", nil)
	require.NoError(t, err)

	key2 := "exports/farms/FARM_20260730_20260730100000.csv"
	writeCSV(t, store, key2, "REGION,FARM_ID,NAME,DISEASE_TYPE,CHANGE_TYPE\nNORTH,F001,Alpha,IBR,U\n")
	file2 := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key2}}
	_, err = pipeline.IngestFile(ctx, dataset, file2, "import-2", nil)
	require.NoError(t, err)

	docs := db.Docs("farms")
	require.ElementsMatch(t, []string{"BVD", "IBR"}, docs["NORTH__F001"]["DISEASE_TYPE"])
}

func TestIngestFileMissingPrimaryKeyColumnFailsSchema(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	key := "exports/farms/FARM_20260730_20260730090000.csv"
	writeCSV(t, store, key, "REGION,NAME,CHANGE_TYPE\nNORTH,Alpha,I\n")

	db := docstore.NewMemoryDatabase()
	lineageStore := lineage.New(db)
	pipeline := ingestion.NewPipeline(store, db, lineageStore, nil, ',')

	file := catalogue.EtlFile{StorageObject: objectstore.StorageObject{Key: key}}
	_, err = pipeline.IngestFile(context.Background(), farmsDefinition(), file, "import-1", nil)
	require.Error(t, err)

	require.Empty(t, db.Docs("farms"))
}
