package catalogue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/objectstore"
)

func mustRegistry(t *testing.T, defs []catalogue.DatasetDefinition) *catalogue.Registry {
	t.Helper()
	r, err := catalogue.NewRegistry(defs)
	require.NoError(t, err)

	return r
}

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

func TestDiscoverOrdersFilesAscendingByTimestamp(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	// Write out of chronological order to confirm the sort, not the
	// listing order, determines FileSet order.
	keys := []string{
		"exports/farms/FARM_20260730_20260730120000.csv",
		"exports/farms/FARM_20260730_20260730080000.csv",
		"exports/farms/FARM_20260730_20260730230000.csv",
	}
	for _, key := range keys {
		w, err := store.OpenWrite(ctx, key, "text/csv")
		require.NoError(t, err)
		_, err = w.Write([]byte("REGION,FARM_ID,CHANGE_TYPE\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	registry := mustRegistry(t, []catalogue.DatasetDefinition{farmsDefinition()})
	c := catalogue.New(registry, store)

	sets, err := c.Discover(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Equal(t, "farms", sets[0].Dataset.Name)
	require.Len(t, sets[0].Files, 3)

	for i := 0; i < len(sets[0].Files)-1; i++ {
		require.False(t, sets[0].Files[i+1].Timestamp.Before(sets[0].Files[i].Timestamp))
	}
	require.Equal(t, "exports/farms/FARM_20260730_20260730080000.csv", sets[0].Files[0].Key)
	require.Equal(t, "exports/farms/FARM_20260730_20260730230000.csv", sets[0].Files[2].Key)
}

func TestDiscoverFailsFatalOnUnparseableFilename(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	w, err := store.OpenWrite(ctx, "exports/farms/FARM_20260730_bogus.csv", "text/csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("REGION,FARM_ID,CHANGE_TYPE\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	registry := mustRegistry(t, []catalogue.DatasetDefinition{farmsDefinition()})
	c := catalogue.New(registry, store)

	_, err = c.Discover(ctx, day, day)
	require.Error(t, err)
}

func TestDiscoverLookbackDaysZeroReturnsTodayOnly(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)

	w, err := store.OpenWrite(ctx, "exports/farms/FARM_20260731_20260731090000.csv", "text/csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("REGION,FARM_ID,CHANGE_TYPE\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := store.OpenWrite(ctx, "exports/farms/FARM_20260730_20260730090000.csv", "text/csv")
	require.NoError(t, err)
	_, err = w2.Write([]byte("REGION,FARM_ID,CHANGE_TYPE\n"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	registry := mustRegistry(t, []catalogue.DatasetDefinition{farmsDefinition()})
	c := catalogue.New(registry, store)

	sets, err := c.DiscoverLookback(ctx, 0, now)
	require.NoError(t, err)
	require.Len(t, sets[0].Files, 1)
	require.Equal(t, "exports/farms/FARM_20260731_20260731090000.csv", sets[0].Files[0].Key)
}

// TestDiscoverLeaksNoGoroutines confirms the errgroup-bounded fan-out
// across (dataset x date) listing tasks leaves nothing running once
// Discover returns, the same shutdown discipline the teacher verifies
// for its dispatcher and monitors.
func TestDiscoverLeaksNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	store, err := objectstore.NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	registry := mustRegistry(t, []catalogue.DatasetDefinition{farmsDefinition()})
	c := catalogue.New(registry, store)

	_, err = c.Discover(ctx, from, to)
	require.NoError(t, err)
}
