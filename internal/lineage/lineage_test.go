package lineage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/lineage"
)

func TestParentIDIsStableAcrossCalls(t *testing.T) {
	id1 := lineage.ParentID("farms", "NORTH__F001")
	id2 := lineage.ParentID("farms", "NORTH__F001")

	require.Equal(t, id1, id2)
	require.Len(t, id1, 43)
}

func TestEventIDOrdersChronologicallyByLexicalSort(t *testing.T) {
	t1 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 30, 11, 0, 0, 0, time.UTC)

	id1 := lineage.EventID("farms", "NORTH__F001", t1)
	id2 := lineage.EventID("farms", "NORTH__F001", t2)

	require.Less(t, id1, id2)
}

func TestEventIDOrdersSequentialTimestampsLexically(t *testing.T) {
	base := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 19; i++ {
		ids = append(ids, lineage.EventID("farms", "NORTH__F001", base.Add(time.Duration(i)*time.Minute)))
	}

	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}

func TestAppendAndGetLifecycle(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	store := lineage.New(db)
	ctx := context.Background()

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	err := store.Append(ctx, []lineage.Event{
		{
			CollectionName: "farms",
			RecordID:       "NORTH__F001",
			EventType:      lineage.EventCreated,
			ImportID:       "import-1",
			FileKey:        "exports/farms/FARM_20260731.csv",
			EventTime:      now,
			ChangeType:     "I",
			NewValues:      map[string]interface{}{"NAME": "Alpha"},
		},
	})
	require.NoError(t, err)

	lifecycle, err := store.GetLifecycle(ctx, "farms", "NORTH__F001")
	require.NoError(t, err)
	require.Equal(t, lineage.StatusActive, lifecycle.CurrentStatus)
	require.Len(t, lifecycle.Events, 1)

	later := now.Add(time.Hour)
	err = store.Append(ctx, []lineage.Event{
		{
			CollectionName: "farms",
			RecordID:       "NORTH__F001",
			EventType:      lineage.EventDeleted,
			ImportID:       "import-2",
			FileKey:        "exports/farms/FARM_20260731b.csv",
			EventTime:      later,
			ChangeType:     "D",
		},
	})
	require.NoError(t, err)

	lifecycle, err = store.GetLifecycle(ctx, "farms", "NORTH__F001")
	require.NoError(t, err)
	require.Equal(t, lineage.StatusDeleted, lifecycle.CurrentStatus)
	require.Len(t, lifecycle.Events, 2)
}
