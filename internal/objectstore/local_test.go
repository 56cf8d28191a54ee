package objectstore_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrms/data-bridge/internal/objectstore"
)

func TestLocalStoreWriteReadMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	w, err := store.OpenWrite(ctx, "farms/FARM_20260101.csv", "text/csv")
	require.NoError(t, err)
	_, err = io.Copy(w, strings.NewReader("REGION|FARM_ID\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	exists, err := store.Exists(ctx, "farms/FARM_20260101.csv")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.SetMetadata(ctx, "farms/FARM_20260101.csv", map[string]string{
		"source_encrypted_length": "128",
		"source_etag":             "abc123",
	}))

	meta, err := store.GetMetadata(ctx, "farms/FARM_20260101.csv")
	require.NoError(t, err)
	require.Equal(t, "128", meta.UserMetadata["source_encrypted_length"])
	require.Equal(t, "abc123", meta.UserMetadata["source_etag"])

	objs, err := store.List(ctx, "farms/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "farms/FARM_20260101.csv", objs[0].Key)
}

func TestPrefixedStorePresentsRelativeKeys(t *testing.T) {
	ctx := context.Background()
	base, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	prefixed := objectstore.NewPrefixed(base, "tenant-a")

	w, err := prefixed.OpenWrite(ctx, "farms/F.csv", "text/csv")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// underlying store sees the folder-qualified key
	exists, err := base.Exists(ctx, "tenant-a/farms/F.csv")
	require.NoError(t, err)
	require.True(t, exists)

	objs, err := prefixed.List(ctx, "farms/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "farms/F.csv", objs[0].Key)
}
