package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/docstore"
)

func TestMemoryCollectionUpsertAndFind(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	coll := db.Collection("farms")
	ctx := context.Background()

	err := coll.UpsertOne(ctx, bson.M{"_id": "NORTH__F001"}, bson.M{
		"$set":         bson.M{"is_deleted": false},
		"$setOnInsert": bson.M{"created_at": "2026-07-31T00:00:00Z"},
	})
	require.NoError(t, err)

	doc, err := coll.FindOne(ctx, bson.M{"_id": "NORTH__F001"})
	require.NoError(t, err)
	require.Equal(t, false, doc["is_deleted"])
	require.Equal(t, "2026-07-31T00:00:00Z", doc["created_at"])

	_, err = coll.FindOne(ctx, bson.M{"_id": "missing"})
	require.ErrorIs(t, err, docstore.ErrNoDocuments)
}

func TestMemoryCollectionBulkWriteInMatches(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	coll := db.Collection("farms")
	ctx := context.Background()

	_, err := coll.BulkWrite(ctx, []docstore.BulkWrite{
		{InsertDocument: bson.M{"_id": "A"}},
		{InsertDocument: bson.M{"_id": "B"}},
		{InsertDocument: bson.M{"_id": "C"}},
	})
	require.NoError(t, err)

	docs, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": []string{"A", "C"}}}, docstore.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestMemoryCollectionAddToSetUnion(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	coll := db.Collection("farms")
	ctx := context.Background()

	err := coll.UpsertOne(ctx, bson.M{"_id": "NORTH__F001"}, bson.M{
		"$addToSet": bson.M{"DISEASE_TYPE": bson.M{"$each": []string{"BVD"}}},
	})
	require.NoError(t, err)

	err = coll.UpsertOne(ctx, bson.M{"_id": "NORTH__F001"}, bson.M{
		"$addToSet": bson.M{"DISEASE_TYPE": bson.M{"$each": []string{"IBR"}}},
	})
	require.NoError(t, err)

	doc, err := coll.FindOne(ctx, bson.M{"_id": "NORTH__F001"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"BVD", "IBR"}, doc["DISEASE_TYPE"])
}
