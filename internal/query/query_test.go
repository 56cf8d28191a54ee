package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/query"
)

func TestParseFilterComparisonsAndLogical(t *testing.T) {
	expr, err := query.ParseFilter("Category eq 'Electronics' and Price gt 200")
	require.NoError(t, err)

	logical, ok := expr.(query.Logical)
	require.True(t, ok)
	require.Equal(t, "and", logical.Op)

	left, ok := logical.Left.(query.Comparison)
	require.True(t, ok)
	require.Equal(t, "Category", left.Field)
	require.Equal(t, "eq", left.Op)
	require.Equal(t, "Electronics", left.Value.Value)
}

func TestParseFilterRejectsUnsupportedConstruct(t *testing.T) {
	_, err := query.ParseFilter("Category ~~ 'x'")
	require.Error(t, err)
}

func TestParseSortDefaultsAscending(t *testing.T) {
	clauses, err := query.ParseSort("Rating desc, Price")
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	require.False(t, clauses[0].Ascending)
	require.True(t, clauses[1].Ascending)
}

func productsRegistry(t *testing.T) *catalogue.Registry {
	t.Helper()
	r, err := catalogue.NewRegistry([]catalogue.DatasetDefinition{{
		Name:              "products",
		FilePrefixFormat:  "exports/products/PRODUCT_{date}",
		DatePattern:       "20060102",
		DatetimePattern:   "20060102150405",
		PrimaryKeyHeaders: []string{"ProductId"},
		ChangeTypeHeader:  "CHANGE_TYPE",
	}})
	require.NoError(t, err)

	return r
}

func seedProducts(db *docstore.MemoryDatabase, n int) {
	coll := db.Collection("products")
	ctx := context.Background()

	for i := 0; i < n; i++ {
		category := "Books"
		if i%2 == 0 {
			category = "Electronics"
		}

		_, _ = coll.BulkWrite(ctx, []docstore.BulkWrite{{
			InsertDocument: bson.M{
				"_id":       fmt.Sprintf("P%04d", i),
				"ProductId": fmt.Sprintf("P%04d", i),
				"Category":  category,
				"Price":     float64(100 + i),
				"Rating":    float64(i % 5),
			},
		}})
	}
}

func TestFacadeExecuteFilterSortPageProject(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	seedProducts(db, 150)

	facade := query.New(productsRegistry(t), db, nil)

	result, err := facade.Execute(context.Background(), query.Request{
		Collection: "products",
		Filter:     "Category eq 'Electronics' and Price gt 200",
		OrderBy:    "Rating desc, Price asc",
		Select:     "ProductId,Price,Category",
		Skip:       0,
		Top:        15,
		Count:      true,
	}, time.Now())
	require.NoError(t, err)

	require.LessOrEqual(t, len(result.Data), 15)
	require.NotNil(t, result.TotalCount)
	require.Greater(t, *result.TotalCount, int64(15))

	for _, row := range result.Data {
		require.Equal(t, "Electronics", row["Category"])
		require.Greater(t, row["Price"].(float64), 200.0)
	}
}

func TestFacadeExecuteUnknownCollectionIsQueryError(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	facade := query.New(productsRegistry(t), db, nil)

	_, err := facade.Execute(context.Background(), query.Request{Collection: "nope"}, time.Now())
	require.Error(t, err)
}

func TestFacadeExecuteCapsPageSize(t *testing.T) {
	db := docstore.NewMemoryDatabase()
	seedProducts(db, 5)

	facade := query.New(productsRegistry(t), db, nil)

	result, err := facade.Execute(context.Background(), query.Request{
		Collection: "products",
		Top:        5000,
	}, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1000), result.Top)
}
