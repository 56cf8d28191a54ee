// Package docstore narrows go.mongodb.org/mongo-driver down to the
// document operations the ingestion, lineage, reporting and query
// components actually need, generalized from the teacher's
// pkg/persistence.BatchPersistence interface split (a narrow
// capability-scoped store interface wrapping a concrete backend) so
// every consumer package can be tested against an in-memory fake
// instead of a live Mongo deployment.
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// SortSpec is one field, direction pair; Ascending true sorts ascending,
// false descending (the Mongo binding maps these to +1 and -1).
type SortSpec struct {
	Field     string
	Ascending bool
}

// FindOptions controls a Find call.
type FindOptions struct {
	Sort    []SortSpec
	Skip    int64
	Limit   int64
	Project bson.M
}

// BulkWrite is one element of an unordered bulk-write batch. Exactly
// one of the operation fields is populated.
type BulkWrite struct {
	// Filter selects the target document for Update/Upsert/Delete.
	Filter bson.M

	// Update is a full Mongo update document ($set/$setOnInsert/...).
	Update bson.M
	Upsert bool

	// InsertDocument, when set, is an insert-one operation instead of
	// an update.
	InsertDocument bson.M

	// Delete, when true, is a delete-one operation using Filter.
	Delete bool
}

// BulkResult tallies what an unordered bulk write did. Mongo's actual
// driver returns richer counts; the engine only ever needs these.
type BulkResult struct {
	Inserted int64
	Upserted int64
	Matched  int64
	Modified int64
	Deleted  int64
}

// Collection is the per-collection operation set used by every
// component above the store. All operations are context-bound and
// safe to cancel mid-flight.
type Collection interface {
	// FindOne returns one document matching filter, or ErrNoDocuments.
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)

	// Find returns every document matching filter, ordered per opts.
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)

	// CountDocuments counts documents matching filter.
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)

	// UpsertOne applies update to the document matched by filter,
	// inserting it (with update applied) if absent.
	UpsertOne(ctx context.Context, filter, update bson.M) error

	// BulkWrite executes writes with unordered semantics: one
	// document's failure does not prevent the others from applying.
	BulkWrite(ctx context.Context, writes []BulkWrite) (BulkResult, error)

	// EnsureIndex creates the named index if it does not already
	// exist. Implementations tolerate and log creation failures rather
	// than propagating them, per the ingestion pipeline's "tolerate and
	// log" index-creation contract.
	EnsureIndex(ctx context.Context, keys bson.D, opts IndexOptions) error
}

// IndexOptions configures EnsureIndex.
type IndexOptions struct {
	Name   string
	Unique bool
}

// Database resolves named collections, generalized from the teacher's
// pkg/secrets multi-backend resolver pattern (resolve-by-name instead
// of a fixed field per backend).
type Database interface {
	Collection(name string) Collection
}

// ErrNoDocuments is returned by FindOne when no document matches.
var ErrNoDocuments = errNoDocuments{}

type errNoDocuments struct{}

func (errNoDocuments) Error() string { return "docstore: no documents in result" }
