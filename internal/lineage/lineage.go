// Package lineage maintains the append-only per-record change log:
// one lineage_parents document per (collection, record) pair tracking
// current status, and one lineage_events document per applied change.
// Grounded on a correlator-style append-only audit log shape (parent
// status projection plus an immutable child event stream) adapted from
// relational to the document store used throughout this engine.
package lineage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/docstore"
)

const (
	parentsCollection = "lineage_parents"
	eventsCollection  = "lineage_events"

	// eventTimeLayout keeps every fractional digit (RFC3339Nano trims
	// trailing zeros), so all event-id timestamps have the same width.
	eventTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// EventType enumerates the kinds of change a LineageEvent records.
type EventType string

const (
	EventCreated   EventType = "Created"
	EventUpdated   EventType = "Updated"
	EventDeleted   EventType = "Deleted"
	EventUndeleted EventType = "Undeleted"
)

// Status is a parent record's current lifecycle state.
type Status string

const (
	StatusActive  Status = "Active"
	StatusDeleted Status = "Deleted"
)

// Event is one pending change to record against a parent, supplied by
// the ingestion pipeline as it applies a batch.
type Event struct {
	CollectionName string
	RecordID       string
	EventType      EventType
	ImportID       string
	FileKey        string
	EventTime      time.Time
	ChangeType     string
	PreviousValues bson.M
	NewValues      bson.M
}

// ParentStatus derives the Status a parent should transition to for an
// event, used by callers building Event values before Append.
func ParentStatus(e EventType) Status {
	if e == EventDeleted {
		return StatusDeleted
	}

	return StatusActive
}

// ParentID is the stable, deterministic id of a (collection, record)
// parent: URL-safe base64 (no padding) of SHA-256 of
// "collection__record", 43 characters.
func ParentID(collectionName, recordID string) string {
	return hashID(collectionName + "__" + recordID)
}

// EventID is the stable, deterministic id of one event: a fixed-width
// UTC timestamp with nanosecond precision followed by a content hash
// disambiguator. The timestamp prefix, not the hash, is what makes
// lexicographic id sort equal chronological sort — a bare hash of the
// timestamp would scramble the ordering it's meant to preserve.
func EventID(collectionName, recordID string, eventTime time.Time) string {
	stamp := eventTime.UTC().Format(eventTimeLayout)
	disambiguator := hashID(collectionName + "__" + recordID + "__" + stamp)

	return stamp + "__" + disambiguator
}

func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Store appends events and projects current status, backed by a
// Database (live Mongo or the in-memory fake).
type Store struct {
	db docstore.Database
}

// New builds a Store over db. EnsureIndexes should be called once per
// process before use.
func New(db docstore.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the ascending index on lineage_events' parent
// reference, tolerating and logging failure per the ingestion
// pipeline's index-creation contract.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return s.db.Collection(eventsCollection).EnsureIndex(ctx, bson.D{{Key: "lineage_parent_id", Value: 1}}, docstore.IndexOptions{
		Name: "lineage_parent_id_asc",
	})
}

// Append upserts the parent of every event (set-on-insert immutables
// from its first event in the slice, set mutables from its last) via
// one unordered bulk write, then inserts every event
// via an unordered bulk write. Parent upserts run before event
// inserts so a crash between the two calls leaves status consistent
// with what was actually recorded.
func (s *Store) Append(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := s.upsertParents(ctx, events); err != nil {
		return err
	}

	return s.insertEvents(ctx, events)
}

func (s *Store) upsertParents(ctx context.Context, events []Event) error {
	parents := s.db.Collection(parentsCollection)

	seen := make(map[string]int, len(events))
	writes := make([]docstore.BulkWrite, 0, len(events))

	for _, e := range events {
		parentID := ParentID(e.CollectionName, e.RecordID)
		mutable := bson.M{
			"current_status":          string(ParentStatus(e.EventType)),
			"last_modified_by_import": e.ImportID,
			"last_modified_at":        e.EventTime.UTC(),
		}
		if idx, ok := seen[parentID]; ok {
			writes[idx].Update["$set"] = mutable

			continue
		}
		seen[parentID] = len(writes)

		writes = append(writes, docstore.BulkWrite{
			Filter: bson.M{"_id": parentID},
			Upsert: true,
			Update: bson.M{
				"$setOnInsert": bson.M{
					"record_id":         e.RecordID,
					"collection_name":   e.CollectionName,
					"created_by_import": e.ImportID,
					"created_at":        e.EventTime.UTC(),
				},
				"$set": mutable,
			},
		})
	}

	_, err := parents.BulkWrite(ctx, writes)

	return err
}

func (s *Store) insertEvents(ctx context.Context, events []Event) error {
	collection := s.db.Collection(eventsCollection)

	writes := make([]docstore.BulkWrite, 0, len(events))
	for _, e := range events {
		parentID := ParentID(e.CollectionName, e.RecordID)

		writes = append(writes, docstore.BulkWrite{
			InsertDocument: bson.M{
				"_id":               EventID(e.CollectionName, e.RecordID, e.EventTime),
				"lineage_parent_id": parentID,
				"event_type":        string(e.EventType),
				"import_id":         e.ImportID,
				"file_key":          e.FileKey,
				"event_time":        e.EventTime.UTC(),
				"change_type":       e.ChangeType,
				"previous_values":   e.PreviousValues,
				"new_values":        e.NewValues,
			},
		})
	}

	_, err := collection.BulkWrite(ctx, writes)

	return err
}

// Lifecycle is the full event history plus current status for one
// record, returned by GetLifecycle.
type Lifecycle struct {
	CollectionName string
	RecordID       string
	CurrentStatus  Status
	Events         []bson.M
}

// GetLifecycle does a point lookup on the parent then a range scan on
// its events sorted ascending by id (which is chronological sort by
// construction).
func (s *Store) GetLifecycle(ctx context.Context, collectionName, recordID string) (Lifecycle, error) {
	parentID := ParentID(collectionName, recordID)

	parent, err := s.db.Collection(parentsCollection).FindOne(ctx, bson.M{"_id": parentID})
	if err != nil {
		return Lifecycle{}, err
	}

	events, err := s.db.Collection(eventsCollection).Find(ctx, bson.M{"lineage_parent_id": parentID}, docstore.FindOptions{
		Sort: []docstore.SortSpec{{Field: "_id", Ascending: true}},
	})
	if err != nil {
		return Lifecycle{}, err
	}

	status, _ := parent["current_status"].(string)

	return Lifecycle{
		CollectionName: collectionName,
		RecordID:       recordID,
		CurrentStatus:  Status(status),
		Events:         events,
	}, nil
}

// PagedLifecycle adds pagination metadata to GetLifecycle's result.
type PagedLifecycle struct {
	Lifecycle
	TotalEvents int64
	Skip        int64
	Top         int64
}

// GetLifecyclePaged returns a skip/top page of one record's events
// alongside its current status and total event count.
func (s *Store) GetLifecyclePaged(ctx context.Context, collectionName, recordID string, skip, top int64) (PagedLifecycle, error) {
	parentID := ParentID(collectionName, recordID)

	parent, err := s.db.Collection(parentsCollection).FindOne(ctx, bson.M{"_id": parentID})
	if err != nil {
		return PagedLifecycle{}, err
	}

	eventsColl := s.db.Collection(eventsCollection)

	total, err := eventsColl.CountDocuments(ctx, bson.M{"lineage_parent_id": parentID})
	if err != nil {
		return PagedLifecycle{}, err
	}

	events, err := eventsColl.Find(ctx, bson.M{"lineage_parent_id": parentID}, docstore.FindOptions{
		Sort:  []docstore.SortSpec{{Field: "_id", Ascending: true}},
		Skip:  skip,
		Limit: top,
	})
	if err != nil {
		return PagedLifecycle{}, err
	}

	status, _ := parent["current_status"].(string)

	return PagedLifecycle{
		Lifecycle: Lifecycle{
			CollectionName: collectionName,
			RecordID:       recordID,
			CurrentStatus:  Status(status),
			Events:         events,
		},
		TotalEvents: total,
		Skip:        skip,
		Top:         top,
	}, nil
}
