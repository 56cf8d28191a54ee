package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/lineage"
)

// Row is one parsed CSV record keyed by header name, plus its raw
// (pre-validation) change-type value.
type Row struct {
	Values     map[string]string
	ChangeType string
}

// BatchResult tallies what one ApplyBatch call did, feeding both the
// ingestion phase counters and the testable-property "discovered =
// processed + skipped + failed" partition at the row level.
type BatchResult struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

// ApplyBatch executes the bulk protocol for up to 1,000 rows: fetch
// existing documents by _id in one round trip, classify each row
// against I/U/D semantics and the existing document's soft-delete
// state, then issue one unordered bulk write. It returns the
// lineage events the caller should buffer for the eventual flush.
func ApplyBatch(
	ctx context.Context,
	coll docstore.Collection,
	dataset catalogue.DatasetDefinition,
	rows []Row,
	importID, fileKey string,
	now time.Time,
	logger *logrus.Logger,
) (BatchResult, []lineage.Event, error) {
	ids := make([]string, 0, len(rows))
	validRows := make([]struct {
		id         string
		changeType string
		fields     bson.M
	}, 0, len(rows))

	var result BatchResult

	for _, row := range rows {
		changeType := strings.ToUpper(strings.TrimSpace(row.ChangeType))
		if changeType != "I" && changeType != "U" && changeType != "D" {
			result.Skipped++
			if logger != nil {
				logger.WithField("change_type", row.ChangeType).Warn("skipping row with unrecognized change type")
			}

			continue
		}

		id := BuildDocumentID(row.Values, dataset.PrimaryKeyHeaders)
		ids = append(ids, id)
		validRows = append(validRows, struct {
			id         string
			changeType string
			fields     bson.M
		}{id: id, changeType: changeType, fields: BuildFields(row.Values, dataset)})
	}

	existing, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, docstore.FindOptions{})
	if err != nil {
		return result, nil, err
	}

	existingByID := make(map[string]bson.M, len(existing))
	softDeleted := make(map[string]bool, len(existing))
	for _, doc := range existing {
		id, _ := doc["_id"].(string)
		existingByID[id] = doc
		if deleted, _ := doc["is_deleted"].(bool); deleted {
			softDeleted[id] = true
		}
	}

	var writes []docstore.BulkWrite
	var events []lineage.Event

	for _, r := range validRows {
		previous := existingByID[r.id]

		if r.changeType == "D" {
			writes = append(writes, docstore.BulkWrite{
				Filter: bson.M{"_id": r.id},
				Upsert: false,
				Update: bson.M{"$set": bson.M{
					"is_deleted": true,
					"deleted_at": now.UTC(),
					"updated_at": now.UTC(),
				}},
			})

			events = append(events, lineage.Event{
				CollectionName: dataset.Name,
				RecordID:       r.id,
				EventType:      lineage.EventDeleted,
				ImportID:       importID,
				FileKey:        fileKey,
				EventTime:      now,
				ChangeType:     r.changeType,
				PreviousValues: previous,
				NewValues:      nil,
			})

			result.Deleted++

			continue
		}

		set := bson.M{"is_deleted": false}
		for k, v := range r.fields {
			set[k] = v
		}
		set["updated_at"] = now.UTC()

		update := bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"_id":        r.id,
				"created_at": now.UTC(),
			},
			"$unset": bson.M{"deleted_at": ""},
		}

		var addToSet bson.M
		for column := range r.fields {
			if dataset.Accumulators[column] {
				delete(set, column)

				value := r.fields[column].([]string)
				if len(value) > 0 {
					if addToSet == nil {
						addToSet = bson.M{}
					}
					addToSet[column] = bson.M{"$each": value}
				}
			}
		}
		if addToSet != nil {
			update["$addToSet"] = addToSet
		}

		writes = append(writes, docstore.BulkWrite{
			Filter: bson.M{"_id": r.id},
			Upsert: true,
			Update: update,
		})

		newValues := NewDocument(r.id, r.fields, now)

		var eventType lineage.EventType
		switch {
		case softDeleted[r.id]:
			eventType = lineage.EventUndeleted
			result.Updated++
		case previous == nil:
			eventType = lineage.EventCreated
			result.Created++
		default:
			eventType = lineage.EventUpdated
			result.Updated++
		}

		events = append(events, lineage.Event{
			CollectionName: dataset.Name,
			RecordID:       r.id,
			EventType:      eventType,
			ImportID:       importID,
			FileKey:        fileKey,
			EventTime:      now,
			ChangeType:     r.changeType,
			PreviousValues: previous,
			NewValues:      newValues,
		})
	}

	if _, err := coll.BulkWrite(ctx, writes); err != nil {
		return result, nil, err
	}

	return result, events, nil
}
