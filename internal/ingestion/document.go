// Package ingestion applies one CSV file's rows against a dataset's
// document collection: composite-key document construction, the
// bulk insert/update/soft-delete protocol, progress tracking, and the
// per-file pipeline that ties CSV parsing to batched bulk writes and
// buffered lineage events. Grounded on the teacher's
// internal/processing.LogProcessor (stream in, transform, batch, emit)
// shape, generalized from log lines to CSV rows and from a single sink
// write to a bulk document-store write plus a lineage event.
package ingestion

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/catalogue"
)

const keyDelimiter = "__"

// BuildDocumentID joins the primary-key column values, in declared
// order, with "__". Empty key parts are kept verbatim.
func BuildDocumentID(row map[string]string, primaryKeyHeaders []string) string {
	parts := make([]string, len(primaryKeyHeaders))
	for i, h := range primaryKeyHeaders {
		parts[i] = row[h]
	}

	return strings.Join(parts, keyDelimiter)
}

// BuildFields maps one CSV row into the scalar/accumulator field
// values a new or updated document should carry, excluding audit
// fields and the change-type column. Empty scalar values map to nil;
// accumulator values map to a single-element []string, or an empty
// []string when the value is empty.
func BuildFields(row map[string]string, dataset catalogue.DatasetDefinition) bson.M {
	fields := make(bson.M, len(row))

	for column, value := range row {
		if column == dataset.ChangeTypeHeader {
			continue
		}

		if dataset.Accumulators[column] {
			if value == "" {
				fields[column] = []string{}
			} else {
				fields[column] = []string{value}
			}

			continue
		}

		if value == "" {
			fields[column] = nil
		} else {
			fields[column] = value
		}
	}

	return fields
}

// NewDocument builds the full insert document for a row that is
// inserted or first-created, stamping both audit timestamps to now
// and is_deleted=false.
func NewDocument(id string, fields bson.M, now time.Time) bson.M {
	doc := make(bson.M, len(fields)+4)
	for k, v := range fields {
		doc[k] = v
	}

	doc["_id"] = id
	doc["created_at"] = now.UTC()
	doc["updated_at"] = now.UTC()
	doc["is_deleted"] = false

	return doc
}
