// Package catalogue enumerates candidate dataset files in an object
// store over a date range, grounded on the teacher's pkg/discovery
// bounded-fan-out design (poll N backends concurrently, collect
// results, then present them in a stable order) generalized from
// "discover N service instances" to "list N (dataset, date) prefixes".
package catalogue

import (
	"time"

	"github.com/nrms/data-bridge/internal/objectstore"
)

// DatasetDefinition is the static, load-time-immutable description of
// one reference dataset. Definitions never change after NewRegistry.
type DatasetDefinition struct {
	// Name is both the human name and the target document-store
	// collection name.
	Name string

	// FilePrefixFormat is a template with exactly one {date} slot, e.g.
	// "exports/farms/FARM_{date}".
	FilePrefixFormat string

	// DatePattern is the Go reference-time layout used to render the
	// date portion of FilePrefixFormat.
	DatePattern string

	// DatetimePattern is the Go reference-time layout for the trailing
	// 14-digit run-id timestamp embedded in each filename.
	DatetimePattern string

	// PrimaryKeyHeaders is the ordered list of CSV columns whose values
	// are joined with "__" to build a document's composite _id.
	PrimaryKeyHeaders []string

	// ChangeTypeHeader names the CSV column holding I/U/D.
	ChangeTypeHeader string

	// Accumulators names CSV columns whose values are unioned across
	// updates instead of overwritten.
	Accumulators map[string]bool
}

// EtlFile is a StorageObject plus the timestamp parsed from its
// filename's trailing 14-digit run id.
type EtlFile struct {
	objectstore.StorageObject
	Timestamp time.Time
}

// FileSet is one dataset's ordered (ascending by Timestamp) list of
// candidate files for a queried date range.
type FileSet struct {
	Dataset DatasetDefinition
	Files   []EtlFile
}
