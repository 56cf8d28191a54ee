package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/lineage"
	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/internal/reporting"
	"github.com/nrms/data-bridge/internal/telemetry"
	"github.com/nrms/data-bridge/pkg/apperr"
)

const (
	batchSize          = 1000
	lineageFlushAt     = 500
	progressEveryRows  = 100
	downloadBufferSize = 80 * 1024
)

// FileOutcome tallies what IngestFile did to one file, feeding the
// caller's FileIngestionRecord.
type FileOutcome struct {
	RecordsProcessed   int
	RecordsCreated     int
	RecordsUpdated     int
	RecordsDeleted     int
	RowsSkipped        int
	DownloadDurationMS int64
	ParseDurationMS    int64
}

// Pipeline runs the per-file ingestion protocol: download, estimate,
// header-validate, stream-parse, batch-apply, buffer-and-flush
// lineage events.
type Pipeline struct {
	store     objectstore.ReadOnlyStore
	db        docstore.Database
	lineage   *lineage.Store
	logger    *logrus.Logger
	delimiter rune
}

// NewPipeline builds a Pipeline reading CSVs delimited by delimiter
// (pipe in production, comma accepted in tests) from store.
func NewPipeline(store objectstore.ReadOnlyStore, db docstore.Database, lineageStore *lineage.Store, logger *logrus.Logger, delimiter rune) *Pipeline {
	return &Pipeline{store: store, db: db, lineage: lineageStore, logger: logger, delimiter: delimiter}
}

// ProgressFunc is called with every progress snapshot the pipeline
// produces, roughly every 100 rows.
type ProgressFunc func(reporting.CurrentFileStatus)

// IngestFile runs the full per-file protocol against one catalogued
// file. importID identifies the lineage events and bulk writes this
// call produces.
func (p *Pipeline) IngestFile(
	ctx context.Context,
	dataset catalogue.DatasetDefinition,
	file catalogue.EtlFile,
	importID string,
	onProgress ProgressFunc,
) (FileOutcome, error) {
	var outcome FileOutcome

	ctx, span := telemetry.Tracer().Start(ctx, "ingestion.IngestFile")
	span.SetAttributes(attribute.String("databridge.file_key", file.Key), attribute.String("databridge.dataset", dataset.Name))
	defer span.End()

	tmpPath, downloadMS, err := p.downloadToTemp(ctx, file.Key)
	if err != nil {
		return outcome, apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "downloading "+file.Key, err)
	}
	defer os.Remove(tmpPath)

	outcome.DownloadDurationMS = downloadMS

	rowEstimate, err := estimateRowCount(tmpPath)
	if err != nil {
		return outcome, apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "estimating row count", err)
	}

	parseStart := time.Now()

	f, err := os.Open(tmpPath)
	if err != nil {
		return outcome, apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "opening temp file", err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1

	headerFields, err := reader.Read()
	if err != nil {
		return outcome, apperr.Wrap(apperr.KindSchema, "ingestion", "IngestFile", "reading header of "+file.Key, err)
	}

	headers := make([]string, len(headerFields))
	for i, h := range headerFields {
		headers[i] = strings.TrimSpace(strings.Trim(h, `"`))
	}

	if err := validateHeaders(headers, dataset); err != nil {
		return outcome, err
	}

	coll := p.db.Collection(dataset.Name)
	if err := ensureWildcardIndex(ctx, coll, dataset.Name); err != nil && p.logger != nil {
		p.logger.WithError(err).Warn("wildcard index creation failed, continuing")
	}

	progress := NewProgress(file.Key, rowEstimate, time.Now())

	var batch []Row
	var bufferedEvents []lineage.Event
	rowsSinceProgress := 0

	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}

		result, events, err := ApplyBatch(ctx, coll, dataset, batch, importID, file.Key, time.Now(), p.logger)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "applying batch", err)
		}

		outcome.RecordsCreated += result.Created
		outcome.RecordsUpdated += result.Updated
		outcome.RecordsDeleted += result.Deleted
		outcome.RowsSkipped += result.Skipped
		outcome.RecordsProcessed += len(batch)

		telemetry.RecordsMutated.WithLabelValues(dataset.Name, "created").Add(float64(result.Created))
		telemetry.RecordsMutated.WithLabelValues(dataset.Name, "updated").Add(float64(result.Updated))
		telemetry.RecordsMutated.WithLabelValues(dataset.Name, "deleted").Add(float64(result.Deleted))
		telemetry.RowsSkipped.WithLabelValues(dataset.Name).Add(float64(result.Skipped))

		bufferedEvents = append(bufferedEvents, events...)
		batch = batch[:0]

		if len(bufferedEvents) >= lineageFlushAt {
			if err := p.lineage.Append(ctx, bufferedEvents); err != nil {
				return apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "flushing lineage events", err)
			}
			bufferedEvents = bufferedEvents[:0]
		}

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return outcome, apperr.Wrap(apperr.KindRow, "ingestion", "IngestFile", "reading row", err)
		}

		row := rowToMap(headers, record)
		batch = append(batch, Row{Values: row, ChangeType: row[dataset.ChangeTypeHeader]})
		rowsSinceProgress++

		if len(batch) >= batchSize {
			if err := flushBatch(); err != nil {
				return outcome, err
			}
		}

		if rowsSinceProgress >= progressEveryRows {
			progress.Advance(int64(rowsSinceProgress), time.Now())
			rowsSinceProgress = 0
			if onProgress != nil {
				onProgress(progress.Snapshot(time.Now()))
			}
		}
	}

	if err := flushBatch(); err != nil {
		return outcome, err
	}

	if len(bufferedEvents) > 0 {
		if err := p.lineage.Append(ctx, bufferedEvents); err != nil {
			return outcome, apperr.Wrap(apperr.KindStorage, "ingestion", "IngestFile", "flushing final lineage events", err)
		}
	}

	if rowsSinceProgress > 0 {
		progress.Advance(int64(rowsSinceProgress), time.Now())
	}
	progress.Complete(time.Now())
	if onProgress != nil {
		onProgress(progress.Snapshot(time.Now()))
	}

	outcome.ParseDurationMS = time.Since(parseStart).Milliseconds()

	return outcome, nil
}

func (p *Pipeline) downloadToTemp(ctx context.Context, key string) (string, int64, error) {
	start := time.Now()

	src, err := p.store.OpenRead(ctx, key)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "ingestion-*.csv")
	if err != nil {
		return "", 0, err
	}
	defer tmp.Close()

	buf := make([]byte, downloadBufferSize)
	if _, err := io.CopyBuffer(tmp, src, buf); err != nil {
		os.Remove(tmp.Name())

		return "", 0, err
	}

	return tmp.Name(), time.Since(start).Milliseconds(), nil
}

func estimateRowCount(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	buf := make([]byte, 64*1024)

	var newlines int64
	var lastByte byte
	var sawAny bool

	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				newlines++
			}
		}
		if n > 0 {
			lastByte = buf[n-1]
			sawAny = true
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	rows := newlines - 1
	if sawAny && lastByte != '\n' {
		rows++
	}
	if rows < 0 {
		rows = 0
	}

	return rows, nil
}

func validateHeaders(headers []string, dataset catalogue.DatasetDefinition) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var missing []string
	for _, pk := range dataset.PrimaryKeyHeaders {
		if !present[pk] {
			missing = append(missing, pk)
		}
	}
	if !present[dataset.ChangeTypeHeader] {
		missing = append(missing, dataset.ChangeTypeHeader)
	}

	if len(missing) > 0 {
		return apperr.New(apperr.KindSchema, "ingestion", "validateHeaders",
			"missing columns "+strings.Join(missing, ",")+"; available: "+strings.Join(headers, ","))
	}

	return nil
}

func rowToMap(headers, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}

	return row
}

func ensureWildcardIndex(ctx context.Context, coll docstore.Collection, name string) error {
	return coll.EnsureIndex(ctx, bson.D{{Key: "$**", Value: 1}}, docstore.IndexOptions{Name: name + "_wildcard"})
}
