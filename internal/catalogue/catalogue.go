package catalogue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/pkg/apperr"
)

const maxConcurrentListings = 10

// Catalogue enumerates candidate files per dataset over a date range
// against a single read-only object store.
type Catalogue struct {
	registry *Registry
	store    objectstore.ReadOnlyStore
}

// New builds a Catalogue that lists against store for every dataset
// known to registry.
func New(registry *Registry, store objectstore.ReadOnlyStore) *Catalogue {
	return &Catalogue{registry: registry, store: store}
}

// listTask is one (dataset, date) unit of work — the unit the bounded
// fan-out schedules.
type listTask struct {
	dataset DatasetDefinition
	date    time.Time
}

// Discover returns one FileSet per registered dataset for the inclusive
// UTC date range [from, to]. Up to 10 (dataset, date) list operations
// run concurrently; the files within each FileSet are sorted ascending
// by parsed timestamp after the parallel fan-in, regardless of the
// order the listings complete in.
func (c *Catalogue) Discover(ctx context.Context, from, to time.Time) ([]FileSet, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)

	var tasks []listTask
	for _, dataset := range c.registry.All() {
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			tasks = append(tasks, listTask{dataset: dataset, date: d})
		}
	}

	var mu sync.Mutex
	filesByDataset := make(map[string][]EtlFile, len(c.registry.All()))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentListings)

	for _, task := range tasks {
		task := task
		group.Go(func() error {
			files, err := c.listOne(gctx, task)
			if err != nil {
				return err
			}

			mu.Lock()
			key := strings.ToLower(task.dataset.Name)
			filesByDataset[key] = append(filesByDataset[key], files...)
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sets := make([]FileSet, 0, len(c.registry.All()))
	for _, dataset := range c.registry.All() {
		key := strings.ToLower(dataset.Name)
		files := filesByDataset[key]

		sort.Slice(files, func(i, j int) bool {
			return files[i].Timestamp.Before(files[j].Timestamp)
		})

		sets = append(sets, FileSet{Dataset: dataset, Files: files})
	}

	return sets, nil
}

// DiscoverLookback is Discover called over today and the previous
// days-1 days; days=0 returns today only.
func (c *Catalogue) DiscoverLookback(ctx context.Context, days int, now time.Time) ([]FileSet, error) {
	to := now.UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -maxInt(days-1, 0))

	return c.Discover(ctx, from, to)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

func (c *Catalogue) listOne(ctx context.Context, task listTask) ([]EtlFile, error) {
	prefix := buildPrefix(task.dataset, task.date)

	objects, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCatalogue, "catalogue", "listOne",
			"listing prefix "+prefix+" for dataset "+task.dataset.Name, err)
	}

	files := make([]EtlFile, 0, len(objects))
	for _, obj := range objects {
		ts, err := parseTimestamp(obj.Key, task.dataset.DatetimePattern)
		if err != nil {
			return nil, err
		}

		files = append(files, EtlFile{StorageObject: obj, Timestamp: ts})
	}

	return files, nil
}

// buildPrefix substitutes date, rendered per dataset.DatePattern, into
// the dataset's {date} slot.
func buildPrefix(dataset DatasetDefinition, date time.Time) string {
	rendered := date.Format(dataset.DatePattern)

	return strings.Replace(dataset.FilePrefixFormat, "{date}", rendered, 1)
}
