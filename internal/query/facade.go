package query

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/pkg/apperr"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Request is one ad-hoc query request against a registered collection.
type Request struct {
	Collection string
	Filter     string
	OrderBy    string
	Select     string
	Skip       int64
	Top        int64
	Count      bool
}

// Result is the facade's response envelope.
type Result struct {
	Collection string
	Data       []bson.M
	Count      int
	TotalCount *int64
	Skip       int64
	Top        int64
	Filter     string
	OrderBy    string
	Select     string
	ExecutedAt time.Time
}

// Facade parses and executes ad-hoc queries against registered
// dataset collections.
type Facade struct {
	registry *catalogue.Registry
	db       docstore.Database
	logger   *logrus.Logger
}

// New builds a Facade validating collection names against registry.
func New(registry *catalogue.Registry, db docstore.Database, logger *logrus.Logger) *Facade {
	return &Facade{registry: registry, db: db, logger: logger}
}

// Execute parses req's grammar and runs it, returning a QueryError for
// any unknown collection, unsupported construct, or invalid page size.
func (f *Facade) Execute(ctx context.Context, req Request, now time.Time) (Result, error) {
	definition, ok := f.registry.Lookup(req.Collection)
	if !ok {
		return Result{}, apperr.New(apperr.KindQuery, "query", "Execute", "unknown collection: "+req.Collection)
	}

	top := req.Top
	switch {
	case top < 0:
		return Result{}, apperr.New(apperr.KindQuery, "query", "Execute", "top must be > 0")
	case top == 0:
		top = defaultPageSize
	case top > maxPageSize:
		if f.logger != nil {
			f.logger.WithField("requested_top", top).Warn("capping page size to maximum")
		}
		top = maxPageSize
	}

	filterExpr, err := ParseFilter(req.Filter)
	if err != nil {
		return Result{}, err
	}

	sortClauses, err := ParseSort(req.OrderBy)
	if err != nil {
		return Result{}, err
	}

	selectFields, err := ParseSelect(req.Select)
	if err != nil {
		return Result{}, err
	}

	filter, err := ToMongoFilter(filterExpr)
	if err != nil {
		return Result{}, err
	}

	coll := f.db.Collection(definition.Name)

	docs, err := coll.Find(ctx, filter, docstore.FindOptions{
		Sort:    toSortSpecs(sortClauses),
		Skip:    req.Skip,
		Limit:   top,
		Project: ToMongoProjection(selectFields),
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindStorage, "query", "Execute", "executing find", err)
	}

	if len(selectFields) > 0 {
		docs = projectDocs(docs, selectFields)
	}

	result := Result{
		Collection: definition.Name,
		Data:       docs,
		Count:      len(docs),
		Skip:       req.Skip,
		Top:        top,
		Filter:     req.Filter,
		OrderBy:    req.OrderBy,
		Select:     req.Select,
		ExecutedAt: now,
	}

	if req.Count {
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindStorage, "query", "Execute", "executing count", err)
		}
		result.TotalCount = &total
	}

	return result, nil
}

func toSortSpecs(clauses []SortClause) []docstore.SortSpec {
	specs := make([]docstore.SortSpec, 0, len(clauses))
	for _, c := range clauses {
		specs = append(specs, docstore.SortSpec{Field: c.Field, Ascending: c.Ascending})
	}

	return specs
}

// projectDocs applies §4.8's projection rule in-process: a document's
// key k survives if it case-insensitively equals a selected field, or
// if its prefix up to a "." matches a selected field name.
func projectDocs(docs []bson.M, fields []string) []bson.M {
	projected := make([]bson.M, len(docs))
	for i, doc := range docs {
		out := bson.M{}
		for k, v := range doc {
			if fieldSelected(k, fields) {
				out[k] = v
			}
		}
		projected[i] = out
	}

	return projected
}

func fieldSelected(key string, fields []string) bool {
	for _, f := range fields {
		if strings.EqualFold(key, f) {
			return true
		}
		if strings.HasPrefix(key, f+".") {
			return true
		}
	}

	return false
}
