package docstore

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryDatabase is an in-process Database fake backing unit tests
// that exercise ingestion, lineage and reporting logic without a live
// Mongo deployment. It understands the narrow subset of query/update
// operators this engine actually issues: the filters listed on matches,
// and $set/$setOnInsert/$unset/$addToSet(+$each) updates. Find ignores
// FindOptions.Project.
type MemoryDatabase struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemoryDatabase returns an empty fake database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{collections: make(map[string]*memoryCollection)}
}

func (d *MemoryDatabase) Collection(name string) Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]bson.M)}
		d.collections[name] = c
	}

	return c
}

// Docs returns a snapshot of every document in name, keyed by _id, for
// test assertions.
func (d *MemoryDatabase) Docs(name string) map[string]bson.M {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		return nil
	}

	return c.snapshot()
}

type memoryCollection struct {
	mu   sync.Mutex
	docs map[string]bson.M
}

func (c *memoryCollection) snapshot() map[string]bson.M {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]bson.M, len(c.docs))
	for id, doc := range c.docs {
		out[id] = cloneDoc(doc)
	}

	return out
}

func cloneDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	return out
}

func (c *memoryCollection) FindOne(_ context.Context, filter bson.M) (bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return cloneDoc(doc), nil
		}
	}

	return nil, ErrNoDocuments
}

func (c *memoryCollection) Find(_ context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	c.mu.Lock()
	var matched []bson.M
	for _, doc := range c.docs {
		if matches(doc, filter) {
			matched = append(matched, cloneDoc(doc))
		}
	}
	c.mu.Unlock()

	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, s := range opts.Sort {
				vi, vj := matched[i][s.Field], matched[j][s.Field]
				cmp := compareValues(vi, vj)
				if cmp == 0 {
					continue
				}
				if s.Ascending {
					return cmp < 0
				}

				return cmp > 0
			}

			return false
		})
	}

	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return matched, nil
}

func (c *memoryCollection) CountDocuments(_ context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for _, doc := range c.docs {
		if matches(doc, filter) {
			n++
		}
	}

	return n, nil
}

func (c *memoryCollection) UpsertOne(_ context.Context, filter, update bson.M) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upsertLocked(filter, update)

	return nil
}

func (c *memoryCollection) upsertLocked(filter, update bson.M) {
	id, _ := filter["_id"].(string)

	doc, existed := c.docs[id]
	if !existed {
		doc = bson.M{"_id": id}
	}

	applyUpdate(doc, update, !existed)
	c.docs[id] = doc
}

func (c *memoryCollection) BulkWrite(_ context.Context, writes []BulkWrite) (BulkResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result BulkResult
	for _, w := range writes {
		switch {
		case w.InsertDocument != nil:
			id, _ := w.InsertDocument["_id"].(string)
			c.docs[id] = cloneDoc(w.InsertDocument)
			result.Inserted++
		case w.Delete:
			id, _ := w.Filter["_id"].(string)
			delete(c.docs, id)
			result.Deleted++
		default:
			id, _ := w.Filter["_id"].(string)
			_, existed := c.docs[id]
			if !existed && !w.Upsert {
				continue
			}
			c.upsertLocked(w.Filter, w.Update)
			if existed {
				result.Matched++
				result.Modified++
			} else if w.Upsert {
				result.Upserted++
			}
		}
	}

	return result, nil
}

func (c *memoryCollection) EnsureIndex(_ context.Context, _ bson.D, _ IndexOptions) error {
	return nil
}

// matches supports the narrow operator set this engine's own code
// issues: equality, $in, the query facade's $eq/$ne/$gt/$gte/$lt/$lte
// comparisons, $and/$or/$nor composition, and regex text matches.
func matches(doc, filter bson.M) bool {
	for field, want := range filter {
		switch field {
		case "$and":
			for _, sub := range want.([]bson.M) {
				if !matches(doc, sub) {
					return false
				}
			}

			continue
		case "$or":
			any := false
			for _, sub := range want.([]bson.M) {
				if matches(doc, sub) {
					any = true

					break
				}
			}
			if !any {
				return false
			}

			continue
		case "$nor":
			for _, sub := range want.([]bson.M) {
				if matches(doc, sub) {
					return false
				}
			}

			continue
		}

		got, present := doc[field]

		if regex, ok := want.(primitive.Regex); ok {
			text, _ := got.(string)
			if !present || !matchRegex(regex, text) {
				return false
			}

			continue
		}

		if m, ok := want.(bson.M); ok {
			if !matchOperators(m, got, present) {
				return false
			}

			continue
		}

		if !present || !valuesEqual(got, want) {
			return false
		}
	}

	return true
}

func matchOperators(ops bson.M, got interface{}, present bool) bool {
	for op, value := range ops {
		switch op {
		case "$in":
			if !present || !containsValue(value, got) {
				return false
			}
		case "$eq":
			if !present || !valuesEqual(got, value) {
				return false
			}
		case "$ne":
			if present && valuesEqual(got, value) {
				return false
			}
		case "$gt":
			if !present || compareValues(got, value) <= 0 {
				return false
			}
		case "$gte":
			if !present || compareValues(got, value) < 0 {
				return false
			}
		case "$lt":
			if !present || compareValues(got, value) >= 0 {
				return false
			}
		case "$lte":
			if !present || compareValues(got, value) > 0 {
				return false
			}
		}
	}

	return true
}

func matchRegex(r primitive.Regex, text string) bool {
	opts := ""
	if strings.Contains(r.Options, "i") {
		opts = "(?i)"
	}

	re, err := regexp.Compile(opts + r.Pattern)
	if err != nil {
		return false
	}

	return re.MatchString(text)
}

func containsValue(list interface{}, want interface{}) bool {
	switch l := list.(type) {
	case []string:
		for _, v := range l {
			if valuesEqual(v, want) {
				return true
			}
		}
	case []interface{}:
		for _, v := range l {
			if valuesEqual(v, want) {
				return true
			}
		}
	}

	return false
}

func valuesEqual(a, b interface{}) bool {
	return a == b
}

func compareValues(a, b interface{}) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// applyUpdate interprets the $set/$unset/$setOnInsert/$addToSet(+$each)
// subset of Mongo's update-document grammar this engine ever writes.
func applyUpdate(doc bson.M, update bson.M, isInsert bool) {
	if set, ok := update["$set"].(bson.M); ok {
		for k, v := range set {
			doc[k] = v
		}
	}

	if unset, ok := update["$unset"].(bson.M); ok {
		for k := range unset {
			delete(doc, k)
		}
	}

	if isInsert {
		if setOnInsert, ok := update["$setOnInsert"].(bson.M); ok {
			for k, v := range setOnInsert {
				doc[k] = v
			}
		}
	}

	if addToSet, ok := update["$addToSet"].(bson.M); ok {
		for field, spec := range addToSet {
			existing, _ := doc[field].([]string)

			var toAdd []string
			if each, ok := spec.(bson.M); ok {
				if values, ok := each["$each"].([]string); ok {
					toAdd = values
				}
			} else if value, ok := spec.(string); ok {
				toAdd = []string{value}
			}

			for _, v := range toAdd {
				if !stringSliceContains(existing, v) {
					existing = append(existing, v)
				}
			}

			doc[field] = existing
		}
	}
}

func stringSliceContains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}

	return false
}
