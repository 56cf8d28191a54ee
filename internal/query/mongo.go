package query

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nrms/data-bridge/pkg/apperr"
)

var mongoOps = map[string]string{
	"eq": "$eq", "ne": "$ne", "gt": "$gt", "ge": "$gte", "lt": "$lt", "le": "$lte",
}

// ToMongoFilter maps a parsed Expr onto a bson.M filter document. A
// nil Expr (no filter supplied) maps to an empty match-all filter.
func ToMongoFilter(expr Expr) (bson.M, error) {
	if expr == nil {
		return bson.M{}, nil
	}

	return toMongo(expr)
}

func toMongo(expr Expr) (bson.M, error) {
	switch e := expr.(type) {
	case Comparison:
		return bson.M{e.Field: bson.M{mongoOps[e.Op]: e.Value.Value}}, nil

	case Logical:
		left, err := toMongo(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := toMongo(e.Right)
		if err != nil {
			return nil, err
		}

		switch e.Op {
		case "and":
			return bson.M{"$and": []bson.M{left, right}}, nil
		case "or":
			return bson.M{"$or": []bson.M{left, right}}, nil
		default:
			return nil, apperr.New(apperr.KindQuery, "query", "toMongo", "unsupported construct: logical operator "+e.Op)
		}

	case Not:
		inner, err := toMongo(e.Inner)
		if err != nil {
			return nil, err
		}

		return bson.M{"$nor": []bson.M{inner}}, nil

	case TextMatch:
		pattern := regexp.QuoteMeta(e.Value)

		switch e.Kind {
		case "contains":
			// no anchors
		case "startswith":
			pattern = "^" + pattern
		case "endswith":
			pattern = pattern + "$"
		default:
			return nil, apperr.New(apperr.KindQuery, "query", "toMongo", "unsupported construct: text function "+e.Kind)
		}

		return bson.M{e.Field: primitive.Regex{Pattern: pattern, Options: "i"}}, nil

	default:
		return nil, apperr.New(apperr.KindQuery, "query", "toMongo", "unsupported construct")
	}
}

// ToMongoProjection builds an inclusion-only bson.M projection from a
// parsed select list, passed to Find as a server-side hint that trims
// the documents returned over the wire. It is deliberately not the
// only projection pass: Mongo projection is exact-case and the
// in-memory docstore fake ignores Project entirely, so Facade.Execute
// always re-applies projectDocs's case-insensitive, prefix-aware rules
// in-process afterward.
func ToMongoProjection(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}

	projection := make(bson.M, len(fields)+1)
	for _, f := range fields {
		projection[f] = 1
	}
	projection["_id"] = 1

	return projection
}

// ToMongoSort builds a bson.D sort document from parsed sort clauses.
func ToMongoSort(clauses []SortClause) bson.D {
	sort := make(bson.D, 0, len(clauses))
	for _, c := range clauses {
		dir := 1
		if !c.Ascending {
			dir = -1
		}

		sort = append(sort, bson.E{Key: c.Field, Value: dir})
	}

	return sort
}
