package docstore

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase resolves collections against one *mongo.Database.
type MongoDatabase struct {
	db     *mongo.Database
	logger *logrus.Logger
}

// NewMongoDatabase connects to uri and selects dbName. The connection
// is verified with Ping before returning.
func NewMongoDatabase(ctx context.Context, uri, dbName string, logger *logrus.Logger) (*MongoDatabase, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &MongoDatabase{db: client.Database(dbName), logger: logger}, nil
}

func (d *MongoDatabase) Collection(name string) Collection {
	return &mongoCollection{coll: d.db.Collection(name), logger: d.logger}
}

type mongoCollection struct {
	coll   *mongo.Collection
	logger *logrus.Logger
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M

	err := c.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()

	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, s := range opts.Sort {
			dir := 1
			if !s.Ascending {
				dir = -1
			}
			sort = append(sort, bson.E{Key: s.Field, Value: dir})
		}
		findOpts.SetSort(sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Project != nil {
		findOpts.SetProjection(opts.Project)
	}

	cursor, err := c.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	return docs, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) UpsertOne(ctx context.Context, filter, update bson.M) error {
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))

	return err
}

func (c *mongoCollection) BulkWrite(ctx context.Context, writes []BulkWrite) (BulkResult, error) {
	if len(writes) == 0 {
		return BulkResult{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		switch {
		case w.InsertDocument != nil:
			models = append(models, mongo.NewInsertOneModel().SetDocument(w.InsertDocument))
		case w.Delete:
			models = append(models, mongo.NewDeleteOneModel().SetFilter(w.Filter))
		default:
			model := mongo.NewUpdateOneModel().SetFilter(w.Filter).SetUpdate(w.Update)
			if w.Upsert {
				model.SetUpsert(true)
			}
			models = append(models, model)
		}
	}

	result, err := c.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		// Partial application is expected under unordered semantics —
		// surface it but still report what succeeded.
		var bulkErr mongo.BulkWriteException
		if !errors.As(err, &bulkErr) {
			return BulkResult{}, err
		}
		if c.logger != nil {
			c.logger.WithError(err).Warn("bulk write completed with partial failures")
		}
	}

	if result == nil {
		return BulkResult{}, err
	}

	return BulkResult{
		Inserted: result.InsertedCount,
		Upserted: result.UpsertedCount,
		Matched:  result.MatchedCount,
		Modified: result.ModifiedCount,
		Deleted:  result.DeletedCount,
	}, nil
}

func (c *mongoCollection) EnsureIndex(ctx context.Context, keys bson.D, opts IndexOptions) error {
	model := mongo.IndexModel{Keys: keys}

	indexOpts := options.Index()
	if opts.Name != "" {
		indexOpts.SetName(opts.Name)
	}
	if opts.Unique {
		indexOpts.SetUnique(true)
	}
	model.Options = indexOpts

	_, err := c.coll.Indexes().CreateOne(ctx, model)
	if err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("index creation failed, continuing without it")
	}

	return nil
}
