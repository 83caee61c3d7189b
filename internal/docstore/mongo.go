package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"progportal/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoCollection struct {
	col *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = "portal"
	}
	client, err := db.OpenMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{col: m.db.Collection(name)}
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Driver() string { return DriverMongo }

// mongoID keeps ObjectId-shaped ids as ObjectIds and everything else as a
// plain string key (the stats singleton uses one).
func mongoID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func (c *mongoCollection) Insert(ctx context.Context, fields map[string]any) (string, error) {
	oid := primitive.NewObjectID()
	doc := bson.M{"_id": oid}
	for k, v := range fields {
		doc[k] = v
	}
	if _, err := c.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return oid.Hex(), nil
}

func (c *mongoCollection) FindByID(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var raw bson.M
	if err := c.col.FindOne(ctx, bson.M{"_id": mongoID(id)}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	doc := documentFromBSON(raw)
	return &doc, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	findOpts := options.Find()
	if opts.SortDesc != "" {
		findOpts.SetSort(bson.D{{Key: opts.SortDesc, Value: -1}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cur, err := c.col.Find(ctx, mongoFilter(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer cur.Close(ctx)

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	out := make([]Document, 0, len(raws))
	for _, raw := range raws {
		out = append(out, documentFromBSON(raw))
	}
	return out, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := c.col.CountDocuments(ctx, mongoFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (c *mongoCollection) UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(unset) > 0 {
		u := bson.M{}
		for _, k := range unset {
			u[k] = ""
		}
		update["$unset"] = u
	}
	if len(update) == 0 {
		return 0, nil
	}

	res, err := c.col.UpdateOne(ctx, bson.M{"_id": mongoID(id)}, update)
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return res.ModifiedCount, nil
}

func (c *mongoCollection) Replace(ctx context.Context, id string, fields map[string]any) error {
	res, err := c.col.ReplaceOne(ctx, bson.M{"_id": mongoID(id)}, bson.M(fields))
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	res, err := c.col.DeleteOne(ctx, bson.M{"_id": mongoID(id)})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Distinct(ctx context.Context, field string, filter Filter) ([]any, error) {
	values, err := c.col.Distinct(ctx, field, mongoFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, fromBSON(v))
	}
	return out, nil
}

func (c *mongoCollection) Increment(ctx context.Context, id, field string, delta int64) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{
		"$inc": bson.M{field: delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	var raw bson.M
	if err := c.col.FindOneAndUpdate(ctx, bson.M{"_id": mongoID(id)}, update, opts).Decode(&raw); err != nil {
		return 0, fmt.Errorf("increment %s: %w", field, err)
	}
	n, _ := toFloat(raw[field])
	return int64(n), nil
}

// mongoFilter translates a Filter into a query document.
func mongoFilter(f Filter) bson.M {
	switch f.op {
	case opAll:
		return bson.M{}
	case opExists:
		return bson.M{f.field: bson.M{"$exists": true}}
	case opIsArray:
		return bson.M{f.field: bson.M{"$type": "array"}}
	case opNotArray:
		return bson.M{f.field: bson.M{"$not": bson.M{"$type": "array"}}}
	case opEq:
		return bson.M{f.field: f.value}
	case opContains:
		return bson.M{f.field: bson.M{"$elemMatch": bson.M{"$eq": f.value}}}
	case opMatch:
		pattern := regexp.QuoteMeta(f.value.(string))
		return bson.M{f.field: primitive.Regex{Pattern: pattern, Options: "i"}}
	case opAnd, opOr:
		if len(f.children) == 0 {
			if f.op == opAnd {
				return bson.M{}
			}
			return bson.M{"_id": bson.M{"$exists": false}}
		}
		parts := make(bson.A, 0, len(f.children))
		for _, c := range f.children {
			parts = append(parts, mongoFilter(c))
		}
		if f.op == opAnd {
			return bson.M{"$and": parts}
		}
		return bson.M{"$or": parts}
	default:
		return bson.M{"_id": bson.M{"$exists": false}}
	}
}

func documentFromBSON(raw bson.M) Document {
	doc := Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = idString(v)
			continue
		}
		doc.Fields[k] = fromBSON(v)
	}
	return doc
}

func idString(v any) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// fromBSON strips driver-specific types so callers see plain Go values.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = fromBSON(it)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, it := range t {
			out[k] = fromBSON(it)
		}
		return out
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}
