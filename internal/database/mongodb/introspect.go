package mongodb

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/koustreak/dblens/internal/database"
)

// sampleSize is how many documents are read to infer a collection's fields.
const sampleSize = 100

// introspector implements database.Introspector. Collections have no
// declared columns, so they are inferred from a sample of documents.
type introspector struct {
	db *mongo.Database
}

func (i *introspector) ListTables(ctx context.Context, _ string) ([]string, error) {
	specs, err := i.db.ListCollectionSpecifications(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range specs {
		if strings.HasPrefix(s.Name, "system.") {
			continue
		}
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (i *introspector) InspectTable(ctx context.Context, schema, name string) (*database.TableSchema, error) {
	ts := &database.TableSchema{Schema: schema, Name: name, Type: "collection"}

	specs, err := i.db.ListCollectionSpecifications(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return nil, err
	}
	if len(specs) == 1 && specs[0].Type == "view" {
		ts.Type = "view"
	}

	coll := i.db.Collection(name)
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return nil, err
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ts.Columns = inferColumns(docs)

	if ts.Type == "collection" {
		n, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, err
		}
		ts.RowCount = &n
	}
	return ts, nil
}

// inferColumns derives columns from sampled documents. A field missing
// from some documents, or null in any, is nullable; a field seen with
// several types reports "mixed".
func inferColumns(docs []bson.D) []database.ColumnSchema {
	type info struct {
		typ      string
		count    int
		nullable bool
	}
	var order []string
	fields := make(map[string]*info)

	for _, d := range docs {
		for _, e := range d {
			f, ok := fields[e.Key]
			if !ok {
				f = &info{}
				fields[e.Key] = f
				order = append(order, e.Key)
			}
			f.count++
			t := bsonType(e.Value)
			switch {
			case t == "null":
				f.nullable = true
			case f.typ == "":
				f.typ = t
			case f.typ != t:
				f.typ = "mixed"
			}
		}
	}

	cols := make([]database.ColumnSchema, 0, len(order))
	if _, ok := fields["_id"]; !ok {
		cols = append(cols, database.ColumnSchema{Name: "_id", DataType: "objectId", PrimaryKey: true, Unique: true})
	}
	for _, name := range order {
		f := fields[name]
		typ := f.typ
		if typ == "" {
			typ = "null"
		}
		cols = append(cols, database.ColumnSchema{
			Name:       name,
			DataType:   typ,
			Nullable:   f.nullable || f.count < len(docs),
			PrimaryKey: name == "_id",
			Unique:     name == "_id",
		})
	}
	return cols
}

func bsonType(v any) string {
	switch v.(type) {
	case nil, bson.Null:
		return "null"
	case string:
		return "string"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "double"
	case bool:
		return "bool"
	case bson.ObjectID:
		return "objectId"
	case bson.DateTime:
		return "date"
	case bson.Decimal128:
		return "decimal"
	case bson.D, bson.M:
		return "object"
	case bson.A, []any:
		return "array"
	case bson.Binary:
		return "binData"
	case bson.Timestamp:
		return "timestamp"
	}
	return "unknown"
}

func (i *introspector) ListIndexes(ctx context.Context, _, name string) ([]database.IndexSchema, error) {
	specs, err := i.db.Collection(name).Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]database.IndexSchema, 0, len(specs))
	for _, s := range specs {
		idx := database.IndexSchema{
			Name:    s.Name,
			Unique:  s.Unique != nil && *s.Unique,
			Primary: s.Name == "_id_",
		}
		if idx.Primary {
			idx.Unique = true
		}
		elems, err := s.KeysDocument.Elements()
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			idx.Columns = append(idx.Columns, e.Key())
		}
		out = append(out, idx)
	}
	return out, nil
}

// ListForeignKeys is empty: MongoDB has no declared references.
func (i *introspector) ListForeignKeys(context.Context, string) ([]database.ForeignKeySchema, error) {
	return nil, nil
}
