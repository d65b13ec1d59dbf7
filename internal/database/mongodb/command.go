package mongodb

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
)

// cursorCommands return a cursor and are drained with getMore.
var cursorCommands = map[string]bool{
	"find":            true,
	"aggregate":       true,
	"listCollections": true,
	"listIndexes":     true,
}

// writeCommands report the number of documents they touched in "n".
var writeCommands = map[string]bool{
	"insert":        true,
	"update":        true,
	"delete":        true,
	"findAndModify": true,
}

// parseCommand reads a database command written as Extended JSON, e.g.
// {"find": "users", "filter": {"age": {"$gt": 30}}, "limit": 10}.
func parseCommand(command string) (bson.D, string, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(strings.TrimSpace(command)), false, &doc); err != nil {
		return nil, "", errs.Query(provider, "command must be an Extended JSON document: "+err.Error(), command, err)
	}
	if len(doc) == 0 {
		return nil, "", errs.Query(provider, "command document is empty", command, nil)
	}

	name := doc[0].Key
	if name == "aggregate" && !hasKey(doc, "cursor") {
		doc = append(doc, bson.E{Key: "cursor", Value: bson.D{}})
	}
	return doc, name, nil
}

func hasKey(doc bson.D, key string) bool {
	for _, e := range doc {
		if e.Key == key {
			return true
		}
	}
	return false
}

// runCommand executes doc against db and shapes the reply as rows.
func runCommand(ctx context.Context, db *mongo.Database, doc bson.D, name string) (*database.QueryResult, error) {
	if cursorCommands[name] {
		cur, err := db.RunCommandCursor(ctx, doc)
		if err != nil {
			return nil, err
		}
		var docs []bson.D
		if err := cur.All(ctx, &docs); err != nil {
			return nil, err
		}
		rows, fields := documentsToRows(docs)
		return &database.QueryResult{Rows: rows, Fields: fields, RowCount: len(rows)}, nil
	}

	var reply bson.D
	if err := db.RunCommand(ctx, doc).Decode(&reply); err != nil {
		return nil, err
	}
	rows, fields := documentsToRows([]bson.D{reply})
	res := &database.QueryResult{Rows: rows, Fields: fields, RowCount: len(rows)}
	if writeCommands[name] {
		res.RowsAffected = toInt64(field(reply, "n"))
	}
	return res, nil
}

// documentsToRows flattens documents into rows. Fields is the union of
// top-level keys in first-seen order.
func documentsToRows(docs []bson.D) ([]map[string]any, []string) {
	rows := make([]map[string]any, 0, len(docs))
	fields := []string{}
	seen := make(map[string]bool)

	for _, d := range docs {
		row := make(map[string]any, len(d))
		for _, e := range d {
			if !seen[e.Key] {
				seen[e.Key] = true
				fields = append(fields, e.Key)
			}
			row[e.Key] = normalize(e.Value)
		}
		rows = append(rows, row)
	}
	return rows, fields
}

// normalize converts BSON values into plain Go values that encode to
// readable JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []any:
		return normalize(bson.A(t))
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	case bson.Decimal128:
		return t.String()
	case bson.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case bson.Binary:
		return base64.StdEncoding.EncodeToString(t.Data)
	case bson.Null, bson.Undefined:
		return nil
	default:
		return v
	}
}

// lookup returns the value at a dotted path in doc, or nil.
func lookup(doc bson.D, path string) any {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		d, ok := cur.(bson.D)
		if !ok {
			return nil
		}
		cur = field(d, key)
	}
	return cur
}

// field returns the value of a single key, which may itself contain dots.
func field(d bson.D, key string) any {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return float64(toInt64(v))
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
