package database

import (
	"context"
	"sort"
)

// Introspector reads the structure of a database. Each SQL backend
// implements the engine-specific catalog queries; InspectSchema is shared.
type Introspector interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	InspectTable(ctx context.Context, schema, table string) (*TableSchema, error)
	ListIndexes(ctx context.Context, schema, table string) ([]IndexSchema, error)
	ListForeignKeys(ctx context.Context, schema string) ([]ForeignKeySchema, error)
}

// InspectSchema builds the table list by orchestrating the Introspector:
// tables, then columns and indexes per table, then foreign keys attached
// to their owning table. The result is sorted by table name and never nil.
func InspectSchema(ctx context.Context, i Introspector, schema string) ([]TableSchema, error) {
	names, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	tables := make([]TableSchema, 0, len(names))
	byName := make(map[string]int, len(names))

	for _, name := range names {
		ts, err := i.InspectTable(ctx, schema, name)
		if err != nil {
			return nil, err
		}
		idx, err := i.ListIndexes(ctx, schema, name)
		if err != nil {
			return nil, err
		}
		ts.Indexes = idx
		if ts.Indexes == nil {
			ts.Indexes = []IndexSchema{}
		}
		ts.ForeignKeys = []ForeignKeySchema{}
		if ts.Columns == nil {
			ts.Columns = []ColumnSchema{}
		}
		if ts.Type == "" {
			ts.Type = "table"
		}
		byName[name] = len(tables)
		tables = append(tables, *ts)
	}

	fks, err := i.ListForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		if pos, ok := byName[fk.Table]; ok {
			tables[pos].ForeignKeys = append(tables[pos].ForeignKeys, fk)
		}
	}

	sort.Slice(tables, func(a, b int) bool { return tables[a].Name < tables[b].Name })
	return tables, nil
}
