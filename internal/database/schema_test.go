package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntrospector struct {
	tables  []string
	fks     []ForeignKeySchema
	failOn  string
	schemas []string
}

func (f *fakeIntrospector) ListTables(_ context.Context, schema string) ([]string, error) {
	f.schemas = append(f.schemas, schema)
	return f.tables, nil
}

func (f *fakeIntrospector) InspectTable(_ context.Context, schema, table string) (*TableSchema, error) {
	if table == f.failOn {
		return nil, errors.New("relation does not exist")
	}
	return &TableSchema{
		Schema:  schema,
		Name:    table,
		Columns: []ColumnSchema{{Name: "id", DataType: "integer", PrimaryKey: true}},
	}, nil
}

func (f *fakeIntrospector) ListIndexes(_ context.Context, _, table string) ([]IndexSchema, error) {
	if table == "orders" {
		return []IndexSchema{{Name: "orders_pkey", Columns: []string{"id"}, Unique: true, Primary: true}}, nil
	}
	return nil, nil
}

func (f *fakeIntrospector) ListForeignKeys(context.Context, string) ([]ForeignKeySchema, error) {
	return f.fks, nil
}

func TestInspectSchema(t *testing.T) {
	in := &fakeIntrospector{
		tables: []string{"users", "orders"},
		fks: []ForeignKeySchema{
			{Name: "orders_user_fk", Table: "orders", Column: "user_id", RefTable: "users", RefColumn: "id"},
			{Name: "dangling", Table: "ghost", Column: "x", RefTable: "users", RefColumn: "id"},
		},
	}

	got, err := InspectSchema(context.Background(), in, "public")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"public"}, in.schemas)

	assert.Equal(t, "orders", got[0].Name)
	assert.Equal(t, "table", got[0].Type)
	assert.Len(t, got[0].Indexes, 1)
	require.Len(t, got[0].ForeignKeys, 1)
	assert.Equal(t, "users", got[0].ForeignKeys[0].RefTable)

	assert.Equal(t, "users", got[1].Name)
	assert.NotNil(t, got[1].Indexes)
	assert.NotNil(t, got[1].ForeignKeys)
}

func TestInspectSchema_Empty(t *testing.T) {
	got, err := InspectSchema(context.Background(), &fakeIntrospector{}, "")

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInspectSchema_PropagatesError(t *testing.T) {
	_, err := InspectSchema(context.Background(), &fakeIntrospector{tables: []string{"a", "b"}, failOn: "b"}, "")
	assert.Error(t, err)
}
