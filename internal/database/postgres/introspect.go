package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dblens/internal/database"
)

// introspector implements database.Introspector with information_schema
// and pg_catalog queries.
type introspector struct {
	pool *pgxpool.Pool
}

func (i *introspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`

	return i.fetchStringList(ctx, q, schema)
}

func (i *introspector) InspectTable(ctx context.Context, schema, table string) (*database.TableSchema, error) {
	const q = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       c.column_default,
		       c.character_maximum_length,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = c.table_schema
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       ),
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'UNIQUE'
		             AND tc.table_schema    = c.table_schema
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       ),
		       (SELECT t.table_type FROM information_schema.tables t
		         WHERE t.table_schema = c.table_schema AND t.table_name = c.table_name)
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		  AND c.table_name   = $2
		ORDER BY c.ordinal_position`

	rows, err := i.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ts := &database.TableSchema{Schema: schema, Name: table, Type: "table"}
	for rows.Next() {
		var (
			col       database.ColumnSchema
			maxLen    *int32
			tableType string
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.Default, &maxLen,
			&col.PrimaryKey, &col.Unique, &tableType); err != nil {
			return nil, err
		}
		if maxLen != nil {
			n := int(*maxLen)
			col.MaxLength = &n
		}
		if tableType == "VIEW" {
			ts.Type = "view"
		}
		ts.Columns = append(ts.Columns, col)
	}
	return ts, rows.Err()
}

func (i *introspector) ListIndexes(ctx context.Context, schema, table string) ([]database.IndexSchema, error) {
	const q = `
		SELECT ic.relname,
		       ix.indisunique,
		       ix.indisprimary,
		       array_agg(a.attname ORDER BY k.ord)::text[]
		FROM pg_index ix
		JOIN pg_class t      ON t.oid = ix.indrelid
		JOIN pg_class ic     ON ic.oid = ix.indexrelid
		JOIN pg_namespace n  ON n.oid = t.relnamespace
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a  ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1
		  AND t.relname = $2
		GROUP BY ic.relname, ix.indisunique, ix.indisprimary
		ORDER BY ic.relname`

	rows, err := i.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.IndexSchema
	for rows.Next() {
		var idx database.IndexSchema
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Primary, &idx.Columns); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (i *introspector) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKeySchema, error) {
	const q = `
		SELECT tc.constraint_name,
		       tc.table_name,
		       kcu.column_name,
		       ccu.table_name  AS ref_table,
		       ccu.column_name AS ref_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		ORDER BY tc.table_name, tc.constraint_name`

	rows, err := i.pool.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []database.ForeignKeySchema
	for rows.Next() {
		var fk database.ForeignKeySchema
		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// fetchStringList is a helper for queries that return a single text column.
func (i *introspector) fetchStringList(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := i.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
