package mysql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/koustreak/dblens/internal/database"
)

// introspector implements database.Introspector over information_schema.
// In MySQL a schema is a database, so schema is the current database name.
type introspector struct {
	db *sql.DB
}

func (i *introspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME`

	return i.fetchStringList(ctx, q, schema)
}

func (i *introspector) InspectTable(ctx context.Context, schema, table string) (*database.TableSchema, error) {
	const q = `
		SELECT c.COLUMN_NAME,
		       c.COLUMN_TYPE,
		       c.IS_NULLABLE = 'YES',
		       c.COLUMN_DEFAULT,
		       c.CHARACTER_MAXIMUM_LENGTH,
		       c.COLUMN_KEY,
		       t.TABLE_TYPE,
		       t.TABLE_ROWS
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
		 AND t.TABLE_NAME   = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ?
		  AND c.TABLE_NAME   = ?
		ORDER BY c.ORDINAL_POSITION`

	rows, err := i.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ts := &database.TableSchema{Schema: schema, Name: table, Type: "table"}
	for rows.Next() {
		var (
			col       database.ColumnSchema
			def       sql.NullString
			maxLen    sql.NullInt64
			key       string
			tableType string
			tableRows sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &def, &maxLen,
			&key, &tableType, &tableRows); err != nil {
			return nil, err
		}
		if def.Valid {
			s := def.String
			col.Default = &s
		}
		if maxLen.Valid {
			n := int(maxLen.Int64)
			col.MaxLength = &n
		}
		col.PrimaryKey = key == "PRI"
		col.Unique = key == "UNI"
		if tableType == "VIEW" {
			ts.Type = "view"
		}
		if tableRows.Valid && ts.RowCount == nil {
			n := tableRows.Int64
			ts.RowCount = &n
		}
		ts.Columns = append(ts.Columns, col)
	}
	return ts, rows.Err()
}

func (i *introspector) ListIndexes(ctx context.Context, schema, table string) ([]database.IndexSchema, error) {
	const q = `
		SELECT INDEX_NAME,
		       NON_UNIQUE = 0,
		       GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ',')
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME   = ?
		GROUP BY INDEX_NAME, NON_UNIQUE
		ORDER BY INDEX_NAME`

	rows, err := i.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.IndexSchema
	for rows.Next() {
		var (
			idx  database.IndexSchema
			cols string
		)
		if err := rows.Scan(&idx.Name, &idx.Unique, &cols); err != nil {
			return nil, err
		}
		idx.Columns = strings.Split(cols, ",")
		idx.Primary = idx.Name == "PRIMARY"
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (i *introspector) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKeySchema, error) {
	const q = `
		SELECT CONSTRAINT_NAME,
		       TABLE_NAME,
		       COLUMN_NAME,
		       REFERENCED_TABLE_NAME,
		       REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		  AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`

	rows, err := i.db.QueryContext(ctx, q, schema)
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

func (i *introspector) fetchStringList(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, q, args...)
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
