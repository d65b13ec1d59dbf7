package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/koustreak/dblens/internal/database"
)

// mainSchema is the schema name SQLite gives the primary database file.
const mainSchema = "main"

// lengthPattern pulls n out of declared types like VARCHAR(n).
var lengthPattern = regexp.MustCompile(`\((\d+)\)`)

// introspector implements database.Introspector with sqlite_master and
// the pragma table-valued functions.
type introspector struct {
	db *sql.DB
}

func (i *introspector) ListTables(ctx context.Context, _ string) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (i *introspector) InspectTable(ctx context.Context, schema, table string) (*database.TableSchema, error) {
	ts := &database.TableSchema{Schema: schema, Name: table, Type: "table"}

	var kind string
	if err := i.db.QueryRowContext(ctx, "SELECT type FROM sqlite_master WHERE name = ?", table).Scan(&kind); err != nil {
		return nil, err
	}
	if kind == "view" {
		ts.Type = "view"
	}

	const q = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	rows, err := i.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			col     database.ColumnSchema
			notNull bool
			def     sql.NullString
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		col.Nullable = !notNull && pk == 0
		col.PrimaryKey = pk > 0
		if def.Valid {
			s := def.String
			col.Default = &s
		}
		if m := lengthPattern.FindStringSubmatch(col.DataType); m != nil {
			n, _ := strconv.Atoi(m[1])
			col.MaxLength = &n
		}
		ts.Columns = append(ts.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := i.markUnique(ctx, ts); err != nil {
		return nil, err
	}

	if ts.Type == "table" {
		var n int64
		q := "SELECT COUNT(*) FROM " + database.DialectSQLite.QuoteIdent(table)
		if err := i.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, err
		}
		ts.RowCount = &n
	}
	return ts, nil
}

// markUnique flags columns covered on their own by a unique index.
func (i *introspector) markUnique(ctx context.Context, ts *database.TableSchema) error {
	idx, err := i.ListIndexes(ctx, ts.Schema, ts.Name)
	if err != nil {
		return err
	}
	unique := make(map[string]bool)
	for _, ix := range idx {
		if ix.Unique && !ix.Primary && len(ix.Columns) == 1 {
			unique[ix.Columns[0]] = true
		}
	}
	for c := range ts.Columns {
		ts.Columns[c].Unique = unique[ts.Columns[c].Name]
	}
	return nil
}

func (i *introspector) ListIndexes(ctx context.Context, _, table string) ([]database.IndexSchema, error) {
	const q = `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`

	rows, err := i.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}

	var out []database.IndexSchema
	for rows.Next() {
		var (
			idx    database.IndexSchema
			origin string
		)
		if err := rows.Scan(&idx.Name, &idx.Unique, &origin); err != nil {
			rows.Close()
			return nil, err
		}
		idx.Primary = origin == "pk"
		out = append(out, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for n := range out {
		cols, err := i.indexColumns(ctx, out[n].Name)
		if err != nil {
			return nil, err
		}
		out[n].Columns = cols
	}
	return out, nil
}

func (i *introspector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []string{}
	for rows.Next() {
		var c sql.NullString
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		// Expression indexes have no column name.
		if c.Valid {
			cols = append(cols, c.String)
		}
	}
	return cols, rows.Err()
}

func (i *introspector) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKeySchema, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	var fks []database.ForeignKeySchema
	for _, t := range tables {
		rows, err := i.db.QueryContext(ctx, `SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, t)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				id int
				fk database.ForeignKeySchema
				to sql.NullString
			)
			if err := rows.Scan(&id, &fk.RefTable, &fk.Column, &to); err != nil {
				rows.Close()
				return nil, err
			}
			fk.Name = fmt.Sprintf("fk_%s_%d", t, id)
			fk.Table = t
			// A NULL target column references the parent's primary key.
			fk.RefColumn = to.String
			fks = append(fks, fk)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return fks, nil
}
