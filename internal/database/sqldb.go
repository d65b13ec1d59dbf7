package database

import (
	"context"
	"database/sql"

	"github.com/koustreak/dblens/internal/pool"
)

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

// FromSQLRows adapts *sql.Rows to Rows.
func FromSQLRows(r *sql.Rows) Rows {
	return sqlRows{r}
}

// RunSQL executes command on a database/sql pool. Writes without RETURNING
// and DDL report the affected row count; everything else is scanned.
func RunSQL(ctx context.Context, db *sql.DB, command string, params []any) (*QueryResult, error) {
	if returnsRows(command) {
		rows, err := db.QueryContext(ctx, command, params...)
		if err != nil {
			return nil, err
		}
		data, fields, err := ScanRows(FromSQLRows(rows))
		if err != nil {
			return nil, err
		}
		return &QueryResult{Rows: data, Fields: fields, RowCount: len(data)}, nil
	}

	res, err := db.ExecContext(ctx, command, params...)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return &QueryResult{RowsAffected: affected}, nil
}

type sqlConn struct{ c *sql.Conn }

func (c sqlConn) Ping(ctx context.Context) error { return c.c.PingContext(ctx) }
func (c sqlConn) Release()                       { _ = c.c.Close() }

// SQLAcquirer lets pool.CheckConnectionHealth check a database/sql pool.
func SQLAcquirer(db *sql.DB) pool.Acquirer {
	return pool.AcquirerFunc(func(ctx context.Context) (pool.Conn, error) {
		c, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return sqlConn{c}, nil
	})
}
