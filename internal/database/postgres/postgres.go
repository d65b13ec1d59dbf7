// Package postgres implements database.Provider for PostgreSQL on top of
// pgxpool. It registers itself under database.TypePostgres.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

// defaultSchema is the schema GetSchema introspects.
const defaultSchema = "public"

// Provider is a PostgreSQL provider. It is safe for concurrent use.
type Provider struct {
	*database.Base
	pool *pgxpool.Pool
}

// New builds an unconnected PostgreSQL provider.
func New(desc database.Descriptor, opts database.Options) (database.Provider, error) {
	base, err := database.NewBase(desc, opts)
	if err != nil {
		return nil, err
	}
	return &Provider{Base: base}, nil
}

func (p *Provider) Validate() error {
	return p.ValidateNetwork(true)
}

func (p *Provider) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Connect creates the pool and verifies it with a ping.
func (p *Provider) Connect(ctx context.Context) error {
	return p.Base.Connect(ctx, func(ctx context.Context) error {
		pl, err := buildPool(ctx, p.Descriptor(), p.Options(), p.PoolConfig())
		if err != nil {
			return err
		}
		if err := pl.Ping(ctx); err != nil {
			pl.Close()
			return mapError(err, "")
		}
		p.pool = pl
		return nil
	})
}

// Disconnect drains the pool.
func (p *Provider) Disconnect(ctx context.Context) error {
	return p.Base.Disconnect(ctx, func(context.Context) error {
		if p.pool != nil {
			p.pool.Close()
		}
		return nil
	})
}

// Query runs SQL with $n parameters. Statements that do not return rows
// report the affected row count from the command tag.
func (p *Provider) Query(ctx context.Context, command string, params ...any) (*database.QueryResult, error) {
	return p.RunQuery(ctx, command, func(ctx context.Context) (*database.QueryResult, error) {
		rows, err := p.pool.Query(ctx, command, params...)
		if err != nil {
			return nil, mapError(err, command)
		}

		data, fields, err := database.ScanRows(&pgxRows{rows: rows})
		if err != nil {
			return nil, mapError(err, command)
		}

		res := &database.QueryResult{Rows: data, Fields: fields, RowCount: len(data)}
		if tag := rows.CommandTag(); !tag.Select() {
			res.RowsAffected = tag.RowsAffected()
		}
		return res, nil
	})
}

func (p *Provider) GetSchema(ctx context.Context) ([]database.TableSchema, error) {
	return database.Guarded(ctx, p.Base, "schema", func(ctx context.Context) ([]database.TableSchema, error) {
		tables, err := database.InspectSchema(ctx, &introspector{pool: p.pool}, defaultSchema)
		if err != nil {
			return nil, mapError(err, "")
		}
		return tables, nil
	})
}

// GetHealth pings through the pool and reports the overview figures.
func (p *Provider) GetHealth(ctx context.Context) (*database.HealthInfo, error) {
	return database.Guarded(ctx, p.Base, "health", func(ctx context.Context) (*database.HealthInfo, error) {
		start := time.Now()
		healthy := pool.CheckConnectionHealth(ctx, pool.AcquirerFunc(func(ctx context.Context) (pool.Conn, error) {
			c, err := p.pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return pgConn{c}, nil
		}), p.PoolConfig().AcquireTimeout)
		elapsed := time.Since(start)

		info := &database.HealthInfo{
			Status:         database.HealthUnhealthy,
			ResponseTimeMs: elapsed.Milliseconds(),
			CheckedAt:      time.Now(),
		}
		if !healthy {
			return info, nil
		}

		ov, err := p.overview(ctx)
		if err != nil {
			info.Status = database.HealthDegraded
			return info, nil
		}
		info.Status = database.HealthHealthy
		info.Version = ov.Version
		info.Uptime = ov.Uptime
		info.ActiveConnections = ov.ActiveConnections
		info.MaxConnections = ov.MaxConnections
		info.DatabaseSize = ov.DatabaseSizeHuman
		return info, nil
	})
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// pgConn adapts a pooled connection to pool.Conn.
type pgConn struct{ c *pgxpool.Conn }

func (c pgConn) Ping(ctx context.Context) error { return c.c.Ping(ctx) }
func (c pgConn) Release()                       { c.c.Release() }
