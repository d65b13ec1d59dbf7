// Package sqlite implements database.Provider for SQLite database files
// with the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
)

// Provider is a SQLite provider. It is safe for concurrent use.
type Provider struct {
	*database.Base
	db    *sql.DB
	stmts *statements
}

// New builds an unconnected SQLite provider.
func New(desc database.Descriptor, opts database.Options) (database.Provider, error) {
	base, err := database.NewBase(desc, opts)
	if err != nil {
		return nil, err
	}
	return &Provider{Base: base, stmts: newStatements()}, nil
}

// Validate requires a database file path.
func (p *Provider) Validate() error {
	if err := p.ValidateDescriptor(); err != nil {
		return err
	}
	if filePath(p.Descriptor()) == "" {
		return errs.Config(provider, "database file path is required")
	}
	return nil
}

func (p *Provider) Dialect() database.Dialect {
	return database.DialectSQLite
}

func (p *Provider) Connect(ctx context.Context) error {
	return p.Base.Connect(ctx, func(ctx context.Context) error {
		db, err := buildPool(p.Descriptor(), p.PoolConfig())
		if err != nil {
			return err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return mapError(err, "")
		}
		p.db = db
		p.stmts.reset()
		return nil
	})
}

func (p *Provider) Disconnect(ctx context.Context) error {
	return p.Base.Disconnect(ctx, func(context.Context) error {
		if p.db == nil {
			return nil
		}
		return mapError(p.db.Close(), "")
	})
}

// Query runs SQL with ? parameters and records its timing for
// GetSlowQueries.
func (p *Provider) Query(ctx context.Context, command string, params ...any) (*database.QueryResult, error) {
	start := time.Now()
	res, err := p.RunQuery(ctx, command, func(ctx context.Context) (*database.QueryResult, error) {
		res, err := database.RunSQL(ctx, p.db, command, params)
		if err != nil {
			return nil, mapError(err, command)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	rows := int64(res.RowCount)
	if res.RowsAffected > 0 {
		rows = res.RowsAffected
	}
	p.stmts.record(command, float64(time.Since(start).Microseconds())/1000, rows)
	return res, nil
}

func (p *Provider) GetSchema(ctx context.Context) ([]database.TableSchema, error) {
	return database.Guarded(ctx, p.Base, "schema", func(ctx context.Context) ([]database.TableSchema, error) {
		tables, err := database.InspectSchema(ctx, &introspector{db: p.db}, mainSchema)
		if err != nil {
			return nil, mapError(err, "")
		}
		return tables, nil
	})
}

func (p *Provider) GetHealth(ctx context.Context) (*database.HealthInfo, error) {
	return database.Guarded(ctx, p.Base, "health", func(ctx context.Context) (*database.HealthInfo, error) {
		start := time.Now()
		healthy := pool.CheckConnectionHealth(ctx, database.SQLAcquirer(p.db), p.PoolConfig().AcquireTimeout)
		info := &database.HealthInfo{
			Status:         database.HealthUnhealthy,
			ResponseTimeMs: time.Since(start).Milliseconds(),
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
