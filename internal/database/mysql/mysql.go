// Package mysql implements database.Provider for MySQL and MariaDB on top
// of database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

// Provider is a MySQL provider. It is safe for concurrent use.
type Provider struct {
	*database.Base
	db *sql.DB
}

// New builds an unconnected MySQL provider.
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
	return database.DialectMySQL
}

func (p *Provider) Connect(ctx context.Context) error {
	return p.Base.Connect(ctx, func(ctx context.Context) error {
		db, err := buildPool(p.Descriptor(), p.Options(), p.PoolConfig())
		if err != nil {
			return err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return mapError(err, "")
		}
		p.db = db
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

// Query runs SQL with ? parameters.
func (p *Provider) Query(ctx context.Context, command string, params ...any) (*database.QueryResult, error) {
	return p.RunQuery(ctx, command, func(ctx context.Context) (*database.QueryResult, error) {
		res, err := database.RunSQL(ctx, p.db, command, params)
		if err != nil {
			return nil, mapError(err, command)
		}
		return res, nil
	})
}

func (p *Provider) currentDatabase(ctx context.Context) (string, error) {
	var name sql.NullString
	if err := p.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return "", mapError(err, "")
	}
	return name.String, nil
}

func (p *Provider) GetSchema(ctx context.Context) ([]database.TableSchema, error) {
	return database.Guarded(ctx, p.Base, "schema", func(ctx context.Context) ([]database.TableSchema, error) {
		dbName, err := p.currentDatabase(ctx)
		if err != nil {
			return nil, err
		}
		tables, err := database.InspectSchema(ctx, &introspector{db: p.db}, dbName)
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
