// Package mongodb implements database.Provider for MongoDB with the
// official v2 driver. Queries are database commands in Extended JSON.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
)

// Provider is a MongoDB provider. It is safe for concurrent use.
type Provider struct {
	*database.Base
	client *mongo.Client
	db     *mongo.Database
}

// New builds an unconnected MongoDB provider.
func New(desc database.Descriptor, opts database.Options) (database.Provider, error) {
	base, err := database.NewBase(desc, opts)
	if err != nil {
		return nil, err
	}
	return &Provider{Base: base}, nil
}

// Validate requires a host or a connection string.
func (p *Provider) Validate() error {
	return p.ValidateNetwork(false)
}

func (p *Provider) Connect(ctx context.Context) error {
	return p.Base.Connect(ctx, func(ctx context.Context) error {
		client, err := mongo.Connect(clientOptions(p.Descriptor(), p.Options(), p.PoolConfig()))
		if err != nil {
			return errs.Wrap(errs.KindConfig, provider, "invalid mongodb connection settings", err)
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return mapError(err, "")
		}
		p.client = client
		p.db = client.Database(databaseName(p.Descriptor()))
		return nil
	})
}

func (p *Provider) Disconnect(ctx context.Context) error {
	return p.Base.Disconnect(ctx, func(ctx context.Context) error {
		if p.client == nil {
			return nil
		}
		return mapError(p.client.Disconnect(ctx), "")
	})
}

// Query runs a database command such as
// {"find": "orders", "filter": {"status": "open"}}. Positional parameters
// are not supported; values belong in the command document.
func (p *Provider) Query(ctx context.Context, command string, params ...any) (*database.QueryResult, error) {
	if len(params) > 0 {
		return nil, errs.Invalid("params", "mongodb commands take no positional parameters")
	}
	return p.RunQuery(ctx, command, func(ctx context.Context) (*database.QueryResult, error) {
		doc, name, err := parseCommand(command)
		if err != nil {
			return nil, err
		}
		res, err := runCommand(ctx, p.db, doc, name)
		if err != nil {
			return nil, mapError(err, command)
		}
		return res, nil
	})
}

func (p *Provider) GetSchema(ctx context.Context) ([]database.TableSchema, error) {
	return database.Guarded(ctx, p.Base, "schema", func(ctx context.Context) ([]database.TableSchema, error) {
		tables, err := database.InspectSchema(ctx, &introspector{db: p.db}, p.db.Name())
		if err != nil {
			return nil, mapError(err, "")
		}
		return tables, nil
	})
}

type mongoConn struct {
	client *mongo.Client
}

func (c mongoConn) Ping(ctx context.Context) error { return c.client.Ping(ctx, readpref.Primary()) }
func (c mongoConn) Release()                       {}

func (p *Provider) GetHealth(ctx context.Context) (*database.HealthInfo, error) {
	return database.Guarded(ctx, p.Base, "health", func(ctx context.Context) (*database.HealthInfo, error) {
		start := time.Now()
		healthy := pool.CheckConnectionHealth(ctx, pool.AcquirerFunc(func(context.Context) (pool.Conn, error) {
			return mongoConn{p.client}, nil
		}), p.PoolConfig().AcquireTimeout)
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
