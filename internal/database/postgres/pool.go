package postgres

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
)

const defaultPort = 5432

// buildPool creates a pgxpool from the descriptor and resolved pool config.
func buildPool(ctx context.Context, desc database.Descriptor, opts database.Options, cfg pool.Config) (*pgxpool.Pool, error) {
	poolCfg, err := parseConfig(desc, opts, cfg)
	if err != nil {
		return nil, err
	}

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "")
	}
	return p, nil
}

func parseConfig(desc database.Descriptor, opts database.Options, cfg pool.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(desc, opts))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, string(database.TypePostgres), "invalid postgres connection settings", err)
	}

	poolCfg.MaxConns = int32(cfg.Max)
	poolCfg.MinConns = int32(cfg.Min)
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if opts.Timezone != "" {
		poolCfg.ConnConfig.RuntimeParams["timezone"] = opts.Timezone
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "dblens"
	return poolCfg, nil
}

// buildDSN returns the connection string, building a postgres:// URL from
// the descriptor fields when none is given.
func buildDSN(desc database.Descriptor, opts database.Options) string {
	if desc.ConnectionString != "" {
		return desc.ConnectionString
	}

	port := desc.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := "disable"
	if opts.SSL {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(desc.Host, strconv.Itoa(port)),
		Path:     "/" + desc.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if desc.User != "" {
		if desc.Password != "" {
			u.User = url.UserPassword(desc.User, desc.Password)
		} else {
			u.User = url.User(desc.User)
		}
	}
	return u.String()
}
