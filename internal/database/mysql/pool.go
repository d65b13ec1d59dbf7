package mysql

import (
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
)

const defaultPort = 3306

// buildPool configures and returns a *sql.DB with pool settings.
func buildPool(desc database.Descriptor, opts database.Options, cfg pool.Config) (*sql.DB, error) {
	dsn, err := buildDSN(desc, opts, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, provider, "failed to open mysql", err)
	}

	db.SetMaxOpenConns(cfg.Max)
	db.SetMaxIdleConns(cfg.Min)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	return db, nil
}

// buildDSN renders a go-sql-driver DSN. A connection string may be either
// a native DSN (user:pass@tcp(host:port)/db) or a mysql:// URL.
func buildDSN(desc database.Descriptor, opts database.Options, pc pool.Config) (string, error) {
	var (
		c   *gomysql.Config
		err error
	)
	switch {
	case strings.HasPrefix(desc.ConnectionString, "mysql://"):
		c, err = fromURL(desc.ConnectionString)
	case desc.ConnectionString != "":
		c, err = gomysql.ParseDSN(desc.ConnectionString)
	default:
		c = gomysql.NewConfig()
		port := desc.Port
		if port == 0 {
			port = defaultPort
		}
		c.User = desc.User
		c.Passwd = desc.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(desc.Host, strconv.Itoa(port))
		c.DBName = desc.Database
	}
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, provider, "invalid mysql connection settings", err)
	}

	c.ParseTime = true
	if pc.AcquireTimeout > 0 {
		c.Timeout = pc.AcquireTimeout
	}
	if opts.SSL {
		c.TLSConfig = "true"
	}
	if opts.Timezone != "" {
		loc, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return "", errs.Wrap(errs.KindConfig, provider, "invalid timezone "+opts.Timezone, err)
		}
		c.Loc = loc
	}
	return c.FormatDSN(), nil
}

func fromURL(raw string) (*gomysql.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	c := gomysql.NewConfig()
	c.Net = "tcp"
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), strconv.Itoa(defaultPort))
	}
	c.Addr = host
	c.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		c.User = u.User.Username()
		c.Passwd, _ = u.User.Password()
	}
	if len(u.Query()) > 0 {
		c.Params = map[string]string{}
		for k, v := range u.Query() {
			c.Params[k] = v[0]
		}
	}
	return c, nil
}
