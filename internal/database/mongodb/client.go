package mongodb

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

const (
	defaultPort     = 27017
	defaultDatabase = "test"
	appName         = "dblens"
)

// buildURI returns the connection string, building a mongodb:// URL from
// the descriptor fields when none is given.
func buildURI(desc database.Descriptor, opts database.Options) string {
	if desc.ConnectionString != "" {
		return desc.ConnectionString
	}

	port := desc.Port
	if port == 0 {
		port = defaultPort
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(desc.Host, strconv.Itoa(port)),
		Path:   "/" + desc.Database,
	}
	q := url.Values{}
	if desc.User != "" {
		u.User = url.UserPassword(desc.User, desc.Password)
		q.Set("authSource", "admin")
	}
	if opts.SSL {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// databaseName picks the database commands run against: the descriptor's,
// then the connection string path, then the server default.
func databaseName(desc database.Descriptor) string {
	if desc.Database != "" {
		return desc.Database
	}
	s := desc.ConnectionString
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[i+1:]
		if j := strings.Index(s, "?"); j >= 0 {
			s = s[:j]
		}
		if s != "" {
			return s
		}
	}
	return defaultDatabase
}

func clientOptions(desc database.Descriptor, opts database.Options, cfg pool.Config) *options.ClientOptions {
	co := options.Client().
		ApplyURI(buildURI(desc, opts)).
		SetAppName(appName).
		SetMaxPoolSize(uint64(cfg.Max)).
		SetMinPoolSize(uint64(cfg.Min)).
		SetMaxConnIdleTime(cfg.IdleTimeout)
	if cfg.AcquireTimeout > 0 {
		co.SetConnectTimeout(cfg.AcquireTimeout)
		co.SetServerSelectionTimeout(cfg.AcquireTimeout)
	}
	return co
}
