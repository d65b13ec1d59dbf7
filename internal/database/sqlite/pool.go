package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
)

const memoryPath = ":memory:"

// filePath resolves the database file. A connection string wins, then the
// database field, then the host field, which some tools use for the path.
func filePath(desc database.Descriptor) string {
	p := desc.ConnectionString
	if p == "" {
		p = desc.Database
	}
	if p == "" {
		p = desc.Host
	}
	return strings.TrimPrefix(p, "sqlite://")
}

// buildDSN appends the connection pragmas the provider relies on. The busy
// timeout follows the pool acquire timeout so lock waits stay bounded.
func buildDSN(path string, cfg pool.Config) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	busy := cfg.AcquireTimeout.Milliseconds()
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, sep, busy)
}

func buildPool(desc database.Descriptor, cfg pool.Config) (*sql.DB, error) {
	path := filePath(desc)
	if path == "" {
		return nil, errs.Config(provider, "database file path is required")
	}

	db, err := sql.Open("sqlite", buildDSN(path, cfg))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, provider, "failed to open sqlite", err)
	}

	maxOpen, minIdle := cfg.Max, cfg.Min
	// Every connection to :memory: is a separate database.
	if isMemory(path) {
		maxOpen, minIdle = 1, 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(minIdle)
	if !isMemory(path) {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == memoryPath || strings.Contains(path, "mode=memory")
}
