package sqlite

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

func (p *Provider) uptime() time.Duration {
	last := p.State().LastConnected
	if last.IsZero() {
		return 0
	}
	return time.Since(last)
}

func (p *Provider) overview(ctx context.Context) (*database.Overview, error) {
	const q = `
		SELECT sqlite_version(),
		       (SELECT page_count FROM pragma_page_count()) * (SELECT page_size FROM pragma_page_size()),
		       (SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'),
		       (SELECT COUNT(*) FROM sqlite_master WHERE type = 'index')`

	var ov database.Overview
	if err := p.db.QueryRowContext(ctx, q).Scan(&ov.Version, &ov.DatabaseSize, &ov.TableCount, &ov.IndexCount); err != nil {
		return nil, mapError(err, q)
	}

	st := p.db.Stats()
	up := p.uptime()
	ov.UptimeSeconds = int64(up.Seconds())
	ov.Uptime = pool.FormatDuration(up.Truncate(time.Second))
	ov.ActiveConnections = st.InUse
	ov.IdleConnections = st.Idle
	ov.MaxConnections = st.MaxOpenConnections
	ov.DatabaseSizeHuman = pool.FormatBytes(ov.DatabaseSize)
	return &ov, nil
}

func (p *Provider) GetOverview(ctx context.Context) (*database.Overview, error) {
	return database.Guarded(ctx, p.Base, "overview", p.overview)
}

// GetPerformanceMetrics reports the query rate seen by this provider.
// SQLite exposes no cache or transaction counters.
func (p *Provider) GetPerformanceMetrics(ctx context.Context) (*database.PerformanceMetrics, error) {
	return database.Guarded(ctx, p.Base, "performance", func(ctx context.Context) (*database.PerformanceMetrics, error) {
		m := &database.PerformanceMetrics{}
		if secs := p.uptime().Seconds(); secs >= 1 {
			m.QueriesPerSec = float64(p.stmts.total()) / secs
		}
		return m, nil
	})
}

func (p *Provider) GetSlowQueries(ctx context.Context, limit int) ([]database.SlowQuery, error) {
	return database.Guarded(ctx, p.Base, "slow queries", func(context.Context) ([]database.SlowQuery, error) {
		return p.stmts.top(limit), nil
	})
}

// GetActiveSessions is always empty: an embedded database has no server
// sessions.
func (p *Provider) GetActiveSessions(ctx context.Context, _ int) ([]database.ActiveSession, error) {
	return database.Guarded(ctx, p.Base, "active sessions", func(context.Context) ([]database.ActiveSession, error) {
		return []database.ActiveSession{}, nil
	})
}

// object is a table or index listed in sqlite_master.
type object struct {
	name  string
	table string
	index bool
}

func (p *Provider) objects(ctx context.Context) ([]object, error) {
	const q = `
		SELECT name, tbl_name, type = 'index'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, q)
	}
	defer rows.Close()

	var out []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.name, &o.table, &o.index); err != nil {
			return nil, mapError(err, q)
		}
		out = append(out, o)
	}
	return out, mapError(rows.Err(), q)
}

// objectSizes returns bytes per table or index from the dbstat virtual
// table. Builds without dbstat yield an empty map.
func (p *Provider) objectSizes(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT name, SUM(pgsize) FROM dbstat GROUP BY name`

	out := make(map[string]int64)
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mapError(ctx.Err(), q)
		}
		if strings.Contains(err.Error(), "dbstat") {
			return out, nil
		}
		return nil, mapError(err, q)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			size int64
		)
		if err := rows.Scan(&name, &size); err != nil {
			return nil, mapError(err, q)
		}
		out[name] = size
	}
	return out, mapError(rows.Err(), q)
}

func matchesSchema(filter string) bool {
	return filter == "" || filter == mainSchema
}

func (p *Provider) GetTableStats(ctx context.Context, schemaFilter string) ([]database.TableStats, error) {
	return database.Guarded(ctx, p.Base, "table stats", func(ctx context.Context) ([]database.TableStats, error) {
		out := make([]database.TableStats, 0)
		if !matchesSchema(schemaFilter) {
			return out, nil
		}

		objs, err := p.objects(ctx)
		if err != nil {
			return nil, err
		}
		sizes, err := p.objectSizes(ctx)
		if err != nil {
			return nil, err
		}

		indexSize := make(map[string]int64)
		for _, o := range objs {
			if o.index {
				indexSize[o.table] += sizes[o.name]
			}
		}

		for _, o := range objs {
			if o.index {
				continue
			}
			t := database.TableStats{
				Schema:    mainSchema,
				Name:      o.name,
				TableSize: sizes[o.name],
				IndexSize: indexSize[o.name],
			}
			t.TotalSize = t.TableSize + t.IndexSize
			q := "SELECT COUNT(*) FROM " + database.DialectSQLite.QuoteIdent(o.name)
			if err := p.db.QueryRowContext(ctx, q).Scan(&t.RowCount); err != nil {
				return nil, mapError(err, q)
			}
			out = append(out, t)
		}
		return out, nil
	})
}

func (p *Provider) GetIndexStats(ctx context.Context, schemaFilter string) ([]database.IndexStats, error) {
	return database.Guarded(ctx, p.Base, "index stats", func(ctx context.Context) ([]database.IndexStats, error) {
		out := make([]database.IndexStats, 0)
		if !matchesSchema(schemaFilter) {
			return out, nil
		}

		const q = `
			SELECT m.name, m.tbl_name, il."unique"
			FROM sqlite_master m
			JOIN pragma_index_list(m.tbl_name) il ON il.name = m.name
			WHERE m.type = 'index'
			ORDER BY m.tbl_name, m.name`

		sizes, err := p.objectSizes(ctx)
		if err != nil {
			return nil, err
		}

		rows, err := p.db.QueryContext(ctx, q)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		for rows.Next() {
			s := database.IndexStats{Schema: mainSchema}
			if err := rows.Scan(&s.Name, &s.Table, &s.Unique); err != nil {
				return nil, mapError(err, q)
			}
			s.Size = sizes[s.Name]
			out = append(out, s)
		}
		return out, mapError(rows.Err(), q)
	})
}

func (p *Provider) GetStorageStats(ctx context.Context) (*database.StorageStats, error) {
	return database.Guarded(ctx, p.Base, "storage stats", func(ctx context.Context) (*database.StorageStats, error) {
		const q = `
			SELECT (SELECT page_count FROM pragma_page_count()),
			       (SELECT freelist_count FROM pragma_freelist_count()),
			       (SELECT page_size FROM pragma_page_size())`

		var pages, free, pageSize int64
		if err := p.db.QueryRowContext(ctx, q).Scan(&pages, &free, &pageSize); err != nil {
			return nil, mapError(err, q)
		}

		s := &database.StorageStats{
			DatabaseSize: pages * pageSize,
			FreeSpace:    free * pageSize,
		}

		objs, err := p.objects(ctx)
		if err != nil {
			return nil, err
		}
		sizes, err := p.objectSizes(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			if o.index {
				s.IndexSize += sizes[o.name]
			} else {
				s.DataSize += sizes[o.name]
			}
		}

		if path := filePath(p.Descriptor()); !isMemory(path) {
			if fi, err := os.Stat(strings.SplitN(path, "?", 2)[0] + "-wal"); err == nil {
				s.LogSize = fi.Size()
			}
		}
		return s, nil
	})
}
