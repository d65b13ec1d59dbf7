// Package demo is an in-memory backend serving a small fixed dataset. It
// needs no server, which makes it useful for trying the service out and
// for exercising the provider contract in tests.
package demo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

const version = "dblens-demo 1.0"

// Provider implements database.Provider over the demo dataset.
type Provider struct {
	*database.Base

	mu       sync.RWMutex
	tables   map[string]*table
	sessions []session
	started  time.Time
	queries  int64
}

// New builds an unconnected demo provider.
func New(desc database.Descriptor, opts database.Options) (database.Provider, error) {
	base, err := database.NewBase(desc, opts)
	if err != nil {
		return nil, err
	}
	return &Provider{Base: base}, nil
}

func (p *Provider) Validate() error {
	return p.ValidateDescriptor()
}

func (p *Provider) Dialect() database.Dialect {
	return database.DialectSQLite
}

func (p *Provider) Connect(ctx context.Context) error {
	return p.Base.Connect(ctx, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.tables = make(map[string]*table)
		for _, t := range dataset() {
			p.tables[t.name] = t
		}
		p.sessions = sessions()
		p.started = time.Now()
		return nil
	})
}

func (p *Provider) Disconnect(ctx context.Context) error {
	return p.Base.Disconnect(ctx, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.tables = nil
		p.sessions = nil
		return nil
	})
}

var selectPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+"?(\w+)"?(?:\s+LIMIT\s+(\d+|\?))?\s*;?\s*$`)

// Query understands SELECT <columns|*> FROM <table> [LIMIT n]. A LIMIT ?
// placeholder takes its value from the first parameter.
func (p *Provider) Query(ctx context.Context, command string, params ...any) (*database.QueryResult, error) {
	return p.RunQuery(ctx, command, func(ctx context.Context) (*database.QueryResult, error) {
		m := selectPattern.FindStringSubmatch(command)
		if m == nil {
			return nil, fmt.Errorf("syntax error: the demo database only supports SELECT <columns> FROM <table> [LIMIT n]")
		}

		p.mu.Lock()
		p.queries++
		t, ok := p.tables[strings.ToLower(m[2])]
		p.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("relation %q does not exist", m[2])
		}

		cols, idx, err := project(t, m[1])
		if err != nil {
			return nil, err
		}

		limit := len(t.rows)
		if m[3] != "" {
			n, err := limitValue(m[3], params)
			if err != nil {
				return nil, err
			}
			if n < limit {
				limit = n
			}
		}

		rows := make([]map[string]any, 0, limit)
		for _, r := range t.rows[:limit] {
			row := make(map[string]any, len(cols))
			for i, c := range cols {
				row[c] = r[idx[i]]
			}
			rows = append(rows, row)
		}
		return &database.QueryResult{Rows: rows, Fields: cols, RowCount: len(rows)}, nil
	})
}

func limitValue(raw string, params []any) (int, error) {
	if raw != "?" {
		return strconv.Atoi(raw)
	}
	if len(params) == 0 {
		return 0, fmt.Errorf("LIMIT ? requires a parameter")
	}
	var n int
	switch v := params[0].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	default:
		return 0, fmt.Errorf("LIMIT parameter must be a number, got %T", params[0])
	}
	if n < 0 {
		return 0, fmt.Errorf("syntax error: LIMIT must not be negative, got %d", n)
	}
	return n, nil
}

// project resolves the select list against t.
func project(t *table, list string) ([]string, []int, error) {
	if strings.TrimSpace(list) == "*" {
		cols := make([]string, len(t.columns))
		idx := make([]int, len(t.columns))
		for i, c := range t.columns {
			cols[i] = c.name
			idx[i] = i
		}
		return cols, idx, nil
	}

	var (
		cols []string
		idx  []int
	)
	for _, raw := range strings.Split(list, ",") {
		name := strings.Trim(strings.TrimSpace(raw), `"`)
		pos := -1
		for i, c := range t.columns {
			if strings.EqualFold(c.name, name) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, nil, fmt.Errorf("column %q does not exist", name)
		}
		cols = append(cols, t.columns[pos].name)
		idx = append(idx, pos)
	}
	return cols, idx, nil
}

func (p *Provider) GetSchema(ctx context.Context) ([]database.TableSchema, error) {
	return database.Guarded(ctx, p.Base, "schema", func(context.Context) ([]database.TableSchema, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		out := make([]database.TableSchema, 0, len(p.tables))
		for _, t := range p.tables {
			out = append(out, schemaOf(t))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}

func schemaOf(t *table) database.TableSchema {
	ts := database.TableSchema{
		Schema:      "main",
		Name:        t.name,
		Type:        "table",
		Columns:     make([]database.ColumnSchema, 0, len(t.columns)),
		Indexes:     make([]database.IndexSchema, 0, len(t.indexes)),
		ForeignKeys: make([]database.ForeignKeySchema, 0, len(t.fks)),
	}
	for _, c := range t.columns {
		ts.Columns = append(ts.Columns, database.ColumnSchema{
			Name:       c.name,
			DataType:   c.dataType,
			Nullable:   c.nullable,
			PrimaryKey: c.primary,
			Unique:     c.unique || c.primary,
		})
	}
	for _, i := range t.indexes {
		ts.Indexes = append(ts.Indexes, database.IndexSchema{Name: i.name, Columns: i.columns, Unique: i.unique, Primary: i.primary})
	}
	for _, f := range t.fks {
		ts.ForeignKeys = append(ts.ForeignKeys, database.ForeignKeySchema{
			Name:      fmt.Sprintf("%s_%s_fkey", t.name, f.column),
			Table:     t.name,
			Column:    f.column,
			RefTable:  f.refTable,
			RefColumn: f.refColumn,
		})
	}
	rc := int64(len(t.rows))
	ts.RowCount = &rc
	return ts
}

func (p *Provider) GetHealth(ctx context.Context) (*database.HealthInfo, error) {
	return database.Guarded(ctx, p.Base, "health", func(context.Context) (*database.HealthInfo, error) {
		ov := p.overview()
		return &database.HealthInfo{
			Status:            database.HealthHealthy,
			Version:           ov.Version,
			Uptime:            ov.Uptime,
			ActiveConnections: ov.ActiveConnections,
			MaxConnections:    ov.MaxConnections,
			DatabaseSize:      ov.DatabaseSizeHuman,
			CheckedAt:         time.Now(),
		}, nil
	})
}

func (p *Provider) RunMaintenance(ctx context.Context, kind database.MaintenanceKind, target string) (*database.MaintenanceResult, error) {
	return p.Base.RunMaintenance(ctx, kind, target, func(context.Context) (string, []string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if kind == database.MaintenanceKill {
			for i, s := range p.sessions {
				if s.id == target {
					p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
					return fmt.Sprintf("terminated session %s", target), nil, nil
				}
			}
			return "", nil, errors.New("no session with id " + target)
		}

		var names []string
		if target != "" {
			if _, ok := p.tables[target]; !ok {
				return "", nil, fmt.Errorf("relation %q does not exist", target)
			}
			names = []string{target}
		} else {
			for n := range p.tables {
				names = append(names, n)
			}
			sort.Strings(names)
		}

		details := make([]string, len(names))
		for i, n := range names {
			details[i] = fmt.Sprintf("%s %s: ok", kind, n)
		}
		return fmt.Sprintf("%s completed on %d table(s)", kind, len(names)), details, nil
	})
}

// size is a stable pretend on-disk footprint.
func (t *table) size() int64 {
	return int64(8192 * (1 + len(t.rows)*len(t.columns)))
}

func (p *Provider) overview() *database.Overview {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var size int64
	indexes := 0
	for _, t := range p.tables {
		size += t.size()
		indexes += len(t.indexes)
	}
	active := 0
	for _, s := range p.sessions {
		if s.state == "active" {
			active++
		}
	}
	uptime := time.Since(p.started)
	return &database.Overview{
		Version:           version,
		UptimeSeconds:     int64(uptime.Seconds()),
		Uptime:            pool.FormatDuration(uptime),
		ActiveConnections: active,
		IdleConnections:   len(p.sessions) - active,
		MaxConnections:    p.PoolConfig().Max,
		DatabaseSize:      size,
		DatabaseSizeHuman: pool.FormatBytes(size),
		TableCount:        len(p.tables),
		IndexCount:        indexes,
	}
}

func (p *Provider) GetOverview(ctx context.Context) (*database.Overview, error) {
	return database.Guarded(ctx, p.Base, "overview", func(context.Context) (*database.Overview, error) {
		return p.overview(), nil
	})
}

func (p *Provider) GetPerformanceMetrics(ctx context.Context) (*database.PerformanceMetrics, error) {
	return database.Guarded(ctx, p.Base, "performance", func(context.Context) (*database.PerformanceMetrics, error) {
		p.mu.RLock()
		queries := p.queries
		uptime := time.Since(p.started).Seconds()
		p.mu.RUnlock()

		qps := 0.0
		if uptime > 0 {
			qps = float64(queries) / uptime
		}
		return &database.PerformanceMetrics{
			CacheHitRatio:   99.2,
			QueriesPerSec:   qps,
			BufferPoolUsage: 12.5,
			Commits:         queries,
		}, nil
	})
}

func (p *Provider) GetSlowQueries(ctx context.Context, limit int) ([]database.SlowQuery, error) {
	return database.Guarded(ctx, p.Base, "slow queries", func(context.Context) ([]database.SlowQuery, error) {
		all := []database.SlowQuery{
			{Query: "SELECT * FROM orders o JOIN customers c ON c.id = o.customer_id", Calls: 42, TotalTimeMs: 8400, MeanTimeMs: 200, MaxTimeMs: 950, Rows: 168},
			{Query: "SELECT count(*) FROM customers", Calls: 310, TotalTimeMs: 3100, MeanTimeMs: 10, MaxTimeMs: 45, Rows: 310},
			{Query: "UPDATE products SET stock = stock - $1 WHERE id = $2", Calls: 97, TotalTimeMs: 970, MeanTimeMs: 10, MaxTimeMs: 30, Rows: 97},
		}
		return head(all, limit), nil
	})
}

func (p *Provider) GetActiveSessions(ctx context.Context, limit int) ([]database.ActiveSession, error) {
	return database.Guarded(ctx, p.Base, "active sessions", func(context.Context) ([]database.ActiveSession, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		out := make([]database.ActiveSession, 0, len(p.sessions))
		for _, s := range p.sessions {
			out = append(out, database.ActiveSession{
				ID:         s.id,
				User:       s.user,
				Database:   p.Descriptor().Database,
				State:      s.state,
				Query:      s.query,
				DurationMs: s.duration.Milliseconds(),
			})
		}
		return head(out, limit), nil
	})
}

func (p *Provider) GetTableStats(ctx context.Context, schemaFilter string) ([]database.TableStats, error) {
	return database.Guarded(ctx, p.Base, "table stats", func(context.Context) ([]database.TableStats, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		out := make([]database.TableStats, 0, len(p.tables))
		if schemaFilter != "" && schemaFilter != "main" {
			return out, nil
		}
		for _, t := range p.tables {
			size := t.size()
			idx := int64(8192 * len(t.indexes))
			out = append(out, database.TableStats{
				Schema:    "main",
				Name:      t.name,
				RowCount:  int64(len(t.rows)),
				TotalSize: size + idx,
				TableSize: size,
				IndexSize: idx,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}

func (p *Provider) GetIndexStats(ctx context.Context, schemaFilter string) ([]database.IndexStats, error) {
	return database.Guarded(ctx, p.Base, "index stats", func(context.Context) ([]database.IndexStats, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		out := make([]database.IndexStats, 0)
		if schemaFilter != "" && schemaFilter != "main" {
			return out, nil
		}
		for _, t := range p.tables {
			for _, i := range t.indexes {
				out = append(out, database.IndexStats{
					Schema: "main",
					Table:  t.name,
					Name:   i.name,
					Size:   8192,
					Unique: i.unique,
					Unused: !i.primary,
				})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}

func (p *Provider) GetStorageStats(ctx context.Context) (*database.StorageStats, error) {
	return database.Guarded(ctx, p.Base, "storage stats", func(context.Context) (*database.StorageStats, error) {
		ov := p.overview()
		idx := int64(8192 * ov.IndexCount)
		return &database.StorageStats{
			DatabaseSize: ov.DatabaseSize + idx,
			DataSize:     ov.DatabaseSize,
			IndexSize:    idx,
		}, nil
	})
}

func head[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
