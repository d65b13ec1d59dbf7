package mysql

import (
	"context"
	"strconv"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

// picosPerMs converts performance_schema timer values to milliseconds.
const picosPerMs = 1e9

// globalStatus reads SHOW GLOBAL STATUS and keeps the numeric values of
// the requested variables. Missing variables are absent from the map.
func (p *Provider) globalStatus(ctx context.Context, names ...string) (map[string]int64, error) {
	const q = "SHOW GLOBAL STATUS"

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, q)
	}
	defer rows.Close()

	out := make(map[string]int64, len(names))
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, mapError(err, q)
		}
		if !want[name] {
			continue
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[name] = n
		}
	}
	return out, mapError(rows.Err(), q)
}

func (p *Provider) overview(ctx context.Context) (*database.Overview, error) {
	const q = `
		SELECT VERSION(),
		       @@max_connections,
		       (SELECT COALESCE(SUM(DATA_LENGTH + INDEX_LENGTH), 0)
		          FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE()),
		       (SELECT COUNT(*)
		          FROM information_schema.TABLES
		         WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'),
		       (SELECT COUNT(DISTINCT TABLE_NAME, INDEX_NAME)
		          FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = DATABASE())`

	var ov database.Overview
	if err := p.db.QueryRowContext(ctx, q).Scan(&ov.Version, &ov.MaxConnections,
		&ov.DatabaseSize, &ov.TableCount, &ov.IndexCount); err != nil {
		return nil, mapError(err, q)
	}

	st, err := p.globalStatus(ctx, "Uptime", "Threads_connected", "Threads_running")
	if err != nil {
		return nil, err
	}
	ov.UptimeSeconds = st["Uptime"]
	ov.Uptime = pool.FormatDuration(time.Duration(ov.UptimeSeconds) * time.Second)
	ov.ActiveConnections = int(st["Threads_running"])
	ov.IdleConnections = int(st["Threads_connected"] - st["Threads_running"])
	ov.DatabaseSizeHuman = pool.FormatBytes(ov.DatabaseSize)
	return &ov, nil
}

func (p *Provider) GetOverview(ctx context.Context) (*database.Overview, error) {
	return database.Guarded(ctx, p.Base, "overview", p.overview)
}

func (p *Provider) GetPerformanceMetrics(ctx context.Context) (*database.PerformanceMetrics, error) {
	return database.Guarded(ctx, p.Base, "performance", func(ctx context.Context) (*database.PerformanceMetrics, error) {
		st, err := p.globalStatus(ctx,
			"Uptime", "Questions", "Com_commit", "Com_rollback",
			"Innodb_buffer_pool_read_requests", "Innodb_buffer_pool_reads",
			"Innodb_buffer_pool_pages_total", "Innodb_buffer_pool_pages_free",
			"Innodb_deadlocks", "Created_tmp_disk_tables")
		if err != nil {
			return nil, err
		}
		return performanceFromStatus(st), nil
	})
}

// performanceFromStatus derives the metrics from SHOW GLOBAL STATUS
// counters. Rates are averages since server start.
func performanceFromStatus(st map[string]int64) *database.PerformanceMetrics {
	m := &database.PerformanceMetrics{
		Commits:   st["Com_commit"],
		Rollbacks: st["Com_rollback"],
		Deadlocks: st["Innodb_deadlocks"],
		TempFiles: st["Created_tmp_disk_tables"],
	}

	if req := st["Innodb_buffer_pool_read_requests"]; req > 0 {
		m.CacheHitRatio = float64(req-st["Innodb_buffer_pool_reads"]) / float64(req) * 100
	}
	if total := st["Innodb_buffer_pool_pages_total"]; total > 0 {
		m.BufferPoolUsage = float64(total-st["Innodb_buffer_pool_pages_free"]) / float64(total) * 100
	}

	uptime := st["Uptime"]
	if uptime < 1 {
		uptime = 1
	}
	m.QueriesPerSec = float64(st["Questions"]) / float64(uptime)
	m.TransactionsPerSec = float64(m.Commits+m.Rollbacks) / float64(uptime)
	return m
}

// GetSlowQueries reads the statement digest summary. It is empty when
// performance_schema is off or not readable.
func (p *Provider) GetSlowQueries(ctx context.Context, limit int) ([]database.SlowQuery, error) {
	return database.Guarded(ctx, p.Base, "slow queries", func(ctx context.Context) ([]database.SlowQuery, error) {
		const q = `
			SELECT COALESCE(DIGEST_TEXT, ''),
			       COUNT_STAR,
			       SUM_TIMER_WAIT / ?,
			       AVG_TIMER_WAIT / ?,
			       MAX_TIMER_WAIT / ?,
			       SUM_ROWS_SENT
			FROM performance_schema.events_statements_summary_by_digest
			WHERE SCHEMA_NAME = DATABASE()
			ORDER BY AVG_TIMER_WAIT DESC
			LIMIT ?`

		out := make([]database.SlowQuery, 0)
		rows, err := p.db.QueryContext(ctx, q, picosPerMs, picosPerMs, picosPerMs, limit)
		if err != nil {
			if unsupported(err) {
				return out, nil
			}
			return nil, mapError(err, q)
		}
		defer rows.Close()

		for rows.Next() {
			var s database.SlowQuery
			if err := rows.Scan(&s.Query, &s.Calls, &s.TotalTimeMs, &s.MeanTimeMs, &s.MaxTimeMs, &s.Rows); err != nil {
				return nil, mapError(err, q)
			}
			out = append(out, s)
		}
		return out, mapError(rows.Err(), q)
	})
}

func (p *Provider) GetActiveSessions(ctx context.Context, limit int) ([]database.ActiveSession, error) {
	return database.Guarded(ctx, p.Base, "active sessions", func(ctx context.Context) ([]database.ActiveSession, error) {
		const q = `
			SELECT ID,
			       COALESCE(USER, ''),
			       COALESCE(DB, ''),
			       COALESCE(HOST, ''),
			       COALESCE(COMMAND, ''),
			       COALESCE(INFO, ''),
			       COALESCE(TIME, 0),
			       COALESCE(STATE, '')
			FROM information_schema.PROCESSLIST
			WHERE ID <> CONNECTION_ID()
			  AND COMMAND <> 'Sleep'
			ORDER BY TIME DESC
			LIMIT ?`

		rows, err := p.db.QueryContext(ctx, q, limit)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		now := time.Now()
		out := make([]database.ActiveSession, 0)
		for rows.Next() {
			var (
				s       database.ActiveSession
				id      int64
				seconds int64
			)
			if err := rows.Scan(&id, &s.User, &s.Database, &s.ClientAddr, &s.State,
				&s.Query, &seconds, &s.WaitEvent); err != nil {
				return nil, mapError(err, q)
			}
			s.ID = strconv.FormatInt(id, 10)
			s.DurationMs = seconds * 1000
			started := now.Add(-time.Duration(seconds) * time.Second)
			s.StartedAt = &started
			out = append(out, s)
		}
		return out, mapError(rows.Err(), q)
	})
}

// GetTableStats reports base tables of schemaFilter, or of the current
// database when the filter is empty. Scan counters need
// performance_schema and stay zero without it.
func (p *Provider) GetTableStats(ctx context.Context, schemaFilter string) ([]database.TableStats, error) {
	return database.Guarded(ctx, p.Base, "table stats", func(ctx context.Context) ([]database.TableStats, error) {
		const q = `
			SELECT TABLE_SCHEMA,
			       TABLE_NAME,
			       COALESCE(TABLE_ROWS, 0),
			       COALESCE(DATA_LENGTH, 0),
			       COALESCE(INDEX_LENGTH, 0),
			       UPDATE_TIME
			FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
			  AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY DATA_LENGTH + INDEX_LENGTH DESC`

		rows, err := p.db.QueryContext(ctx, q, schemaFilter)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		out := make([]database.TableStats, 0)
		for rows.Next() {
			var (
				t       database.TableStats
				updated *time.Time
			)
			if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount, &t.TableSize, &t.IndexSize, &updated); err != nil {
				return nil, mapError(err, q)
			}
			t.TotalSize = t.TableSize + t.IndexSize
			t.LastAnalyze = updated
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			return nil, mapError(err, q)
		}

		io, err := p.tableIO(ctx, schemaFilter)
		if err != nil {
			return nil, err
		}
		for i := range out {
			if c, ok := io[out[i].Name]; ok {
				out[i].SeqScans = c[0]
				out[i].IndexScans = c[1]
			}
		}
		return out, nil
	})
}

// tableIO returns per table [full scans, index reads] from
// performance_schema, or an empty map when it is unavailable.
func (p *Provider) tableIO(ctx context.Context, schemaFilter string) (map[string][2]int64, error) {
	const q = `
		SELECT OBJECT_NAME,
		       SUM(CASE WHEN INDEX_NAME IS NULL THEN COUNT_READ ELSE 0 END),
		       SUM(CASE WHEN INDEX_NAME IS NOT NULL THEN COUNT_READ ELSE 0 END)
		FROM performance_schema.table_io_waits_summary_by_index_usage
		WHERE OBJECT_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		GROUP BY OBJECT_NAME`

	out := make(map[string][2]int64)
	rows, err := p.db.QueryContext(ctx, q, schemaFilter)
	if err != nil {
		if unsupported(err) {
			return out, nil
		}
		return nil, mapError(err, q)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name        string
			full, index int64
		)
		if err := rows.Scan(&name, &full, &index); err != nil {
			return nil, mapError(err, q)
		}
		out[name] = [2]int64{full, index}
	}
	return out, mapError(rows.Err(), q)
}

func (p *Provider) GetIndexStats(ctx context.Context, schemaFilter string) ([]database.IndexStats, error) {
	return database.Guarded(ctx, p.Base, "index stats", func(ctx context.Context) ([]database.IndexStats, error) {
		const q = `
			SELECT TABLE_SCHEMA,
			       TABLE_NAME,
			       INDEX_NAME,
			       MIN(NON_UNIQUE) = 0
			FROM information_schema.STATISTICS
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
			GROUP BY TABLE_SCHEMA, TABLE_NAME, INDEX_NAME
			ORDER BY TABLE_NAME, INDEX_NAME`

		rows, err := p.db.QueryContext(ctx, q, schemaFilter)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		out := make([]database.IndexStats, 0)
		for rows.Next() {
			var s database.IndexStats
			if err := rows.Scan(&s.Schema, &s.Table, &s.Name, &s.Unique); err != nil {
				return nil, mapError(err, q)
			}
			out = append(out, s)
		}
		if err := rows.Err(); err != nil {
			return nil, mapError(err, q)
		}

		usage, ok, err := p.indexUsage(ctx, schemaFilter)
		if err != nil {
			return nil, err
		}
		for i := range out {
			key := out[i].Table + "." + out[i].Name
			out[i].Scans = usage[key]
			out[i].TuplesRead = usage[key]
			// Without performance_schema nothing can be called unused.
			out[i].Unused = ok && out[i].Scans == 0 && !out[i].Unique && out[i].Name != "PRIMARY"
		}
		return out, nil
	})
}

func (p *Provider) indexUsage(ctx context.Context, schemaFilter string) (map[string]int64, bool, error) {
	const q = `
		SELECT OBJECT_NAME, INDEX_NAME, COUNT_READ
		FROM performance_schema.table_io_waits_summary_by_index_usage
		WHERE OBJECT_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		  AND INDEX_NAME IS NOT NULL`

	out := make(map[string]int64)
	rows, err := p.db.QueryContext(ctx, q, schemaFilter)
	if err != nil {
		if unsupported(err) {
			return out, false, nil
		}
		return nil, false, mapError(err, q)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, index string
			reads        int64
		)
		if err := rows.Scan(&table, &index, &reads); err != nil {
			return nil, false, mapError(err, q)
		}
		out[table+"."+index] = reads
	}
	return out, true, mapError(rows.Err(), q)
}

func (p *Provider) GetStorageStats(ctx context.Context) (*database.StorageStats, error) {
	return database.Guarded(ctx, p.Base, "storage stats", func(ctx context.Context) (*database.StorageStats, error) {
		const q = `
			SELECT COALESCE(SUM(DATA_LENGTH), 0),
			       COALESCE(SUM(INDEX_LENGTH), 0),
			       COALESCE(SUM(DATA_FREE), 0)
			FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE()`

		var s database.StorageStats
		if err := p.db.QueryRowContext(ctx, q).Scan(&s.DataSize, &s.IndexSize, &s.FreeSpace); err != nil {
			return nil, mapError(err, q)
		}
		s.DatabaseSize = s.DataSize + s.IndexSize

		// innodb_redo_log_capacity exists from 8.0.30; older servers leave zero.
		const lq = "SELECT @@innodb_redo_log_capacity"
		if err := p.db.QueryRowContext(ctx, lq).Scan(&s.LogSize); err != nil && !unsupported(err) {
			return nil, mapError(err, lq)
		}
		return &s, nil
	})
}
