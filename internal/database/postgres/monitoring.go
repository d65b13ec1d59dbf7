package postgres

import (
	"context"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

func (p *Provider) overview(ctx context.Context) (*database.Overview, error) {
	const q = `
		SELECT version(),
		       EXTRACT(EPOCH FROM now() - pg_postmaster_start_time())::bigint,
		       (SELECT count(*) FROM pg_stat_activity WHERE state = 'active'),
		       (SELECT count(*) FROM pg_stat_activity WHERE state = 'idle'),
		       current_setting('max_connections')::int,
		       pg_database_size(current_database()),
		       (SELECT count(*) FROM pg_stat_user_tables),
		       (SELECT count(*) FROM pg_stat_user_indexes)`

	var (
		ov                     database.Overview
		active, idle           int64
		maxConns               int32
		tableCount, indexCount int64
	)
	err := p.pool.QueryRow(ctx, q).Scan(&ov.Version, &ov.UptimeSeconds, &active, &idle,
		&maxConns, &ov.DatabaseSize, &tableCount, &indexCount)
	if err != nil {
		return nil, mapError(err, q)
	}

	ov.Uptime = pool.FormatDuration(time.Duration(ov.UptimeSeconds) * time.Second)
	ov.ActiveConnections = int(active)
	ov.IdleConnections = int(idle)
	ov.MaxConnections = int(maxConns)
	ov.DatabaseSizeHuman = pool.FormatBytes(ov.DatabaseSize)
	ov.TableCount = int(tableCount)
	ov.IndexCount = int(indexCount)
	return &ov, nil
}

func (p *Provider) GetOverview(ctx context.Context) (*database.Overview, error) {
	return database.Guarded(ctx, p.Base, "overview", p.overview)
}

func (p *Provider) GetPerformanceMetrics(ctx context.Context) (*database.PerformanceMetrics, error) {
	return database.Guarded(ctx, p.Base, "performance", func(ctx context.Context) (*database.PerformanceMetrics, error) {
		const q = `
			SELECT COALESCE(blks_hit, 0),
			       COALESCE(blks_read, 0),
			       COALESCE(xact_commit, 0),
			       COALESCE(xact_rollback, 0),
			       COALESCE(deadlocks, 0),
			       COALESCE(temp_files, 0),
			       GREATEST(EXTRACT(EPOCH FROM now() - COALESCE(stats_reset, pg_postmaster_start_time())), 1)::float8
			FROM pg_stat_database
			WHERE datname = current_database()`

		var (
			m                 database.PerformanceMetrics
			hit, read         int64
			secondsSinceReset float64
		)
		err := p.pool.QueryRow(ctx, q).Scan(&hit, &read, &m.Commits, &m.Rollbacks,
			&m.Deadlocks, &m.TempFiles, &secondsSinceReset)
		if err != nil {
			return nil, mapError(err, q)
		}

		if hit+read > 0 {
			m.CacheHitRatio = float64(hit) / float64(hit+read) * 100
		}
		m.TransactionsPerSec = float64(m.Commits+m.Rollbacks) / secondsSinceReset

		// shared_buffers usage needs pg_buffercache; leave zero when absent.
		const bq = `
			SELECT COALESCE(100.0 * count(*) FILTER (WHERE relfilenode IS NOT NULL) / NULLIF(count(*), 0), 0)::float8
			FROM pg_buffercache`
		if err := p.pool.QueryRow(ctx, bq).Scan(&m.BufferPoolUsage); err != nil && !unsupported(err) {
			return nil, mapError(err, bq)
		}
		return &m, nil
	})
}

func (p *Provider) GetSlowQueries(ctx context.Context, limit int) ([]database.SlowQuery, error) {
	return database.Guarded(ctx, p.Base, "slow queries", func(ctx context.Context) ([]database.SlowQuery, error) {
		const q = `
			SELECT query, calls, total_exec_time, mean_exec_time, max_exec_time, rows
			FROM pg_stat_statements
			WHERE dbid = (SELECT oid FROM pg_database WHERE datname = current_database())
			ORDER BY mean_exec_time DESC
			LIMIT $1`

		out := make([]database.SlowQuery, 0)
		rows, err := p.pool.Query(ctx, q, limit)
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
		if err := rows.Err(); err != nil {
			if unsupported(err) {
				return make([]database.SlowQuery, 0), nil
			}
			return nil, mapError(err, q)
		}
		return out, nil
	})
}

func (p *Provider) GetActiveSessions(ctx context.Context, limit int) ([]database.ActiveSession, error) {
	return database.Guarded(ctx, p.Base, "active sessions", func(ctx context.Context) ([]database.ActiveSession, error) {
		const q = `
			SELECT pid::text,
			       COALESCE(usename, ''),
			       COALESCE(datname, ''),
			       COALESCE(client_addr::text, ''),
			       COALESCE(state, ''),
			       COALESCE(query, ''),
			       COALESCE(EXTRACT(EPOCH FROM now() - query_start) * 1000, 0)::bigint,
			       COALESCE(wait_event, ''),
			       backend_start
			FROM pg_stat_activity
			WHERE pid <> pg_backend_pid()
			  AND datname = current_database()
			ORDER BY query_start NULLS LAST
			LIMIT $1`

		rows, err := p.pool.Query(ctx, q, limit)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		out := make([]database.ActiveSession, 0)
		for rows.Next() {
			var (
				s       database.ActiveSession
				started *time.Time
			)
			if err := rows.Scan(&s.ID, &s.User, &s.Database, &s.ClientAddr, &s.State,
				&s.Query, &s.DurationMs, &s.WaitEvent, &started); err != nil {
				return nil, mapError(err, q)
			}
			s.StartedAt = started
			out = append(out, s)
		}
		return out, mapError(rows.Err(), q)
	})
}

func (p *Provider) GetTableStats(ctx context.Context, schemaFilter string) ([]database.TableStats, error) {
	return database.Guarded(ctx, p.Base, "table stats", func(ctx context.Context) ([]database.TableStats, error) {
		const q = `
			SELECT schemaname,
			       relname,
			       n_live_tup,
			       pg_total_relation_size(relid),
			       pg_table_size(relid),
			       pg_indexes_size(relid),
			       COALESCE(seq_scan, 0),
			       COALESCE(idx_scan, 0),
			       n_dead_tup,
			       GREATEST(last_vacuum, last_autovacuum),
			       GREATEST(last_analyze, last_autoanalyze)
			FROM pg_stat_user_tables
			WHERE ($1 = '' OR schemaname = $1)
			ORDER BY pg_total_relation_size(relid) DESC`

		rows, err := p.pool.Query(ctx, q, schemaFilter)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		out := make([]database.TableStats, 0)
		for rows.Next() {
			var t database.TableStats
			if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount, &t.TotalSize, &t.TableSize,
				&t.IndexSize, &t.SeqScans, &t.IndexScans, &t.DeadRows, &t.LastVacuum, &t.LastAnalyze); err != nil {
				return nil, mapError(err, q)
			}
			out = append(out, t)
		}
		return out, mapError(rows.Err(), q)
	})
}

func (p *Provider) GetIndexStats(ctx context.Context, schemaFilter string) ([]database.IndexStats, error) {
	return database.Guarded(ctx, p.Base, "index stats", func(ctx context.Context) ([]database.IndexStats, error) {
		const q = `
			SELECT s.schemaname,
			       s.relname,
			       s.indexrelname,
			       pg_relation_size(s.indexrelid),
			       COALESCE(s.idx_scan, 0),
			       COALESCE(s.idx_tup_read, 0),
			       COALESCE(s.idx_tup_fetch, 0),
			       i.indisunique,
			       i.indisprimary
			FROM pg_stat_user_indexes s
			JOIN pg_index i ON i.indexrelid = s.indexrelid
			WHERE ($1 = '' OR s.schemaname = $1)
			ORDER BY pg_relation_size(s.indexrelid) DESC`

		rows, err := p.pool.Query(ctx, q, schemaFilter)
		if err != nil {
			return nil, mapError(err, q)
		}
		defer rows.Close()

		out := make([]database.IndexStats, 0)
		for rows.Next() {
			var (
				s       database.IndexStats
				primary bool
			)
			if err := rows.Scan(&s.Schema, &s.Table, &s.Name, &s.Size, &s.Scans,
				&s.TuplesRead, &s.TuplesFetched, &s.Unique, &primary); err != nil {
				return nil, mapError(err, q)
			}
			s.Unused = s.Scans == 0 && !primary && !s.Unique
			out = append(out, s)
		}
		return out, mapError(rows.Err(), q)
	})
}

func (p *Provider) GetStorageStats(ctx context.Context) (*database.StorageStats, error) {
	return database.Guarded(ctx, p.Base, "storage stats", func(ctx context.Context) (*database.StorageStats, error) {
		const q = `
			SELECT pg_database_size(current_database()),
			       COALESCE(sum(pg_table_size(relid)), 0)::bigint,
			       COALESCE(sum(pg_indexes_size(relid)), 0)::bigint
			FROM pg_stat_user_tables`

		var s database.StorageStats
		if err := p.pool.QueryRow(ctx, q).Scan(&s.DatabaseSize, &s.DataSize, &s.IndexSize); err != nil {
			return nil, mapError(err, q)
		}

		// pg_ls_waldir needs pg_monitor; the WAL size stays zero without it.
		const wq = `SELECT COALESCE(sum(size), 0)::bigint FROM pg_ls_waldir()`
		if err := p.pool.QueryRow(ctx, wq).Scan(&s.LogSize); err != nil && !unsupported(err) {
			return nil, mapError(err, wq)
		}
		return &s, nil
	})
}
