package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
)

// bloatThreshold is the dead/live tuple ratio check reports on.
const bloatThreshold = 0.2

// maintenanceStatement returns the SQL for kind. kill and check are
// handled separately and return an empty statement.
func maintenanceStatement(kind database.MaintenanceKind, target, dbName string) (string, error) {
	d := database.DialectPostgres
	switch kind {
	case database.MaintenanceVacuum:
		if target == "" {
			return "VACUUM", nil
		}
		return "VACUUM " + d.QuoteQualified(target), nil
	case database.MaintenanceOptimize:
		// PostgreSQL has no OPTIMIZE; the closest is a vacuum with fresh statistics.
		if target == "" {
			return "VACUUM ANALYZE", nil
		}
		return "VACUUM ANALYZE " + d.QuoteQualified(target), nil
	case database.MaintenanceAnalyze:
		if target == "" {
			return "ANALYZE", nil
		}
		return "ANALYZE " + d.QuoteQualified(target), nil
	case database.MaintenanceReindex:
		if target == "" {
			return "REINDEX DATABASE " + d.QuoteIdent(dbName), nil
		}
		return "REINDEX TABLE " + d.QuoteQualified(target), nil
	case database.MaintenanceKill:
		if _, err := strconv.Atoi(target); err != nil {
			return "", errs.Invalid("maintenance.target", "must be a numeric backend pid")
		}
		return "", nil
	case database.MaintenanceCheck:
		return "", nil
	}
	return "", errs.Invalid("maintenance.type", fmt.Sprintf("unsupported maintenance type %q", kind))
}

func (p *Provider) RunMaintenance(ctx context.Context, kind database.MaintenanceKind, target string) (*database.MaintenanceResult, error) {
	return p.Base.RunMaintenance(ctx, kind, target, func(ctx context.Context) (string, []string, error) {
		var dbName string
		if kind == database.MaintenanceReindex && target == "" {
			if err := p.pool.QueryRow(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
				return "", nil, mapError(err, "")
			}
		}

		stmt, err := maintenanceStatement(kind, target, dbName)
		if err != nil {
			return "", nil, err
		}

		switch kind {
		case database.MaintenanceKill:
			return p.terminate(ctx, target)
		case database.MaintenanceCheck:
			return p.checkBloat(ctx, target)
		}

		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return "", nil, mapError(err, stmt)
		}
		return fmt.Sprintf("%s completed", stmt), nil, nil
	})
}

func (p *Provider) terminate(ctx context.Context, pid string) (string, []string, error) {
	n, _ := strconv.Atoi(pid)
	var ok bool
	if err := p.pool.QueryRow(ctx, "SELECT pg_terminate_backend($1)", n).Scan(&ok); err != nil {
		return "", nil, mapError(err, "")
	}
	if !ok {
		return fmt.Sprintf("no backend with pid %d", n), nil, nil
	}
	return fmt.Sprintf("terminated backend %d", n), nil, nil
}

// checkBloat lists tables whose dead tuples exceed bloatThreshold of the
// live ones.
func (p *Provider) checkBloat(ctx context.Context, target string) (string, []string, error) {
	const q = `
		SELECT schemaname || '.' || relname, n_live_tup, n_dead_tup
		FROM pg_stat_user_tables
		WHERE ($1 = '' OR relname = $1 OR schemaname || '.' || relname = $1)
		ORDER BY n_dead_tup DESC`

	rows, err := p.pool.Query(ctx, q, target)
	if err != nil {
		return "", nil, mapError(err, q)
	}
	defer rows.Close()

	var (
		details []string
		checked int
	)
	for rows.Next() {
		var (
			name       string
			live, dead int64
		)
		if err := rows.Scan(&name, &live, &dead); err != nil {
			return "", nil, mapError(err, q)
		}
		checked++
		if live > 0 && float64(dead)/float64(live) > bloatThreshold {
			details = append(details, fmt.Sprintf("%s: %d dead of %d live tuples, vacuum recommended", name, dead, live))
		}
	}
	if err := rows.Err(); err != nil {
		return "", nil, mapError(err, q)
	}
	return fmt.Sprintf("checked %d table(s), %d need attention", checked, len(details)), details, nil
}
