package sqlite

import (
	"context"
	"fmt"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
)

// maintenanceStatement returns the SQL for kind. VACUUM always rebuilds
// the whole file, so a target is accepted but does not narrow it.
func maintenanceStatement(kind database.MaintenanceKind, target string) (string, error) {
	q := database.DialectSQLite.QuoteIdent(target)
	switch kind {
	case database.MaintenanceVacuum:
		return "VACUUM", nil
	case database.MaintenanceAnalyze:
		if target == "" {
			return "ANALYZE", nil
		}
		return "ANALYZE " + q, nil
	case database.MaintenanceReindex:
		if target == "" {
			return "REINDEX", nil
		}
		return "REINDEX " + q, nil
	case database.MaintenanceOptimize:
		return "PRAGMA optimize", nil
	case database.MaintenanceCheck:
		if target == "" {
			return "PRAGMA integrity_check", nil
		}
		return "PRAGMA integrity_check(" + q + ")", nil
	case database.MaintenanceKill:
		return "", errs.Invalid("maintenance.type", "sqlite has no server sessions to kill")
	}
	return "", errs.Invalid("maintenance.type", fmt.Sprintf("unsupported maintenance type %q", kind))
}

func (p *Provider) RunMaintenance(ctx context.Context, kind database.MaintenanceKind, target string) (*database.MaintenanceResult, error) {
	return p.Base.RunMaintenance(ctx, kind, target, func(ctx context.Context) (string, []string, error) {
		stmt, err := maintenanceStatement(kind, target)
		if err != nil {
			return "", nil, err
		}

		if kind != database.MaintenanceCheck {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return "", nil, mapError(err, stmt)
			}
			return fmt.Sprintf("%s completed", stmt), nil, nil
		}

		rows, err := p.db.QueryContext(ctx, stmt)
		if err != nil {
			return "", nil, mapError(err, stmt)
		}
		defer rows.Close()

		var details []string
		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err != nil {
				return "", nil, mapError(err, stmt)
			}
			details = append(details, line)
		}
		if err := rows.Err(); err != nil {
			return "", nil, mapError(err, stmt)
		}
		if len(details) == 1 && details[0] == "ok" {
			return "integrity check passed", nil, nil
		}
		return fmt.Sprintf("integrity check reported %d problem(s)", len(details)), details, nil
	})
}
