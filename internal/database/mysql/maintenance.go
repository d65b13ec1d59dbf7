package mysql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
)

// tableStatement returns the per-table SQL for kind. vacuum and optimize
// both rebuild through OPTIMIZE TABLE, which is what InnoDB offers.
func tableStatement(kind database.MaintenanceKind, table string) (string, error) {
	q := database.DialectMySQL.QuoteQualified(table)
	switch kind {
	case database.MaintenanceVacuum, database.MaintenanceOptimize:
		return "OPTIMIZE TABLE " + q, nil
	case database.MaintenanceAnalyze:
		return "ANALYZE TABLE " + q, nil
	case database.MaintenanceReindex:
		return "ALTER TABLE " + q + " FORCE", nil
	case database.MaintenanceCheck:
		return "CHECK TABLE " + q, nil
	}
	return "", errs.Invalid("maintenance.type", fmt.Sprintf("unsupported maintenance type %q", kind))
}

func (p *Provider) RunMaintenance(ctx context.Context, kind database.MaintenanceKind, target string) (*database.MaintenanceResult, error) {
	return p.Base.RunMaintenance(ctx, kind, target, func(ctx context.Context) (string, []string, error) {
		if kind == database.MaintenanceKill {
			return p.kill(ctx, target)
		}

		tables := []string{target}
		if target == "" {
			var err error
			if tables, err = p.baseTables(ctx); err != nil {
				return "", nil, err
			}
		}

		var details []string
		for _, t := range tables {
			stmt, err := tableStatement(kind, t)
			if err != nil {
				return "", nil, err
			}
			msgs, err := p.adminStatement(ctx, stmt)
			if err != nil {
				return "", nil, err
			}
			details = append(details, msgs...)
		}
		return fmt.Sprintf("%s completed on %d table(s)", strings.ToUpper(string(kind)), len(tables)), details, nil
	})
}

// adminStatement runs an OPTIMIZE/ANALYZE/CHECK style statement and turns
// its result set (Table, Op, Msg_type, Msg_text) into detail lines.
func (p *Provider) adminStatement(ctx context.Context, stmt string) ([]string, error) {
	if strings.HasPrefix(stmt, "ALTER") {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return nil, mapError(err, stmt)
		}
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, mapError(err, stmt)
	}
	data, _, err := database.ScanRows(database.FromSQLRows(rows))
	if err != nil {
		return nil, mapError(err, stmt)
	}

	out := make([]string, 0, len(data))
	for _, r := range data {
		out = append(out, fmt.Sprintf("%v: %v %v", r["Table"], r["Msg_type"], r["Msg_text"]))
	}
	return out, nil
}

func (p *Provider) baseTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, q)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, mapError(err, q)
		}
		names = append(names, n)
	}
	return names, mapError(rows.Err(), q)
}

func (p *Provider) kill(ctx context.Context, target string) (string, []string, error) {
	id, err := strconv.ParseUint(target, 10, 64)
	if err != nil {
		return "", nil, errs.Invalid("maintenance.target", "must be a numeric process id")
	}
	stmt := fmt.Sprintf("KILL %d", id)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return "", nil, mapError(err, stmt)
	}
	return fmt.Sprintf("killed process %d", id), nil, nil
}
