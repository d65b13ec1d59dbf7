package mongodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
)

// collectionCommand returns the per-collection command for kind.
// MongoDB keeps no planner statistics, so analyze clears the plan cache
// and lets the planner re-evaluate.
func collectionCommand(kind database.MaintenanceKind, coll string) (bson.D, error) {
	switch kind {
	case database.MaintenanceVacuum, database.MaintenanceOptimize:
		return bson.D{{Key: "compact", Value: coll}}, nil
	case database.MaintenanceAnalyze:
		return bson.D{{Key: "planCacheClear", Value: coll}}, nil
	case database.MaintenanceReindex:
		return bson.D{{Key: "reIndex", Value: coll}}, nil
	case database.MaintenanceCheck:
		return bson.D{{Key: "validate", Value: coll}}, nil
	}
	return nil, errs.Invalid("maintenance.type", fmt.Sprintf("unsupported maintenance type %q", kind))
}

// opID parses a killOp target. Sharded clusters use "shard:opid" strings.
func opID(target string) (any, error) {
	if n, err := strconv.ParseInt(target, 10, 64); err == nil {
		return n, nil
	}
	if i := strings.LastIndex(target, ":"); i > 0 {
		if _, err := strconv.ParseInt(target[i+1:], 10, 64); err == nil {
			return target, nil
		}
	}
	return nil, errs.Invalid("maintenance.target", "must be an operation id")
}

func (p *Provider) RunMaintenance(ctx context.Context, kind database.MaintenanceKind, target string) (*database.MaintenanceResult, error) {
	return p.Base.RunMaintenance(ctx, kind, target, func(ctx context.Context) (string, []string, error) {
		if kind == database.MaintenanceKill {
			id, err := opID(target)
			if err != nil {
				return "", nil, err
			}
			if _, err := command(ctx, p.admin(), bson.D{{Key: "killOp", Value: 1}, {Key: "op", Value: id}}); err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("kill requested for operation %v", id), nil, nil
		}

		colls := []string{target}
		if target == "" {
			var err error
			if colls, err = p.collections(ctx); err != nil {
				return "", nil, err
			}
		}

		var details []string
		for _, c := range colls {
			cmd, err := collectionCommand(kind, c)
			if err != nil {
				return "", nil, err
			}
			reply, err := command(ctx, p.db, cmd)
			if err != nil {
				return "", nil, err
			}
			if kind == database.MaintenanceCheck {
				details = append(details, validateDetails(c, reply)...)
			}
		}
		return fmt.Sprintf("%s completed on %d collection(s)", kind, len(colls)), details, nil
	})
}

// validateDetails summarizes a validate reply: one line per error or
// warning, or a single "valid" line.
func validateDetails(coll string, reply bson.D) []string {
	var out []string
	for _, key := range []string{"errors", "warnings"} {
		if list, ok := field(reply, key).(bson.A); ok {
			for _, m := range list {
				out = append(out, fmt.Sprintf("%s: %s: %v", coll, strings.TrimSuffix(key, "s"), m))
			}
		}
	}
	if valid, ok := field(reply, "valid").(bool); ok && valid && len(out) == 0 {
		out = append(out, coll+": valid")
	}
	return out
}
