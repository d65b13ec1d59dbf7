package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/pool"
)

func (p *Provider) admin() *mongo.Database {
	return p.client.Database("admin")
}

// command runs a single-reply command and decodes it into a bson.D.
func command(ctx context.Context, db *mongo.Database, cmd bson.D) (bson.D, error) {
	var out bson.D
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return nil, mapError(err, cmd[0].Key)
	}
	return out, nil
}

func (p *Provider) overview(ctx context.Context) (*database.Overview, error) {
	build, err := command(ctx, p.admin(), bson.D{{Key: "buildInfo", Value: 1}})
	if err != nil {
		return nil, err
	}
	status, err := command(ctx, p.admin(), bson.D{{Key: "serverStatus", Value: 1}})
	if err != nil {
		return nil, err
	}
	stats, err := command(ctx, p.db, bson.D{{Key: "dbStats", Value: 1}})
	if err != nil {
		return nil, err
	}

	current := toInt64(lookup(status, "connections.current"))
	active := toInt64(lookup(status, "connections.active"))
	ov := &database.Overview{
		Version:           toString(lookup(build, "version")),
		UptimeSeconds:     toInt64(lookup(status, "uptime")),
		ActiveConnections: int(active),
		IdleConnections:   int(current - active),
		MaxConnections:    int(current + toInt64(lookup(status, "connections.available"))),
		DatabaseSize:      toInt64(lookup(stats, "storageSize")) + toInt64(lookup(stats, "indexSize")),
		TableCount:        int(toInt64(lookup(stats, "collections"))),
		IndexCount:        int(toInt64(lookup(stats, "indexes"))),
	}
	ov.Uptime = pool.FormatDuration(time.Duration(ov.UptimeSeconds) * time.Second)
	ov.DatabaseSizeHuman = pool.FormatBytes(ov.DatabaseSize)
	return ov, nil
}

func (p *Provider) GetOverview(ctx context.Context) (*database.Overview, error) {
	return database.Guarded(ctx, p.Base, "overview", p.overview)
}

func (p *Provider) GetPerformanceMetrics(ctx context.Context) (*database.PerformanceMetrics, error) {
	return database.Guarded(ctx, p.Base, "performance", func(ctx context.Context) (*database.PerformanceMetrics, error) {
		status, err := command(ctx, p.admin(), bson.D{{Key: "serverStatus", Value: 1}})
		if err != nil {
			return nil, err
		}
		return performanceFromStatus(status), nil
	})
}

// performanceFromStatus derives the metrics from a serverStatus reply.
// Rates are averages since server start.
func performanceFromStatus(status bson.D) *database.PerformanceMetrics {
	m := &database.PerformanceMetrics{
		Commits:   toInt64(lookup(status, "transactions.totalCommitted")),
		Rollbacks: toInt64(lookup(status, "transactions.totalAborted")),
	}

	requested := toFloat(lookup(status, "wiredTiger.cache.pages requested from the cache"))
	read := toFloat(lookup(status, "wiredTiger.cache.pages read into cache"))
	if requested > 0 {
		m.CacheHitRatio = (requested - read) / requested * 100
	}
	inCache := toFloat(lookup(status, "wiredTiger.cache.bytes currently in the cache"))
	maxCache := toFloat(lookup(status, "wiredTiger.cache.maximum bytes configured"))
	if maxCache > 0 {
		m.BufferPoolUsage = inCache / maxCache * 100
	}

	var ops int64
	for _, k := range []string{"insert", "query", "update", "delete", "getmore", "command"} {
		ops += toInt64(lookup(status, "opcounters."+k))
	}
	uptime := toFloat(lookup(status, "uptime"))
	if uptime < 1 {
		uptime = 1
	}
	m.QueriesPerSec = float64(ops) / uptime
	m.TransactionsPerSec = float64(m.Commits+m.Rollbacks) / uptime
	return m
}

// GetSlowQueries reads system.profile. It is empty unless profiling is
// enabled on the database.
func (p *Provider) GetSlowQueries(ctx context.Context, limit int) ([]database.SlowQuery, error) {
	return database.Guarded(ctx, p.Base, "slow queries", func(ctx context.Context) ([]database.SlowQuery, error) {
		out := make([]database.SlowQuery, 0)
		opts := options.Find().
			SetSort(bson.D{{Key: "millis", Value: -1}}).
			SetLimit(int64(limit))
		cur, err := p.db.Collection("system.profile").Find(ctx, bson.D{}, opts)
		if err != nil {
			if unsupported(err) {
				return out, nil
			}
			return nil, mapError(err, "")
		}

		var docs []bson.D
		if err := cur.All(ctx, &docs); err != nil {
			return nil, mapError(err, "")
		}
		for _, d := range docs {
			ms := toFloat(lookup(d, "millis"))
			out = append(out, database.SlowQuery{
				Query:       profileText(d),
				Calls:       1,
				TotalTimeMs: ms,
				MeanTimeMs:  ms,
				MaxTimeMs:   ms,
				Rows:        toInt64(lookup(d, "nreturned")),
			})
		}
		return out, nil
	})
}

// profileText renders a profiler entry as "op ns command".
func profileText(d bson.D) string {
	parts := []string{toString(lookup(d, "op")), toString(lookup(d, "ns"))}
	if cmd, ok := lookup(d, "command").(bson.D); ok {
		if b, err := bson.MarshalExtJSON(cmd, false, false); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (p *Provider) GetActiveSessions(ctx context.Context, limit int) ([]database.ActiveSession, error) {
	return database.Guarded(ctx, p.Base, "active sessions", func(ctx context.Context) ([]database.ActiveSession, error) {
		reply, err := command(ctx, p.admin(), bson.D{
			{Key: "currentOp", Value: 1},
			{Key: "active", Value: true},
		})
		if err != nil {
			if unsupported(err) {
				return []database.ActiveSession{}, nil
			}
			return nil, err
		}
		ops, _ := lookup(reply, "inprog").(bson.A)
		return sessionsFromOps(ops, limit, time.Now()), nil
	})
}

func sessionsFromOps(ops bson.A, limit int, now time.Time) []database.ActiveSession {
	out := make([]database.ActiveSession, 0)
	for _, raw := range ops {
		if len(out) >= limit {
			break
		}
		op, ok := raw.(bson.D)
		if !ok {
			continue
		}
		s := database.ActiveSession{
			ID:         fmt.Sprint(lookup(op, "opid")),
			ClientAddr: toString(lookup(op, "client")),
			State:      toString(lookup(op, "op")),
			Database:   strings.SplitN(toString(lookup(op, "ns")), ".", 2)[0],
			DurationMs: toInt64(lookup(op, "microsecs_running")) / 1000,
		}
		if users, ok := lookup(op, "effectiveUsers").(bson.A); ok && len(users) > 0 {
			if u, ok := users[0].(bson.D); ok {
				s.User = toString(lookup(u, "user"))
			}
		}
		if cmd, ok := lookup(op, "command").(bson.D); ok {
			if b, err := bson.MarshalExtJSON(cmd, false, false); err == nil {
				s.Query = string(b)
			}
		}
		if w, ok := lookup(op, "waitingForLock").(bool); ok && w {
			s.WaitEvent = "lock"
		}
		if s.DurationMs > 0 {
			started := now.Add(-time.Duration(s.DurationMs) * time.Millisecond)
			s.StartedAt = &started
		}
		out = append(out, s)
	}
	return out
}

// matchesSchema treats the database name as the schema.
func (p *Provider) matchesSchema(filter string) bool {
	return filter == "" || filter == p.db.Name()
}

// storageStats runs $collStats for one collection.
func (p *Provider) storageStats(ctx context.Context, name string) (bson.D, error) {
	cur, err := p.db.Collection(name).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$collStats", Value: bson.D{{Key: "storageStats", Value: bson.D{}}}}},
	})
	if err != nil {
		return nil, mapError(err, "")
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError(err, "")
	}
	if len(docs) == 0 {
		return bson.D{}, nil
	}
	st, _ := lookup(docs[0], "storageStats").(bson.D)
	return st, nil
}

// indexAccesses runs $indexStats for one collection, keyed by index name.
// Deployments that refuse it yield an empty map.
func (p *Provider) indexAccesses(ctx context.Context, name string) (map[string]int64, error) {
	out := make(map[string]int64)
	cur, err := p.db.Collection(name).Aggregate(ctx, mongo.Pipeline{{{Key: "$indexStats", Value: bson.D{}}}})
	if err != nil {
		if unsupported(err) {
			return out, nil
		}
		return nil, mapError(err, "")
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError(err, "")
	}
	for _, d := range docs {
		out[toString(field(d, "name"))] = toInt64(lookup(d, "accesses.ops"))
	}
	return out, nil
}

func (p *Provider) collections(ctx context.Context) ([]string, error) {
	names, err := (&introspector{db: p.db}).ListTables(ctx, "")
	if err != nil {
		return nil, mapError(err, "")
	}
	return names, nil
}

func (p *Provider) GetTableStats(ctx context.Context, schemaFilter string) ([]database.TableStats, error) {
	return database.Guarded(ctx, p.Base, "table stats", func(ctx context.Context) ([]database.TableStats, error) {
		out := make([]database.TableStats, 0)
		if !p.matchesSchema(schemaFilter) {
			return out, nil
		}
		names, err := p.collections(ctx)
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			st, err := p.storageStats(ctx, name)
			if err != nil {
				return nil, err
			}
			t := database.TableStats{
				Schema:    p.db.Name(),
				Name:      name,
				RowCount:  toInt64(lookup(st, "count")),
				TableSize: toInt64(lookup(st, "storageSize")),
				IndexSize: toInt64(lookup(st, "totalIndexSize")),
			}
			t.TotalSize = t.TableSize + t.IndexSize

			acc, err := p.indexAccesses(ctx, name)
			if err != nil {
				return nil, err
			}
			for _, n := range acc {
				t.IndexScans += n
			}
			out = append(out, t)
		}
		return out, nil
	})
}

func (p *Provider) GetIndexStats(ctx context.Context, schemaFilter string) ([]database.IndexStats, error) {
	return database.Guarded(ctx, p.Base, "index stats", func(ctx context.Context) ([]database.IndexStats, error) {
		out := make([]database.IndexStats, 0)
		if !p.matchesSchema(schemaFilter) {
			return out, nil
		}
		names, err := p.collections(ctx)
		if err != nil {
			return nil, err
		}

		in := &introspector{db: p.db}
		for _, name := range names {
			idx, err := in.ListIndexes(ctx, "", name)
			if err != nil {
				return nil, mapError(err, "")
			}
			st, err := p.storageStats(ctx, name)
			if err != nil {
				return nil, err
			}
			acc, err := p.indexAccesses(ctx, name)
			if err != nil {
				return nil, err
			}
			sizes, _ := lookup(st, "indexSizes").(bson.D)
			for _, ix := range idx {
				scans, tracked := acc[ix.Name]
				out = append(out, database.IndexStats{
					Schema: p.db.Name(),
					Table:  name,
					Name:   ix.Name,
					Size:   toInt64(field(sizes, ix.Name)),
					Scans:  scans,
					Unique: ix.Unique,
					Unused: tracked && scans == 0 && !ix.Primary && !ix.Unique,
				})
			}
		}
		return out, nil
	})
}

func (p *Provider) GetStorageStats(ctx context.Context) (*database.StorageStats, error) {
	return database.Guarded(ctx, p.Base, "storage stats", func(ctx context.Context) (*database.StorageStats, error) {
		stats, err := command(ctx, p.db, bson.D{{Key: "dbStats", Value: 1}})
		if err != nil {
			return nil, err
		}
		s := &database.StorageStats{
			DataSize:  toInt64(lookup(stats, "storageSize")),
			IndexSize: toInt64(lookup(stats, "indexSize")),
		}
		s.DatabaseSize = s.DataSize + s.IndexSize
		if total := toInt64(lookup(stats, "fsTotalSize")); total > 0 {
			s.FreeSpace = total - toInt64(lookup(stats, "fsUsedSize"))
		}
		return s, nil
	})
}
