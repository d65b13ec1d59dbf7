// Package monitoring assembles a full monitoring snapshot from the seven
// primitives every provider exposes and optionally archives snapshots to
// object storage.
package monitoring

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/logger"
)

const (
	DefaultSlowQueryLimit = 10
	DefaultSessionLimit   = 50
)

// Section names used as SectionErrors keys.
const (
	SectionTables  = "tables"
	SectionIndexes = "indexes"
	SectionStorage = "storage"
)

// Options select what Collect fetches.
type Options struct {
	IncludeTables  bool   `json:"includeTables" yaml:"include_tables"`
	IncludeIndexes bool   `json:"includeIndexes" yaml:"include_indexes"`
	IncludeStorage bool   `json:"includeStorage" yaml:"include_storage"`
	SlowQueryLimit int    `json:"slowQueryLimit" yaml:"slow_query_limit"`
	SessionLimit   int    `json:"sessionLimit" yaml:"session_limit"`
	SchemaFilter   string `json:"schemaFilter,omitempty" yaml:"schema_filter"`

	// StrictOptional makes a failing optional section fail the whole call
	// instead of being reported in SectionErrors.
	StrictOptional bool `json:"strictOptional,omitempty" yaml:"strict_optional"`
}

func DefaultOptions() Options {
	return Options{
		IncludeTables:  true,
		IncludeIndexes: true,
		IncludeStorage: true,
		SlowQueryLimit: DefaultSlowQueryLimit,
		SessionLimit:   DefaultSessionLimit,
	}
}

func (o Options) normalized() Options {
	if o.SlowQueryLimit <= 0 {
		o.SlowQueryLimit = DefaultSlowQueryLimit
	}
	if o.SessionLimit <= 0 {
		o.SessionLimit = DefaultSessionLimit
	}
	return o
}

// Collect fetches overview, performance, slow queries and active sessions
// concurrently, together with whichever optional sections opts requests.
//
// The first failing required section cancels the rest and fails the call.
// An optional section that fails is left empty and its redacted error is
// recorded under SectionErrors, unless opts.StrictOptional is set.
func Collect(ctx context.Context, src database.MonitoringSource, opts Options) (*database.MonitoringData, error) {
	opts = opts.normalized()

	var (
		data = &database.MonitoringData{}
		mu   sync.Mutex
	)

	optional := func(name string, err error) error {
		if err == nil || opts.StrictOptional {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if data.SectionErrors == nil {
			data.SectionErrors = make(map[string]string)
		}
		data.SectionErrors[name] = logger.RedactError(err)
		logger.FromContext(ctx).WarnWith("monitoring section unavailable", err, map[string]interface{}{
			"section": name,
		})
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := src.GetOverview(gctx)
		data.Overview = v
		return err
	})
	g.Go(func() error {
		v, err := src.GetPerformanceMetrics(gctx)
		data.Performance = v
		return err
	})
	g.Go(func() error {
		v, err := src.GetSlowQueries(gctx, opts.SlowQueryLimit)
		data.SlowQueries = v
		return err
	})
	g.Go(func() error {
		v, err := src.GetActiveSessions(gctx, opts.SessionLimit)
		data.ActiveSessions = v
		return err
	})

	if opts.IncludeTables {
		g.Go(func() error {
			v, err := src.GetTableStats(gctx, opts.SchemaFilter)
			if err != nil {
				return optional(SectionTables, err)
			}
			data.Tables = nonNil(v)
			return nil
		})
	}
	if opts.IncludeIndexes {
		g.Go(func() error {
			v, err := src.GetIndexStats(gctx, opts.SchemaFilter)
			if err != nil {
				return optional(SectionIndexes, err)
			}
			data.Indexes = nonNil(v)
			return nil
		})
	}
	if opts.IncludeStorage {
		g.Go(func() error {
			v, err := src.GetStorageStats(gctx)
			if err != nil {
				return optional(SectionStorage, err)
			}
			data.Storage = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if data.Overview == nil {
		data.Overview = &database.Overview{}
	}
	if data.Performance == nil {
		data.Performance = &database.PerformanceMetrics{}
	}
	data.SlowQueries = nonNil(data.SlowQueries)
	data.ActiveSessions = nonNil(data.ActiveSessions)
	data.Timestamp = time.Now().UTC()
	return data, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
