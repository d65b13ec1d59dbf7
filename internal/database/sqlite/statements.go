package sqlite

import (
	"sort"
	"sync"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/logger"
)

// maxTrackedStatements bounds the in-process statement table.
const maxTrackedStatements = 500

// statements aggregates timings of queries run through the provider.
// SQLite keeps no statement statistics of its own, so GetSlowQueries
// reports these.
type statements struct {
	mu    sync.Mutex
	stats map[string]*database.SlowQuery
}

func newStatements() *statements {
	return &statements{stats: make(map[string]*database.SlowQuery)}
}

func (s *statements) record(query string, ms float64, rows int64) {
	key := logger.TruncateQuery(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[key]
	if !ok {
		if len(s.stats) >= maxTrackedStatements {
			return
		}
		st = &database.SlowQuery{Query: key}
		s.stats[key] = st
	}
	st.Calls++
	st.TotalTimeMs += ms
	st.MeanTimeMs = st.TotalTimeMs / float64(st.Calls)
	if ms > st.MaxTimeMs {
		st.MaxTimeMs = ms
	}
	st.Rows += rows
}

// top returns up to limit statements by mean time, slowest first.
func (s *statements) top(limit int) []database.SlowQuery {
	s.mu.Lock()
	out := make([]database.SlowQuery, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].MeanTimeMs == out[b].MeanTimeMs {
			return out[a].Query < out[b].Query
		}
		return out[a].MeanTimeMs > out[b].MeanTimeMs
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *statements) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, st := range s.stats {
		n += st.Calls
	}
	return n
}

func (s *statements) reset() {
	s.mu.Lock()
	s.stats = make(map[string]*database.SlowQuery)
	s.mu.Unlock()
}
