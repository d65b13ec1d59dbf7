package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/monitoring"
	"github.com/koustreak/dblens/internal/pool"
)

const (
	defaultPreviewLimit = 50
	maxPreviewLimit     = 1000
)

type typeInfo struct {
	Type        database.Type `json:"type"`
	DisplayName string        `json:"displayName"`
}

func (s *Server) handleTypes(w http.ResponseWriter, _ *http.Request) {
	regs := s.cfg.Factory.Registrations()
	out := make([]typeInfo, len(regs))
	for i, r := range regs {
		out[i] = typeInfo{Type: r.Type, DisplayName: r.DisplayName}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Cache.Stats())
}

type connectionInfo struct {
	database.Descriptor
	State *database.ConnectionState `json:"state,omitempty"`
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	out := make([]connectionInfo, 0, len(s.connections))
	for _, d := range s.connections {
		info := connectionInfo{Descriptor: d.Redacted()}
		if p, ok := s.cfg.Cache.Get(d.ID); ok {
			st := p.State()
			info.State = &st
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// provider resolves the {id} URL parameter to a connected provider. It
// writes the error response itself and returns nil on failure.
func (s *Server) provider(w http.ResponseWriter, r *http.Request) database.Provider {
	id := chi.URLParam(r, "id")
	desc, ok := s.connections[id]
	if !ok {
		notFound(w, fmt.Sprintf("connection %q is not configured", id))
		return nil
	}
	p, err := s.cfg.Cache.GetOrCreate(r.Context(), desc, s.cfg.Defaults)
	if err != nil {
		writeError(w, err)
		return nil
	}
	return p
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.connections[id]; !ok {
		notFound(w, fmt.Sprintf("connection %q is not configured", id))
		return
	}
	removed := s.cfg.Cache.Remove(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": removed})
}

type queryRequest struct {
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`

	// TimeoutMs bounds this request below the provider's query timeout.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, errs.Invalid("query", "is required"))
		return
	}

	if req.TimeoutMs < 0 {
		writeError(w, errs.Invalid("timeoutMs", "must not be negative"))
		return
	}

	p := s.provider(w, r)
	if p == nil {
		return
	}

	provider := string(p.Descriptor().Type)
	ctx, cancel := pool.NewCancellable(r.Context(), time.Duration(req.TimeoutMs)*time.Millisecond, provider, "query")
	defer cancel()

	if database.IsSchemaModifying(req.Query) {
		logger.FromContext(ctx).InfoWith("schema-modifying statement", map[string]interface{}{
			"connection_id": p.Descriptor().ID,
			"query":         logger.TruncateQuery(req.Query),
		})
	}

	res, err := p.Query(ctx, req.Query, req.Params...)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && errs.IsTimeout(cause) {
			err = cause
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	p := s.provider(w, r)
	if p == nil {
		return
	}
	tables, err := p.GetSchema(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := s.provider(w, r)
	if p == nil {
		return
	}
	h, err := p.GetHealth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type maintenanceRequest struct {
	Type   database.MaintenanceKind `json:"type"`
	Target string                   `json:"target,omitempty"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p := s.provider(w, r)
	if p == nil {
		return
	}
	res, err := p.RunMaintenance(r.Context(), req.Type, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// monitoringOptions overlays query parameters on the configured defaults.
func (s *Server) monitoringOptions(r *http.Request) (monitoring.Options, error) {
	opts := s.cfg.Monitoring
	q := r.URL.Query()

	bools := map[string]*bool{
		"tables":  &opts.IncludeTables,
		"indexes": &opts.IncludeIndexes,
		"storage": &opts.IncludeStorage,
		"strict":  &opts.StrictOptional,
	}
	for name, dst := range bools {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, errs.Invalid(name, "must be a boolean")
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"slowQueries": &opts.SlowQueryLimit,
		"sessions":    &opts.SessionLimit,
	}
	for name, dst := range ints {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, errs.Invalid(name, "must be an integer")
			}
			*dst = n
		}
	}

	if v := q.Get("schema"); v != "" {
		opts.SchemaFilter = v
	}
	return opts, nil
}

func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	opts, err := s.monitoringOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	archive := r.URL.Query().Get("archive") == "true"
	if archive && s.cfg.Archiver == nil {
		writeError(w, errs.Invalid("archive", "snapshot archiving is not configured"))
		return
	}

	p := s.provider(w, r)
	if p == nil {
		return
	}
	data, err := monitoring.Collect(r.Context(), p, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	if archive {
		if _, err := s.cfg.Archiver.Archive(r.Context(), p.Descriptor().ID, data); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, data)
}

// handlePreview returns the first rows of a table. It is available on SQL
// backends only.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	limit := defaultPreviewLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPreviewLimit {
			writeError(w, errs.Invalid("limit", fmt.Sprintf("must be between 1 and %d", maxPreviewLimit)))
			return
		}
		limit = n
	}

	p := s.provider(w, r)
	if p == nil {
		return
	}
	sp, ok := p.(database.SQLProvider)
	if !ok {
		writeError(w, errs.Invalid("connection", fmt.Sprintf("%s does not support table preview", p.Descriptor().Type)))
		return
	}

	query, args, err := database.Select(chi.URLParam(r, "table"), sp.Dialect()).Limit(limit).Build()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := sp.Query(r.Context(), query, args...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) archiver(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, ok := s.connections[id]; !ok {
		notFound(w, fmt.Sprintf("connection %q is not configured", id))
		return "", false
	}
	if s.cfg.Archiver == nil {
		notFound(w, "snapshot archiving is not configured")
		return "", false
	}
	return id, true
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := s.archiver(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errs.Invalid("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	objs, err := s.cfg.Archiver.List(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objs)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.archiver(w, r)
	if !ok {
		return
	}
	data, err := s.cfg.Archiver.Load(r.Context(), id, chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Preload connects every configured connection, logging failures. It is
// used at startup so the first request does not pay the connect cost.
func (s *Server) Preload(ctx context.Context) {
	for _, d := range s.connections {
		if _, err := s.cfg.Cache.GetOrCreate(ctx, d, s.cfg.Defaults); err != nil {
			s.log.WarnWith("preload failed", err, map[string]interface{}{
				"connection_id": d.ID,
			})
		}
	}
}
