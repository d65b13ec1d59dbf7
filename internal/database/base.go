package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/pool"
)

// msgNotConnected is the message of the guard error returned by EnsureConnected.
const msgNotConnected = "not connected - call Connect() first"

// Base holds the state every backend shares: the descriptor, the resolved
// pool configuration, the lifecycle and the active query counter. Backends
// embed a *Base and supply only the native open/close/query functions.
type Base struct {
	desc    Descriptor
	opts    Options
	poolCfg pool.Config
	log     *logger.Logger

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	mu            sync.RWMutex
	state         State
	lastConnected time.Time
	lastErr       error

	active atomic.Int64
}

// NewBase merges the pool overrides onto the defaults and validates them.
func NewBase(desc Descriptor, opts Options) (*Base, error) {
	cfg := pool.Merge(opts.Pool)
	if err := pool.Validate(cfg); err != nil {
		return nil, err
	}

	log := logger.Global().With().
		Str("provider", string(desc.Type)).
		Str("connection_id", desc.ID).
		Logger()

	return &Base{
		desc:    desc,
		opts:    opts,
		poolCfg: cfg,
		log:     log,
		state:   StateDisconnected,
	}, nil
}

func (b *Base) Descriptor() Descriptor      { return b.desc }
func (b *Base) Options() Options            { return b.opts }
func (b *Base) PoolConfig() pool.Config     { return b.poolCfg }
func (b *Base) Logger() *logger.Logger      { return b.log }
func (b *Base) ProviderName() string        { return string(b.desc.Type) }
func (b *Base) QueryTimeout() time.Duration { return b.opts.QueryTimeout }

// IsConnected reports whether the provider is in the connected state.
func (b *Base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateConnected
}

// State returns a snapshot of the lifecycle fields.
func (b *Base) State() ConnectionState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cs := ConnectionState{
		State:         b.state,
		Connected:     b.state == StateConnected,
		LastConnected: b.lastConnected,
		ActiveQueries: b.active.Load(),
	}
	if b.lastErr != nil {
		cs.LastError = logger.RedactError(b.lastErr)
	}
	return cs
}

func (b *Base) setState(s State, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.lastErr = err
	if s == StateConnected {
		b.lastConnected = time.Now()
	}
}

// Connect runs open once and moves the provider to connected. A failure is
// classified, recorded as the last error and leaves IsConnected false.
func (b *Base) Connect(ctx context.Context, open func(ctx context.Context) error) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.IsConnected() {
		return nil
	}

	b.setState(StateConnecting, nil)
	start := time.Now()

	if err := open(ctx); err != nil {
		mapped := b.classifyConnect(err)
		b.setState(StateError, mapped)
		b.log.ErrorWith("connect failed", mapped, map[string]interface{}{
			"target": b.desc.Target(),
		})
		return mapped
	}

	b.setState(StateConnected, nil)
	b.log.InfoWith("connected", map[string]interface{}{
		"target":     b.desc.Target(),
		"elapsed_ms": time.Since(start).Milliseconds(),
		"pool_max":   b.poolCfg.Max,
	})
	return nil
}

func (b *Base) classifyConnect(err error) error {
	mapped := errs.Map(err, b.ProviderName(), "")
	if e, ok := errs.As(mapped); ok && e.Kind == errs.KindConnection && e.Host == "" {
		e.WithHost(b.desc.Host, b.desc.Port)
	}
	return mapped
}

// Disconnect runs closeFn unless the provider never opened anything. The
// provider ends up disconnected even when closeFn fails.
func (b *Base) Disconnect(ctx context.Context, closeFn func(ctx context.Context) error) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.RLock()
	state := b.state
	b.mu.RUnlock()
	if state == StateDisconnected {
		return nil
	}

	var err error
	if closeFn != nil {
		err = closeFn(ctx)
	}
	b.setState(StateDisconnected, nil)

	if err != nil {
		mapped := errs.Map(err, b.ProviderName(), "")
		b.log.WarnWith("disconnect failed", mapped, nil)
		return mapped
	}
	b.log.Info("disconnected")
	return nil
}

// EnsureConnected fails fast with a config error before any I/O is
// attempted on a provider that is not connected.
func (b *Base) EnsureConnected() error {
	if !b.IsConnected() {
		return errs.Config(b.ProviderName(), msgNotConnected)
	}
	return nil
}

// ValidateDescriptor checks the fields every backend needs.
func (b *Base) ValidateDescriptor() error {
	if b.desc.ID == "" {
		return errs.Config(b.ProviderName(), "connection id is required")
	}
	if b.desc.Type == "" {
		return errs.Config("", "connection type is required")
	}
	return nil
}

// ValidateNetwork additionally requires a host and a database name unless
// a connection string is given.
func (b *Base) ValidateNetwork(requireDatabase bool) error {
	if err := b.ValidateDescriptor(); err != nil {
		return err
	}
	if b.desc.ConnectionString != "" {
		return nil
	}
	if b.desc.Host == "" {
		return errs.Config(b.ProviderName(), "host is required")
	}
	if requireDatabase && b.desc.Database == "" {
		return errs.Config(b.ProviderName(), "database is required")
	}
	if b.desc.Port < 0 || b.desc.Port > 65535 {
		return errs.Config(b.ProviderName(), "port must be between 0 and 65535")
	}
	return nil
}

// TrackQuery increments the active query counter; call the returned func
// when the query is done.
func (b *Base) TrackQuery() func() {
	b.active.Add(1)
	return func() { b.active.Add(-1) }
}

// ActiveQueries returns the number of in-flight queries.
func (b *Base) ActiveQueries() int64 {
	return b.active.Load()
}

// RunQuery is the shared Query pipeline: connection guard, active query
// tracking, the configured query timeout, timing and error classification.
func (b *Base) RunQuery(ctx context.Context, command string, fn func(ctx context.Context) (*QueryResult, error)) (*QueryResult, error) {
	if err := b.EnsureConnected(); err != nil {
		return nil, err
	}

	done := b.TrackQuery()
	defer done()

	start := time.Now()
	res, err := pool.WithTimeout(ctx, b.opts.QueryTimeout, b.ProviderName(), "query", fn)
	elapsed := time.Since(start)

	if err != nil {
		if errs.IsValidation(err) {
			return nil, err
		}
		mapped := errs.Map(err, b.ProviderName(), command)
		if e, ok := errs.As(mapped); ok && e.Query == "" {
			e.WithQuery(command)
		}
		b.log.Debugf("query failed after %dms: %s", elapsed.Milliseconds(), logger.TruncateQuery(command))
		return nil, mapped
	}

	if res == nil {
		res = &QueryResult{}
	}
	if res.Rows == nil {
		res.Rows = []map[string]any{}
	}
	if res.Fields == nil {
		res.Fields = []string{}
	}
	if res.RowCount == 0 {
		res.RowCount = len(res.Rows)
	}
	res.ExecutionTimeMs = elapsed.Milliseconds()

	b.log.Debugf("query finished in %dms: %s", res.ExecutionTimeMs, logger.TruncateQuery(command))
	return res, nil
}

// Guarded runs fn after the connection guard and classifies its error.
// Backends use it for every non-query operation that touches the driver.
func Guarded[T any](ctx context.Context, b *Base, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.EnsureConnected(); err != nil {
		return zero, err
	}
	v, err := pool.WithTimeout(ctx, b.opts.QueryTimeout, b.ProviderName(), operation, fn)
	if err != nil {
		if errs.IsValidation(err) {
			return zero, err
		}
		return zero, errs.Map(err, b.ProviderName(), "")
	}
	return v, nil
}

// Measure times fn.
func Measure(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}

// ValidateMaintenance rejects unknown kinds and a kill without a target.
func (b *Base) ValidateMaintenance(kind MaintenanceKind, target string) error {
	if !kind.Valid() {
		return errs.Invalid("maintenance.type", "must be one of vacuum, analyze, reindex, kill, optimize, check")
	}
	if kind == MaintenanceKill && target == "" {
		return errs.Invalid("maintenance.target", "kill requires a session or process id")
	}
	return nil
}

// RunMaintenance validates the request, checks the connection and times
// the backend action. The action returns a message and optional details.
func (b *Base) RunMaintenance(ctx context.Context, kind MaintenanceKind, target string, action func(ctx context.Context) (string, []string, error)) (*MaintenanceResult, error) {
	if err := b.ValidateMaintenance(kind, target); err != nil {
		return nil, err
	}
	if err := b.EnsureConnected(); err != nil {
		return nil, err
	}

	var (
		msg     string
		details []string
	)
	elapsed, err := Measure(func() error {
		var aerr error
		msg, details, aerr = action(ctx)
		return aerr
	})
	if err != nil {
		if errs.IsValidation(err) {
			return nil, err
		}
		return nil, errs.Map(err, b.ProviderName(), "")
	}

	b.log.InfoWith("maintenance finished", map[string]interface{}{
		"type":        string(kind),
		"target":      target,
		"duration_ms": elapsed.Milliseconds(),
	})

	return &MaintenanceResult{
		Kind:       kind,
		Target:     target,
		Success:    true,
		Message:    msg,
		DurationMs: elapsed.Milliseconds(),
		Details:    details,
	}, nil
}
