// Package pool holds the pool configuration and timing utilities shared by
// every provider: config merging and validation, deadline races, cancellable
// contexts, coarse liveness probes and human-readable formatting.
package pool

import (
	"time"

	"github.com/koustreak/dblens/internal/errs"
)

const (
	DefaultMin            = 2
	DefaultMax            = 10
	DefaultIdleTimeout    = 30 * time.Second
	DefaultAcquireTimeout = 60 * time.Second
)

// Config is a fully resolved pool configuration.
type Config struct {
	Min            int           `json:"min" yaml:"min"`
	Max            int           `json:"max" yaml:"max"`
	IdleTimeout    time.Duration `json:"idleTimeout" yaml:"idle_timeout"`
	AcquireTimeout time.Duration `json:"acquireTimeout" yaml:"acquire_timeout"`
}

// Overrides is a partial pool configuration. Nil fields keep the default.
type Overrides struct {
	Min            *int           `json:"min,omitempty" yaml:"min,omitempty"`
	Max            *int           `json:"max,omitempty" yaml:"max,omitempty"`
	IdleTimeout    *time.Duration `json:"idleTimeout,omitempty" yaml:"idle_timeout,omitempty"`
	AcquireTimeout *time.Duration `json:"acquireTimeout,omitempty" yaml:"acquire_timeout,omitempty"`
}

// DefaultConfig returns the pool settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Min:            DefaultMin,
		Max:            DefaultMax,
		IdleTimeout:    DefaultIdleTimeout,
		AcquireTimeout: DefaultAcquireTimeout,
	}
}

// Merge overlays only the fields set in o onto the defaults.
func Merge(o *Overrides) Config {
	cfg := DefaultConfig()
	if o == nil {
		return cfg
	}
	if o.Min != nil {
		cfg.Min = *o.Min
	}
	if o.Max != nil {
		cfg.Max = *o.Max
	}
	if o.IdleTimeout != nil {
		cfg.IdleTimeout = *o.IdleTimeout
	}
	if o.AcquireTimeout != nil {
		cfg.AcquireTimeout = *o.AcquireTimeout
	}
	return cfg
}

// Validate checks the pool invariants: 0 <= Min <= Max, Max >= 1 and
// non-negative timeouts. Zero timeouts are allowed and mean "no limit".
func Validate(c Config) error {
	switch {
	case c.Min < 0:
		return errs.Invalid("pool.min", "must not be negative")
	case c.Max < 1:
		return errs.Invalid("pool.max", "must be at least 1")
	case c.Min > c.Max:
		return errs.Invalid("pool.min", "must not exceed pool.max")
	case c.IdleTimeout < 0:
		return errs.Invalid("pool.idle_timeout", "must not be negative")
	case c.AcquireTimeout < 0:
		return errs.Invalid("pool.acquire_timeout", "must not be negative")
	}
	return nil
}

// Int returns a pointer to v, for building Overrides literals.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for building Overrides literals.
func Duration(d time.Duration) *time.Duration { return &d }
