package pool

import (
	"context"
	"time"
)

// Conn is a single pooled connection.
type Conn interface {
	Ping(ctx context.Context) error
	Release()
}

// Acquirer hands out pooled connections.
type Acquirer interface {
	Acquire(ctx context.Context) (Conn, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context) (Conn, error)

func (f AcquirerFunc) Acquire(ctx context.Context) (Conn, error) { return f(ctx) }

// CheckConnectionHealth acquires a connection, pings it and releases it, all
// under timeout. It is a coarse liveness probe: the specific failure is
// discarded.
func CheckConnectionHealth(ctx context.Context, a Acquirer, timeout time.Duration) bool {
	ok, err := WithTimeout(ctx, timeout, "", "health check", func(ctx context.Context) (bool, error) {
		conn, err := a.Acquire(ctx)
		if err != nil {
			return false, err
		}
		defer conn.Release()

		if err := conn.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
	return err == nil && ok
}
