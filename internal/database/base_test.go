package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBase_InvalidPool(t *testing.T) {
	_, err := NewBase(testDescriptor("a"), Options{Pool: &pool.Overrides{Min: pool.Int(5), Max: pool.Int(2)}})

	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestNewBase_MergesPool(t *testing.T) {
	b, err := NewBase(testDescriptor("a"), Options{Pool: &pool.Overrides{Max: pool.Int(20)}})

	require.NoError(t, err)
	assert.Equal(t, pool.Config{Min: 2, Max: 20, IdleTimeout: 30 * time.Second, AcquireTimeout: 60 * time.Second}, b.PoolConfig())
	assert.Equal(t, StateDisconnected, b.State().State)
}

func TestConnect_Idempotent(t *testing.T) {
	f := newFake(t, testDescriptor("a"), Options{})
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.Connect(ctx))

	assert.Equal(t, int32(1), f.opens.Load())
	assert.True(t, f.IsConnected())

	st := f.State()
	assert.Equal(t, StateConnected, st.State)
	assert.False(t, st.LastConnected.IsZero())
}

func TestConnect_FailureRecordsError(t *testing.T) {
	desc := testDescriptor("a")
	desc.Port = 5432
	f := newFake(t, desc, Options{})
	f.openErr = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

	err := f.Connect(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	e, _ := errs.As(err)
	assert.Equal(t, "localhost", e.Host)
	assert.Equal(t, 5432, e.Port)

	assert.False(t, f.IsConnected())
	st := f.State()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.LastError, "connection refused")
}

func TestConnect_RetryAfterFailure(t *testing.T) {
	f := newFake(t, testDescriptor("a"), Options{})
	f.openErr = errors.New("ECONNREFUSED")
	require.Error(t, f.Connect(context.Background()))

	f.openErr = nil
	require.NoError(t, f.Connect(context.Background()))
	assert.True(t, f.IsConnected())
	assert.Empty(t, f.State().LastError)
}

func TestDisconnect(t *testing.T) {
	t.Run("never connected", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		assert.NoError(t, f.Disconnect(context.Background()))
		assert.Equal(t, int32(0), f.closes.Load())
	})

	t.Run("connected", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		require.NoError(t, f.Connect(context.Background()))
		require.NoError(t, f.Disconnect(context.Background()))
		require.NoError(t, f.Disconnect(context.Background()))

		assert.Equal(t, int32(1), f.closes.Load())
		assert.False(t, f.IsConnected())
	})

	t.Run("close fails", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		f.closeErr = errors.New("broken pipe")
		require.NoError(t, f.Connect(context.Background()))

		assert.Error(t, f.Disconnect(context.Background()))
		assert.False(t, f.IsConnected())
		assert.Equal(t, StateDisconnected, f.State().State)
	})
}

func TestEnsureConnected(t *testing.T) {
	f := newFake(t, testDescriptor("a"), Options{})

	_, err := f.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.Contains(t, err.Error(), msgNotConnected)

	_, err = f.GetSchema(context.Background())
	assert.True(t, errs.IsConfig(err))

	_, err = f.GetHealth(context.Background())
	assert.True(t, errs.IsConfig(err))
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("fills in timing and counts", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		require.NoError(t, f.Connect(ctx))

		res, err := f.Query(ctx, "SELECT 1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.RowCount)
		assert.Equal(t, []string{"n"}, res.Fields)
		assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		f.queryFn = func(context.Context, string) (*QueryResult, error) { return &QueryResult{}, nil }
		require.NoError(t, f.Connect(ctx))

		res, err := f.Query(ctx, "SELECT 1 WHERE false")
		require.NoError(t, err)
		assert.NotNil(t, res.Rows)
		assert.NotNil(t, res.Fields)
		assert.Equal(t, 0, res.RowCount)
	})

	t.Run("native errors are classified", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		f.queryFn = func(context.Context, string) (*QueryResult, error) {
			return nil, errors.New(`syntax error at or near "SELEC"`)
		}
		require.NoError(t, f.Connect(ctx))

		_, err := f.Query(ctx, "SELEC 1")
		require.Error(t, err)
		e, ok := errs.As(err)
		require.True(t, ok)
		assert.Equal(t, errs.KindQuery, e.Kind)
		assert.Equal(t, "SELEC 1", e.Query)
		assert.Equal(t, "demo", e.Provider)
	})

	t.Run("query timeout", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{QueryTimeout: 20 * time.Millisecond})
		f.queryFn = func(ctx context.Context, _ string) (*QueryResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		require.NoError(t, f.Connect(ctx))

		_, err := f.Query(ctx, "SELECT pg_sleep(10)")
		assert.True(t, errs.IsTimeout(err))
	})

	t.Run("active counter", func(t *testing.T) {
		f := newFake(t, testDescriptor("a"), Options{})
		started := make(chan struct{})
		release := make(chan struct{})
		f.queryFn = func(context.Context, string) (*QueryResult, error) {
			close(started)
			<-release
			return &QueryResult{}, nil
		}
		require.NoError(t, f.Connect(ctx))

		done := make(chan struct{})
		go func() {
			_, _ = f.Query(ctx, "SELECT 1")
			close(done)
		}()

		<-started
		assert.Equal(t, int64(1), f.State().ActiveQueries)
		close(release)
		<-done
		assert.Equal(t, int64(0), f.ActiveQueries())
	})
}

func TestRunMaintenance(t *testing.T) {
	ctx := context.Background()
	f := newFake(t, testDescriptor("a"), Options{})
	require.NoError(t, f.Connect(ctx))

	_, err := f.RunMaintenance(ctx, MaintenanceKill, "")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	res, err := f.RunMaintenance(ctx, MaintenanceVacuum, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, MaintenanceVacuum, res.Kind)
	assert.Empty(t, res.Target)

	res, err = f.RunMaintenance(ctx, MaintenanceKill, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", res.Target)

	_, err = f.RunMaintenance(ctx, MaintenanceKind("defrag"), "")
	assert.True(t, errs.IsValidation(err))
}

func TestRunMaintenance_RequiresConnection(t *testing.T) {
	f := newFake(t, testDescriptor("a"), Options{})

	_, err := f.RunMaintenance(context.Background(), MaintenanceAnalyze, "")
	assert.True(t, errs.IsConfig(err))
}

func TestValidateNetwork(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr string
	}{
		{"ok", Descriptor{ID: "a", Type: TypePostgres, Host: "db", Database: "app"}, ""},
		{"connection string", Descriptor{ID: "a", Type: TypePostgres, ConnectionString: "postgres://db/app"}, ""},
		{"no id", Descriptor{Type: TypePostgres, Host: "db", Database: "app"}, "connection id is required"},
		{"no host", Descriptor{ID: "a", Type: TypePostgres, Database: "app"}, "host is required"},
		{"no database", Descriptor{ID: "a", Type: TypePostgres, Host: "db"}, "database is required"},
		{"bad port", Descriptor{ID: "a", Type: TypePostgres, Host: "db", Database: "app", Port: 70000}, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBase(tt.desc, Options{})
			require.NoError(t, err)

			err = b.ValidateNetwork(true)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDescriptor_Redacted(t *testing.T) {
	d := Descriptor{
		ID:               "a",
		Password:         "hunter2",
		ConnectionString: "postgres://app:hunter2@db:5432/shop",
	}

	r := d.Redacted()

	assert.Equal(t, "[REDACTED]", r.Password)
	assert.NotContains(t, r.ConnectionString, "hunter2")
	assert.Equal(t, "hunter2", d.Password)
	assert.NotContains(t, d.Redacted().Target(), "hunter2")
}

func TestMeasure(t *testing.T) {
	boom := errors.New("boom")
	d, err := Measure(func() error {
		time.Sleep(5 * time.Millisecond)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
}
