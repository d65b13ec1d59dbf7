package database

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal backend built on Base.
type fakeProvider struct {
	*Base
	openErr  error
	closeErr error
	opens    atomic.Int32
	closes   atomic.Int32
	queryFn  func(ctx context.Context, command string) (*QueryResult, error)
}

func newFake(t *testing.T, desc Descriptor, opts Options) *fakeProvider {
	t.Helper()
	b, err := NewBase(desc, opts)
	require.NoError(t, err)
	return &fakeProvider{Base: b}
}

func (f *fakeProvider) Connect(ctx context.Context) error {
	return f.Base.Connect(ctx, func(context.Context) error {
		f.opens.Add(1)
		return f.openErr
	})
}

func (f *fakeProvider) Disconnect(ctx context.Context) error {
	return f.Base.Disconnect(ctx, func(context.Context) error {
		f.closes.Add(1)
		return f.closeErr
	})
}

func (f *fakeProvider) Validate() error { return f.ValidateDescriptor() }

func (f *fakeProvider) Query(ctx context.Context, command string, _ ...any) (*QueryResult, error) {
	return f.RunQuery(ctx, command, func(ctx context.Context) (*QueryResult, error) {
		if f.queryFn != nil {
			return f.queryFn(ctx, command)
		}
		return &QueryResult{Rows: []map[string]any{{"n": 1}}, Fields: []string{"n"}}, nil
	})
}

func (f *fakeProvider) GetSchema(ctx context.Context) ([]TableSchema, error) {
	return Guarded(ctx, f.Base, "schema", func(context.Context) ([]TableSchema, error) {
		return []TableSchema{}, nil
	})
}

func (f *fakeProvider) GetHealth(ctx context.Context) (*HealthInfo, error) {
	return Guarded(ctx, f.Base, "health", func(context.Context) (*HealthInfo, error) {
		return &HealthInfo{Status: HealthHealthy}, nil
	})
}

func (f *fakeProvider) RunMaintenance(ctx context.Context, kind MaintenanceKind, target string) (*MaintenanceResult, error) {
	return f.Base.RunMaintenance(ctx, kind, target, func(context.Context) (string, []string, error) {
		return string(kind) + " done", nil, nil
	})
}

func (f *fakeProvider) GetOverview(context.Context) (*Overview, error) { return &Overview{}, nil }
func (f *fakeProvider) GetPerformanceMetrics(context.Context) (*PerformanceMetrics, error) {
	return &PerformanceMetrics{}, nil
}
func (f *fakeProvider) GetSlowQueries(context.Context, int) ([]SlowQuery, error) { return nil, nil }
func (f *fakeProvider) GetActiveSessions(context.Context, int) ([]ActiveSession, error) {
	return nil, nil
}
func (f *fakeProvider) GetTableStats(context.Context, string) ([]TableStats, error) { return nil, nil }
func (f *fakeProvider) GetIndexStats(context.Context, string) ([]IndexStats, error) { return nil, nil }
func (f *fakeProvider) GetStorageStats(context.Context) (*StorageStats, error) {
	return &StorageStats{}, nil
}

var _ Provider = (*fakeProvider)(nil)

func testDescriptor(id string) Descriptor {
	return Descriptor{ID: id, Name: id, Type: TypeDemo, Host: "localhost", Database: "app"}
}
