package demo

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T) database.Provider {
	t.Helper()
	p, err := New(database.Descriptor{ID: "demo-1", Type: database.TypeDemo, Database: "shop"}, database.Options{})
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Disconnect(context.Background()) })
	return p
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, database.NewFactory().Types(), database.TypeDemo)
}

func TestQuery(t *testing.T) {
	p := connected(t)
	ctx := context.Background()

	res, err := p.Query(ctx, "SELECT * FROM customers")
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, []string{"id", "name", "email", "country", "created_at"}, res.Fields)

	res, err = p.Query(ctx, `select name, "email" from customers limit 2;`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"name", "email"}, res.Fields)
	assert.Equal(t, "Ada Lovelace", res.Rows[0]["name"])
}

func TestQuery_LimitPlaceholder(t *testing.T) {
	p := connected(t)
	ctx := context.Background()

	q, args, err := database.Select("customers", database.DialectSQLite).Limit(3).Build()
	require.NoError(t, err)

	res, err := p.Query(ctx, q, args...)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)

	_, err = p.Query(ctx, "SELECT * FROM customers LIMIT ?")
	assert.Error(t, err)

	_, err = p.Query(ctx, "SELECT * FROM customers LIMIT ?", "ten")
	assert.Error(t, err)

	for _, n := range []any{-1, int64(-2), float64(-3)} {
		_, err = p.Query(ctx, "SELECT * FROM customers LIMIT ?", n)
		require.Error(t, err)
		assert.True(t, errs.IsQuery(err), "limit %v: %v", n, err)
	}
}

func TestQuery_NegativeLimitWithDeadline(t *testing.T) {
	p, err := New(database.Descriptor{ID: "demo-2", Type: database.TypeDemo, Database: "shop"}, database.Options{QueryTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Disconnect(context.Background()) })

	_, err = p.Query(context.Background(), "SELECT * FROM customers LIMIT ?", -1)
	require.Error(t, err)
	assert.True(t, errs.IsQuery(err))
}

func TestQuery_Errors(t *testing.T) {
	p := connected(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
	}{
		{"unsupported statement", "DELETE FROM customers"},
		{"unknown table", "SELECT * FROM invoices"},
		{"unknown column", "SELECT salary FROM customers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Query(ctx, tt.query)
			require.Error(t, err)
			assert.True(t, errs.IsQuery(err), "got %v", err)
			assert.False(t, errs.IsRetryable(err))
		})
	}
}

func TestNotConnected(t *testing.T) {
	p, err := New(database.Descriptor{ID: "demo-1", Type: database.TypeDemo}, database.Options{})
	require.NoError(t, err)

	_, err = p.Query(context.Background(), "SELECT * FROM customers")
	assert.True(t, errs.IsConfig(err))

	_, err = p.GetOverview(context.Background())
	assert.True(t, errs.IsConfig(err))
}

func TestGetSchema(t *testing.T) {
	p := connected(t)

	tables, err := p.GetSchema(context.Background())

	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, "customers", tables[0].Name)
	assert.Equal(t, "orders", tables[1].Name)
	assert.Len(t, tables[1].ForeignKeys, 2)
	require.NotNil(t, tables[2].RowCount)
	assert.Equal(t, int64(3), *tables[2].RowCount)
}

func TestRunMaintenance(t *testing.T) {
	p := connected(t)
	ctx := context.Background()

	_, err := p.RunMaintenance(ctx, database.MaintenanceKill, "")
	assert.True(t, errs.IsValidation(err))

	res, err := p.RunMaintenance(ctx, database.MaintenanceVacuum, "")
	require.NoError(t, err)
	assert.Len(t, res.Details, 3)

	res, err = p.RunMaintenance(ctx, database.MaintenanceAnalyze, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"analyze orders: ok"}, res.Details)

	_, err = p.RunMaintenance(ctx, database.MaintenanceReindex, "nope")
	assert.True(t, errs.IsQuery(err))

	res, err = p.RunMaintenance(ctx, database.MaintenanceKill, "102")
	require.NoError(t, err)
	assert.True(t, res.Success)

	sessions, err := p.GetActiveSessions(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestMonitoring(t *testing.T) {
	p := connected(t)
	ctx := context.Background()

	ov, err := p.GetOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.TableCount)
	assert.Equal(t, 5, ov.IndexCount)
	assert.Equal(t, 10, ov.MaxConnections)

	slow, err := p.GetSlowQueries(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, slow, 2)

	sessions, err := p.GetActiveSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	tables, err := p.GetTableStats(ctx, "")
	require.NoError(t, err)
	assert.Len(t, tables, 3)

	tables, err = p.GetTableStats(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, tables)

	idx, err := p.GetIndexStats(ctx, "")
	require.NoError(t, err)
	assert.Len(t, idx, 5)

	st, err := p.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.DataSize+st.IndexSize, st.DatabaseSize)

	h, err := p.GetHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.HealthHealthy, h.Status)
}
