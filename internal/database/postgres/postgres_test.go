package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	assert.Contains(t, database.NewFactory().Types(), database.TypePostgres)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		desc database.Descriptor
		opts database.Options
		want string
	}{
		{
			name: "fields",
			desc: database.Descriptor{Host: "db", User: "app", Password: "p@ss word", Database: "shop"},
			want: "postgres://app:p%40ss%20word@db:5432/shop?sslmode=disable",
		},
		{
			name: "custom port and ssl",
			desc: database.Descriptor{Host: "db", Port: 6432, User: "app", Database: "shop"},
			opts: database.Options{SSL: true},
			want: "postgres://app@db:6432/shop?sslmode=require",
		},
		{
			name: "connection string wins",
			desc: database.Descriptor{Host: "ignored", ConnectionString: "postgres://u:p@h/db"},
			want: "postgres://u:p@h/db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.desc, tt.opts))
		})
	}
}

func TestParseConfig(t *testing.T) {
	desc := database.Descriptor{Host: "db", User: "app", Password: "secret", Database: "shop"}
	cfg := pool.Merge(&pool.Overrides{Max: pool.Int(20), AcquireTimeout: pool.Duration(5 * time.Second)})

	pc, err := parseConfig(desc, database.Options{Timezone: "UTC"}, cfg)

	require.NoError(t, err)
	assert.Equal(t, int32(20), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 30*time.Second, pc.MaxConnIdleTime)
	assert.Equal(t, 5*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "UTC", pc.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, "shop", pc.ConnConfig.Database)
}

func TestParseConfig_Invalid(t *testing.T) {
	desc := database.Descriptor{ConnectionString: "postgres://db:notaport/x"}

	_, err := parseConfig(desc, database.Options{}, pool.DefaultConfig())

	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
}

func TestValidate(t *testing.T) {
	p, err := New(database.Descriptor{ID: "pg", Type: database.TypePostgres, Host: "db"}, database.Options{})
	require.NoError(t, err)
	assert.True(t, errs.IsConfig(p.Validate()))

	p, err = New(database.Descriptor{ID: "pg", Type: database.TypePostgres, Host: "db", Database: "shop"}, database.Options{})
	require.NoError(t, err)
	assert.NoError(t, p.Validate())
}

func TestQuery_NotConnected(t *testing.T) {
	p, err := New(database.Descriptor{ID: "pg", Type: database.TypePostgres, Host: "db", Database: "shop"}, database.Options{})
	require.NoError(t, err)

	_, err = p.Query(context.Background(), "SELECT 1")
	assert.True(t, errs.IsConfig(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{"auth", &pgconn.PgError{Code: "28P01", Message: "password authentication failed for user \"app\""}, errs.KindAuthentication},
		{"too many connections", &pgconn.PgError{Code: "53300", Message: "sorry, too many clients already"}, errs.KindPoolExhausted},
		{"statement timeout", &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}, errs.KindTimeout},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "connection failure"}, errs.KindConnection},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error at or near \"SELEC\"", Position: 1}, errs.KindQuery},
		{"data exception", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type integer"}, errs.KindQuery},
		{"other server error", &pgconn.PgError{Code: "XX000", Message: "internal error"}, errs.KindDatabase},
		{"plain refused", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), errs.KindConnection},
		{"wrapped", fmt.Errorf("scan: %w", &pgconn.PgError{Code: "42703", Message: "column \"x\" does not exist"}), errs.KindQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "SELEC 1")
			e, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, "postgres", e.Provider)
		})
	}
}

func TestMapError_Position(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42601", Message: "syntax error at or near \"FORM\"", Position: 10}, "SELECT 1 FORM t")

	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, 10, e.Position)
	assert.Equal(t, "42601", e.Code)
	assert.Equal(t, "SELECT 1 FORM t", e.Query)
	assert.False(t, errs.IsRetryable(err))
}

func TestMapError_PassThrough(t *testing.T) {
	typed := errs.Timeout("postgres", "query", time.Second)
	assert.Same(t, typed, mapError(typed, ""))
	assert.NoError(t, mapError(nil, ""))
}

func TestUnsupported(t *testing.T) {
	assert.True(t, unsupported(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, unsupported(&pgconn.PgError{Code: "42501"}))
	assert.True(t, unsupported(&pgconn.PgError{Code: "55000"}))
	assert.False(t, unsupported(&pgconn.PgError{Code: "42601"}))
	assert.False(t, unsupported(errors.New("relation does not exist")))
}

func TestMaintenanceStatement(t *testing.T) {
	tests := []struct {
		kind   database.MaintenanceKind
		target string
		want   string
	}{
		{database.MaintenanceVacuum, "", "VACUUM"},
		{database.MaintenanceVacuum, "public.orders", `VACUUM "public"."orders"`},
		{database.MaintenanceAnalyze, "", "ANALYZE"},
		{database.MaintenanceAnalyze, "orders", `ANALYZE "orders"`},
		{database.MaintenanceOptimize, "", "VACUUM ANALYZE"},
		{database.MaintenanceReindex, "", `REINDEX DATABASE "shop"`},
		{database.MaintenanceReindex, "orders", `REINDEX TABLE "orders"`},
		{database.MaintenanceKill, "4242", ""},
		{database.MaintenanceCheck, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.target, func(t *testing.T) {
			got, err := maintenanceStatement(tt.kind, tt.target, "shop")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaintenanceStatement_Invalid(t *testing.T) {
	_, err := maintenanceStatement(database.MaintenanceKill, "abc", "")
	assert.True(t, errs.IsValidation(err))

	_, err = maintenanceStatement("defrag", "", "")
	assert.True(t, errs.IsValidation(err))
}
