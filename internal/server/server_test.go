package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dblens/internal/database"
	_ "github.com/koustreak/dblens/internal/database/demo"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/filestore/memory"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/monitoring"
)

func newTestServer(t *testing.T, archiver *monitoring.Archiver) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{
		Connections: []database.Descriptor{
			{ID: "demo", Type: database.TypeDemo, Database: "shop"},
			{ID: "cache", Type: database.TypeRedis, Host: "localhost", Password: "hunter2"},
		},
		Monitoring: monitoring.DefaultOptions(),
		Archiver:   archiver,
		Logger:     logger.Nop(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.cfg.Cache.ClearAll(context.Background())
	})
	return s, ts
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Config("pg", "bad"), http.StatusInternalServerError},
		{errs.Authentication("pg", "denied", nil), http.StatusUnauthorized},
		{errs.New(errs.KindTimeout, "pg", "slow"), http.StatusRequestTimeout},
		{errs.New(errs.KindPoolExhausted, "pg", "full"), http.StatusServiceUnavailable},
		{errs.New(errs.KindConnection, "pg", "refused"), http.StatusServiceUnavailable},
		{errs.New(errs.KindQuery, "pg", "syntax"), http.StatusBadRequest},
		{errs.Invalid("limit", "bad"), http.StatusBadRequest},
		{errs.New(errs.KindDatabase, "pg", "odd"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{filestore.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTypesAndHealthz(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var types []typeInfo
	require.NoError(t, json.Unmarshal(body, &types))
	found := false
	for _, ti := range types {
		if ti.Type == database.TypeDemo {
			found = true
		}
	}
	assert.True(t, found)
}

func TestQuery(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/connections/demo/query", queryRequest{Query: "SELECT name FROM customers LIMIT 2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res database.QueryResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"name"}, res.Fields)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/connections/demo/query", queryRequest{Query: "SELECT * FROM nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"error":"query"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/connections/demo/query", queryRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/connections/demo/query", queryRequest{Query: "SELECT * FROM customers", TimeoutMs: -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/connections/demo/query", queryRequest{Query: "SELECT * FROM customers", TimeoutMs: 5000})
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/connections/missing/query", queryRequest{Query: "SELECT 1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnimplementedBackend(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/connections/cache/schema", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "not implemented")
}

func TestSchemaHealthMaintenance(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/connections/demo/schema", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tables []database.TableSchema
	require.NoError(t, json.Unmarshal(body, &tables))
	assert.NotEmpty(t, tables)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/connections/demo/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var h database.HealthInfo
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, database.HealthHealthy, h.Status)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/connections/demo/maintenance", maintenanceRequest{Type: database.MaintenanceAnalyze})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/connections/demo/maintenance", maintenanceRequest{Type: "drop"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/connections/demo/maintenance", maintenanceRequest{Type: database.MaintenanceKill})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreview(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/connections/demo/tables/customers/preview?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res database.QueryResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.RowCount)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/connections/demo/tables/customers/preview?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonitoringAndCache(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/connections/demo/monitoring?indexes=false&slowQueries=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var data database.MonitoringData
	require.NoError(t, json.Unmarshal(body, &data))
	assert.NotNil(t, data.Overview)
	assert.NotEmpty(t, data.Tables)
	assert.Nil(t, data.Indexes)
	assert.False(t, data.Timestamp.IsZero())

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/connections/demo/monitoring?tables=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/connections/demo/monitoring?archive=true", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/cache", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats database.CacheStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, []string{"demo"}, stats.IDs)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/connections", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), `"connected":true`)

	resp, body = do(t, http.MethodDelete, ts.URL+"/api/connections/demo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"disconnected":true}`, string(body))
}

func TestSnapshots(t *testing.T) {
	a := monitoring.NewArchiver(memory.New(), "snapshots", "monitoring", logger.Nop())
	require.NoError(t, a.Init(context.Background()))
	_, ts := newTestServer(t, a)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/connections/demo/monitoring?archive=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/connections/demo/snapshots", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var objs []filestore.ObjectInfo
	require.NoError(t, json.Unmarshal(body, &objs))
	require.Len(t, objs, 1)
	assert.True(t, strings.HasPrefix(objs[0].Key, "monitoring/demo/"))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/connections/demo/snapshots/"+objs[0].Key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var data database.MonitoringData
	require.NoError(t, json.Unmarshal(body, &data))
	assert.NotNil(t, data.Overview)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/connections/demo/snapshots/monitoring/demo/2026/01/01/none.json", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSnapshots_NotConfigured(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/connections/demo/snapshots", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
