package monitoring

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/filestore/memory"
	"github.com/koustreak/dblens/internal/logger"
)

func newArchiver(t *testing.T) *Archiver {
	t.Helper()
	a := NewArchiver(memory.New(), "snapshots", "/monitoring/", logger.Nop())
	require.NoError(t, a.Init(context.Background()))
	return a
}

func TestArchiver_Key(t *testing.T) {
	a := NewArchiver(memory.New(), "snapshots", "monitoring", logger.Nop())
	ts := time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC)

	key := a.Key("prod-db", ts)
	assert.True(t, strings.HasPrefix(key, "monitoring/prod-db/2026/03/09/140507-"), key)
	assert.True(t, strings.HasSuffix(key, ".json"))
	assert.NotEqual(t, key, a.Key("prod-db", ts))
}

func TestArchiver_ArchiveListLoad(t *testing.T) {
	ctx := context.Background()
	a := newArchiver(t)

	first := &database.MonitoringData{
		Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Overview:  &database.Overview{Version: "16.2"},
	}
	second := &database.MonitoringData{
		Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Overview:  &database.Overview{Version: "16.3"},
	}

	_, err := a.Archive(ctx, "db1", first)
	require.NoError(t, err)
	info, err := a.Archive(ctx, "db1", second)
	require.NoError(t, err)
	assert.Greater(t, info.Size, int64(0))

	_, err = a.Archive(ctx, "db2", first)
	require.NoError(t, err)

	objs, err := a.List(ctx, "db1", 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, info.Key, objs[0].Key)

	objs, err = a.List(ctx, "db1", 1)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	got, err := a.Load(ctx, "db1", info.Key)
	require.NoError(t, err)
	assert.Equal(t, "16.3", got.Overview.Version)
	assert.True(t, second.Timestamp.Equal(got.Timestamp))
}

func TestArchiver_Errors(t *testing.T) {
	ctx := context.Background()
	a := newArchiver(t)

	_, err := a.Archive(ctx, "", &database.MonitoringData{})
	assert.True(t, errs.IsValidation(err))

	_, err = a.Archive(ctx, "db1", nil)
	assert.True(t, errs.IsValidation(err))

	_, err = a.Load(ctx, "db1", "monitoring/db2/2026/01/01/x.json")
	assert.True(t, errs.IsValidation(err))

	_, err = a.Load(ctx, "db1", "monitoring/db1/../db2/x.json")
	assert.True(t, errs.IsValidation(err))

	_, err = a.Load(ctx, "db1", "monitoring/db1/2026/01/01/missing.json")
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}
