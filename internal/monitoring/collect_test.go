package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dblens/internal/database"
	_ "github.com/koustreak/dblens/internal/database/demo"
	"github.com/koustreak/dblens/internal/errs"
)

// fakeSource returns canned sections; a non-nil entry in fail makes that
// section error out.
type fakeSource struct {
	fail      map[string]error
	delay     time.Duration
	slowLimit int
	sessLimit int
	filter    string
	noTables  bool
	calls     atomic.Int32
}

func (f *fakeSource) err(name string) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.fail[name]
}

func (f *fakeSource) GetOverview(context.Context) (*database.Overview, error) {
	if err := f.err("overview"); err != nil {
		return nil, err
	}
	return &database.Overview{Version: "fake 1"}, nil
}

func (f *fakeSource) GetPerformanceMetrics(context.Context) (*database.PerformanceMetrics, error) {
	if err := f.err("performance"); err != nil {
		return nil, err
	}
	return &database.PerformanceMetrics{CacheHitRatio: 99.5}, nil
}

func (f *fakeSource) GetSlowQueries(_ context.Context, limit int) ([]database.SlowQuery, error) {
	f.slowLimit = limit
	if err := f.err("slow"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeSource) GetActiveSessions(_ context.Context, limit int) ([]database.ActiveSession, error) {
	f.sessLimit = limit
	if err := f.err("sessions"); err != nil {
		return nil, err
	}
	return []database.ActiveSession{{ID: "1"}}, nil
}

func (f *fakeSource) GetTableStats(_ context.Context, schema string) ([]database.TableStats, error) {
	f.filter = schema
	if err := f.err(SectionTables); err != nil {
		return nil, err
	}
	if f.noTables {
		return nil, nil
	}
	return []database.TableStats{{Name: "t"}}, nil
}

func (f *fakeSource) GetIndexStats(context.Context, string) ([]database.IndexStats, error) {
	if err := f.err(SectionIndexes); err != nil {
		return nil, err
	}
	return []database.IndexStats{{Name: "i"}}, nil
}

func (f *fakeSource) GetStorageStats(context.Context) (*database.StorageStats, error) {
	if err := f.err(SectionStorage); err != nil {
		return nil, err
	}
	return &database.StorageStats{DatabaseSize: 42}, nil
}

func TestCollect_AllSections(t *testing.T) {
	src := &fakeSource{}
	before := time.Now().UTC()

	data, err := Collect(context.Background(), src, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, int32(7), src.calls.Load())
	assert.Equal(t, "fake 1", data.Overview.Version)
	assert.Equal(t, 99.5, data.Performance.CacheHitRatio)
	assert.NotNil(t, data.SlowQueries)
	assert.Empty(t, data.SlowQueries)
	assert.Len(t, data.ActiveSessions, 1)
	assert.Len(t, data.Tables, 1)
	assert.Len(t, data.Indexes, 1)
	assert.Equal(t, int64(42), data.Storage.DatabaseSize)
	assert.Empty(t, data.SectionErrors)
	assert.False(t, data.Timestamp.Before(before))
	assert.Equal(t, DefaultSlowQueryLimit, src.slowLimit)
	assert.Equal(t, DefaultSessionLimit, src.sessLimit)
}

func TestCollect_RequiredOnly(t *testing.T) {
	src := &fakeSource{}

	data, err := Collect(context.Background(), src, Options{SlowQueryLimit: 3, SessionLimit: -1})
	require.NoError(t, err)

	assert.Equal(t, int32(4), src.calls.Load())
	assert.Nil(t, data.Tables)
	assert.Nil(t, data.Indexes)
	assert.Nil(t, data.Storage)
	assert.Equal(t, 3, src.slowLimit)
	assert.Equal(t, DefaultSessionLimit, src.sessLimit)
}

func TestCollect_EmptyAndSkippedSectionsEncodeDifferently(t *testing.T) {
	data, err := Collect(context.Background(), &fakeSource{noTables: true}, DefaultOptions())
	require.NoError(t, err)
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tables":[]`)

	data, err = Collect(context.Background(), &fakeSource{}, Options{})
	require.NoError(t, err)
	raw, err = json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tables":null`)
	assert.Contains(t, string(raw), `"indexes":null`)
}

func TestCollect_RequiredFailureFailsCall(t *testing.T) {
	boom := errs.Wrap(errs.KindConnection, "fake", "lost", errors.New("reset"))
	src := &fakeSource{fail: map[string]error{"performance": boom}}

	data, err := Collect(context.Background(), src, DefaultOptions())
	assert.Nil(t, data)
	assert.True(t, errs.IsConnection(err))
}

func TestCollect_OptionalFailureDegrades(t *testing.T) {
	src := &fakeSource{fail: map[string]error{
		SectionIndexes: errors.New("dial postgres://app:hunter2@db:5432/app failed"),
	}}

	opts := DefaultOptions()
	opts.SchemaFilter = "public"
	data, err := Collect(context.Background(), src, opts)
	require.NoError(t, err)

	assert.Nil(t, data.Indexes)
	assert.Len(t, data.Tables, 1)
	assert.Equal(t, "public", src.filter)
	require.Contains(t, data.SectionErrors, SectionIndexes)
	assert.NotContains(t, data.SectionErrors[SectionIndexes], "hunter2")
}

func TestCollect_StrictOptional(t *testing.T) {
	src := &fakeSource{fail: map[string]error{SectionStorage: errors.New("denied")}}

	opts := DefaultOptions()
	opts.StrictOptional = true
	_, err := Collect(context.Background(), src, opts)
	assert.EqualError(t, err, "denied")
}

func TestCollect_RunsConcurrently(t *testing.T) {
	src := &fakeSource{delay: 50 * time.Millisecond}

	start := time.Now()
	_, err := Collect(context.Background(), src, DefaultOptions())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestCollect_DemoProvider(t *testing.T) {
	ctx := context.Background()
	p, err := database.NewFactory().Create(database.Descriptor{ID: "demo", Type: database.TypeDemo}, database.Options{})
	require.NoError(t, err)
	require.NoError(t, p.Connect(ctx))
	defer p.Disconnect(ctx)

	data, err := Collect(ctx, p, DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, data.Overview.Version)
	assert.NotEmpty(t, data.Tables)
	assert.NotNil(t, data.Storage)
}

func TestCollect_NotConnected(t *testing.T) {
	p, err := database.NewFactory().Create(database.Descriptor{ID: "demo", Type: database.TypeDemo}, database.Options{})
	require.NoError(t, err)

	_, err = Collect(context.Background(), p, DefaultOptions())
	assert.True(t, errs.IsConfig(err))
}
