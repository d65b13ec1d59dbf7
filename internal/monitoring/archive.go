package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/logger"
)

const contentTypeJSON = "application/json"

// Archiver writes monitoring snapshots to an object store under
// <prefix>/<connection id>/YYYY/MM/DD/<HHMMSS>-<uuid>.json.
type Archiver struct {
	store  filestore.Store
	bucket string
	prefix string
	log    *logger.Logger
}

func NewArchiver(store filestore.Store, bucket, prefix string, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.Global()
	}
	return &Archiver{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log.With().Str("component", "monitoring_archive").Logger(),
	}
}

// Init creates the archive bucket when it does not exist yet.
func (a *Archiver) Init(ctx context.Context) error {
	return a.store.EnsureBucket(ctx, a.bucket)
}

func (a *Archiver) connPrefix(connID string) string {
	return path.Join(a.prefix, connID) + "/"
}

// Key returns the object key for a snapshot of connID taken at ts.
func (a *Archiver) Key(connID string, ts time.Time) string {
	ts = ts.UTC()
	name := fmt.Sprintf("%s-%s.json", ts.Format("150405"), uuid.NewString())
	return path.Join(a.prefix, connID, ts.Format("2006/01/02"), name)
}

// Archive stores data as JSON and returns the written object.
func (a *Archiver) Archive(ctx context.Context, connID string, data *database.MonitoringData) (*filestore.ObjectInfo, error) {
	if connID == "" {
		return nil, errs.Invalid("connection_id", "is required")
	}
	if data == nil {
		return nil, errs.Invalid("snapshot", "is required")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	key := a.Key(connID, ts)

	info, err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), contentTypeJSON)
	if err != nil {
		a.log.ErrorWith("failed to archive snapshot", err, map[string]interface{}{
			"connection_id": connID,
			"key":           key,
		})
		return nil, err
	}

	a.log.InfoWith("snapshot archived", map[string]interface{}{
		"connection_id": connID,
		"key":           key,
		"size":          info.Size,
	})
	return info, nil
}

// List returns the archived snapshots of connID, newest first.
func (a *Archiver) List(ctx context.Context, connID string, limit int) ([]filestore.ObjectInfo, error) {
	objs, err := a.store.ListObjects(ctx, a.bucket, filestore.ListOptions{Prefix: a.connPrefix(connID)})
	if err != nil {
		return nil, err
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key > objs[j].Key })
	if limit > 0 && len(objs) > limit {
		objs = objs[:limit]
	}
	return objs, nil
}

// Load reads one snapshot back. key must belong to connID.
func (a *Archiver) Load(ctx context.Context, connID, key string) (*database.MonitoringData, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, a.connPrefix(connID)) || strings.Contains(key, "..") {
		return nil, errs.Invalid("key", "does not belong to this connection")
	}

	obj, err := a.store.GetObject(ctx, a.bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var data database.MonitoringData
	if err := json.NewDecoder(obj).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &data, nil
}
