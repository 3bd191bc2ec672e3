package checkpoint

import (
	"context"
	"errors"
	"time"

	"shopsync/internal/store"

	"go.uber.org/zap"
)

// Well-known metadata keys. Checkpoints are overwritten in place: they are
// liveness breadcrumbs, not an immutable log.
const (
	KeyLatestSync = "latest_sync"

	leasePrefix = "lease_"
)

// Tracker persists sync progress and outcome under well-known keys in the
// sync-metadata table. Writes are best-effort: a failed checkpoint is logged
// and dropped, never surfaced to the pipeline.
type Tracker struct {
	store  store.Store
	table  string
	logger *zap.Logger
}

// New creates a tracker writing to the given metadata table
func New(s store.Store, table string, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  s,
		table:  table,
		logger: logger,
	}
}

// Record upserts a metadata item under key, stamping it with the mutation
// time. Any prior item under the same key is overwritten.
func (t *Tracker) Record(ctx context.Context, key string, fields map[string]any) {
	item := make(store.Item, len(fields)+2)
	for k, v := range fields {
		item[k] = v
	}
	item["id"] = key
	item["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := t.store.Put(ctx, t.table, item); err != nil {
		t.logger.Warn("Failed to write checkpoint",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// AcquireLease takes the run lease for a resource. The lease is an owner
// token plus an expiry; it succeeds when no lease exists, the prior lease
// has expired, or the caller already holds it. The write is confirmed with
// a follow-up read so two racing acquirers cannot both believe they won.
func (t *Tracker) AcquireLease(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	key := leasePrefix + resource

	current, err := t.store.Get(ctx, t.table, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	if current != nil {
		holder, _ := current["owner"].(string)
		expiresAt, _ := current["expires_at"].(string)
		if holder != "" && holder != owner && !leaseExpired(expiresAt) {
			return false, nil
		}
	}

	lease := store.Item{
		"id":         key,
		"owner":      owner,
		"expires_at": time.Now().UTC().Add(ttl).Format(time.RFC3339),
	}
	if err := t.store.Put(ctx, t.table, lease); err != nil {
		return false, err
	}

	confirmed, err := t.store.Get(ctx, t.table, key)
	if err != nil {
		return false, err
	}
	holder, _ := confirmed["owner"].(string)
	return holder == owner, nil
}

// ReleaseLease drops the resource lease if the caller still owns it.
func (t *Tracker) ReleaseLease(ctx context.Context, resource, owner string) {
	key := leasePrefix + resource

	current, err := t.store.Get(ctx, t.table, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.logger.Warn("Failed to read lease for release",
				zap.String("resource", resource),
				zap.Error(err),
			)
		}
		return
	}

	holder, _ := current["owner"].(string)
	if holder != owner {
		return
	}

	released := store.Item{
		"id":         key,
		"owner":      "",
		"expires_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := t.store.Put(ctx, t.table, released); err != nil {
		t.logger.Warn("Failed to release lease",
			zap.String("resource", resource),
			zap.Error(err),
		)
	}
}

func leaseExpired(expiresAt string) bool {
	if expiresAt == "" {
		return true
	}
	ts, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return true
	}
	return time.Now().UTC().After(ts)
}
