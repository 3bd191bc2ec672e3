package store

import (
	"context"
	"errors"
	"fmt"
)

// MaxBatchSize is the per-request item limit of the key-value store.
const MaxBatchSize = 25

var (
	// ErrNotFound is returned by Get when no item exists under the key.
	ErrNotFound = errors.New("item not found")
	// ErrCapacityExceeded marks store throughput/capacity failures, which
	// are retried with a longer backoff than generic errors.
	ErrCapacityExceeded = errors.New("store capacity exceeded")
	// ErrMissingID is returned when an item has no usable "id" attribute.
	ErrMissingID = errors.New("item has no id attribute")
)

// Item is one record as stored: a flat attribute map keyed by "id".
type Item = map[string]any

// Store is the key-value store consumed by the pipeline. Writes are keyed
// by the item's "id" attribute, so re-running a batch overwrites rather
// than duplicates.
type Store interface {
	// Put writes a single item, replacing any prior item under the same id.
	Put(ctx context.Context, table string, item Item) error
	// BatchWrite writes up to MaxBatchSize items and returns the subset the
	// store reported as unprocessed. A non-empty unprocessed slice with a
	// nil error is a normal, handled outcome, not a failure of the call.
	BatchWrite(ctx context.Context, table string, items []Item) ([]Item, error)
	// Get returns the item under key, or ErrNotFound.
	Get(ctx context.Context, table, key string) (Item, error)

	Close() error
}

// ItemID extracts the stable identifier from an item.
func ItemID(item Item) (string, error) {
	v, ok := item["id"]
	if !ok {
		return "", ErrMissingID
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: got %T", ErrMissingID, v)
	}
	return id, nil
}
