package writer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopsync/internal/retry"
	"shopsync/internal/store"
)

// fakeStore records every BatchWrite call and replays a scripted sequence of
// outcomes. Once the script is exhausted, calls succeed.
type fakeStore struct {
	calls   [][]store.Item
	outcome []func(items []store.Item) ([]store.Item, error)
}

func (f *fakeStore) Put(ctx context.Context, table string, item store.Item) error { return nil }

func (f *fakeStore) BatchWrite(ctx context.Context, table string, items []store.Item) ([]store.Item, error) {
	f.calls = append(f.calls, items)
	if len(f.outcome) == 0 {
		return nil, nil
	}
	next := f.outcome[0]
	f.outcome = f.outcome[1:]
	return next(items)
}

func (f *fakeStore) Get(ctx context.Context, table, key string) (store.Item, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

func fastOpts() Options {
	strategy := retry.Strategy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return Options{
		BatchSize:  25,
		MaxRetries: 5,
		Generic:    strategy,
		Capacity:   strategy,
	}
}

func makeItems(n int) []store.Item {
	items := make([]store.Item, n)
	for i := range items {
		items[i] = store.Item{"id": fmt.Sprintf("order-%d", i)}
	}
	return items
}

func TestWriteChunksIntoBatchesOfAtMost25(t *testing.T) {
	fs := &fakeStore{}
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", fastOpts())

	success, failed := w.Write(context.Background(), makeItems(537))

	assert.Equal(t, 537, success)
	assert.Equal(t, 0, failed)
	require.Len(t, fs.calls, 22)
	for _, call := range fs.calls {
		assert.LessOrEqual(t, len(call), 25)
	}
	// 21 full batches plus the 12-item tail
	assert.Len(t, fs.calls[21], 12)
}

func TestWriteRetriesOnlyTheUnprocessedSubset(t *testing.T) {
	fs := &fakeStore{
		outcome: []func(items []store.Item) ([]store.Item, error){
			func(items []store.Item) ([]store.Item, error) {
				// Store accepts all but the last three
				return items[len(items)-3:], nil
			},
		},
	}
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", fastOpts())

	success, failed := w.Write(context.Background(), makeItems(25))

	assert.Equal(t, 25, success)
	assert.Equal(t, 0, failed)
	require.Len(t, fs.calls, 2)
	assert.Len(t, fs.calls[1], 3)
	assert.Equal(t, "order-22", fs.calls[1][0]["id"])
}

func TestWriteCountsPermanentFailuresAfterRetryCeiling(t *testing.T) {
	writeErr := errors.New("internal failure")
	failAlways := func(items []store.Item) ([]store.Item, error) { return nil, writeErr }
	fs := &fakeStore{
		outcome: []func(items []store.Item) ([]store.Item, error){
			failAlways, failAlways, failAlways, failAlways, failAlways,
		},
	}
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", fastOpts())

	success, failed := w.Write(context.Background(), makeItems(10))

	assert.Equal(t, 0, success)
	assert.Equal(t, 10, failed)
	// The ceiling includes the first attempt
	assert.Len(t, fs.calls, 5)
}

func TestWriteRecoversFromCapacityError(t *testing.T) {
	fs := &fakeStore{
		outcome: []func(items []store.Item) ([]store.Item, error){
			func(items []store.Item) ([]store.Item, error) {
				return items, store.ErrCapacityExceeded
			},
		},
	}
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", fastOpts())

	success, failed := w.Write(context.Background(), makeItems(5))

	assert.Equal(t, 5, success)
	assert.Equal(t, 0, failed)
	assert.Len(t, fs.calls, 2)
}

func TestWriteReportsEveryBatch(t *testing.T) {
	fs := &fakeStore{}
	opts := fastOpts()
	var batches int
	opts.OnBatch = func() { batches++ }
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", opts)

	w.Write(context.Background(), makeItems(537))

	assert.Equal(t, 22, batches)
}

func TestWriteAccumulatesTotalsAcrossCalls(t *testing.T) {
	fs := &fakeStore{}
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", fastOpts())

	w.Write(context.Background(), makeItems(30))
	w.Write(context.Background(), makeItems(20))

	success, failed := w.Totals()
	assert.Equal(t, 50, success)
	assert.Equal(t, 0, failed)
}

func TestWriteStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeStore{}
	opts := fastOpts()
	opts.InterBatchDelay = time.Millisecond
	w := New(fs, nil, zap.NewNop(), "shop_orders", "orders_write_progress", opts)

	success, failed := w.Write(ctx, makeItems(60))

	assert.Equal(t, success+failed, 60)
	assert.Less(t, success, 60)
}
