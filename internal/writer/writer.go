package writer

import (
	"context"
	"errors"
	"time"

	"shopsync/internal/checkpoint"
	"shopsync/internal/retry"
	"shopsync/internal/store"

	"go.uber.org/zap"
)

// Options contains writer configuration
type Options struct {
	// BatchSize caps each write request (store limit: 25).
	BatchSize int
	// MaxRetries bounds attempts per batch, including the first.
	MaxRetries int
	// InterBatchDelay is the fixed wait between successive batches, applied
	// in the happy path to smooth write pressure.
	InterBatchDelay time.Duration
	// CheckpointEvery emits a progress checkpoint every N batches.
	CheckpointEvery int
	// OnBatch, when set, is invoked once per issued batch.
	OnBatch func()
	// Generic and Capacity bound retry backoff per failure class.
	Generic  retry.Strategy
	Capacity retry.Strategy
}

// Writer writes normalized records to one destination table in fixed-size
// batches, re-batching any reported-unprocessed subset. One Writer serves
// one resource within one run; its counters are cumulative across calls so
// page-by-page feeding reports totals for the whole resource.
//
// Writes are not transactional across a batch: a partially-unprocessed
// batch is a normal, handled outcome. Items the store still rejects after
// the retry ceiling are counted as permanent failures.
type Writer struct {
	store         store.Store
	tracker       *checkpoint.Tracker
	logger        *zap.Logger
	table         string
	checkpointKey string
	opts          Options

	success int
	failed  int
	batches int
}

// New creates a writer for one resource's destination table. checkpointKey
// tags the periodic write-progress checkpoints; tracker may be nil to
// disable them.
func New(s store.Store, tracker *checkpoint.Tracker, logger *zap.Logger, table, checkpointKey string, opts Options) *Writer {
	if opts.BatchSize <= 0 || opts.BatchSize > store.MaxBatchSize {
		opts.BatchSize = store.MaxBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 10
	}
	if opts.Generic.MaxAttempts <= 0 {
		opts.Generic = retry.Generic
	}
	if opts.Capacity.MaxAttempts <= 0 {
		opts.Capacity = retry.Capacity
	}

	return &Writer{
		store:         s,
		tracker:       tracker,
		logger:        logger,
		table:         table,
		checkpointKey: checkpointKey,
		opts:          opts,
	}
}

// Write persists the records in order, in batches of at most BatchSize, and
// returns the success and failure counts for this call.
func (w *Writer) Write(ctx context.Context, items []store.Item) (int, int) {
	var success, failed int

	for start := 0; start < len(items); start += w.opts.BatchSize {
		end := start + w.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}

		if w.batches > 0 && w.opts.InterBatchDelay > 0 {
			if err := retry.Sleep(ctx, w.opts.InterBatchDelay); err != nil {
				failed += len(items) - start
				break
			}
		}

		ok, bad := w.writeBatch(ctx, items[start:end])
		success += ok
		failed += bad
		w.batches++
		if w.opts.OnBatch != nil {
			w.opts.OnBatch()
		}

		if w.tracker != nil && w.batches%w.opts.CheckpointEvery == 0 {
			w.tracker.Record(ctx, w.checkpointKey, map[string]any{
				"items_processed":   w.success + success + w.failed + failed,
				"success_count":     w.success + success,
				"error_count":       w.failed + failed,
				"batches_processed": w.batches,
			})
		}

		if ctx.Err() != nil {
			failed += len(items) - end
			break
		}
	}

	w.success += success
	w.failed += failed
	return success, failed
}

// writeBatch drives one batch through its retry loop: attempt, re-batch the
// unprocessed subset, attempt again, up to the retry ceiling.
func (w *Writer) writeBatch(ctx context.Context, batch []store.Item) (int, int) {
	total := len(batch)
	remaining := batch

	for attempt := 1; attempt <= w.opts.MaxRetries; attempt++ {
		unprocessed, err := w.store.BatchWrite(ctx, w.table, remaining)
		if err == nil && len(unprocessed) == 0 {
			return total, 0
		}

		if err != nil && len(unprocessed) == 0 {
			// Whole-call failure: the entire remainder is still pending
			unprocessed = remaining
		}

		strategy := w.opts.Generic
		if errors.Is(err, store.ErrCapacityExceeded) {
			// Capacity errors need more relief time than a generic failure
			strategy = w.opts.Capacity
		}

		w.logger.Warn("Batch write attempt left unprocessed items",
			zap.String("table", w.table),
			zap.Int("attempt", attempt),
			zap.Int("unprocessed", len(unprocessed)),
			zap.Error(err),
		)

		remaining = unprocessed

		if attempt < w.opts.MaxRetries {
			if sleepErr := retry.Sleep(ctx, strategy.DelayFor(err, attempt)); sleepErr != nil {
				break
			}
		}
	}

	w.logger.Error("Batch items failed after all retries",
		zap.String("table", w.table),
		zap.Int("failed", len(remaining)),
	)
	return total - len(remaining), len(remaining)
}

// Totals returns the cumulative success and failure counts for this writer.
func (w *Writer) Totals() (int, int) {
	return w.success, w.failed
}
