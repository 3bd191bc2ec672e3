// Package importer ingests flat-file order exports from an object store
// into the same storage schema as the API sync, reusing the normalizer and
// the batched durable writer.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"shopsync/internal/checkpoint"
	"shopsync/internal/config"
	"shopsync/internal/metrics"
	"shopsync/internal/normalize"
	"shopsync/internal/objstore"
	"shopsync/internal/store"
	"shopsync/internal/writer"

	"go.uber.org/zap"
)

// flushEvery bounds how many normalized rows accumulate before they are
// handed to the writer, capping memory per file.
const flushEvery = 250

// FileResult is the outcome of importing one flat file.
type FileResult struct {
	Key       string `json:"key"`
	RowsRead  int    `json:"rows_read"`
	Extracted int    `json:"extracted"`
	Written   int    `json:"written"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of one bulk import run.
type Result struct {
	Files        []FileResult `json:"files"`
	TotalWritten int          `json:"total_written"`
	TotalFailed  int          `json:"total_failed"`
}

// Importer enumerates flat files under an object-store prefix and imports
// each one, continuing to the next file even when one fails outright.
type Importer struct {
	objects objstore.Client
	store   store.Store
	tracker *checkpoint.Tracker
	metrics *metrics.Collector
	logger  *zap.Logger
	bucket  string
	prefix  string
	table   string
	sync    config.Sync
}

// New creates an importer writing order rows to the given table
func New(
	objects objstore.Client,
	s store.Store,
	tracker *checkpoint.Tracker,
	collector *metrics.Collector,
	logger *zap.Logger,
	bucket, prefix, table string,
	syncCfg config.Sync,
) *Importer {
	return &Importer{
		objects: objects,
		store:   s,
		tracker: tracker,
		metrics: collector,
		logger:  logger,
		bucket:  bucket,
		prefix:  prefix,
		table:   table,
		sync:    syncCfg,
	}
}

// Run imports every CSV file under the configured prefix.
func (i *Importer) Run(ctx context.Context) (*Result, error) {
	i.logger.Info("Starting bulk file import",
		zap.String("bucket", i.bucket),
		zap.String("prefix", i.prefix),
	)

	objCh, errCh := i.objects.ListObjects(ctx, i.bucket, i.prefix)

	result := &Result{Files: make([]FileResult, 0)}

listing:
	for {
		select {
		case obj, ok := <-objCh:
			if !ok {
				break listing
			}
			if !strings.HasSuffix(strings.ToLower(obj.Key), ".csv") {
				continue
			}

			fileResult := i.importFile(ctx, obj.Key)
			result.Files = append(result.Files, fileResult)
			result.TotalWritten += fileResult.Written
			result.TotalFailed += fileResult.Failed

		case err := <-errCh:
			if err != nil {
				return result, fmt.Errorf("failed to list import files: %w", err)
			}

		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	i.tracker.Record(ctx, "bulk_import", map[string]any{
		"files_processed": len(result.Files),
		"success_count":   result.TotalWritten,
		"error_count":     result.TotalFailed,
		"completed_at":    time.Now().UTC().Format(time.RFC3339),
	})

	i.logger.Info("Bulk file import completed",
		zap.Int("files", len(result.Files)),
		zap.Int("written", result.TotalWritten),
		zap.Int("failed", result.TotalFailed),
	)

	return result, nil
}

// importFile downloads one file to transient local storage, streams its
// rows through the normalizer and writer, and removes the local copy. A
// failure is recorded in the result, never propagated: per-file isolation
// mirrors the per-resource isolation of the API sync.
func (i *Importer) importFile(ctx context.Context, key string) FileResult {
	result := FileResult{Key: key}

	tmp, err := os.CreateTemp("", "shopsync-import-*.csv")
	if err != nil {
		result.Error = fmt.Sprintf("failed to create temp file: %v", err)
		return result
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := i.objects.Download(ctx, i.bucket, key, tmpPath); err != nil {
		result.Error = fmt.Sprintf("failed to download: %v", err)
		i.logger.Error("Failed to download import file",
			zap.String("key", key),
			zap.Error(err),
		)
		return result
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		result.Error = fmt.Sprintf("failed to open local copy: %v", err)
		return result
	}
	defer f.Close()

	w := writer.New(i.store, i.tracker, i.logger, i.table, "bulk_import_write_progress", writer.Options{
		BatchSize:       i.sync.BatchSize,
		MaxRetries:      i.sync.WriteRetries,
		InterBatchDelay: time.Duration(i.sync.InterBatchDelayMs) * time.Millisecond,
		CheckpointEvery: i.sync.WriteCheckpointBatches,
		OnBatch:         i.metrics.IncBatch,
	})

	if err := i.streamRows(ctx, f, w, &result); err != nil {
		result.Error = err.Error()
	}

	result.Written, result.Failed = w.Totals()
	i.metrics.AddRecords("import", "written", result.Written)
	i.metrics.AddRecords("import", "failed", result.Failed)

	i.logger.Info("Imported file",
		zap.String("key", key),
		zap.Int("rows_read", result.RowsRead),
		zap.Int("extracted", result.Extracted),
		zap.Int("written", result.Written),
		zap.Int("failed", result.Failed),
	)

	return result
}

func (i *Importer) streamRows(ctx context.Context, f io.Reader, w *writer.Writer, result *FileResult) error {
	br := bufio.NewReader(f)

	// Strip a UTF-8 BOM if present
	if peeked, err := br.Peek(3); err == nil && len(peeked) == 3 &&
		peeked[0] == 0xEF && peeked[1] == 0xBB && peeked[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("file is empty")
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	for idx := range header {
		header[idx] = strings.TrimSpace(header[idx])
	}

	buffer := make([]store.Item, 0, flushEvery)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed row is skipped, not fatal to the file
			result.RowsRead++
			continue
		}

		result.RowsRead++

		row := make(map[string]string, len(header))
		for idx, col := range header {
			if idx < len(record) {
				row[col] = record[idx]
			}
		}

		item := normalize.OrderRow(row)
		if item == nil {
			continue
		}
		result.Extracted++
		buffer = append(buffer, item)

		if len(buffer) >= flushEvery {
			w.Write(ctx, buffer)
			buffer = buffer[:0]
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if len(buffer) > 0 {
		w.Write(ctx, buffer)
	}
	return nil
}
