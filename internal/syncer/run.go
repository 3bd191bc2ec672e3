package syncer

import (
	"context"
	"fmt"
	"time"

	"shopsync/internal/checkpoint"
	"shopsync/internal/commerce"

	"go.uber.org/zap"
)

// budgetLogInterval is how often the remaining execution-time budget and
// run progress are logged while a run is in flight.
const budgetLogInterval = 30 * time.Second

// Run executes one full resync: products, then customers, then orders.
// Each resource failure is caught independently; the aggregate status is
// success when all three succeeded, partial_success when at least one did,
// failed when none did. The run record is persisted at start, after each
// resource, and at completion, mirrored under the stable latest key.
func (o *Orchestrator) Run(ctx context.Context) *RunResult {
	runID := fmt.Sprintf("sync_%d", time.Now().UnixMilli())
	state := newRunState(runID)

	o.logger.Info("Starting sync run", zap.String("run_id", runID))
	o.recordRun(ctx, state, StatusStarted, time.Time{})

	stopBudget := o.startBudgetLogger(ctx, state)
	defer stopBudget()

	resources := []struct {
		res   commerce.Resource
		table string
	}{
		{commerce.Products, o.tables.Products},
		{commerce.Customers, o.tables.Customers},
		{commerce.Orders, o.tables.Orders},
	}

	for _, r := range resources {
		state.setCurrent(r.res.Name)

		count, shortfall, err := o.runIsolated(ctx, r.res, r.table, runID, state)
		result := ResourceResult{Success: err == nil, Count: count}
		if err != nil {
			result.Error = err.Error()
			o.logger.Error("Resource sync failed",
				zap.String("run_id", runID),
				zap.String("resource", r.res.Name),
				zap.Error(err),
			)
		} else if shortfall != "" {
			result.Error = shortfall
		}
		state.setResult(r.res.Name, result)

		o.recordRun(ctx, state, StatusInProgress, time.Time{})
	}

	completedAt := time.Now().UTC()
	results := state.resourceResults()
	status := aggregateStatus(results)

	o.recordRun(ctx, state, status, completedAt)
	o.metrics.IncRun(status)

	o.logger.Info("Sync run completed",
		zap.String("run_id", runID),
		zap.String("status", status),
		zap.Duration("duration", completedAt.Sub(state.startedAt)),
	)

	return &RunResult{
		RunID:       runID,
		Status:      status,
		StartedAt:   state.startedAt,
		CompletedAt: completedAt,
		Resources:   results,
	}
}

// runIsolated runs one resource sync with panic isolation, so an unexpected
// failure in one resource never prevents the remaining resources from being
// attempted.
func (o *Orchestrator) runIsolated(ctx context.Context, res commerce.Resource, table, runID string, state *runState) (count int, shortfall string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s sync panicked: %v", res.Name, r)
		}
	}()
	return o.syncResource(ctx, res, table, runID, state)
}

func (o *Orchestrator) recordRun(ctx context.Context, state *runState, status string, completedAt time.Time) {
	fields := map[string]any{
		"run_id":     state.runID,
		"status":     status,
		"started_at": state.startedAt.Format(time.RFC3339),
		"resources":  state.resourceResults(),
	}
	if !completedAt.IsZero() {
		fields["completed_at"] = completedAt.Format(time.RFC3339)
	}

	o.tracker.Record(ctx, state.runID, fields)
	o.tracker.Record(ctx, checkpoint.KeyLatestSync, fields)
}

// startBudgetLogger periodically logs run progress and, when the context
// carries a deadline, the remaining execution-time budget. The orchestrator
// does not enforce a cutoff itself; if the host terminates mid-run the last
// periodic checkpoint anchors the observed progress.
func (o *Orchestrator) startBudgetLogger(ctx context.Context, state *runState) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(budgetLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				current, pages, records := state.snapshot()
				fields := []zap.Field{
					zap.String("run_id", state.runID),
					zap.String("resource", current),
					zap.Int("pages", pages),
					zap.Int("records", records),
				}
				if deadline, ok := ctx.Deadline(); ok {
					fields = append(fields, zap.Duration("remaining_budget", time.Until(deadline)))
				}
				o.logger.Info("Sync run in progress", fields...)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func aggregateStatus(results map[string]ResourceResult) string {
	var succeeded int
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results) && succeeded > 0:
		return StatusSuccess
	case succeeded > 0:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}
