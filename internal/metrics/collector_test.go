package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := New()

	c.AddRecords("orders", "written", 25)
	c.AddRecords("orders", "written", 12)
	c.AddRecords("orders", "failed", 3)
	c.IncPage("orders")
	c.IncBatch()
	c.IncBatch()
	c.IncRun("partial_success")
	c.ObserveSyncDuration(3 * time.Second)

	assert.Equal(t, float64(37), testutil.ToFloat64(c.recordsTotal.WithLabelValues("orders", "written")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.recordsTotal.WithLabelValues("orders", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.pagesTotal.WithLabelValues("orders")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.batchesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("partial_success")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	// Each collector owns its registry, so two instances never collide
	a := New()
	b := New()

	a.IncRun("success")

	assert.Equal(t, float64(1), testutil.ToFloat64(a.runsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.runsTotal.WithLabelValues("success")))
}
