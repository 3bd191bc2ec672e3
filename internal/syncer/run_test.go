package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopsync/internal/checkpoint"
	"shopsync/internal/commerce"
	"shopsync/internal/config"
	"shopsync/internal/metrics"
	"shopsync/internal/retry"
	"shopsync/internal/store"
)

var testTables = config.Tables{
	Orders:       "shop_orders",
	Products:     "shop_products",
	Customers:    "shop_customers",
	SyncMetadata: "shop_sync_metadata",
}

func fastSyncConfig() config.Sync {
	return config.Sync{
		PageSize:               250,
		PageRetries:            2,
		WriteRetries:           2,
		BatchSize:              25,
		FetchCheckpointPages:   5,
		WriteCheckpointBatches: 10,
	}
}

// newTestOrchestrator wires an orchestrator against an httptest upstream and
// an embedded store.
func newTestOrchestrator(t *testing.T, handler http.Handler) (*Orchestrator, *store.SQLiteStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := commerce.NewClient(commerce.Options{
		BaseURL:        srv.URL,
		Token:          "test-token",
		PageSize:       250,
		Strategy:       retry.Strategy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		RateLimitDelay: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "shopsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tracker := checkpoint.New(s, testTables.SyncMetadata, zap.NewNop())
	o := New(client, s, tracker, metrics.New(), zap.NewNop(), testTables, fastSyncConfig())
	return o, s
}

func serveCollections(t *testing.T, bodies map[string]map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	})
}

func records(key string, ids ...int) map[string]any {
	list := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, map[string]any{"id": id})
	}
	return map[string]any{key: list}
}

func TestRunSyncsAllResources(t *testing.T) {
	o, s := newTestOrchestrator(t, serveCollections(t, map[string]map[string]any{
		"/products.json":  records("products", 1, 2, 3),
		"/customers.json": records("customers", 10, 11),
		"/orders.json":    records("orders", 100),
	}))

	result := o.Run(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Resources, 3)
	assert.Equal(t, ResourceResult{Success: true, Count: 3}, result.Resources["products"])
	assert.Equal(t, ResourceResult{Success: true, Count: 2}, result.Resources["customers"])
	assert.Equal(t, ResourceResult{Success: true, Count: 1}, result.Resources["orders"])

	// Records land normalized in their destination tables
	item, err := s.Get(context.Background(), testTables.Products, "1")
	require.NoError(t, err)
	assert.Equal(t, "active", item["status"])

	item, err = s.Get(context.Background(), testTables.Orders, "100")
	require.NoError(t, err)
	assert.Equal(t, "unfulfilled", item["fulfillment_status"])
}

func TestRunIsolatesFailedResource(t *testing.T) {
	// Products always fails; the other two must still complete
	o, s := newTestOrchestrator(t, serveCollections(t, map[string]map[string]any{
		"/customers.json": records("customers", 10, 11, 12),
		"/orders.json":    records("orders", 100, 101),
	}))

	result := o.Run(context.Background())

	assert.Equal(t, StatusPartialSuccess, result.Status)
	assert.False(t, result.Resources["products"].Success)
	assert.NotEmpty(t, result.Resources["products"].Error)
	assert.Equal(t, ResourceResult{Success: true, Count: 3}, result.Resources["customers"])
	assert.Equal(t, ResourceResult{Success: true, Count: 2}, result.Resources["orders"])

	_, err := s.Get(context.Background(), testTables.Customers, "12")
	assert.NoError(t, err)
}

func TestRunFailsWhenEveryResourceFails(t *testing.T) {
	o, _ := newTestOrchestrator(t, serveCollections(t, nil))

	result := o.Run(context.Background())

	assert.Equal(t, StatusFailed, result.Status)
	for name, res := range result.Resources {
		assert.False(t, res.Success, name)
	}
}

func TestRunRecordsLatestSyncMetadata(t *testing.T) {
	o, s := newTestOrchestrator(t, serveCollections(t, map[string]map[string]any{
		"/products.json":  records("products", 1),
		"/customers.json": records("customers"),
		"/orders.json":    records("orders"),
	}))

	result := o.Run(context.Background())
	require.Equal(t, StatusSuccess, result.Status)

	latest, err := s.Get(context.Background(), testTables.SyncMetadata, checkpoint.KeyLatestSync)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, latest["run_id"])
	assert.Equal(t, StatusSuccess, latest["status"])
	assert.NotEmpty(t, latest["completed_at"])

	// The per-resource watermark is written too
	watermark, err := s.Get(context.Background(), testTables.SyncMetadata, "last_sync_products")
	require.NoError(t, err)
	assert.Equal(t, float64(1), watermark["success_count"])
}

func TestRunSkipsMalformedRecords(t *testing.T) {
	o, _ := newTestOrchestrator(t, serveCollections(t, map[string]map[string]any{
		"/products.json": {"products": []map[string]any{
			{"id": 1},
			{}, // no identity at all; skipped, not fatal
			{"id": 3},
		}},
		"/customers.json": records("customers"),
		"/orders.json":    records("orders"),
	}))

	result := o.Run(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	products := result.Resources["products"]
	assert.True(t, products.Success)
	assert.Equal(t, 2, products.Count)
	assert.Contains(t, products.Error, "skipped")
}

func TestRunToleratesZeroCheckpointCadence(t *testing.T) {
	// An unset or zeroed cadence in config must fall back to the default
	// rather than dividing by zero inside the page loop
	o, _ := newTestOrchestrator(t, serveCollections(t, map[string]map[string]any{
		"/products.json":  records("products", 1),
		"/customers.json": records("customers", 10),
		"/orders.json":    records("orders", 100),
	}))
	o.sync.FetchCheckpointPages = 0
	o = New(o.client, o.store, o.tracker, o.metrics, o.logger, o.tables, o.sync)

	result := o.Run(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	for name, res := range result.Resources {
		assert.True(t, res.Success, name)
		assert.Empty(t, res.Error, name)
	}
}

func TestAggregateStatus(t *testing.T) {
	ok := ResourceResult{Success: true}
	bad := ResourceResult{Success: false}

	assert.Equal(t, StatusSuccess, aggregateStatus(map[string]ResourceResult{"a": ok, "b": ok}))
	assert.Equal(t, StatusPartialSuccess, aggregateStatus(map[string]ResourceResult{"a": ok, "b": bad}))
	assert.Equal(t, StatusFailed, aggregateStatus(map[string]ResourceResult{"a": bad, "b": bad}))
	assert.Equal(t, StatusFailed, aggregateStatus(map[string]ResourceResult{}))
}
