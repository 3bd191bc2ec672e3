package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopsync/internal/retry"
)

// fakeUpstream serves a fixed collection the way the upstream pages it:
// limit-sized slices with a continuation token while more remain.
type fakeUpstream struct {
	t        *testing.T
	resource Resource
	total    int
	requests int32
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.requests, 1)

	limit := 0
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	require.Greater(f.t, limit, 0)
	require.LessOrEqual(f.t, limit, 250)

	offset := 0
	fmt.Sscanf(r.URL.Query().Get("page_info"), "offset-%d", &offset)

	end := offset + limit
	if end > f.total {
		end = f.total
	}
	records := make([]map[string]any, 0, end-offset)
	for i := offset; i < end; i++ {
		records = append(records, map[string]any{"id": i + 1})
	}

	body := map[string]any{f.resource.ListKey: records}
	if end < f.total {
		body["next_page_info"] = fmt.Sprintf("offset-%d", end)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func testClient(t *testing.T, baseURL string, pageSize int) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:        baseURL,
		Token:          "test-token",
		PageSize:       pageSize,
		Strategy:       retry.Strategy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		RateLimitDelay: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestFetchAllPaginatesCompleteCollection(t *testing.T) {
	upstream := &fakeUpstream{t: t, resource: Orders, total: 537}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	c := testClient(t, srv.URL, 250)
	records, stats := c.FetchAll(context.Background(), Orders)

	assert.Len(t, records, 537)
	assert.Equal(t, Stats{Pages: 3, Records: 537}, stats)
	// ceil(537/250) pages means exactly three requests
	assert.Equal(t, int32(3), atomic.LoadInt32(&upstream.requests))
	assert.Equal(t, float64(1), records[0]["id"])
	assert.Equal(t, float64(537), records[536]["id"])
}

func TestStreamPagesStopsOnShortPage(t *testing.T) {
	upstream := &fakeUpstream{t: t, resource: Products, total: 40}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	c := testClient(t, srv.URL, 250)
	pages, statsCh := c.StreamPages(context.Background(), Products)

	var numbers []int
	for page := range pages {
		numbers = append(numbers, page.Number)
	}
	stats := <-statsCh

	assert.Equal(t, []int{1}, numbers)
	assert.Equal(t, Stats{Pages: 1, Records: 40}, stats)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.requests))
}

func TestStreamPagesStopsOnFullPageWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		records := make([]map[string]any, 10)
		for i := range records {
			records[i] = map[string]any{"id": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"orders": records})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 10)
	records, stats := c.FetchAll(context.Background(), Orders)

	assert.Len(t, records, 10)
	assert.Equal(t, Stats{Pages: 1, Records: 10}, stats)
}

func TestFetchRecoversFromRateLimit(t *testing.T) {
	var requests int32
	upstream := &fakeUpstream{t: t, resource: Customers, total: 5}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "0.001")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		upstream.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 250)
	records, stats := c.FetchAll(context.Background(), Customers)

	assert.Len(t, records, 5)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestFetchAbandonsPageAfterRetryCeiling(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 250)
	records, stats := c.FetchAll(context.Background(), Orders)

	assert.Empty(t, records)
	assert.Equal(t, Stats{Pages: 0, Records: 0, Errors: 1}, stats)
	assert.Equal(t, int32(5), atomic.LoadInt32(&requests))
}

func TestFetchDeliversEarlierPagesBeforeFailure(t *testing.T) {
	var requests int32
	upstream := &fakeUpstream{t: t, resource: Orders, total: 30}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Query().Get("page_info") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		upstream.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 10)
	records, stats := c.FetchAll(context.Background(), Orders)

	// First page arrives even though the second never succeeds
	assert.Len(t, records, 10)
	assert.Equal(t, Stats{Pages: 1, Records: 10, Errors: 1}, stats)
}

func TestFetchAppliesUpdatedSinceFilter(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("updated_at_min"))
		json.NewEncoder(w).Encode(map[string]any{"orders": []map[string]any{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 250)

	// Default resources fetch the full collection
	c.FetchAll(context.Background(), Orders)

	since := Orders
	since.UpdatedSince = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	c.FetchAll(context.Background(), since)

	require.Len(t, got, 2)
	assert.Empty(t, got[0])
	assert.Equal(t, "2024-03-05T10:00:00Z", got[1])
}

func TestNewClientValidatesOptions(t *testing.T) {
	_, err := NewClient(Options{PageSize: 250}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "https://shop.example.com", PageSize: 251}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "https://shop.example.com", PageSize: 250}, zap.NewNop())
	assert.NoError(t, err)
}
