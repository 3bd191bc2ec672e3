package commerce

import (
	"fmt"
	"time"
)

// Resource describes one upstream collection endpoint.
type Resource struct {
	// Name is the pipeline-facing resource name ("orders").
	Name string
	// Path is the list endpoint path on the upstream API.
	Path string
	// ListKey is the response field holding the record array.
	ListKey string
	// UpdatedSince, when set, narrows the fetch to records modified at or
	// after this instant. Zero fetches the full collection.
	UpdatedSince time.Time
}

// The three resource streams the pipeline synchronizes.
var (
	Orders    = Resource{Name: "orders", Path: "/orders.json", ListKey: "orders"}
	Products  = Resource{Name: "products", Path: "/products.json", ListKey: "products"}
	Customers = Resource{Name: "customers", Path: "/customers.json", ListKey: "customers"}
)

// Record is one upstream record as decoded from the response body. Field
// presence is not guaranteed; the normalizer applies defaults downstream.
type Record = map[string]any

// Page is one fetched page of upstream records.
type Page struct {
	Number  int
	Records []Record
}

// Stats summarizes one pagination run over a resource.
type Stats struct {
	// Pages is the number of pages successfully fetched.
	Pages int
	// Records is the total records accumulated.
	Records int
	// Errors counts pages abandoned after exhausting retries.
	Errors int
}

// RateLimitError is returned for HTTP 429 responses. Delay carries the
// upstream-supplied Retry-After hint, or the configured default.
type RateLimitError struct {
	Delay time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Delay)
}

// RetryDelay reports the upstream-requested wait before the next attempt.
func (e *RateLimitError) RetryDelay() time.Duration {
	return e.Delay
}

// APIError is returned for non-429 HTTP error responses.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API returned HTTP %d", e.StatusCode)
}
