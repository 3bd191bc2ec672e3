package normalize

import (
	"strings"
	"time"

	"shopsync/internal/store"
)

// OrderRow maps one flat-file order row (header name → cell value) into the
// storage schema. Returns nil when the row carries no usable identifier;
// callers still count the row as processed.
func OrderRow(row map[string]string) (item store.Item) {
	defer func() {
		if r := recover(); r != nil {
			item = nil
		}
	}()

	if row == nil {
		return nil
	}

	id := rowID(row)
	if id == "" {
		return nil
	}

	createdAt := rowTimestamp(row)

	item = store.Item{
		"id":                 id,
		"name":               cell(row, "Name"),
		"email":              cell(row, "Email"),
		"status":             cellOr(row, "Status", "unknown"),
		"financial_status":   cellOr(row, "Financial Status", "unknown"),
		"fulfillment_status": cellOr(row, "Fulfillment Status", "unfulfilled"),
		"currency":           cellOr(row, "Currency", "USD"),
		"total_price":        money(cell(row, "Total")),
		"subtotal_price":     money(cell(row, "Subtotal")),
		"total_tax":          money(cell(row, "Taxes")),
		"created_at":         createdAt,
		"order_date":         dateOnly(createdAt),
		"line_items":         []store.Item{},
		"shipping_address":   nil,
		"billing_address":    nil,
		"synced_at":          nowTimestamp(),
		"import_source":      SourceCSV,
	}
	return item
}

// rowID picks the first populated identifier column, stripping the leading
// quote-escape character some spreadsheet exports prepend.
func rowID(row map[string]string) string {
	for _, col := range []string{"Order ID", "Name", "Id"} {
		if v := cell(row, col); v != "" {
			return strings.TrimPrefix(v, "'")
		}
	}
	return ""
}

// rowTimestamp returns the row's creation timestamp, synthesizing one when
// the source omits it.
func rowTimestamp(row map[string]string) string {
	for _, col := range []string{"Created At", "Created at", "Paid at"} {
		if v := cell(row, col); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts.UTC().Format(time.RFC3339)
			}
			// Spreadsheet exports use a space separator and offset suffix
			if ts, err := time.Parse("2006-01-02 15:04:05 -0700", v); err == nil {
				return ts.UTC().Format(time.RFC3339)
			}
		}
	}
	return nowTimestamp()
}

// dateOnly truncates an ISO timestamp to its date-only partition value.
func dateOnly(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func cell(row map[string]string, col string) string {
	return strings.TrimSpace(row[col])
}

func cellOr(row map[string]string, col, def string) string {
	if v := cell(row, col); v != "" {
		return v
	}
	return def
}
