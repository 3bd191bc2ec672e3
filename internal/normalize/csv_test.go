package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/store"
)

func TestOrderRowMapsSpreadsheetExport(t *testing.T) {
	item := OrderRow(map[string]string{
		"Name":             "#1001",
		"Email":            "buyer@example.com",
		"Financial Status": "paid",
		"Currency":         "CAD",
		"Total":            "10.5",
		"Created At":       "2024-03-05 10:11:12 -0500",
	})
	require.NotNil(t, item)

	assert.Equal(t, "#1001", item["id"])
	assert.Equal(t, "paid", item["financial_status"])
	assert.Equal(t, "CAD", item["currency"])
	assert.Equal(t, "10.50", item["total_price"])
	// Offset-suffixed timestamps normalize to UTC
	assert.Equal(t, "2024-03-05T15:11:12Z", item["created_at"])
	assert.Equal(t, "2024-03-05", item["order_date"])
	assert.Equal(t, SourceCSV, item["import_source"])

	// File rows never carry nested structures
	assert.Equal(t, []store.Item{}, item["line_items"])
	assert.Nil(t, item["shipping_address"])
	assert.Nil(t, item["billing_address"])
}

func TestOrderRowPrefersOrderIDColumn(t *testing.T) {
	item := OrderRow(map[string]string{
		"Order ID": "'5750190080",
		"Name":     "#1002",
	})
	require.NotNil(t, item)
	assert.Equal(t, "5750190080", item["id"])
}

func TestOrderRowDefaultsMissingOptionalColumns(t *testing.T) {
	item := OrderRow(map[string]string{"Name": "#1003"})
	require.NotNil(t, item)

	assert.Equal(t, "unknown", item["status"])
	assert.Equal(t, "unknown", item["financial_status"])
	assert.Equal(t, "unfulfilled", item["fulfillment_status"])
	assert.Equal(t, "USD", item["currency"])
	assert.Equal(t, "0.00", item["total_price"])
	assert.NotEmpty(t, item["created_at"])
	assert.NotEmpty(t, item["order_date"])
}

func TestOrderRowRejectsRowWithoutIdentifier(t *testing.T) {
	assert.Nil(t, OrderRow(nil))
	assert.Nil(t, OrderRow(map[string]string{"Email": "noid@example.com"}))
	assert.Nil(t, OrderRow(map[string]string{"Order ID": "   "}))
}
