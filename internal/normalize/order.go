package normalize

import (
	"shopsync/internal/store"
)

// Order maps one upstream order record into the storage schema. Returns nil
// when the record is irrecoverably malformed; a nil result is counted and
// skipped by the caller, never propagated.
func Order(rec map[string]any) (item store.Item) {
	defer func() {
		if r := recover(); r != nil {
			item = nil
		}
	}()

	if rec == nil {
		return nil
	}

	id := getString(rec["id"])
	name := getString(rec["name"])
	email := getString(rec["email"])
	createdAt := getString(rec["created_at"])
	if id == "" {
		if allEmpty(name, email, createdAt) {
			return nil
		}
		id = fallbackID("order", name, email, createdAt)
	}

	item = store.Item{
		"id":                 id,
		"name":               name,
		"email":              email,
		"status":             stringOr(rec, "status", "unknown"),
		"financial_status":   stringOr(rec, "financial_status", "unknown"),
		"fulfillment_status": stringOr(rec, "fulfillment_status", "unfulfilled"),
		"currency":           stringOr(rec, "currency", "USD"),
		"total_price":        money(rec["total_price"]),
		"subtotal_price":     money(rec["subtotal_price"]),
		"total_tax":          money(rec["total_tax"]),
		"created_at":         timestampOr(rec, "created_at"),
		"updated_at":         timestampOr(rec, "updated_at"),
		"customer_id":        getString(getMap(rec["customer"])["id"]),
		"line_items":         orderLineItems(rec["line_items"]),
		"shipping_address":   orderAddress(rec["shipping_address"]),
		"billing_address":    orderAddress(rec["billing_address"]),
		"synced_at":          nowTimestamp(),
		"import_source":      SourceAPI,
	}
	return item
}

// orderLineItems maps the line item collection; always a slice, never nil.
func orderLineItems(v any) []store.Item {
	raw := getSlice(v)
	items := make([]store.Item, 0, len(raw))
	for _, e := range raw {
		li := getMap(e)
		id := getString(li["id"])
		if id == "" {
			id = syntheticID("item-")
		}
		items = append(items, store.Item{
			"id":       id,
			"title":    stringOr(li, "title", ""),
			"sku":      stringOr(li, "sku", ""),
			"quantity": getInt(li["quantity"]),
			"price":    money(li["price"]),
		})
	}
	return items
}

// orderAddress maps a postal address, or returns nil as the documented
// sentinel for "not applicable".
func orderAddress(v any) store.Item {
	addr := getMap(v)
	if addr == nil {
		return nil
	}
	id := getString(addr["id"])
	if id == "" {
		id = syntheticID("addr-")
	}
	return store.Item{
		"id":       id,
		"name":     stringOr(addr, "name", ""),
		"address1": stringOr(addr, "address1", ""),
		"address2": stringOr(addr, "address2", ""),
		"city":     stringOr(addr, "city", ""),
		"province": stringOr(addr, "province", ""),
		"country":  stringOr(addr, "country", ""),
		"zip":      stringOr(addr, "zip", ""),
		"phone":    stringOr(addr, "phone", ""),
	}
}
