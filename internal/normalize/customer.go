package normalize

import (
	"shopsync/internal/store"
)

// Customer maps one upstream customer record into the storage schema.
// Returns nil when the record is irrecoverably malformed.
func Customer(rec map[string]any) (item store.Item) {
	defer func() {
		if r := recover(); r != nil {
			item = nil
		}
	}()

	if rec == nil {
		return nil
	}

	id := getString(rec["id"])
	email := getString(rec["email"])
	phone := getString(rec["phone"])
	if id == "" {
		if allEmpty(email, phone) {
			return nil
		}
		id = fallbackID("customer", email, phone, getString(rec["created_at"]))
	}

	item = store.Item{
		"id":              id,
		"email":           email,
		"phone":           phone,
		"first_name":      stringOr(rec, "first_name", ""),
		"last_name":       stringOr(rec, "last_name", ""),
		"state":           stringOr(rec, "state", "disabled"),
		"tags":            stringOr(rec, "tags", ""),
		"verified_email":  getBool(rec["verified_email"]),
		"orders_count":    getInt(rec["orders_count"]),
		"total_spent":     money(rec["total_spent"]),
		"created_at":      timestampOr(rec, "created_at"),
		"updated_at":      timestampOr(rec, "updated_at"),
		"default_address": orderAddress(rec["default_address"]),
		"addresses":       customerAddresses(rec["addresses"]),
		"synced_at":       nowTimestamp(),
		"import_source":   SourceAPI,
	}
	return item
}

func customerAddresses(v any) []store.Item {
	raw := getSlice(v)
	addresses := make([]store.Item, 0, len(raw))
	for _, e := range raw {
		if addr := orderAddress(e); addr != nil {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}
