package normalize

import (
	"shopsync/internal/store"
)

// Product maps one upstream product record into the storage schema. Returns
// nil when the record is irrecoverably malformed.
func Product(rec map[string]any) (item store.Item) {
	defer func() {
		if r := recover(); r != nil {
			item = nil
		}
	}()

	if rec == nil {
		return nil
	}

	id := getString(rec["id"])
	title := getString(rec["title"])
	vendor := getString(rec["vendor"])
	if id == "" {
		if allEmpty(title, vendor) {
			return nil
		}
		id = fallbackID("product", title, vendor, getString(rec["created_at"]))
	}

	item = store.Item{
		"id":            id,
		"title":         title,
		"vendor":        vendor,
		"product_type":  stringOr(rec, "product_type", ""),
		"status":        stringOr(rec, "status", "active"),
		"tags":          stringOr(rec, "tags", ""),
		"created_at":    timestampOr(rec, "created_at"),
		"updated_at":    timestampOr(rec, "updated_at"),
		"variants":      productVariants(rec["variants"]),
		"images":        productImages(rec["images"]),
		"options":       productOptions(rec["options"]),
		"synced_at":     nowTimestamp(),
		"import_source": SourceAPI,
	}
	return item
}

func productVariants(v any) []store.Item {
	raw := getSlice(v)
	variants := make([]store.Item, 0, len(raw))
	for _, e := range raw {
		variant := getMap(e)
		id := getString(variant["id"])
		if id == "" {
			id = syntheticID("var-")
		}
		variants = append(variants, store.Item{
			"id":                 id,
			"title":              stringOr(variant, "title", ""),
			"sku":                stringOr(variant, "sku", ""),
			"price":              money(variant["price"]),
			"inventory_quantity": getInt(variant["inventory_quantity"]),
		})
	}
	return variants
}

func productImages(v any) []store.Item {
	raw := getSlice(v)
	images := make([]store.Item, 0, len(raw))
	for _, e := range raw {
		img := getMap(e)
		id := getString(img["id"])
		if id == "" {
			id = syntheticID("img-")
		}
		images = append(images, store.Item{
			"id":       id,
			"src":      stringOr(img, "src", ""),
			"position": getInt(img["position"]),
		})
	}
	return images
}

func productOptions(v any) []store.Item {
	raw := getSlice(v)
	options := make([]store.Item, 0, len(raw))
	for _, e := range raw {
		opt := getMap(e)
		id := getString(opt["id"])
		if id == "" {
			id = syntheticID("opt-")
		}
		values := make([]string, 0)
		for _, val := range getSlice(opt["values"]) {
			values = append(values, getString(val))
		}
		options = append(options, store.Item{
			"id":     id,
			"name":   stringOr(opt, "name", ""),
			"values": values,
		})
	}
	return options
}
