package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	Products       = "products"
	Ingredients    = "ingredients"
	Stock          = "stock_levels"
	Transfers      = "transfers"
	Recipes        = "recipes"
	Batches        = "production_batches"
	Orders         = "orders"
	Confirmations  = "payment_confirmations"
	Customers      = "customers"
	Suppliers      = "suppliers"
	SupplyReceipts = "supply_receipts"
	DailySales     = "daily_sales"
	WasteLogs      = "waste_logs"
	AuditLogs      = "audit_logs"
	Users          = "users"
)

// Get reads one typed document.
func Get[T any](ctx context.Context, r Reader, collection string, id string) (T, error) {
	var doc T
	if err := r.Get(ctx, collection, id, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Find is Get that reports absence as ok=false instead of ErrNotFound.
func Find[T any](ctx context.Context, r Reader, collection string, id string) (T, bool, error) {
	doc, err := Get[T](ctx, r, collection, id)
	if err == nil {
		return doc, true, nil
	}
	if errors.Is(err, ErrNotFound) {
		var zero T
		return zero, false, nil
	}
	return doc, false, err
}

// List decodes every document of a collection matching filters.
func List[T any](ctx context.Context, r Reader, collection string, filters ...Where) ([]T, error) {
	raw, err := r.List(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, body := range raw {
		var doc T
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
