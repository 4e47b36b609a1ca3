// Package inventory keeps per-owner stock counters for products and
// ingredients. A Book is loaded inside a store transaction, takes credits and
// debits against the values it read, and writes everything back in Flush.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

// Line is one movement of an item for an owner.
type Line struct {
	Key      domain.StockKey
	Name     string
	Quantity decimal.Decimal
}

type entry struct {
	level   domain.StockLevel
	opening decimal.Decimal
	dirty   bool
}

type Book struct {
	entries map[string]*entry
	order   []string
}

// Load reads every row in keys. Missing rows load as zero and are created on
// the first credit.
func Load(ctx context.Context, r store.Reader, keys ...domain.StockKey) (*Book, error) {
	b := &Book{entries: make(map[string]*entry, len(keys))}
	for _, key := range keys {
		id := key.ID()
		if _, seen := b.entries[id]; seen {
			continue
		}
		level, ok, err := store.Find[domain.StockLevel](ctx, r, store.Stock, id)
		if err != nil {
			return nil, fmt.Errorf("load stock %s: %w", id, err)
		}
		if !ok {
			level = domain.StockLevel{StockKey: key, Quantity: decimal.Zero}
		}
		b.entries[id] = &entry{level: level, opening: level.Quantity}
		b.order = append(b.order, id)
	}
	return b, nil
}

// Available returns the current quantity for key including movements queued
// in this book.
func (b *Book) Available(key domain.StockKey) decimal.Decimal {
	if e, ok := b.entries[key.ID()]; ok {
		return e.level.Quantity
	}
	return decimal.Zero
}

// Opening returns the quantity that was read when the book was loaded.
func (b *Book) Opening(key domain.StockKey) decimal.Decimal {
	if e, ok := b.entries[key.ID()]; ok {
		return e.opening
	}
	return decimal.Zero
}

func (b *Book) Credit(line Line) error {
	e, err := b.entry(line)
	if err != nil {
		return err
	}
	e.level.Quantity = e.level.Quantity.Add(line.Quantity)
	e.dirty = true
	return nil
}

// Debit fails with *store.InsufficientStockError when the row cannot cover
// the quantity; the book is left unchanged in that case.
func (b *Book) Debit(line Line) error {
	e, err := b.entry(line)
	if err != nil {
		return err
	}
	if e.level.Quantity.LessThan(line.Quantity) {
		name := line.Name
		if name == "" {
			name = e.level.ItemName
		}
		return &store.InsufficientStockError{
			ItemID:    line.Key.ItemID,
			ItemName:  name,
			Requested: line.Quantity,
			Available: e.level.Quantity,
		}
	}
	e.level.Quantity = e.level.Quantity.Sub(line.Quantity)
	e.dirty = true
	return nil
}

// DebitAll checks every line before applying any of them, so either all
// lines are debited or none is.
func (b *Book) DebitAll(lines []Line) error {
	need := make(map[string]decimal.Decimal, len(lines))
	for _, line := range lines {
		if _, err := b.entry(line); err != nil {
			return err
		}
		id := line.Key.ID()
		need[id] = need[id].Add(line.Quantity)
		if have := b.entries[id].level.Quantity; have.LessThan(need[id]) {
			name := line.Name
			if name == "" {
				name = b.entries[id].level.ItemName
			}
			return &store.InsufficientStockError{
				ItemID:    line.Key.ItemID,
				ItemName:  name,
				Requested: need[id],
				Available: have,
			}
		}
	}
	for _, line := range lines {
		if err := b.Debit(line); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes every row touched by a credit or debit.
func (b *Book) Flush(ctx context.Context, tx store.Tx, at time.Time) error {
	for _, id := range b.order {
		e := b.entries[id]
		if !e.dirty {
			continue
		}
		e.level.UpdatedAt = at
		if err := tx.Put(ctx, store.Stock, id, e.level); err != nil {
			return fmt.Errorf("write stock %s: %w", id, err)
		}
	}
	return nil
}

func (b *Book) entry(line Line) (*entry, error) {
	if !line.Quantity.IsPositive() {
		return nil, store.Validationf("quantity for %s must be positive", line.Key.ItemID)
	}
	e, ok := b.entries[line.Key.ID()]
	if !ok {
		return nil, fmt.Errorf("stock row %s was not loaded before use", line.Key.ID())
	}
	if e.level.ItemName == "" && line.Name != "" {
		e.level.ItemName = line.Name
	}
	return e, nil
}
