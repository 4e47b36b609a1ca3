package inventory

import (
	"context"
	"time"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

// DebitStock removes quantity from one owner's row in its own transaction.
func DebitStock(ctx context.Context, st store.Store, line Line, at time.Time) (domain.StockLevel, error) {
	return apply(ctx, st, line, at, (*Book).Debit)
}

// CreditStock adds quantity to one owner's row in its own transaction.
func CreditStock(ctx context.Context, st store.Store, line Line, at time.Time) (domain.StockLevel, error) {
	return apply(ctx, st, line, at, (*Book).Credit)
}

func apply(ctx context.Context, st store.Store, line Line, at time.Time, move func(*Book, Line) error) (domain.StockLevel, error) {
	var out domain.StockLevel
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		book, err := Load(ctx, tx, line.Key)
		if err != nil {
			return err
		}
		if err := move(book, line); err != nil {
			return err
		}
		if err := book.Flush(ctx, tx, at); err != nil {
			return err
		}
		out = book.entries[line.Key.ID()].level
		return nil
	})
	return out, err
}
