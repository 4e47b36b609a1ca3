package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/store/memory"
)

func seedLevel(t *testing.T, st store.Store, key domain.StockKey, name string, qty int64) {
	t.Helper()
	err := st.Put(context.Background(), store.Stock, key.ID(), domain.StockLevel{StockKey: key, ItemName: name, Quantity: decimal.NewFromInt(qty)})
	if err != nil {
		t.Fatalf("seed %s: %v", key.ID(), err)
	}
}

func level(t *testing.T, st store.Store, key domain.StockKey) decimal.Decimal {
	t.Helper()
	lvl, ok, err := store.Find[domain.StockLevel](context.Background(), st, store.Stock, key.ID())
	if err != nil {
		t.Fatalf("read %s: %v", key.ID(), err)
	}
	if !ok {
		return decimal.Zero
	}
	return lvl.Quantity
}

func TestDebitStockRejectsOverdraw(t *testing.T) {
	st := memory.New()
	key := domain.WarehouseProduct("p1")
	seedLevel(t, st, key, "Loaf", 5)

	_, err := DebitStock(context.Background(), st, Line{Key: key, Quantity: decimal.NewFromInt(6)}, time.Now())
	var short *store.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected error to match ErrInsufficientStock")
	}
	if short.ItemName != "Loaf" || !short.Missing().Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected shortage detail: %+v", short)
	}
	if got := level(t, st, key); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected stock untouched at 5, got %s", got)
	}
}

func TestCreditStockCreatesRowLazily(t *testing.T) {
	st := memory.New()
	key := domain.PersonalProduct("driver", "p1")

	lvl, err := CreditStock(context.Background(), st, Line{Key: key, Name: "Loaf", Quantity: decimal.NewFromInt(3)}, time.Now())
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !lvl.Quantity.Equal(decimal.NewFromInt(3)) || lvl.ItemName != "Loaf" || lvl.Owner != "driver" {
		t.Fatalf("unexpected level: %+v", lvl)
	}
}

func TestNonPositiveQuantityIsValidationError(t *testing.T) {
	st := memory.New()
	for _, qty := range []int64{0, -2} {
		_, err := CreditStock(context.Background(), st, Line{Key: domain.WarehouseProduct("p1"), Quantity: decimal.NewFromInt(qty)}, time.Now())
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("qty %d: expected ErrValidation, got %v", qty, err)
		}
	}
}

func TestDebitAllIsAllOrNothing(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	flour := domain.WarehouseIngredient("flour")
	sugar := domain.WarehouseIngredient("sugar")
	seedLevel(t, st, flour, "Flour", 10)
	seedLevel(t, st, sugar, "Sugar", 1)

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		book, err := Load(ctx, tx, flour, sugar)
		if err != nil {
			return err
		}
		if err := book.DebitAll([]Line{
			{Key: flour, Quantity: decimal.NewFromInt(4)},
			{Key: sugar, Quantity: decimal.NewFromInt(2)},
		}); err != nil {
			return err
		}
		return book.Flush(ctx, tx, time.Now())
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := level(t, st, flour); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected flour untouched, got %s", got)
	}
}

func TestDebitAllSumsRepeatedLines(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	key := domain.WarehouseProduct("p1")
	seedLevel(t, st, key, "Loaf", 5)

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		book, err := Load(ctx, tx, key, key)
		if err != nil {
			return err
		}
		return book.DebitAll([]Line{
			{Key: key, Quantity: decimal.NewFromInt(3)},
			{Key: key, Quantity: decimal.NewFromInt(3)},
		})
	})
	var short *store.InsufficientStockError
	if !errors.As(err, &short) || !short.Requested.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected combined request of 6 to fail, got %v", err)
	}
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	st := memory.New()
	key := domain.WarehouseProduct("p1")
	seedLevel(t, st, key, "Loaf", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := DebitStock(context.Background(), st, Line{Key: key, Quantity: decimal.NewFromInt(3)}, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrInsufficientStock):
				short++
			}
		}()
	}
	wg.Wait()

	got := level(t, st, key)
	if got.IsNegative() {
		t.Fatalf("stock went negative: %s", got)
	}
	if !got.Equal(decimal.NewFromInt(10 - int64(ok)*3)) {
		t.Fatalf("stock %s does not match %d successful debits", got, ok)
	}
	if ok != 3 {
		t.Fatalf("expected exactly 3 successful debits of 3 from 10, got %d (short=%d)", ok, short)
	}
}
