package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

func TestClassifyMapsRetryableCodesToConflict(t *testing.T) {
	cases := []struct {
		code     string
		conflict bool
	}{
		{"40001", true},
		{"40P01", true},
		{"23505", true},
		{"23503", false},
		{"42P01", false},
	}
	for _, tc := range cases {
		err := classify(fmt.Errorf("exec: %w", &pgconn.PgError{Code: tc.code, Message: "boom"}))
		if got := errors.Is(err, store.ErrConflict); got != tc.conflict {
			t.Fatalf("code %s: expected conflict=%t, got %t (%v)", tc.code, tc.conflict, got, err)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BAKERY_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BAKERY_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), Config{DatabaseURL: databaseURL, Retry: store.RetryPolicy{MaxAttempts: 10, BaseBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := domain.WarehouseProduct(fmt.Sprintf("prd-it-%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, store.Stock, key.ID())
	})
	if err := s.Put(ctx, store.Stock, key.ID(), domain.StockLevel{StockKey: key, ItemName: "IT Loaf", Quantity: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				level, err := store.Get[domain.StockLevel](ctx, tx, store.Stock, key.ID())
				if err != nil {
					return err
				}
				if level.Quantity.LessThan(decimal.NewFromInt(3)) {
					return store.ErrInsufficientStock
				}
				level.Quantity = level.Quantity.Sub(decimal.NewFromInt(3))
				return tx.Put(ctx, store.Stock, key.ID(), level)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	level, err := store.Get[domain.StockLevel](ctx, s, store.Stock, key.ID())
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if succeeded != 3 || !level.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 3 debits leaving 1, got %d debits leaving %s", succeeded, level.Quantity)
	}
}

func TestTransactionRejectsReadAfterWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := fmt.Sprintf("cus-it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, store.Customers, id)
	})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Put(ctx, store.Customers, id, domain.Customer{ID: id, Name: "IT"}); err != nil {
			return err
		}
		_, err := store.Get[domain.Customer](ctx, tx, store.Customers, id)
		return err
	})
	if !errors.Is(err, store.ErrReadAfterWrite) {
		t.Fatalf("expected ErrReadAfterWrite, got %v", err)
	}
	if _, ok, _ := store.Find[domain.Customer](ctx, s, store.Customers, id); ok {
		t.Fatalf("expected rolled back write to be absent")
	}
}
