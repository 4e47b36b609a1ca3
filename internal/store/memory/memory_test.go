package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

func TestRunInTxCommitsBufferedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, ok, err := store.Find[domain.Customer](ctx, tx, store.Customers, "c1")
		if err != nil || ok {
			t.Fatalf("expected missing customer, ok=%t err=%v", ok, err)
		}
		return tx.Put(ctx, store.Customers, "c1", domain.Customer{ID: "c1", Name: "Ada"})
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	got, err := store.Get[domain.Customer](ctx, s, store.Customers, "c1")
	if err != nil || got.Name != "Ada" {
		t.Fatalf("expected committed customer, got %+v err=%v", got, err)
	}
}

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Put(ctx, store.Customers, "c1", domain.Customer{ID: "c1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := store.Find[domain.Customer](ctx, s, store.Customers, "c1"); ok {
		t.Fatalf("expected no write after failed tx")
	}
}

func TestReadAfterWriteIsRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Put(ctx, store.Customers, "c1", domain.Customer{ID: "c1"}); err != nil {
			return err
		}
		_, err := tx.List(ctx, store.Customers)
		return err
	})
	if !errors.Is(err, store.ErrReadAfterWrite) {
		t.Fatalf("expected ErrReadAfterWrite, got %v", err)
	}
}

func TestConflictingCommitIsRetried(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := domain.WarehouseProduct("p1")
	if err := s.Put(ctx, store.Stock, key.ID(), domain.StockLevel{StockKey: key, Quantity: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var attempts int32
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n := atomic.AddInt32(&attempts, 1)
		level, err := store.Get[domain.StockLevel](ctx, tx, store.Stock, key.ID())
		if err != nil {
			return err
		}
		if n == 1 {
			// A concurrent writer commits between our read and our commit.
			concurrent := level
			concurrent.Quantity = decimal.NewFromInt(4)
			if err := s.Put(ctx, store.Stock, key.ID(), concurrent); err != nil {
				return err
			}
		}
		level.Quantity = level.Quantity.Sub(decimal.NewFromInt(1))
		return tx.Put(ctx, store.Stock, key.ID(), level)
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry, got %d attempts", attempts)
	}

	level, _ := store.Get[domain.StockLevel](ctx, s, store.Stock, key.ID())
	if !level.Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected retried debit on fresh value (3), got %s", level.Quantity)
	}
}

func TestConflictExhaustionSurfacesErrConflict(t *testing.T) {
	s := NewWithPolicy(store.RetryPolicy{MaxAttempts: 3})
	ctx := context.Background()

	var attempts int
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		attempts++
		if _, err := tx.List(ctx, store.Orders); err != nil {
			return err
		}
		if err := s.Put(ctx, store.Orders, "o-noise", domain.Order{ID: "o-noise"}); err != nil {
			return err
		}
		return tx.Put(ctx, store.Customers, "c1", domain.Customer{ID: "c1"})
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhaustion, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestListFiltersOnStringAndBoolFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, store.Transfers, "t1", domain.Transfer{ID: "t1", Status: domain.TransferActive, IsSalesRun: true})
	_ = s.Put(ctx, store.Transfers, "t2", domain.Transfer{ID: "t2", Status: domain.TransferActive})
	_ = s.Put(ctx, store.Transfers, "t3", domain.Transfer{ID: "t3", Status: domain.TransferPending, IsSalesRun: true})

	runs, err := store.List[domain.Transfer](ctx, s, store.Transfers,
		store.Where{Field: "status", Value: domain.TransferActive},
		store.Where{Field: "is_sales_run", Value: "true"},
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "t1" {
		t.Fatalf("expected only t1, got %+v", runs)
	}
}
