package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrNotPending        = errors.New("not pending")
	ErrNotActive         = errors.New("not active")
	ErrStockRemaining    = errors.New("stock remaining")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("transaction conflict")
	ErrReadAfterWrite    = errors.New("read issued after write in transaction")
)

// InsufficientStockError names the first item whose stock could not cover a debit.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %s, available %s, missing %s",
		name, e.Requested.String(), e.Available.String(), e.Missing().String())
}

func (e *InsufficientStockError) Missing() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Validationf wraps ErrValidation with a human-readable reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Where is an equality filter on a top-level string field of a document.
type Where struct {
	Field string
	Value string
}

// Reader reads documents. Get decodes the document into dest and returns
// ErrNotFound when it does not exist.
type Reader interface {
	Get(ctx context.Context, collection string, id string, dest any) error
	List(ctx context.Context, collection string, filters ...Where) ([][]byte, error)
}

// Tx is one optimistic transaction. Every read must be issued before the
// first Put; backends reject reads that follow a write.
type Tx interface {
	Reader
	Put(ctx context.Context, collection string, id string, doc any) error
}

type Store interface {
	Reader
	// Put writes a single document outside any transaction.
	Put(ctx context.Context, collection string, id string, doc any) error
	// RunInTx runs fn in a transaction and commits it, retrying fn from
	// scratch on ErrConflict up to the configured attempt limit.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
