package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"bakehouse/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retry           store.RetryPolicy
}

// Store keeps every collection in one JSONB table and runs transactions at
// SERIALIZABLE isolation.
type Store struct {
	db     *sqlx.DB
	policy store.RetryPolicy
}

type docRow struct {
	ID   string `db:"id"`
	Body []byte `db:"body"`
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns < 1 {
		cfg.MaxOpenConns = 30
	}
	if cfg.MaxIdleConns < 1 {
		cfg.MaxIdleConns = 8
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = store.DefaultRetryPolicy()
	}
	return &Store{db: db, policy: cfg.Retry}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, collection string, id string, dest any) error {
	return get(ctx, s.db, collection, id, dest, false)
}

func (s *Store) List(ctx context.Context, collection string, filters ...store.Where) ([][]byte, error) {
	return list(ctx, s.db, collection, filters)
}

func (s *Store) Put(ctx context.Context, collection string, id string, doc any) error {
	return put(ctx, s.db, collection, id, doc)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return store.Retry(ctx, s.policy, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return classify(err)
		}
		defer func() {
			_ = sqlTx.Rollback()
		}()

		if err := fn(ctx, &transaction{tx: sqlTx}); err != nil {
			return err
		}
		return classify(sqlTx.Commit())
	})
}

type transaction struct {
	tx    *sqlx.Tx
	wrote bool
}

func (t *transaction) Get(ctx context.Context, collection string, id string, dest any) error {
	if t.wrote {
		return fmt.Errorf("get %s/%s: %w", collection, id, store.ErrReadAfterWrite)
	}
	return get(ctx, t.tx, collection, id, dest, true)
}

func (t *transaction) List(ctx context.Context, collection string, filters ...store.Where) ([][]byte, error) {
	if t.wrote {
		return nil, fmt.Errorf("list %s: %w", collection, store.ErrReadAfterWrite)
	}
	return list(ctx, t.tx, collection, filters)
}

func (t *transaction) Put(ctx context.Context, collection string, id string, doc any) error {
	t.wrote = true
	return put(ctx, t.tx, collection, id, doc)
}

func get(ctx context.Context, q sqlx.QueryerContext, collection string, id string, dest any, lock bool) error {
	query := `SELECT body FROM documents WHERE collection = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}

	var body []byte
	if err := sqlx.GetContext(ctx, q, &body, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return classify(err)
	}
	return json.Unmarshal(body, dest)
}

func list(ctx context.Context, q sqlx.QueryerContext, collection string, filters []store.Where) ([][]byte, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, body FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		args = append(args, f.Field, f.Value)
		fmt.Fprintf(&b, ` AND body->>$%d = $%d`, len(args)-1, len(args))
	}
	b.WriteString(` ORDER BY id`)

	var rows []docRow
	if err := sqlx.SelectContext(ctx, q, &rows, b.String(), args...); err != nil {
		return nil, classify(err)
	}
	out := make([][]byte, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Body)
	}
	return out, nil
}

func put(ctx context.Context, e sqlx.ExecerContext, collection string, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO documents (collection, id, version, body, updated_at)
		VALUES ($1, $2, 1, $3, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET body = EXCLUDED.body, version = documents.version + 1, updated_at = now()
	`, collection, id, string(body))
	return classify(err)
}

// classify turns serialization failures, deadlocks and racing inserts into
// store.ErrConflict so the transaction is retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s (%s)", store.ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}
