package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bakehouse/backend/internal/store"
)

type document struct {
	version uint64
	body    []byte
}

// Store is an in-process document store. Transactions read live documents,
// buffer their writes and validate every observed version at commit.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]map[string]document
	clocks map[string]uint64
	policy store.RetryPolicy
}

func New() *Store {
	return NewWithPolicy(store.DefaultRetryPolicy())
}

func NewWithPolicy(policy store.RetryPolicy) *Store {
	return &Store{
		docs:   make(map[string]map[string]document),
		clocks: make(map[string]uint64),
		policy: policy,
	}
}

// SetRetryPolicy replaces the conflict retry policy used by RunInTx.
func (s *Store) SetRetryPolicy(policy store.RetryPolicy) {
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Get(_ context.Context, collection string, id string, dest any) error {
	s.mu.RLock()
	doc, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return json.Unmarshal(doc.body, dest)
}

func (s *Store) List(_ context.Context, collection string, filters ...store.Where) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scan(collection, filters)
}

func (s *Store) Put(_ context.Context, collection string, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.write(collection, id, body)
	s.mu.Unlock()
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	policy := s.policy
	s.mu.RUnlock()
	return store.Retry(ctx, policy, func(ctx context.Context) error {
		tx := &transaction{
			store: s,
			reads: make(map[string]uint64),
			scans: make(map[string]uint64),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

func (s *Store) commit(tx *transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range tx.reads {
		collection, id := splitKey(key)
		if s.docs[collection][id].version != seen {
			return fmt.Errorf("%s changed since read: %w", key, store.ErrConflict)
		}
	}
	for collection, seen := range tx.scans {
		if s.clocks[collection] != seen {
			return fmt.Errorf("%s changed since scan: %w", collection, store.ErrConflict)
		}
	}
	for _, w := range tx.writes {
		s.write(w.collection, w.id, w.body)
	}
	return nil
}

// write must be called with mu held.
func (s *Store) write(collection string, id string, body []byte) {
	bucket, ok := s.docs[collection]
	if !ok {
		bucket = make(map[string]document)
		s.docs[collection] = bucket
	}
	bucket[id] = document{version: bucket[id].version + 1, body: body}
	s.clocks[collection]++
}

// scan must be called with mu held for reading.
func (s *Store) scan(collection string, filters []store.Where) ([][]byte, error) {
	bucket := s.docs[collection]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		body := bucket[id].body
		ok, err := matches(body, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, body)
		}
	}
	return out, nil
}

func matches(body []byte, filters []store.Where) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false, err
	}
	for _, f := range filters {
		raw, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}
		if value != f.Value {
			return false, nil
		}
	}
	return true, nil
}

type pendingWrite struct {
	collection string
	id         string
	body       []byte
}

type transaction struct {
	store  *Store
	reads  map[string]uint64
	scans  map[string]uint64
	writes []pendingWrite
}

func (t *transaction) Get(_ context.Context, collection string, id string, dest any) error {
	if len(t.writes) > 0 {
		return fmt.Errorf("get %s/%s: %w", collection, id, store.ErrReadAfterWrite)
	}

	t.store.mu.RLock()
	doc, ok := t.store.docs[collection][id]
	t.store.mu.RUnlock()

	key := joinKey(collection, id)
	if seen, read := t.reads[key]; read && seen != doc.version {
		return fmt.Errorf("%s changed during transaction: %w", key, store.ErrConflict)
	}
	t.reads[key] = doc.version

	if !ok {
		return fmt.Errorf("%s: %w", key, store.ErrNotFound)
	}
	return json.Unmarshal(doc.body, dest)
}

func (t *transaction) List(_ context.Context, collection string, filters ...store.Where) ([][]byte, error) {
	if len(t.writes) > 0 {
		return nil, fmt.Errorf("list %s: %w", collection, store.ErrReadAfterWrite)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	clock := t.store.clocks[collection]
	if seen, scanned := t.scans[collection]; scanned && seen != clock {
		return nil, fmt.Errorf("%s changed during transaction: %w", collection, store.ErrConflict)
	}
	t.scans[collection] = clock
	return t.store.scan(collection, filters)
}

func (t *transaction) Put(_ context.Context, collection string, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	for i := range t.writes {
		if t.writes[i].collection == collection && t.writes[i].id == id {
			t.writes[i].body = body
			return nil
		}
	}
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, body: body})
	return nil
}

func joinKey(collection string, id string) string {
	return collection + "/" + id
}

func splitKey(key string) (string, string) {
	collection, id, _ := strings.Cut(key, "/")
	return collection, id
}
