package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/store/memory"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]domain.StaffMember
	sets int
}

func (c *mapCache) Get(_ context.Context, id string) (*domain.StaffMember, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[id]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

func (c *mapCache) Set(_ context.Context, m domain.StaffMember, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[m.ID] = m
	c.sets++
	return nil
}

func (c *mapCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

func TestLookupCachesStaffMember(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	_ = st.Put(ctx, store.Users, "driver", domain.UserAccount{Username: "driver", DisplayName: "Van Driver", Role: domain.RoleDriver, Active: true})

	c := &mapCache{data: map[string]domain.StaffMember{}}
	dir := New(st, c, time.Minute, nil)

	for i := 0; i < 3; i++ {
		member, err := dir.Lookup(ctx, "driver")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if member.Name != "Van Driver" || member.Role != domain.RoleDriver {
			t.Fatalf("unexpected member %+v", member)
		}
	}
	if c.sets != 1 {
		t.Fatalf("expected a single cache fill, got %d", c.sets)
	}

	dir.Invalidate(ctx, "driver")
	if _, ok, _ := c.Get(ctx, "driver"); ok {
		t.Fatalf("expected cache entry to be removed")
	}
}

func TestLookupUnknownStaffIsNotFound(t *testing.T) {
	dir := New(memory.New(), nil, 0, nil)
	_, err := dir.Lookup(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := dir.Name(context.Background(), "ghost"); got != "ghost" {
		t.Fatalf("expected name fallback to id, got %q", got)
	}
}

func TestWarehouseResolvesWithoutStore(t *testing.T) {
	dir := New(memory.New(), nil, 0, nil)
	member, err := dir.Lookup(context.Background(), domain.WarehouseOwner)
	if err != nil || member.Name != warehouseName {
		t.Fatalf("unexpected warehouse lookup %+v err=%v", member, err)
	}
}
