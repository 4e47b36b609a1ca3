// Package directory resolves staff ids to display names and roles.
package directory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bakehouse/backend/internal/cache"
	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

const warehouseName = "Main Warehouse"

type Directory struct {
	users  store.Reader
	cache  cache.StaffCache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

func New(users store.Reader, staffCache cache.StaffCache, ttl time.Duration, logger *zap.Logger) *Directory {
	if staffCache == nil {
		staffCache = cache.NoopStaffCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{users: users, cache: staffCache, ttl: ttl, logger: logger}
}

func (d *Directory) Lookup(ctx context.Context, id string) (domain.StaffMember, error) {
	if id == domain.WarehouseOwner {
		return domain.StaffMember{ID: id, Name: warehouseName, Role: domain.WarehouseOwner, Active: true}, nil
	}

	if member, ok, err := d.cache.Get(ctx, id); err != nil {
		d.logger.Debug("staff cache read failed", zap.String("staff_id", id), zap.Error(err))
	} else if ok {
		return *member, nil
	}

	v, err, _ := d.group.Do(id, func() (any, error) {
		user, err := store.Get[domain.UserAccount](ctx, d.users, store.Users, id)
		if err != nil {
			return domain.StaffMember{}, fmt.Errorf("staff %s: %w", id, err)
		}
		member := toMember(user)
		if err := d.cache.Set(ctx, member, d.ttl); err != nil {
			d.logger.Debug("staff cache write failed", zap.String("staff_id", id), zap.Error(err))
		}
		return member, nil
	})
	if err != nil {
		return domain.StaffMember{}, err
	}
	return v.(domain.StaffMember), nil
}

// Name returns the display name for id, or id itself when the lookup fails.
func (d *Directory) Name(ctx context.Context, id string) string {
	member, err := d.Lookup(ctx, id)
	if err != nil || member.Name == "" {
		return id
	}
	return member.Name
}

func (d *Directory) Invalidate(ctx context.Context, id string) {
	if err := d.cache.Delete(ctx, id); err != nil {
		d.logger.Warn("staff cache invalidation failed", zap.String("staff_id", id), zap.Error(err))
	}
}

func (d *Directory) List(ctx context.Context) ([]domain.StaffMember, error) {
	users, err := store.List[domain.UserAccount](ctx, d.users, store.Users)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StaffMember, 0, len(users))
	for _, u := range users {
		out = append(out, toMember(u))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func toMember(u domain.UserAccount) domain.StaffMember {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return domain.StaffMember{ID: u.Username, Name: name, Role: u.Role, Active: u.Active}
}
