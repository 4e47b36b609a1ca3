package cache

import (
	"context"
	"time"

	"bakehouse/backend/internal/domain"
)

type StaffCache interface {
	Get(ctx context.Context, id string) (*domain.StaffMember, bool, error)
	Set(ctx context.Context, member domain.StaffMember, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type NoopStaffCache struct{}

func (NoopStaffCache) Get(_ context.Context, _ string) (*domain.StaffMember, bool, error) {
	return nil, false, nil
}

func (NoopStaffCache) Set(_ context.Context, _ domain.StaffMember, _ time.Duration) error {
	return nil
}

func (NoopStaffCache) Delete(_ context.Context, _ string) error {
	return nil
}
