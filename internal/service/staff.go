package service

import (
	"context"
	"fmt"
	"sort"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

// CreateUser stores a new account. The password must already be hashed.
func (s *Service) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Username == domain.WarehouseOwner {
		return store.Validationf("username %q is reserved or empty", user.Username)
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, exists, err := store.Find[domain.UserAccount](ctx, tx, store.Users, user.Username)
		if err != nil {
			return err
		}
		if exists {
			return store.Validationf("username %s already exists", user.Username)
		}
		return tx.Put(ctx, store.Users, user.Username, user)
	})
	if err != nil {
		return err
	}
	s.directory.Invalidate(ctx, user.Username)
	s.logAudit(ctx, "staff_create", "user", user.Username, fmt.Sprintf("role=%s", user.Role))
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users, err := store.List[domain.UserAccount](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Service) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := store.Get[domain.UserAccount](ctx, tx, store.Users, username)
		if err != nil {
			return err
		}
		user.Password = password
		return tx.Put(ctx, store.Users, user.Username, user)
	})
}

// ListStaff returns the public view of every account.
func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	return s.directory.List(ctx)
}
