package service

import (
	"context"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
)

type AdminStore interface {
	PaginateByRole(ctx context.Context, role models.UserRole, opts repository.PageOptions) (repository.Page[models.User], error)
	CountByRole(ctx context.Context) ([]repository.RoleCount, error)
	SubscriptionTiers(ctx context.Context) ([]string, error)
}

type AdminService struct {
	users AdminStore
}

func NewAdminService(users AdminStore) *AdminService {
	return &AdminService{users: users}
}

// ListUsers pages through users, optionally restricted to one role.
func (s *AdminService) ListUsers(ctx context.Context, role models.UserRole, opts repository.PageOptions) (repository.Page[models.PublicUser], error) {
	page, err := s.users.PaginateByRole(ctx, role, opts)
	if err != nil {
		return repository.Page[models.PublicUser]{}, apperr.Internal(err)
	}
	items := make([]models.PublicUser, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, u.Public())
	}
	return repository.NewPage(items, page.Total, page.Page, page.Limit), nil
}

type UserStats struct {
	Roles             []repository.RoleCount `json:"roles"`
	SubscriptionTiers []string               `json:"subscriptionTiers"`
	Total             int64                  `json:"total"`
}

func (s *AdminService) Stats(ctx context.Context) (UserStats, error) {
	roles, err := s.users.CountByRole(ctx)
	if err != nil {
		return UserStats{}, apperr.Internal(err)
	}
	tiers, err := s.users.SubscriptionTiers(ctx)
	if err != nil {
		return UserStats{}, apperr.Internal(err)
	}
	var total int64
	for _, r := range roles {
		total += r.Total
	}
	return UserStats{Roles: roles, SubscriptionTiers: tiers, Total: total}, nil
}
