package users

import (
	"context"

	"github.com/meridian-hq/meridian-access/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	GetUser(ctx context.Context, id int64) (User, error)
}

// Service handles user directory reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns one page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	paging := shared.NewPagination(page, perPage, total)
	list, err := s.repo.ListUsers(ctx, paging.PerPage, (paging.Page-1)*paging.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, paging, nil
}

// GetUser fetches one user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}
