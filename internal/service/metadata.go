package service

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/memorybank/internal/models"
)

type MetadataService struct {
	*base
}

// InitResult describes a project memory bank after initialization.
type InitResult struct {
	Root         string             `json:"root"`
	DatabasePath string             `json:"database_path"`
	OpenedAt     time.Time          `json:"opened_at"`
	Repository   *models.Repository `json:"repository"`
}

// InitMemoryBank opens the project database and ensures the repository
// branch exists in it.
func (s *MetadataService) InitMemoryBank(ctx context.Context, root, repository, branch string) (*InitResult, error) {
	sess, err := s.session(ctx, root)
	if err != nil {
		return nil, err
	}
	repo, err := sess.Repos.Repositories().Resolve(ctx, repository, branch)
	if err != nil {
		return nil, fmt.Errorf("init memory bank: %w", classify(err))
	}
	s.logger.Info("memory bank initialized", "root", sess.Root, "repository", repo.Name, "branch", repo.Branch)
	return &InitResult{
		Root:         sess.Root,
		DatabasePath: sess.DatabasePath,
		OpenedAt:     sess.OpenedAt,
		Repository:   repo,
	}, nil
}

func (s *MetadataService) GetRepository(ctx context.Context, root, repository, branch string) (*models.Repository, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	repo, err := repos.Repositories().Find(ctx, repository, branch)
	return repo, classify(err)
}

func (s *MetadataService) ListRepositories(ctx context.Context, root string) ([]models.Repository, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	return repos.Repositories().List(ctx)
}

// DeleteRepository removes a repository branch and every node scoped to it.
func (s *MetadataService) DeleteRepository(ctx context.Context, root, repository, branch string) (bool, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return false, err
	}
	deleted, err := repos.Repositories().Delete(ctx, repository, branch)
	return deleted, classify(err)
}

// Stats counts the nodes of each kind in a repository branch.
func (s *MetadataService) Stats(ctx context.Context, root, repository, branch string) (map[string]int64, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	stats, err := repos.Stats(ctx, repository, branch)
	return stats, classify(err)
}
