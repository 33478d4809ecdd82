package service

import (
	"context"

	"github.com/odvcencio/memorybank/internal/models"
	"github.com/odvcencio/memorybank/internal/repository"
)

// GraphQueryService answers traversal questions about components.
type GraphQueryService struct {
	*base
}

// GoverningItems are the decisions and rules that govern one component.
type GoverningItems struct {
	Decisions []models.Decision `json:"decisions"`
	Rules     []models.Rule     `json:"rules"`
}

func (s *GraphQueryService) ComponentDependencies(ctx context.Context, root, repo, branch, id string, depth int) ([]models.Component, error) {
	return s.components(ctx, root, func(c *repository.ComponentRepository) ([]models.Component, error) {
		return c.Dependencies(ctx, repo, branch, id, depth)
	})
}

func (s *GraphQueryService) ComponentDependents(ctx context.Context, root, repo, branch, id string, depth int) ([]models.Component, error) {
	return s.components(ctx, root, func(c *repository.ComponentRepository) ([]models.Component, error) {
		return c.Dependents(ctx, repo, branch, id, depth)
	})
}

func (s *GraphQueryService) GoverningItems(ctx context.Context, root, repo, branch, componentID string) (*GoverningItems, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	decisions, rules, err := repos.Components().GoverningItems(ctx, repo, branch, componentID)
	if err != nil {
		return nil, classify(err)
	}
	return &GoverningItems{Decisions: decisions, Rules: rules}, nil
}

func (s *GraphQueryService) ContextHistory(ctx context.Context, root, repo, branch, componentID string) ([]models.Context, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Components().ContextHistory(ctx, repo, branch, componentID)
	return out, classify(err)
}

// ItemsByTag lists the nodes carrying tagID, optionally restricted to kind.
func (s *GraphQueryService) ItemsByTag(ctx context.Context, root, repo, branch, tagID, kind string) ([]models.Item, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Tags().ItemsByTag(ctx, repo, branch, tagID, kind)
	return out, classify(err)
}

func (s *GraphQueryService) RelatedItems(ctx context.Context, root, repo, branch, componentID string, depth int) ([]models.Item, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Components().RelatedItems(ctx, repo, branch, componentID, depth)
	return out, classify(err)
}

func (s *GraphQueryService) components(ctx context.Context, root string, fn func(*repository.ComponentRepository) ([]models.Component, error)) ([]models.Component, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := fn(repos.Components())
	return out, classify(err)
}
