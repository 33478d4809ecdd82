package service

import (
	"context"

	"github.com/odvcencio/memorybank/internal/models"
	"github.com/odvcencio/memorybank/internal/repository"
)

// EntityService maps entity operations onto the accessors of the project
// session.
type EntityService struct {
	*base
}

func (s *EntityService) UpsertComponent(ctx context.Context, root string, c *models.Component) (*models.Component, error) {
	if c == nil {
		return nil, invalid("component is required")
	}
	if c.Status != "" && !models.IsComponentStatus(c.Status) {
		return nil, invalid("component status %q", c.Status)
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Components().Upsert(ctx, c)
	return out, classify(err)
}

func (s *EntityService) GetComponent(ctx context.Context, root, repo, branch, id string) (*models.Component, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Components().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListComponents(ctx context.Context, root, repo, branch string) ([]models.Component, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Components().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteComponent(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Components().Delete(ctx, repo, branch, id)
	})
}

func (s *EntityService) UpsertDecision(ctx context.Context, root string, d *models.Decision) (*models.Decision, error) {
	if d == nil {
		return nil, invalid("decision is required")
	}
	if d.Status != "" && !models.IsDecisionStatus(d.Status) {
		return nil, invalid("decision status %q", d.Status)
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Decisions().Upsert(ctx, d)
	return out, classify(err)
}

func (s *EntityService) GetDecision(ctx context.Context, root, repo, branch, id string) (*models.Decision, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Decisions().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListDecisions(ctx context.Context, root, repo, branch string) ([]models.Decision, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Decisions().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteDecision(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Decisions().Delete(ctx, repo, branch, id)
	})
}

func (s *EntityService) UpsertRule(ctx context.Context, root string, r *models.Rule) (*models.Rule, error) {
	if r == nil {
		return nil, invalid("rule is required")
	}
	if r.Status != "" && !models.IsRuleStatus(r.Status) {
		return nil, invalid("rule status %q", r.Status)
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Rules().Upsert(ctx, r)
	return out, classify(err)
}

func (s *EntityService) GetRule(ctx context.Context, root, repo, branch, id string) (*models.Rule, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Rules().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListRules(ctx context.Context, root, repo, branch string) ([]models.Rule, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Rules().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteRule(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Rules().Delete(ctx, repo, branch, id)
	})
}

func (s *EntityService) UpsertFile(ctx context.Context, root string, f *models.File) (*models.File, error) {
	if f == nil {
		return nil, invalid("file is required")
	}
	if f.Path == "" {
		return nil, invalid("file path is required")
	}
	if f.Size < 0 {
		return nil, invalid("file size %d", f.Size)
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Files().Upsert(ctx, f)
	return out, classify(err)
}

func (s *EntityService) GetFile(ctx context.Context, root, repo, branch, id string) (*models.File, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Files().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListFiles(ctx context.Context, root, repo, branch string) ([]models.File, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Files().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteFile(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Files().Delete(ctx, repo, branch, id)
	})
}

func (s *EntityService) UpsertContext(ctx context.Context, root string, c *models.Context) (*models.Context, error) {
	if c == nil {
		return nil, invalid("context is required")
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Contexts().Upsert(ctx, c)
	return out, classify(err)
}

func (s *EntityService) GetContext(ctx context.Context, root, repo, branch, id string) (*models.Context, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Contexts().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListContexts(ctx context.Context, root, repo, branch string) ([]models.Context, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Contexts().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteContext(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Contexts().Delete(ctx, repo, branch, id)
	})
}

func (s *EntityService) UpsertTag(ctx context.Context, root string, t *models.Tag) (*models.Tag, error) {
	if t == nil {
		return nil, invalid("tag is required")
	}
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Tags().Upsert(ctx, t)
	return out, classify(err)
}

func (s *EntityService) GetTag(ctx context.Context, root, repo, branch, id string) (*models.Tag, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Tags().Get(ctx, repo, branch, id)
	return out, classify(err)
}

func (s *EntityService) ListTags(ctx context.Context, root, repo, branch string) ([]models.Tag, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return nil, err
	}
	out, err := repos.Tags().List(ctx, repo, branch)
	return out, classify(err)
}

func (s *EntityService) DeleteTag(ctx context.Context, root, repo, branch, id string) (bool, error) {
	return s.delete(ctx, root, func(set *repository.Set) (bool, error) {
		return set.Tags().Delete(ctx, repo, branch, id)
	})
}

// TagItem attaches tagID to the itemKind node itemID.
func (s *EntityService) TagItem(ctx context.Context, root, repo, branch, itemKind, itemID, tagID string) error {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return err
	}
	return classify(repos.Tags().TagItem(ctx, repo, branch, itemKind, itemID, tagID))
}

func (s *EntityService) delete(ctx context.Context, root string, fn func(*repository.Set) (bool, error)) (bool, error) {
	repos, err := s.repos(ctx, root)
	if err != nil {
		return false, err
	}
	deleted, err := fn(repos)
	return deleted, classify(err)
}
