package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/models"
)

const repositoryReturn = `r.id AS id, r.name AS name, r.branch AS branch, r.created_at AS created_at, r.updated_at AS updated_at`

// RepositoryRepository resolves (name, branch) pairs to Repository nodes.
type RepositoryRepository struct {
	conn  graphdb.Conn
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*models.Repository
}

func newRepositoryRepository(conn graphdb.Conn) *RepositoryRepository {
	return &RepositoryRepository{conn: conn, cache: make(map[string]*models.Repository)}
}

// Find looks up a repository by exact, case-sensitive name and branch.
func (r *RepositoryRepository) Find(ctx context.Context, name, branch string) (*models.Repository, error) {
	if err := identity.ValidateScope(name, branch); err != nil {
		return nil, err
	}
	row, err := graphdb.QueryOne(ctx, r.conn,
		`MATCH (r:Repository) WHERE r.name = $name AND r.branch = $branch RETURN `+repositoryReturn,
		map[string]any{"name": name, "branch": branch})
	if err != nil {
		return nil, fmt.Errorf("find repository %s/%s: %w", name, branch, err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return repositoryFromRow(row), nil
}

// Resolve returns the repository for (name, branch), creating it when absent.
// Repeat calls with the same inputs return the same *models.Repository.
// Concurrent callers share one lookup that outlives any single caller's
// cancellation; a caller that gives up gets its context error.
func (r *RepositoryRepository) Resolve(ctx context.Context, name, branch string) (*models.Repository, error) {
	key, err := identity.RepositoryKey(name, branch)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.cache[key]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		repo, err := r.Find(detached, name, branch)
		if errors.Is(err, ErrNotFound) {
			repo, err = r.create(detached, key, name, branch)
		}
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if existing, ok := r.cache[key]; ok {
			repo = existing
		} else {
			r.cache[key] = repo
		}
		r.mu.Unlock()
		return repo, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Repository), nil
	}
}

func (r *RepositoryRepository) create(ctx context.Context, key, name, branch string) (*models.Repository, error) {
	row, err := graphdb.QueryOne(ctx, r.conn,
		`MERGE (r:Repository {id: $id})
		 ON CREATE SET r.name = $name, r.branch = $branch, r.created_at = current_timestamp(), r.updated_at = current_timestamp()
		 RETURN `+repositoryReturn,
		map[string]any{"id": key, "name": name, "branch": branch})
	if err != nil {
		// Another writer may have created the node first; the primary key
		// guarantees a single node, so re-read it.
		if repo, findErr := r.Find(ctx, name, branch); findErr == nil {
			return repo, nil
		}
		return nil, fmt.Errorf("create repository %s/%s: %w", name, branch, err)
	}
	if row == nil {
		return r.Find(ctx, name, branch)
	}
	return repositoryFromRow(row), nil
}

// List returns every repository checkout in the database.
func (r *RepositoryRepository) List(ctx context.Context) ([]models.Repository, error) {
	rows, err := r.conn.Query(ctx, `MATCH (r:Repository) RETURN `+repositoryReturn+` ORDER BY r.name, r.branch`, nil)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	out := make([]models.Repository, 0, len(rows))
	for _, row := range rows {
		out = append(out, *repositoryFromRow(row))
	}
	return out, nil
}

// Delete removes the repository node and every scoped node that belongs to it.
func (r *RepositoryRepository) Delete(ctx context.Context, name, branch string) (bool, error) {
	if _, err := r.Find(ctx, name, branch); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	params := map[string]any{"repository": name, "branch": branch}
	for _, kind := range graphdb.ScopedKinds {
		q := fmt.Sprintf(`MATCH (n:%s) WHERE n.repository = $repository AND n.branch = $branch DETACH DELETE n`, kind)
		if _, err := r.conn.Query(ctx, q, params); err != nil {
			return false, fmt.Errorf("delete %s nodes: %w", kind, err)
		}
	}
	if _, err := r.conn.Query(ctx,
		`MATCH (r:Repository) WHERE r.name = $repository AND r.branch = $branch DETACH DELETE r`, params); err != nil {
		return false, fmt.Errorf("delete repository %s/%s: %w", name, branch, err)
	}

	key, _ := identity.RepositoryKey(name, branch)
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return true, nil
}

func repositoryFromRow(row graphdb.Row) *models.Repository {
	return &models.Repository{
		ID:        row.String("id"),
		Name:      row.String("name"),
		Branch:    row.String("branch"),
		CreatedAt: row.Time("created_at"),
		UpdatedAt: row.Time("updated_at"),
	}
}
