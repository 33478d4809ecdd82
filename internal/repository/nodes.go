package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/models"
)

var baseColumns = []string{"graph_unique_id", "id", "repository", "branch", "name", "created_at", "updated_at"}

var (
	componentColumns = []string{"kind", "status", "depends_on"}
	decisionColumns  = []string{"date", "context", "status"}
	ruleColumns      = []string{"created", "content", "triggers", "status"}
	fileColumns      = []string{"path", "language", "size", "content_hash"}
	tagColumns       = []string{"color", "description", "category"}
	contextColumns   = []string{"agent", "summary", "iso_date", "observations"}
)

// nodeStore implements the scoped CRUD shared by every entity kind. Kind and
// column names are package constants; only values are bound as parameters.
type nodeStore struct {
	conn    graphdb.Conn
	repos   *RepositoryRepository
	kind    string
	columns []string
}

func newNodeStore(conn graphdb.Conn, repos *RepositoryRepository, kind string, columns []string) *nodeStore {
	return &nodeStore{conn: conn, repos: repos, kind: kind, columns: columns}
}

func (s *nodeStore) returnClause(alias string) string {
	cols := append(append([]string{}, baseColumns...), s.columns...)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s.%s AS %s", alias, c, c)
	}
	return strings.Join(parts, ", ")
}

// upsert creates or updates the node for b and links it to its repository.
// The graph-unique id is derived from b's scope and id and never rewritten.
func (s *nodeStore) upsert(ctx context.Context, b models.Base, values map[string]any) (graphdb.Row, error) {
	gid, err := identity.DeriveKey(b.Repository, b.Branch, b.ID)
	if err != nil {
		return nil, err
	}
	repo, err := s.repos.Resolve(ctx, b.Repository, b.Branch)
	if err != nil {
		return nil, err
	}

	name := b.Name
	if strings.TrimSpace(name) == "" {
		name = b.ID
	}
	params := map[string]any{
		"repo_id":    repo.ID,
		"gid":        gid,
		"id":         b.ID,
		"repository": b.Repository,
		"branch":     b.Branch,
		"name":       name,
	}
	sets := []string{"n.id = $id", "n.repository = $repository", "n.branch = $branch", "n.name = $name"}
	for _, col := range s.columns {
		v, ok := values[col]
		if !ok {
			continue
		}
		params[col] = v
		sets = append(sets, fmt.Sprintf("n.%s = $%s", col, col))
	}
	sets = append(sets, "n.updated_at = current_timestamp()")

	q := fmt.Sprintf(`MATCH (repo:Repository {id: $repo_id})
		MERGE (n:%s {graph_unique_id: $gid})
		ON CREATE SET n.created_at = current_timestamp()
		SET %s
		MERGE (n)-[:PART_OF]->(repo)
		RETURN %s`, s.kind, strings.Join(sets, ", "), s.returnClause("n"))
	row, err := graphdb.QueryOne(ctx, s.conn, q, params)
	if err != nil {
		return nil, fmt.Errorf("upsert %s %s: %w", s.kind, gid, err)
	}
	if row == nil {
		return nil, fmt.Errorf("upsert %s %s: repository %s not found", s.kind, gid, repo.ID)
	}
	return row, nil
}

func (s *nodeStore) get(ctx context.Context, repository, branch, id string) (graphdb.Row, error) {
	gid, err := identity.DeriveKey(repository, branch, id)
	if err != nil {
		return nil, err
	}
	row, err := graphdb.QueryOne(ctx, s.conn,
		fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid}) RETURN %s`, s.kind, s.returnClause("n")),
		map[string]any{"gid": gid})
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.kind, gid, err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

func (s *nodeStore) list(ctx context.Context, repository, branch string) ([]graphdb.Row, error) {
	if err := identity.ValidateScope(repository, branch); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx,
		fmt.Sprintf(`MATCH (n:%s) WHERE n.repository = $repository AND n.branch = $branch RETURN %s ORDER BY n.id`, s.kind, s.returnClause("n")),
		map[string]any{"repository": repository, "branch": branch})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.kind, err)
	}
	return rows, nil
}

// delete removes the node and all of its relationships. It reports whether
// the node existed.
func (s *nodeStore) delete(ctx context.Context, repository, branch, id string) (bool, error) {
	if _, err := s.get(ctx, repository, branch, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	gid, _ := identity.DeriveKey(repository, branch, id)
	if _, err := s.conn.Query(ctx,
		fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid}) DETACH DELETE n`, s.kind),
		map[string]any{"gid": gid}); err != nil {
		return false, fmt.Errorf("delete %s %s: %w", s.kind, gid, err)
	}
	return true, nil
}

// relink replaces the rel edges between the node gid and nodes of otherKind
// with edges to targetIDs in the same scope. Targets that do not exist are
// skipped.
func (s *nodeStore) relink(ctx context.Context, b models.Base, gid, rel, otherKind string, outgoing bool, targetIDs []string) error {
	clear := fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid})-[r:%s]->(:%s) DELETE r`, s.kind, rel, otherKind)
	link := fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid}), (m:%s {graph_unique_id: $target}) MERGE (n)-[:%s]->(m)`, s.kind, otherKind, rel)
	if !outgoing {
		clear = fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid})<-[r:%s]-(:%s) DELETE r`, s.kind, rel, otherKind)
		link = fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid}), (m:%s {graph_unique_id: $target}) MERGE (m)-[:%s]->(n)`, s.kind, otherKind, rel)
	}
	if _, err := s.conn.Query(ctx, clear, map[string]any{"gid": gid}); err != nil {
		return fmt.Errorf("clear %s edges: %w", rel, err)
	}
	for _, target := range dedupe(targetIDs) {
		targetGID, err := identity.DeriveKey(b.Repository, b.Branch, target)
		if err != nil {
			return err
		}
		if _, err := s.conn.Query(ctx, link, map[string]any{"gid": gid, "target": targetGID}); err != nil {
			return fmt.Errorf("link %s %s -> %s: %w", rel, gid, targetGID, err)
		}
	}
	return nil
}

// linked returns the local ids of otherKind nodes joined to gid by rel.
func (s *nodeStore) linked(ctx context.Context, gid, rel, otherKind string, outgoing bool) ([]string, error) {
	q := fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid})-[:%s]->(m:%s) RETURN m.id AS id ORDER BY id`, s.kind, rel, otherKind)
	if !outgoing {
		q = fmt.Sprintf(`MATCH (n:%s {graph_unique_id: $gid})<-[:%s]-(m:%s) RETURN m.id AS id ORDER BY id`, s.kind, rel, otherKind)
	}
	rows, err := s.conn.Query(ctx, q, map[string]any{"gid": gid})
	if err != nil {
		return nil, fmt.Errorf("list %s edges: %w", rel, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.String("id"))
	}
	return ids, nil
}

func baseFromRow(row graphdb.Row) models.Base {
	return models.Base{
		Scope: models.Scope{
			Repository: row.String("repository"),
			Branch:     row.String("branch"),
		},
		ID:            row.String("id"),
		GraphUniqueID: row.String("graph_unique_id"),
		Name:          row.String("name"),
		CreatedAt:     row.Time("created_at"),
		UpdatedAt:     row.Time("updated_at"),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
