package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/models"
)

// Traversal depth bounds for dependency and related-item queries.
const (
	MinDepth = 1
	MaxDepth = 10
)

type ComponentRepository struct {
	store *nodeStore
}

// Upsert writes c and replaces its DEPENDS_ON edges. Dependencies that do not
// exist yet are created as planned placeholders so the edge can be recorded.
func (r *ComponentRepository) Upsert(ctx context.Context, c *models.Component) (*models.Component, error) {
	if c == nil {
		return nil, fmt.Errorf("upsert component: nil component")
	}
	status := c.Status
	if status == "" {
		status = models.ComponentStatusActive
	}
	deps := dedupe(c.DependsOn)
	row, err := r.store.upsert(ctx, c.Base, map[string]any{
		"kind":       c.Kind,
		"status":     status,
		"depends_on": deps,
	})
	if err != nil {
		return nil, err
	}
	gid := row.String("graph_unique_id")

	for _, dep := range deps {
		if dep == c.ID {
			continue
		}
		if _, err := r.store.get(ctx, c.Repository, c.Branch, dep); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		placeholder := models.Base{Scope: c.Scope, ID: dep, Name: dep}
		if _, err := r.store.upsert(ctx, placeholder, map[string]any{"status": models.ComponentStatusPlanned}); err != nil {
			return nil, fmt.Errorf("create placeholder dependency %s: %w", dep, err)
		}
	}
	if err := r.store.relink(ctx, c.Base, gid, graphdb.RelDependsOn, graphdb.KindComponent, true, deps); err != nil {
		return nil, err
	}
	return componentFromRow(row), nil
}

func (r *ComponentRepository) Get(ctx context.Context, repository, branch, id string) (*models.Component, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	return componentFromRow(row), nil
}

func (r *ComponentRepository) List(ctx context.Context, repository, branch string) ([]models.Component, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.Component, 0, len(rows))
	for _, row := range rows {
		out = append(out, *componentFromRow(row))
	}
	return out, nil
}

func (r *ComponentRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

// Dependencies returns the components reachable from id over outgoing
// DEPENDS_ON edges within depth hops.
func (r *ComponentRepository) Dependencies(ctx context.Context, repository, branch, id string, depth int) ([]models.Component, error) {
	return r.traverse(ctx, repository, branch, id, depth, "(c)-[:DEPENDS_ON*1..%d]->(d:Component)")
}

// Dependents returns the components that reach id over DEPENDS_ON edges.
func (r *ComponentRepository) Dependents(ctx context.Context, repository, branch, id string, depth int) ([]models.Component, error) {
	return r.traverse(ctx, repository, branch, id, depth, "(c)<-[:DEPENDS_ON*1..%d]-(d:Component)")
}

func (r *ComponentRepository) traverse(ctx context.Context, repository, branch, id string, depth int, pattern string) ([]models.Component, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d outside %d..%d", ErrInvalidDepth, depth, MinDepth, MaxDepth)
	}
	gid, err := identity.DeriveKey(repository, branch, id)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`MATCH (c:Component {graph_unique_id: $gid}) MATCH `+pattern+`
		WHERE d.repository = $repository AND d.branch = $branch
		RETURN DISTINCT %s ORDER BY id`, depth, r.store.returnClause("d"))
	rows, err := r.store.conn.Query(ctx, q, map[string]any{"gid": gid, "repository": repository, "branch": branch})
	if err != nil {
		return nil, fmt.Errorf("traverse dependencies of %s: %w", gid, err)
	}
	out := make([]models.Component, 0, len(rows))
	for _, row := range rows {
		out = append(out, *componentFromRow(row))
	}
	return out, nil
}

// GoverningItems returns the decisions and rules that govern the component.
func (r *ComponentRepository) GoverningItems(ctx context.Context, repository, branch, id string) ([]models.Decision, []models.Rule, error) {
	gid, err := identity.DeriveKey(repository, branch, id)
	if err != nil {
		return nil, nil, err
	}
	params := map[string]any{"gid": gid}

	decisionStore := &nodeStore{kind: graphdb.KindDecision, columns: decisionColumns}
	rows, err := r.store.conn.Query(ctx,
		`MATCH (d:Decision)-[:GOVERNS]->(c:Component {graph_unique_id: $gid}) RETURN `+decisionStore.returnClause("d")+` ORDER BY date, id`,
		params)
	if err != nil {
		return nil, nil, fmt.Errorf("governing decisions of %s: %w", gid, err)
	}
	decisions := make([]models.Decision, 0, len(rows))
	for _, row := range rows {
		d := decisionFromRow(row)
		d.Components = []string{id}
		decisions = append(decisions, *d)
	}

	ruleStore := &nodeStore{kind: graphdb.KindRule, columns: ruleColumns}
	rows, err = r.store.conn.Query(ctx,
		`MATCH (d:Rule)-[:GOVERNS]->(c:Component {graph_unique_id: $gid}) RETURN `+ruleStore.returnClause("d")+` ORDER BY created, id`,
		params)
	if err != nil {
		return nil, nil, fmt.Errorf("governing rules of %s: %w", gid, err)
	}
	rules := make([]models.Rule, 0, len(rows))
	for _, row := range rows {
		rule := ruleFromRow(row)
		rule.Components = []string{id}
		rules = append(rules, *rule)
	}
	return decisions, rules, nil
}

// ContextHistory returns the contexts attached to the component, newest first.
func (r *ComponentRepository) ContextHistory(ctx context.Context, repository, branch, id string) ([]models.Context, error) {
	gid, err := identity.DeriveKey(repository, branch, id)
	if err != nil {
		return nil, err
	}
	contextStore := &nodeStore{kind: graphdb.KindContext, columns: contextColumns}
	rows, err := r.store.conn.Query(ctx,
		`MATCH (x:Context)-[:CONTEXT_OF]->(c:Component {graph_unique_id: $gid}) RETURN `+contextStore.returnClause("x")+` ORDER BY iso_date DESC, id`,
		map[string]any{"gid": gid})
	if err != nil {
		return nil, fmt.Errorf("context history of %s: %w", gid, err)
	}
	out := make([]models.Context, 0, len(rows))
	for _, row := range rows {
		c := contextFromRow(row)
		c.Components = []string{id}
		out = append(out, *c)
	}
	return out, nil
}

// RelatedItems returns every scoped node within depth hops of the component in
// either direction, excluding the component itself.
func (r *ComponentRepository) RelatedItems(ctx context.Context, repository, branch, id string, depth int) ([]models.Item, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d outside %d..%d", ErrInvalidDepth, depth, MinDepth, MaxDepth)
	}
	gid, err := identity.DeriveKey(repository, branch, id)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`MATCH (c:Component {graph_unique_id: $gid})-[*1..%d]-(n)
		WHERE label(n) <> 'Repository' AND n.graph_unique_id <> $gid
		  AND n.repository = $repository AND n.branch = $branch
		RETURN DISTINCT label(n) AS kind, n.id AS id, n.graph_unique_id AS graph_unique_id, n.name AS name
		ORDER BY kind, id`, depth)
	rows, err := r.store.conn.Query(ctx, q, map[string]any{"gid": gid, "repository": repository, "branch": branch})
	if err != nil {
		return nil, fmt.Errorf("related items of %s: %w", gid, err)
	}
	return itemsFromRows(rows), nil
}

func componentFromRow(row graphdb.Row) *models.Component {
	return &models.Component{
		Base:      baseFromRow(row),
		Kind:      row.String("kind"),
		Status:    row.String("status"),
		DependsOn: row.Strings("depends_on"),
	}
}

func itemsFromRows(rows []graphdb.Row) []models.Item {
	out := make([]models.Item, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Item{
			Kind:          row.String("kind"),
			ID:            row.String("id"),
			GraphUniqueID: row.String("graph_unique_id"),
			Name:          row.String("name"),
		})
	}
	return out
}
