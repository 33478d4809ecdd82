package repository

import (
	"context"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/models"
)

type TagRepository struct {
	store *nodeStore
}

func (r *TagRepository) Upsert(ctx context.Context, t *models.Tag) (*models.Tag, error) {
	if t == nil {
		return nil, fmt.Errorf("upsert tag: nil tag")
	}
	row, err := r.store.upsert(ctx, t.Base, map[string]any{
		"color":       t.Color,
		"description": t.Description,
		"category":    t.Category,
	})
	if err != nil {
		return nil, err
	}
	return tagFromRow(row), nil
}

func (r *TagRepository) Get(ctx context.Context, repository, branch, id string) (*models.Tag, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	return tagFromRow(row), nil
}

func (r *TagRepository) List(ctx context.Context, repository, branch string) ([]models.Tag, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.Tag, 0, len(rows))
	for _, row := range rows {
		out = append(out, *tagFromRow(row))
	}
	return out, nil
}

func (r *TagRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

// TagItem links the itemKind node itemID to the tag. Both must exist.
func (r *TagRepository) TagItem(ctx context.Context, repository, branch, itemKind, itemID, tagID string) error {
	if !taggable(itemKind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, itemKind)
	}
	itemGID, err := identity.DeriveKey(repository, branch, itemID)
	if err != nil {
		return err
	}
	tagGID, err := identity.DeriveKey(repository, branch, tagID)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`MATCH (i:%s {graph_unique_id: $item}), (t:Tag {graph_unique_id: $tag})
		MERGE (i)-[:TAGGED_WITH]->(t)
		RETURN t.graph_unique_id AS tag`, itemKind)
	row, err := graphdb.QueryOne(ctx, r.store.conn, q, map[string]any{"item": itemGID, "tag": tagGID})
	if err != nil {
		return fmt.Errorf("tag %s with %s: %w", itemGID, tagGID, err)
	}
	if row == nil {
		return ErrNotFound
	}
	return nil
}

// ItemsByTag returns the nodes tagged with tagID. An empty kind matches every
// taggable kind.
func (r *TagRepository) ItemsByTag(ctx context.Context, repository, branch, tagID, kind string) ([]models.Item, error) {
	tagGID, err := identity.DeriveKey(repository, branch, tagID)
	if err != nil {
		return nil, err
	}
	pattern := "(i)"
	if kind != "" {
		if !taggable(kind) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
		}
		pattern = "(i:" + kind + ")"
	}
	q := `MATCH ` + pattern + `-[:TAGGED_WITH]->(t:Tag {graph_unique_id: $tag})
		RETURN label(i) AS kind, i.id AS id, i.graph_unique_id AS graph_unique_id, i.name AS name
		ORDER BY kind, id`
	rows, err := r.store.conn.Query(ctx, q, map[string]any{"tag": tagGID})
	if err != nil {
		return nil, fmt.Errorf("items tagged %s: %w", tagGID, err)
	}
	return itemsFromRows(rows), nil
}

func taggable(kind string) bool {
	for _, k := range graphdb.ScopedKinds {
		if k == kind && k != graphdb.KindTag {
			return true
		}
	}
	return false
}

func tagFromRow(row graphdb.Row) *models.Tag {
	return &models.Tag{
		Base:        baseFromRow(row),
		Color:       row.String("color"),
		Description: row.String("description"),
		Category:    row.String("category"),
	}
}
