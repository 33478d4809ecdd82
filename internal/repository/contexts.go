package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/models"
)

type ContextRepository struct {
	store *nodeStore
}

// Upsert writes c and attaches it to the components it mentions. A missing
// ISODate defaults to today (UTC).
func (r *ContextRepository) Upsert(ctx context.Context, c *models.Context) (*models.Context, error) {
	if c == nil {
		return nil, fmt.Errorf("upsert context: nil context")
	}
	isoDate := c.ISODate
	if isoDate == "" {
		isoDate = time.Now().UTC().Format(time.DateOnly)
	}
	row, err := r.store.upsert(ctx, c.Base, map[string]any{
		"agent":        c.Agent,
		"summary":      c.Summary,
		"iso_date":     isoDate,
		"observations": c.Observations,
	})
	if err != nil {
		return nil, err
	}
	out := contextFromRow(row)
	if err := r.store.relink(ctx, c.Base, out.GraphUniqueID, graphdb.RelContextOf, graphdb.KindComponent, true, c.Components); err != nil {
		return nil, err
	}
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelContextOf, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContextRepository) Get(ctx context.Context, repository, branch, id string) (*models.Context, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	out := contextFromRow(row)
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelContextOf, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContextRepository) List(ctx context.Context, repository, branch string) ([]models.Context, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.Context, 0, len(rows))
	for _, row := range rows {
		out = append(out, *contextFromRow(row))
	}
	return out, nil
}

func (r *ContextRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

func contextFromRow(row graphdb.Row) *models.Context {
	return &models.Context{
		Base:         baseFromRow(row),
		Agent:        row.String("agent"),
		Summary:      row.String("summary"),
		ISODate:      row.String("iso_date"),
		Observations: row.Strings("observations"),
	}
}
