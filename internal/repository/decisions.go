package repository

import (
	"context"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/models"
)

type DecisionRepository struct {
	store *nodeStore
}

// Upsert writes d and replaces its GOVERNS edges with edges to d.Components.
func (r *DecisionRepository) Upsert(ctx context.Context, d *models.Decision) (*models.Decision, error) {
	if d == nil {
		return nil, fmt.Errorf("upsert decision: nil decision")
	}
	status := d.Status
	if status == "" {
		status = models.DecisionStatusProposed
	}
	row, err := r.store.upsert(ctx, d.Base, map[string]any{
		"date":    d.Date,
		"context": d.Context,
		"status":  status,
	})
	if err != nil {
		return nil, err
	}
	out := decisionFromRow(row)
	if err := r.store.relink(ctx, d.Base, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true, d.Components); err != nil {
		return nil, err
	}
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DecisionRepository) Get(ctx context.Context, repository, branch, id string) (*models.Decision, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	out := decisionFromRow(row)
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DecisionRepository) List(ctx context.Context, repository, branch string) ([]models.Decision, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.Decision, 0, len(rows))
	for _, row := range rows {
		out = append(out, *decisionFromRow(row))
	}
	return out, nil
}

func (r *DecisionRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

func decisionFromRow(row graphdb.Row) *models.Decision {
	return &models.Decision{
		Base:    baseFromRow(row),
		Date:    row.String("date"),
		Context: row.String("context"),
		Status:  row.String("status"),
	}
}
