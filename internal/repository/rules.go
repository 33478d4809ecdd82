package repository

import (
	"context"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/models"
)

type RuleRepository struct {
	store *nodeStore
}

func (r *RuleRepository) Upsert(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if rule == nil {
		return nil, fmt.Errorf("upsert rule: nil rule")
	}
	status := rule.Status
	if status == "" {
		status = models.RuleStatusActive
	}
	row, err := r.store.upsert(ctx, rule.Base, map[string]any{
		"created":  rule.Created,
		"content":  rule.Content,
		"triggers": dedupe(rule.Triggers),
		"status":   status,
	})
	if err != nil {
		return nil, err
	}
	out := ruleFromRow(row)
	if err := r.store.relink(ctx, rule.Base, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true, rule.Components); err != nil {
		return nil, err
	}
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RuleRepository) Get(ctx context.Context, repository, branch, id string) (*models.Rule, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	out := ruleFromRow(row)
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelGoverns, graphdb.KindComponent, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RuleRepository) List(ctx context.Context, repository, branch string) ([]models.Rule, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, *ruleFromRow(row))
	}
	return out, nil
}

func (r *RuleRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

func ruleFromRow(row graphdb.Row) *models.Rule {
	return &models.Rule{
		Base:     baseFromRow(row),
		Created:  row.String("created"),
		Content:  row.String("content"),
		Triggers: row.Strings("triggers"),
		Status:   row.String("status"),
	}
}
