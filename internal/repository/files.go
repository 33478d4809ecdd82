package repository

import (
	"context"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/models"
)

type FileRepository struct {
	store *nodeStore
}

// Upsert writes f and replaces the IMPLEMENTS edges pointing at it from the
// components in f.Components.
func (r *FileRepository) Upsert(ctx context.Context, f *models.File) (*models.File, error) {
	if f == nil {
		return nil, fmt.Errorf("upsert file: nil file")
	}
	name := f.Name
	if name == "" {
		name = f.Path
	}
	base := f.Base
	base.Name = name
	row, err := r.store.upsert(ctx, base, map[string]any{
		"path":         f.Path,
		"language":     f.Language,
		"size":         f.Size,
		"content_hash": f.ContentHash,
	})
	if err != nil {
		return nil, err
	}
	out := fileFromRow(row)
	if err := r.store.relink(ctx, base, out.GraphUniqueID, graphdb.RelImplements, graphdb.KindComponent, false, f.Components); err != nil {
		return nil, err
	}
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelImplements, graphdb.KindComponent, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileRepository) Get(ctx context.Context, repository, branch, id string) (*models.File, error) {
	row, err := r.store.get(ctx, repository, branch, id)
	if err != nil {
		return nil, err
	}
	out := fileFromRow(row)
	if out.Components, err = r.store.linked(ctx, out.GraphUniqueID, graphdb.RelImplements, graphdb.KindComponent, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileRepository) List(ctx context.Context, repository, branch string) ([]models.File, error) {
	rows, err := r.store.list(ctx, repository, branch)
	if err != nil {
		return nil, err
	}
	out := make([]models.File, 0, len(rows))
	for _, row := range rows {
		out = append(out, *fileFromRow(row))
	}
	return out, nil
}

func (r *FileRepository) Delete(ctx context.Context, repository, branch, id string) (bool, error) {
	return r.store.delete(ctx, repository, branch, id)
}

func fileFromRow(row graphdb.Row) *models.File {
	return &models.File{
		Base:        baseFromRow(row),
		Path:        row.String("path"),
		Language:    row.String("language"),
		Size:        row.Int64("size"),
		ContentHash: row.String("content_hash"),
	}
}
