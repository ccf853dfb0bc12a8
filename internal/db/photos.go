package db

import (
	"context"
	"fmt"
	"time"

	"catcharity/internal/models"
)

type PhotoRepository struct {
	q querier
}

func (r *PhotoRepository) Create(ctx context.Context, p *models.Photo) error {
	p.ID = newID()
	p.CreatedAt = time.Now().UTC()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO photos (id, cat_id, url, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.CatID, p.URL, p.Description, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating photo: %w", err)
	}
	return nil
}

func (r *PhotoRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Photo, error) {
	photos := make(map[string]*models.Photo, len(ids))
	if len(ids) == 0 {
		return photos, nil
	}

	marks, args := placeholders(ids)
	list, err := r.query(ctx,
		`SELECT id, cat_id, url, description, created_at FROM photos WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		photos[p.ID] = p
	}
	return photos, nil
}

func (r *PhotoRepository) FindByCat(ctx context.Context, catID string) ([]*models.Photo, error) {
	return r.query(ctx,
		`SELECT id, cat_id, url, description, created_at FROM photos WHERE cat_id = ? ORDER BY created_at, rowid`, catID)
}

func (r *PhotoRepository) DeleteByCat(ctx context.Context, catID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM photos WHERE cat_id = ?`, catID)
	if err != nil {
		return 0, fmt.Errorf("deleting cat photos: %w", err)
	}
	return result.RowsAffected()
}

func (r *PhotoRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	marks, args := placeholders(ids)
	result, err := r.q.ExecContext(ctx, `DELETE FROM photos WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting photos: %w", err)
	}
	return result.RowsAffected()
}

func (r *PhotoRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	found, err := exists(ctx, r.q, `SELECT 1 FROM photos WHERE url = ?`, url)
	if err != nil {
		return false, fmt.Errorf("checking photo url: %w", err)
	}
	return found, nil
}

func (r *PhotoRepository) query(ctx context.Context, query string, args ...any) ([]*models.Photo, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying photos: %w", err)
	}
	defer rows.Close()

	photos := make([]*models.Photo, 0)
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.CatID, &p.URL, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning photo: %w", err)
		}
		photos = append(photos, &p)
	}
	return photos, rows.Err()
}
