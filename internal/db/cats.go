package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

type CatRepository struct {
	q querier
}

func (r *CatRepository) Create(ctx context.Context, c *models.Cat) error {
	now := time.Now().UTC()
	c.ID = newID()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.PhotoIDs = []string{}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO cats (id, name, age, breed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Age, c.Breed, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating cat: %w", err)
	}
	return nil
}

func (r *CatRepository) FindByID(ctx context.Context, id string) (*models.Cat, error) {
	var c models.Cat
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, age, breed, created_at, updated_at FROM cats WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Age, &c.Breed, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cat: %w", err)
	}

	photoIDs, err := queryStrings(ctx, r.q,
		`SELECT photo_id FROM cat_photos WHERE cat_id = ? ORDER BY position`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("querying cat photos: %w", err)
	}
	c.PhotoIDs = photoIDs

	return &c, nil
}

func (r *CatRepository) FindAll(ctx context.Context) ([]*models.Cat, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, age, breed, created_at, updated_at FROM cats ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying cats: %w", err)
	}
	cats, err := scanCats(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachPhotoIDs(ctx, cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func (r *CatRepository) FindByIDs(ctx context.Context, ids []string) ([]*models.Cat, error) {
	if len(ids) == 0 {
		return []*models.Cat{}, nil
	}

	marks, args := placeholders(ids)
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, age, breed, created_at, updated_at FROM cats WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cats: %w", err)
	}
	found, err := scanCats(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachPhotoIDs(ctx, found); err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Cat, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	cats := make([]*models.Cat, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			cats = append(cats, c)
		}
	}
	return cats, nil
}

func (r *CatRepository) Save(ctx context.Context, c *models.Cat) error {
	c.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx,
		`UPDATE cats SET name = ?, age = ?, breed = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Age, c.Breed, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating cat: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *CatRepository) SetPhotos(ctx context.Context, catID string, photoIDs []string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE cats SET updated_at = ? WHERE id = ?`, time.Now().UTC(), catID)
	if err != nil {
		return fmt.Errorf("touching cat: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM cat_photos WHERE cat_id = ?`, catID); err != nil {
		return fmt.Errorf("clearing cat photos: %w", err)
	}
	for i, photoID := range photoIDs {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO cat_photos (cat_id, photo_id, position) VALUES (?, ?, ?)`,
			catID, photoID, i,
		)
		if err != nil {
			return fmt.Errorf("linking cat photo: %w", err)
		}
	}
	return nil
}

func (r *CatRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM cats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting cat: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *CatRepository) attachPhotoIDs(ctx context.Context, cats []*models.Cat) error {
	if len(cats) == 0 {
		return nil
	}

	ids := make([]string, len(cats))
	byID := make(map[string]*models.Cat, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	marks, args := placeholders(ids)
	rows, err := r.q.QueryContext(ctx,
		`SELECT cat_id, photo_id FROM cat_photos WHERE cat_id IN (`+marks+`) ORDER BY cat_id, position`, args...)
	if err != nil {
		return fmt.Errorf("querying cat photos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var catID, photoID string
		if err := rows.Scan(&catID, &photoID); err != nil {
			return fmt.Errorf("scanning cat photo: %w", err)
		}
		if c, ok := byID[catID]; ok {
			c.PhotoIDs = append(c.PhotoIDs, photoID)
		}
	}
	return rows.Err()
}

func scanCats(rows *sql.Rows) ([]*models.Cat, error) {
	defer rows.Close()

	cats := make([]*models.Cat, 0)
	for rows.Next() {
		var c models.Cat
		if err := rows.Scan(&c.ID, &c.Name, &c.Age, &c.Breed, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cat: %w", err)
		}
		c.PhotoIDs = []string{}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}
