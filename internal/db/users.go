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

type UserRepository struct {
	q querier
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	u.ID = newID()
	u.CreatedAt = time.Now().UTC()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return insertError(err, "creating user")
	}
	if u.UsedRegistrationCodes == nil {
		u.UsedRegistrationCodes = []string{}
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	found, err := exists(ctx, r.q, `SELECT 1 FROM users WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return found, nil
}

func (r *UserRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	codes, err := queryStrings(ctx, r.q,
		`SELECT code FROM registration_codes WHERE used_by = ? ORDER BY created_at, rowid`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("querying used registration codes: %w", err)
	}
	u.UsedRegistrationCodes = codes

	return &u, nil
}
