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

type RegistrationCodeRepository struct {
	q querier
}

func (r *RegistrationCodeRepository) Create(ctx context.Context, rc *models.RegistrationCode) error {
	rc.ID = newID()
	rc.CreatedAt = time.Now().UTC()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO registration_codes (id, code, used, used_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		rc.ID, rc.Code, rc.Used, ptrToNullString(rc.UsedBy), rc.CreatedAt,
	)
	if err != nil {
		return insertError(err, "creating registration code")
	}
	return nil
}

func (r *RegistrationCodeRepository) FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error) {
	var rc models.RegistrationCode
	var usedBy sql.NullString

	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, used, used_by, created_at FROM registration_codes WHERE code = ?`, code,
	).Scan(&rc.ID, &rc.Code, &rc.Used, &usedBy, &rc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying registration code: %w", err)
	}

	rc.UsedBy = nullStringToPtr(usedBy)
	return &rc, nil
}

func (r *RegistrationCodeRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	found, err := exists(ctx, r.q, `SELECT 1 FROM registration_codes WHERE code = ?`, code)
	if err != nil {
		return false, fmt.Errorf("checking registration code: %w", err)
	}
	return found, nil
}

func (r *RegistrationCodeRepository) MarkUsed(ctx context.Context, code, userID string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE registration_codes SET used = 1, used_by = ? WHERE code = ? AND used = 0`,
		userID, code,
	)
	if err != nil {
		return fmt.Errorf("marking registration code used: %w", err)
	}
	return checkRowsAffected(result)
}
