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

type PublicUserRepository struct {
	q querier
}

func (r *PublicUserRepository) Create(ctx context.Context, u *models.PublicUser) error {
	u.ID = newID()
	u.CreatedAt = time.Now().UTC()

	var provider, providerID sql.NullString
	if u.ExternalAuth != nil {
		provider = sql.NullString{String: u.ExternalAuth.Provider, Valid: true}
		providerID = sql.NullString{String: u.ExternalAuth.ProviderID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO public_users (id, username, email, password_hash, external_provider, external_provider_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, provider, providerID, u.CreatedAt,
	)
	if err != nil {
		return insertError(err, "creating public user")
	}
	if u.FavoriteCats == nil {
		u.FavoriteCats = []string{}
	}
	return nil
}

func (r *PublicUserRepository) FindByID(ctx context.Context, id string) (*models.PublicUser, error) {
	return r.findOne(ctx, `SELECT id, username, email, password_hash, external_provider, external_provider_id, created_at
		FROM public_users WHERE id = ?`, id)
}

func (r *PublicUserRepository) FindByUsername(ctx context.Context, username string) (*models.PublicUser, error) {
	return r.findOne(ctx, `SELECT id, username, email, password_hash, external_provider, external_provider_id, created_at
		FROM public_users WHERE username = ?`, username)
}

func (r *PublicUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	found, err := exists(ctx, r.q, `SELECT 1 FROM public_users WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return found, nil
}

func (r *PublicUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	found, err := exists(ctx, r.q, `SELECT 1 FROM public_users WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return found, nil
}

func (r *PublicUserRepository) AddFavorite(ctx context.Context, userID, catID string) error {
	if err := r.requireUser(ctx, userID); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO favorites (user_id, cat_id, created_at) VALUES (?, ?, ?)`,
		userID, catID, time.Now().UTC(),
	)
	if err != nil {
		return insertError(err, "adding favorite")
	}
	return nil
}

func (r *PublicUserRepository) RemoveFavorite(ctx context.Context, userID, catID string) error {
	if err := r.requireUser(ctx, userID); err != nil {
		return err
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND cat_id = ?`, userID, catID); err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	return nil
}

func (r *PublicUserRepository) RemoveFavoriteEverywhere(ctx context.Context, catID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM favorites WHERE cat_id = ?`, catID); err != nil {
		return fmt.Errorf("removing favorites for cat: %w", err)
	}
	return nil
}

func (r *PublicUserRepository) requireUser(ctx context.Context, userID string) error {
	found, err := exists(ctx, r.q, `SELECT 1 FROM public_users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("checking public user: %w", err)
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (r *PublicUserRepository) findOne(ctx context.Context, query string, args ...any) (*models.PublicUser, error) {
	var u models.PublicUser
	var provider, providerID sql.NullString

	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&provider,
		&providerID,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying public user: %w", err)
	}

	if provider.Valid {
		u.ExternalAuth = &models.ExternalAuth{Provider: provider.String, ProviderID: providerID.String}
	}

	favorites, err := queryStrings(ctx, r.q,
		`SELECT cat_id FROM favorites WHERE user_id = ? ORDER BY created_at, rowid`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	u.FavoriteCats = favorites

	return &u, nil
}
