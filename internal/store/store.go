// Package store defines the persistence contract shared by the SQLite and
// MongoDB backends.
package store

import (
	"context"
	"errors"

	"catcharity/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// Store groups the per-collection repositories. Repositories obtained from
// the Store passed to an InTx callback take part in that transaction.
type Store interface {
	Users() UserRepository
	PublicUsers() PublicUserRepository
	Cats() CatRepository
	Photos() PhotoRepository
	Messages() MessageRepository
	RegistrationCodes() RegistrationCodeRepository

	// InTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type UserRepository interface {
	// Create assigns u.ID and u.CreatedAt. Returns ErrDuplicate for a taken username.
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	DeleteByID(ctx context.Context, id string) error
}

type PublicUserRepository interface {
	// Create assigns u.ID and u.CreatedAt. Returns ErrDuplicate when the
	// username or email is taken.
	Create(ctx context.Context, u *models.PublicUser) error
	FindByID(ctx context.Context, id string) (*models.PublicUser, error)
	FindByUsername(ctx context.Context, username string) (*models.PublicUser, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// AddFavorite appends catID to the user's favorites. Returns ErrDuplicate
	// if it is already present and ErrNotFound if the user does not exist.
	AddFavorite(ctx context.Context, userID, catID string) error
	// RemoveFavorite is idempotent. Returns ErrNotFound if the user does not exist.
	RemoveFavorite(ctx context.Context, userID, catID string) error
	// RemoveFavoriteEverywhere drops catID from every favorites list.
	RemoveFavoriteEverywhere(ctx context.Context, catID string) error
}

type CatRepository interface {
	// Create assigns c.ID, c.CreatedAt and c.UpdatedAt. c.PhotoIDs is ignored.
	Create(ctx context.Context, c *models.Cat) error
	FindByID(ctx context.Context, id string) (*models.Cat, error)
	FindAll(ctx context.Context) ([]*models.Cat, error)
	// FindByIDs returns the cats that exist, in the order of ids.
	FindByIDs(ctx context.Context, ids []string) ([]*models.Cat, error)
	// Save overwrites name, age and breed.
	Save(ctx context.Context, c *models.Cat) error
	// SetPhotos replaces the ordered photo list of the cat.
	SetPhotos(ctx context.Context, catID string, photoIDs []string) error
	DeleteByID(ctx context.Context, id string) error
}

type PhotoRepository interface {
	// Create assigns p.ID and p.CreatedAt.
	Create(ctx context.Context, p *models.Photo) error
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Photo, error)
	FindByCat(ctx context.Context, catID string) ([]*models.Photo, error)
	DeleteByCat(ctx context.Context, catID string) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

type MessageRepository interface {
	// Create assigns m.ID, m.CreatedAt and m.UpdatedAt.
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	FindBySender(ctx context.Context, senderID string) ([]*models.Message, error)
	FindAll(ctx context.Context) ([]*models.Message, error)
	// Save persists the reply state (replied, replyContent, charityWorker).
	Save(ctx context.Context, m *models.Message) error
}

type RegistrationCodeRepository interface {
	// Create assigns rc.ID and rc.CreatedAt. Returns ErrDuplicate for a taken code.
	Create(ctx context.Context, rc *models.RegistrationCode) error
	FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	// MarkUsed flips used to true only if the code is still unused. Returns
	// ErrNotFound when no unused code matched.
	MarkUsed(ctx context.Context, code, userID string) error
}
