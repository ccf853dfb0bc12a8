package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

type externalAuthDoc struct {
	Provider   string `bson:"provider"`
	ProviderID string `bson:"providerId"`
}

type publicUserDoc struct {
	ID           bson.ObjectID    `bson:"_id,omitempty"`
	Username     string           `bson:"username"`
	Email        string           `bson:"email"`
	Password     string           `bson:"password"`
	FavoriteCats []bson.ObjectID  `bson:"favoriteCats"`
	ExternalAuth *externalAuthDoc `bson:"externalAuth,omitempty"`
	CreatedAt    time.Time        `bson:"createdAt"`
}

func (d *publicUserDoc) toModel() *models.PublicUser {
	u := &models.PublicUser{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		FavoriteCats: hexIDs(d.FavoriteCats),
		CreatedAt:    d.CreatedAt,
	}
	if d.ExternalAuth != nil {
		u.ExternalAuth = &models.ExternalAuth{Provider: d.ExternalAuth.Provider, ProviderID: d.ExternalAuth.ProviderID}
	}
	return u
}

type PublicUserRepository struct {
	coll *mongo.Collection
}

func (r *PublicUserRepository) Create(ctx context.Context, u *models.PublicUser) error {
	doc := publicUserDoc{
		ID:           bson.NewObjectID(),
		Username:     u.Username,
		Email:        u.Email,
		Password:     u.PasswordHash,
		FavoriteCats: []bson.ObjectID{},
		CreatedAt:    now(),
	}
	if u.ExternalAuth != nil {
		doc.ExternalAuth = &externalAuthDoc{Provider: u.ExternalAuth.Provider, ProviderID: u.ExternalAuth.ProviderID}
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("creating public user: %w", err)
	}

	u.ID = doc.ID.Hex()
	u.CreatedAt = doc.CreatedAt
	u.FavoriteCats = []string{}
	return nil
}

func (r *PublicUserRepository) FindByID(ctx context.Context, id string) (*models.PublicUser, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *PublicUserRepository) FindByUsername(ctx context.Context, username string) (*models.PublicUser, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *PublicUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.M{"username": username})
}

func (r *PublicUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email})
}

func (r *PublicUserRepository) AddFavorite(ctx context.Context, userID, catID string) error {
	uid, err := objectID(userID)
	if err != nil {
		return err
	}
	cid, err := objectID(catID)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": uid, "favoriteCats": bson.M{"$ne": cid}},
		bson.M{"$push": bson.M{"favoriteCats": cid}},
	)
	if err != nil {
		return fmt.Errorf("adding favorite: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	found, err := r.exists(ctx, bson.M{"_id": uid})
	if err != nil {
		return err
	}
	if found {
		return store.ErrDuplicate
	}
	return store.ErrNotFound
}

func (r *PublicUserRepository) RemoveFavorite(ctx context.Context, userID, catID string) error {
	uid, err := objectID(userID)
	if err != nil {
		return err
	}

	update := bson.M{"$pull": bson.M{"favoriteCats": bson.M{"$in": objectIDs([]string{catID})}}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": uid}, update)
	if err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *PublicUserRepository) RemoveFavoriteEverywhere(ctx context.Context, catID string) error {
	cid, err := objectID(catID)
	if err != nil {
		return nil
	}

	_, err = r.coll.UpdateMany(ctx,
		bson.M{"favoriteCats": cid},
		bson.M{"$pull": bson.M{"favoriteCats": cid}},
	)
	if err != nil {
		return fmt.Errorf("removing favorites for cat: %w", err)
	}
	return nil
}

func (r *PublicUserRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("counting public users: %w", err)
	}
	return n > 0, nil
}

func (r *PublicUserRepository) findOne(ctx context.Context, filter bson.M) (*models.PublicUser, error) {
	var doc publicUserDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err = notFound(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying public user: %w", err)
	}
	return doc.toModel(), nil
}
