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

type userDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Username  string        `bson:"username"`
	Password  string        `bson:"password"`
	CreatedAt time.Time     `bson:"createdAt"`
}

type UserRepository struct {
	coll  *mongo.Collection
	codes *mongo.Collection
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	doc := userDoc{
		ID:        bson.NewObjectID(),
		Username:  u.Username,
		Password:  u.PasswordHash,
		CreatedAt: now(),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("creating user: %w", err)
	}

	u.ID = doc.ID.Hex()
	u.CreatedAt = doc.CreatedAt
	if u.UsedRegistrationCodes == nil {
		u.UsedRegistrationCodes = []string{}
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"username": username}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) DeleteByID(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err = notFound(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	cursor, err := r.codes.Find(ctx, bson.M{"usedBy": doc.ID}, oldestFirst())
	if err != nil {
		return nil, fmt.Errorf("querying used registration codes: %w", err)
	}
	var codes []codeDoc
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, fmt.Errorf("decoding used registration codes: %w", err)
	}

	used := make([]string, len(codes))
	for i, c := range codes {
		used[i] = c.Code
	}

	return &models.User{
		ID:                    doc.ID.Hex(),
		Username:              doc.Username,
		PasswordHash:          doc.Password,
		UsedRegistrationCodes: used,
		CreatedAt:             doc.CreatedAt,
	}, nil
}
