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

type codeDoc struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	Code      string         `bson:"code"`
	Used      bool           `bson:"used"`
	UsedBy    *bson.ObjectID `bson:"usedBy,omitempty"`
	CreatedAt time.Time      `bson:"createdAt"`
}

type RegistrationCodeRepository struct {
	coll *mongo.Collection
}

func (r *RegistrationCodeRepository) Create(ctx context.Context, rc *models.RegistrationCode) error {
	doc := codeDoc{
		ID:        bson.NewObjectID(),
		Code:      rc.Code,
		Used:      rc.Used,
		CreatedAt: now(),
	}
	if rc.UsedBy != nil {
		usedBy, err := objectID(*rc.UsedBy)
		if err != nil {
			return fmt.Errorf("creating registration code: invalid user id %q", *rc.UsedBy)
		}
		doc.UsedBy = &usedBy
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("creating registration code: %w", err)
	}

	rc.ID = doc.ID.Hex()
	rc.CreatedAt = doc.CreatedAt
	return nil
}

func (r *RegistrationCodeRepository) FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error) {
	var doc codeDoc
	if err := r.coll.FindOne(ctx, bson.M{"code": code}).Decode(&doc); err != nil {
		if err = notFound(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying registration code: %w", err)
	}

	rc := &models.RegistrationCode{
		ID:        doc.ID.Hex(),
		Code:      doc.Code,
		Used:      doc.Used,
		CreatedAt: doc.CreatedAt,
	}
	if doc.UsedBy != nil {
		usedBy := doc.UsedBy.Hex()
		rc.UsedBy = &usedBy
	}
	return rc, nil
}

func (r *RegistrationCodeRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"code": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking registration code: %w", err)
	}
	return n > 0, nil
}

func (r *RegistrationCodeRepository) MarkUsed(ctx context.Context, code, userID string) error {
	uid, err := objectID(userID)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"code": code, "used": false},
		bson.M{"$set": bson.M{"used": true, "usedBy": uid}},
	)
	if err != nil {
		return fmt.Errorf("marking registration code used: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
