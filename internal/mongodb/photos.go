package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"catcharity/internal/models"
)

type photoDoc struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Cat         bson.ObjectID `bson:"cat"`
	URL         string        `bson:"url"`
	Description string        `bson:"description"`
	CreatedAt   time.Time     `bson:"createdAt"`
}

type PhotoRepository struct {
	coll *mongo.Collection
}

func (r *PhotoRepository) Create(ctx context.Context, p *models.Photo) error {
	catID, err := objectID(p.CatID)
	if err != nil {
		return fmt.Errorf("creating photo: invalid cat id %q", p.CatID)
	}

	doc := photoDoc{
		ID:          bson.NewObjectID(),
		Cat:         catID,
		URL:         p.URL,
		Description: p.Description,
		CreatedAt:   now(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("creating photo: %w", err)
	}

	p.ID = doc.ID.Hex()
	p.CreatedAt = doc.CreatedAt
	return nil
}

func (r *PhotoRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Photo, error) {
	photos := make(map[string]*models.Photo, len(ids))
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return photos, nil
	}

	list, err := r.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		photos[p.ID] = p
	}
	return photos, nil
}

func (r *PhotoRepository) FindByCat(ctx context.Context, catID string) ([]*models.Photo, error) {
	oid, err := objectID(catID)
	if err != nil {
		return []*models.Photo{}, nil
	}
	return r.find(ctx, bson.M{"cat": oid})
}

func (r *PhotoRepository) DeleteByCat(ctx context.Context, catID string) (int64, error) {
	oid, err := objectID(catID)
	if err != nil {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"cat": oid})
	if err != nil {
		return 0, fmt.Errorf("deleting cat photos: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *PhotoRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return 0, fmt.Errorf("deleting photos: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *PhotoRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"url": url}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking photo url: %w", err)
	}
	return n > 0, nil
}

func (r *PhotoRepository) find(ctx context.Context, filter bson.M) ([]*models.Photo, error) {
	cursor, err := r.coll.Find(ctx, filter, oldestFirst())
	if err != nil {
		return nil, fmt.Errorf("querying photos: %w", err)
	}

	var docs []photoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding photos: %w", err)
	}

	photos := make([]*models.Photo, len(docs))
	for i, d := range docs {
		photos[i] = &models.Photo{
			ID:          d.ID.Hex(),
			CatID:       d.Cat.Hex(),
			URL:         d.URL,
			Description: d.Description,
			CreatedAt:   d.CreatedAt,
		}
	}
	return photos, nil
}
