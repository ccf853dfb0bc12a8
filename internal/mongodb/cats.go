package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

type catDoc struct {
	ID        bson.ObjectID   `bson:"_id,omitempty"`
	Name      string          `bson:"name"`
	Age       int             `bson:"age"`
	Breed     string          `bson:"breed"`
	Photos    []bson.ObjectID `bson:"photos"`
	CreatedAt time.Time       `bson:"createdAt"`
	UpdatedAt time.Time       `bson:"updatedAt"`
}

func (d *catDoc) toModel() *models.Cat {
	return &models.Cat{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Age:       d.Age,
		Breed:     d.Breed,
		PhotoIDs:  hexIDs(d.Photos),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type CatRepository struct {
	coll *mongo.Collection
}

func (r *CatRepository) Create(ctx context.Context, c *models.Cat) error {
	ts := now()
	doc := catDoc{
		ID:        bson.NewObjectID(),
		Name:      c.Name,
		Age:       c.Age,
		Breed:     c.Breed,
		Photos:    []bson.ObjectID{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("creating cat: %w", err)
	}

	c.ID = doc.ID.Hex()
	c.PhotoIDs = []string{}
	c.CreatedAt = ts
	c.UpdatedAt = ts
	return nil
}

func (r *CatRepository) FindByID(ctx context.Context, id string) (*models.Cat, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc catDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err = notFound(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying cat: %w", err)
	}
	return doc.toModel(), nil
}

func (r *CatRepository) FindAll(ctx context.Context) ([]*models.Cat, error) {
	return r.find(ctx, bson.M{})
}

func (r *CatRepository) FindByIDs(ctx context.Context, ids []string) ([]*models.Cat, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []*models.Cat{}, nil
	}

	found, err := r.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
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
	oid, err := objectID(c.ID)
	if err != nil {
		return err
	}

	c.UpdatedAt = now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"name":      c.Name,
		"age":       c.Age,
		"breed":     c.Breed,
		"updatedAt": c.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("updating cat: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *CatRepository) SetPhotos(ctx context.Context, catID string, photoIDs []string) error {
	oid, err := objectID(catID)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"photos":    objectIDs(photoIDs),
		"updatedAt": now(),
	}})
	if err != nil {
		return fmt.Errorf("setting cat photos: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *CatRepository) DeleteByID(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting cat: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *CatRepository) find(ctx context.Context, filter bson.M) ([]*models.Cat, error) {
	cursor, err := r.coll.Find(ctx, filter, oldestFirst())
	if err != nil {
		return nil, fmt.Errorf("querying cats: %w", err)
	}

	var docs []catDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding cats: %w", err)
	}

	cats := make([]*models.Cat, len(docs))
	for i := range docs {
		cats[i] = docs[i].toModel()
	}
	return cats, nil
}
