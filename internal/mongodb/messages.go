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

type messageDoc struct {
	ID            bson.ObjectID  `bson:"_id,omitempty"`
	Sender        bson.ObjectID  `bson:"sender"`
	Content       string         `bson:"content"`
	Replied       bool           `bson:"replied"`
	ReplyContent  *string        `bson:"replyContent,omitempty"`
	CharityWorker *bson.ObjectID `bson:"charityWorker,omitempty"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
}

func (d *messageDoc) toModel() *models.Message {
	m := &models.Message{
		ID:           d.ID.Hex(),
		SenderID:     d.Sender.Hex(),
		Content:      d.Content,
		Replied:      d.Replied,
		ReplyContent: d.ReplyContent,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.CharityWorker != nil {
		worker := d.CharityWorker.Hex()
		m.CharityWorker = &worker
	}
	return m
}

type MessageRepository struct {
	coll *mongo.Collection
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	sender, err := objectID(m.SenderID)
	if err != nil {
		return fmt.Errorf("creating message: invalid sender id %q", m.SenderID)
	}

	ts := now()
	doc := messageDoc{
		ID:           bson.NewObjectID(),
		Sender:       sender,
		Content:      m.Content,
		Replied:      m.Replied,
		ReplyContent: m.ReplyContent,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("creating message: %w", err)
	}

	m.ID = doc.ID.Hex()
	m.CreatedAt = ts
	m.UpdatedAt = ts
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc messageDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err = notFound(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MessageRepository) FindBySender(ctx context.Context, senderID string) ([]*models.Message, error) {
	oid, err := objectID(senderID)
	if err != nil {
		return []*models.Message{}, nil
	}
	return r.find(ctx, bson.M{"sender": oid})
}

func (r *MessageRepository) FindAll(ctx context.Context) ([]*models.Message, error) {
	return r.find(ctx, bson.M{})
}

func (r *MessageRepository) Save(ctx context.Context, m *models.Message) error {
	oid, err := objectID(m.ID)
	if err != nil {
		return err
	}

	m.UpdatedAt = now()
	set := bson.M{"replied": m.Replied, "updatedAt": m.UpdatedAt}
	unset := bson.M{}

	if m.ReplyContent != nil {
		set["replyContent"] = *m.ReplyContent
	} else {
		unset["replyContent"] = ""
	}
	if m.CharityWorker != nil {
		worker, err := objectID(*m.CharityWorker)
		if err != nil {
			return fmt.Errorf("updating message: invalid charity worker id %q", *m.CharityWorker)
		}
		set["charityWorker"] = worker
	} else {
		unset["charityWorker"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M) ([]*models.Message, error) {
	cursor, err := r.coll.Find(ctx, filter, oldestFirst())
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}

	messages := make([]*models.Message, len(docs))
	for i := range docs {
		messages[i] = docs[i].toModel()
	}
	return messages, nil
}
