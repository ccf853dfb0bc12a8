// Package mongodb implements store.Store on top of MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"catcharity/internal/store"
)

// Collection names match the ones the charity's existing data uses.
const (
	usersCollection             = "users"
	publicUsersCollection       = "publicusers"
	catsCollection              = "cats"
	photosCollection            = "photos"
	messagesCollection          = "messages"
	registrationCodesCollection = "registrationcodes"
)

// Client wraps mongo.Client and exposes the repositories.
type Client struct {
	client *mongo.Client
	db     *mongo.Database

	// transactions is false on standalone servers, which reject them.
	transactions bool
}

var _ store.Store = (*Client)(nil)

// New connects to MongoDB, verifies the connection and ensures indexes.
func New(ctx context.Context, uri, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	c := &Client{client: client, db: client.Database(database)}

	c.transactions, err = c.supportsTransactions(pingCtx)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	if !c.transactions {
		slog.Warn("MongoDB server is standalone; multi-document writes run without transactions", "component", "mongodb")
	}

	if err := c.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return c, nil
}

// supportsTransactions reports whether the server is a replica set member or
// a mongos router.
func (c *Client) supportsTransactions(ctx context.Context) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := c.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, fmt.Errorf("querying server topology: %w", err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		publicUsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		},
		registrationCodesCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "usedBy", Value: 1}}},
		},
		photosCollection: {
			{Keys: bson.D{{Key: "cat", Value: 1}}},
			{Keys: bson.D{{Key: "url", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := c.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating %s indexes: %w", name, err)
		}
	}
	return nil
}

func (c *Client) Users() store.UserRepository {
	return &UserRepository{
		coll:  c.db.Collection(usersCollection),
		codes: c.db.Collection(registrationCodesCollection),
	}
}

func (c *Client) PublicUsers() store.PublicUserRepository {
	return &PublicUserRepository{coll: c.db.Collection(publicUsersCollection)}
}

func (c *Client) Cats() store.CatRepository {
	return &CatRepository{coll: c.db.Collection(catsCollection)}
}

func (c *Client) Photos() store.PhotoRepository {
	return &PhotoRepository{coll: c.db.Collection(photosCollection)}
}

func (c *Client) Messages() store.MessageRepository {
	return &MessageRepository{coll: c.db.Collection(messagesCollection)}
}

func (c *Client) RegistrationCodes() store.RegistrationCodeRepository {
	return &RegistrationCodeRepository{coll: c.db.Collection(registrationCodesCollection)}
}

// InTx runs fn inside a session transaction. Operations take part in the
// transaction through the session bound to the callback's context. On a
// standalone server fn runs without a transaction.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if !c.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, c)
	}

	sess, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, c)
	})
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
