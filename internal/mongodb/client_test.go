package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

// newTestClient connects to the server named by MONGODB_URI using a
// throwaway database. Tests are skipped when the variable is unset.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	name := "catcharity_test_" + bson.NewObjectID().Hex()
	c, err := New(ctx, uri, name)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = c.db.Drop(context.Background())
		_ = c.Close(context.Background())
	})
	return c
}

func TestObjectIDRejectsInvalidHex(t *testing.T) {
	if _, err := objectID("not-an-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("objectID() error = %v, want ErrNotFound", err)
	}
	if got := objectIDs([]string{"bad", bson.NewObjectID().Hex()}); len(got) != 1 {
		t.Fatalf("objectIDs() kept %d ids, want 1", len(got))
	}
}

func TestPublicUserFavorites(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	users := c.PublicUsers()

	u := &models.PublicUser{Username: "bob", Email: "bob@example.com", PasswordHash: "h"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	dup := &models.PublicUser{Username: "bob", Email: "other@example.com", PasswordHash: "h"}
	if err := users.Create(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("Create() duplicate error = %v, want ErrDuplicate", err)
	}

	catID := bson.NewObjectID().Hex()
	if err := users.AddFavorite(ctx, u.ID, catID); err != nil {
		t.Fatalf("AddFavorite() error = %v", err)
	}
	if err := users.AddFavorite(ctx, u.ID, catID); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("AddFavorite() duplicate error = %v, want ErrDuplicate", err)
	}
	if err := users.AddFavorite(ctx, bson.NewObjectID().Hex(), catID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddFavorite() missing user error = %v, want ErrNotFound", err)
	}

	if err := users.RemoveFavoriteEverywhere(ctx, catID); err != nil {
		t.Fatalf("RemoveFavoriteEverywhere() error = %v", err)
	}
	found, err := users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(found.FavoriteCats) != 0 {
		t.Fatalf("FavoriteCats = %v, want empty", found.FavoriteCats)
	}
}

func TestRegistrationCodeMarkUsedOnlyOnce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.RegistrationCodes().Create(ctx, &models.RegistrationCode{Code: "ABC123"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	user := &models.User{Username: "staff", PasswordHash: "h"}
	if err := c.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := c.RegistrationCodes().MarkUsed(ctx, "ABC123", user.ID); err != nil {
		t.Fatalf("MarkUsed() error = %v", err)
	}
	if err := c.RegistrationCodes().MarkUsed(ctx, "ABC123", user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second MarkUsed() error = %v, want ErrNotFound", err)
	}

	found, err := c.Users().FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(found.UsedRegistrationCodes) != 1 || found.UsedRegistrationCodes[0] != "ABC123" {
		t.Fatalf("UsedRegistrationCodes = %v, want [ABC123]", found.UsedRegistrationCodes)
	}
}

func TestCatPhotosAndMessages(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	cat := &models.Cat{Name: "Tom", Age: 2}
	if err := c.Cats().Create(ctx, cat); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	photo := &models.Photo{CatID: cat.ID, URL: "uploads/cat-1-1.png"}
	if err := c.Photos().Create(ctx, photo); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Cats().SetPhotos(ctx, cat.ID, []string{photo.ID}); err != nil {
		t.Fatalf("SetPhotos() error = %v", err)
	}

	got, err := c.Cats().FindByID(ctx, cat.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(got.PhotoIDs) != 1 || got.PhotoIDs[0] != photo.ID {
		t.Fatalf("PhotoIDs = %v, want [%s]", got.PhotoIDs, photo.ID)
	}

	sender := bson.NewObjectID().Hex()
	m := &models.Message{SenderID: sender, Content: "hi"}
	if err := c.Messages().Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	m.SetReply("hello", bson.NewObjectID().Hex())
	if err := c.Messages().Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	m.ClearReply()
	if err := c.Messages().Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	list, err := c.Messages().FindBySender(ctx, sender)
	if err != nil {
		t.Fatalf("FindBySender() error = %v", err)
	}
	if len(list) != 1 || list[0].Replied || list[0].ReplyContent != nil || list[0].CharityWorker != nil {
		t.Fatalf("FindBySender() = %+v, want one cleared message", list)
	}
}
