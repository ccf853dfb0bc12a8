package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close(context.Background()) })
	return database
}

func TestPathFromURL(t *testing.T) {
	tests := map[string]string{
		"sqlite://./data/cats.db": "./data/cats.db",
		"file:/tmp/cats.db":       "/tmp/cats.db",
		"data/cats.db":            "data/cats.db",
	}
	for in, want := range tests {
		if got := PathFromURL(in); got != want {
			t.Fatalf("PathFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserCreateRejectsDuplicateUsername(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if err := database.Users().Create(ctx, &models.User{Username: "alice", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := database.Users().Create(ctx, &models.User{Username: "alice", PasswordHash: "h"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("Create() error = %v, want ErrDuplicate", err)
	}
}

func TestUserDeleteByID(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := &models.User{Username: "alice", PasswordHash: "h"}
	if err := database.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := database.Users().DeleteByID(ctx, user.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := database.Users().FindByID(ctx, user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindByID() error = %v, want ErrNotFound", err)
	}
	if err := database.Users().DeleteByID(ctx, user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("DeleteByID() again error = %v, want ErrNotFound", err)
	}
}

func TestRegistrationCodeMarkUsedOnlyOnce(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if err := database.RegistrationCodes().Create(ctx, &models.RegistrationCode{Code: "ABC123"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	user := &models.User{Username: "staff", PasswordHash: "h"}
	if err := database.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := database.RegistrationCodes().MarkUsed(ctx, "ABC123", user.ID); err != nil {
		t.Fatalf("MarkUsed() error = %v", err)
	}
	if err := database.RegistrationCodes().MarkUsed(ctx, "ABC123", user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second MarkUsed() error = %v, want ErrNotFound", err)
	}

	found, err := database.Users().FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(found.UsedRegistrationCodes) != 1 || found.UsedRegistrationCodes[0] != "ABC123" {
		t.Fatalf("UsedRegistrationCodes = %v, want [ABC123]", found.UsedRegistrationCodes)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Users().Create(ctx, &models.User{Username: "ghost", PasswordHash: "h"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	exists, err := database.Users().ExistsByUsername(ctx, "ghost")
	if err != nil {
		t.Fatalf("ExistsByUsername() error = %v", err)
	}
	if exists {
		t.Fatal("user created inside a rolled back transaction was persisted")
	}
}

func TestFavoritesKeepInsertionOrderAndRejectDuplicates(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	users := database.PublicUsers()

	u := &models.PublicUser{Username: "bob", Email: "bob@example.com", PasswordHash: "h"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, catID := range []string{"c2", "c1"} {
		if err := users.AddFavorite(ctx, u.ID, catID); err != nil {
			t.Fatalf("AddFavorite(%s) error = %v", catID, err)
		}
	}
	if err := users.AddFavorite(ctx, u.ID, "c1"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("AddFavorite() duplicate error = %v, want ErrDuplicate", err)
	}
	if err := users.AddFavorite(ctx, "missing", "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddFavorite() missing user error = %v, want ErrNotFound", err)
	}

	found, err := users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(found.FavoriteCats) != 2 || found.FavoriteCats[0] != "c2" || found.FavoriteCats[1] != "c1" {
		t.Fatalf("FavoriteCats = %v, want [c2 c1]", found.FavoriteCats)
	}

	if err := users.RemoveFavorite(ctx, u.ID, "c9"); err != nil {
		t.Fatalf("RemoveFavorite() of absent cat error = %v", err)
	}
	if err := users.RemoveFavoriteEverywhere(ctx, "c2"); err != nil {
		t.Fatalf("RemoveFavoriteEverywhere() error = %v", err)
	}
	found, _ = users.FindByID(ctx, u.ID)
	if len(found.FavoriteCats) != 1 || found.FavoriteCats[0] != "c1" {
		t.Fatalf("FavoriteCats = %v, want [c1]", found.FavoriteCats)
	}
}

func TestCatPhotosAndCascadeDelete(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	cat := &models.Cat{Name: "Tom", Age: 3, Breed: "Siamese"}
	if err := database.Cats().Create(ctx, cat); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	photo := &models.Photo{CatID: cat.ID, URL: "uploads/cat-1-1.jpg"}
	if err := database.Photos().Create(ctx, photo); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := database.Cats().SetPhotos(ctx, cat.ID, []string{photo.ID}); err != nil {
		t.Fatalf("SetPhotos() error = %v", err)
	}

	all, err := database.Cats().FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(all) != 1 || len(all[0].PhotoIDs) != 1 || all[0].PhotoIDs[0] != photo.ID {
		t.Fatalf("FindAll() = %+v, want one cat with photo %s", all, photo.ID)
	}

	if err := database.Cats().DeleteByID(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := database.Cats().FindByID(ctx, cat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindByID() error = %v, want ErrNotFound", err)
	}
	if err := database.Cats().DeleteByID(ctx, cat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second DeleteByID() error = %v, want ErrNotFound", err)
	}

	n, err := database.Photos().DeleteByCat(ctx, cat.ID)
	if err != nil {
		t.Fatalf("DeleteByCat() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteByCat() = %d, want 1", n)
	}
}

func TestFindByIDsPreservesOrder(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	a := &models.Cat{Name: "A"}
	b := &models.Cat{Name: "B"}
	for _, c := range []*models.Cat{a, b} {
		if err := database.Cats().Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	cats, err := database.Cats().FindByIDs(ctx, []string{b.ID, "gone", a.ID})
	if err != nil {
		t.Fatalf("FindByIDs() error = %v", err)
	}
	if len(cats) != 2 || cats[0].ID != b.ID || cats[1].ID != a.ID {
		t.Fatalf("FindByIDs() returned %d cats in wrong order", len(cats))
	}
}

func TestMessageReplyRoundTrip(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	m := &models.Message{SenderID: "u1", Content: "Is Tom still available?"}
	if err := database.Messages().Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m.SetReply("Yes!", "staff1")
	if err := database.Messages().Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := database.Messages().FindByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !got.Replied || got.ReplyContent == nil || *got.ReplyContent != "Yes!" {
		t.Fatalf("reply = %v/%v, want replied with Yes!", got.Replied, got.ReplyContent)
	}

	got.ClearReply()
	if err := database.Messages().Save(ctx, got); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	byUser, err := database.Messages().FindBySender(ctx, "u1")
	if err != nil {
		t.Fatalf("FindBySender() error = %v", err)
	}
	if len(byUser) != 1 || byUser[0].Replied || byUser[0].CharityWorker != nil {
		t.Fatalf("FindBySender() = %+v, want one unreplied message", byUser)
	}
}
