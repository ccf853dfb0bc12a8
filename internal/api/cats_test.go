package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catcharity/internal/constants"
	"catcharity/internal/models"
	"catcharity/internal/store"
)

func createCatWithPhoto(t *testing.T, env *testEnv, token, name string) *models.CatView {
	t.Helper()

	rr := env.doMultipart(t, http.MethodPost, "/newcats", map[string]string{
		"name":        name,
		"age":         "3",
		"breed":       "Tabby",
		"description": "Sleeping in the sun",
	}, encodePNG(t, 4, 4), token)
	expectStatus(t, rr, http.StatusOK)
	return decodeBody[*models.CatView](t, rr)
}

func TestCreateCatWithPhoto(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	cat := createCatWithPhoto(t, env, token, "Whiskers")

	if cat.Name != "Whiskers" || cat.Age != 3 || cat.Breed != "Tabby" {
		t.Fatalf("cat = %+v, want Whiskers/3/Tabby", cat)
	}
	if len(cat.Photos) != 1 {
		t.Fatalf("len(cat.Photos) = %d, want 1", len(cat.Photos))
	}
	if !strings.HasPrefix(cat.ImageURL, "uploads/cat-") || cat.ImageURL != cat.Photos[0].URL {
		t.Fatalf("imageUrl = %q, photo url = %q", cat.ImageURL, cat.Photos[0].URL)
	}
	if cat.Photos[0].Description != "Sleeping in the sun" || cat.Photos[0].CatID != cat.ID {
		t.Fatalf("photo = %+v", cat.Photos[0])
	}

	filename := strings.TrimPrefix(cat.ImageURL, "uploads/")
	if _, err := os.Stat(filepath.Join(env.uploadDir, filename)); err != nil {
		t.Fatalf("Stat(stored photo) error = %v", err)
	}

	rr := env.do(t, http.MethodGet, "/catslist", "", "")
	expectStatus(t, rr, http.StatusOK)
	list := decodeBody[[]*models.CatView](t, rr)
	if len(list) != 1 || list[0].ImageURL != cat.ImageURL {
		t.Fatalf("catslist = %+v, want one cat with imageUrl %q", list, cat.ImageURL)
	}
}

func TestCreateCatWithoutPhotoHasEmptyImageURL(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	rr := env.do(t, http.MethodPost, "/newcats", `{"name":"Tom","age":2,"breed":"Siamese"}`, token)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodGet, "/catslist", "", "")
	expectStatus(t, rr, http.StatusOK)

	// Checked on the raw body so a missing key is not mistaken for "".
	if !strings.Contains(rr.Body.String(), `"imageUrl":""`) {
		t.Fatalf("body = %s, want imageUrl empty string", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"photos":[]`) {
		t.Fatalf("body = %s, want empty photos list", rr.Body.String())
	}
}

func TestCreateCatSanitizesText(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	rr := env.do(t, http.MethodPost, "/newcats", `{"name":"<script>alert(1)</script>Tom & Jerry","breed":"<b>Tabby</b>"}`, token)
	expectStatus(t, rr, http.StatusOK)

	cat := decodeBody[models.CatView](t, rr)
	if cat.Name != "Tom & Jerry" || cat.Breed != "Tabby" {
		t.Fatalf("name = %q, breed = %q", cat.Name, cat.Breed)
	}
}

func TestCreateCatRejectsBadUploads(t *testing.T) {
	oversized := append(encodePNG(t, 2, 2), bytes.Repeat([]byte{0}, 8<<10)...)

	tests := []struct {
		name   string
		photo  []byte
		status int
		code   string
	}{
		{name: "text", photo: []byte("just some text, not an image"), status: http.StatusBadRequest, code: constants.ErrCodeUnsupportedMediaType},
		{name: "executable", photo: append([]byte("MZ"), bytes.Repeat([]byte{0x90}, 64)...), status: http.StatusBadRequest, code: constants.ErrCodeUnsupportedMediaType},
		{name: "oversized", photo: oversized, status: http.StatusRequestEntityTooLarge, code: constants.ErrCodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnvWithUploadLimit(t, 4<<10)
			_, token := env.staff(t, "admin")

			rr := env.doMultipart(t, http.MethodPost, "/newcats", map[string]string{"name": "Tom"}, tt.photo, token)
			expectError(t, rr, tt.status, tt.code)

			if files := env.uploadedFiles(t); len(files) != 0 {
				t.Fatalf("upload dir = %v, want empty", files)
			}
			cats, err := env.store.Cats().FindAll(context.Background())
			if err != nil {
				t.Fatalf("FindAll() error = %v", err)
			}
			if len(cats) != 0 {
				t.Fatalf("len(cats) = %d, want 0", len(cats))
			}
		})
	}
}

func TestCreateCatRejectsNonNumericAge(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	rr := env.doMultipart(t, http.MethodPost, "/newcats", map[string]string{"name": "Tom", "age": "old"}, nil, token)
	expectError(t, rr, http.StatusBadRequest, constants.ErrCodeInvalidRequest)
}

func TestUpdateCatReplacesPhoto(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")
	cat := createCatWithPhoto(t, env, token, "Whiskers")
	oldFile := strings.TrimPrefix(cat.ImageURL, "uploads/")

	rr := env.doMultipart(t, http.MethodPut, "/catslist/edit/"+cat.ID, map[string]string{
		"name": "Mr Whiskers",
		"age":  "4",
	}, encodePNG(t, 3, 3), token)
	expectStatus(t, rr, http.StatusOK)

	updated := decodeBody[models.CatView](t, rr)
	if updated.Name != "Mr Whiskers" || updated.Age != 4 || updated.Breed != "" {
		t.Fatalf("updated = %+v, want name/age overwritten and breed cleared", updated)
	}
	if len(updated.Photos) != 1 || updated.ImageURL == cat.ImageURL {
		t.Fatalf("photos = %+v, want a single new photo", updated.Photos)
	}

	photos, err := env.store.Photos().FindByCat(context.Background(), cat.ID)
	if err != nil {
		t.Fatalf("FindByCat() error = %v", err)
	}
	if len(photos) != 1 || photos[0].URL != updated.ImageURL {
		t.Fatalf("photos = %+v, want only %q", photos, updated.ImageURL)
	}

	if _, err := os.Stat(filepath.Join(env.uploadDir, oldFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat(old photo) error = %v, want not exist", err)
	}
}

func TestUpdateCatKeepsPhotosWithoutNewFile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")
	cat := createCatWithPhoto(t, env, token, "Whiskers")

	rr := env.do(t, http.MethodPut, "/catslist/edit/"+cat.ID, `{"name":"Renamed"}`, token)
	expectStatus(t, rr, http.StatusOK)

	updated := decodeBody[models.CatView](t, rr)
	if updated.Name != "Renamed" || updated.ImageURL != cat.ImageURL {
		t.Fatalf("updated = %+v, want photo kept", updated)
	}
}

func TestUpdateCatUnknownID(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	rr := env.doMultipart(t, http.MethodPut, "/catslist/edit/missing", map[string]string{"name": "Tom"}, encodePNG(t, 2, 2), token)
	expectError(t, rr, http.StatusNotFound, constants.ErrCodeNotFound)

	if files := env.uploadedFiles(t); len(files) != 0 {
		t.Fatalf("upload dir = %v, want empty", files)
	}
}

func TestDeleteCatCascades(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")
	fan, _ := env.publicUser(t, "fan")
	cat := createCatWithPhoto(t, env, token, "Whiskers")
	ctx := context.Background()

	if err := env.store.PublicUsers().AddFavorite(ctx, fan.ID, cat.ID); err != nil {
		t.Fatalf("AddFavorite() error = %v", err)
	}

	rr := env.do(t, http.MethodDelete, "/catslist/delete/"+cat.ID, "", token)
	expectStatus(t, rr, http.StatusOK)
	if msg := decodeBody[MessageResponse](t, rr); msg.Message != "Cat deleted successfully" {
		t.Fatalf("message = %q", msg.Message)
	}

	if _, err := env.store.Cats().FindByID(ctx, cat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Cats().FindByID() error = %v, want ErrNotFound", err)
	}
	photos, err := env.store.Photos().FindByCat(ctx, cat.ID)
	if err != nil {
		t.Fatalf("FindByCat() error = %v", err)
	}
	if len(photos) != 0 {
		t.Fatalf("len(photos) = %d, want 0", len(photos))
	}
	user, err := env.store.PublicUsers().FindByID(ctx, fan.ID)
	if err != nil {
		t.Fatalf("PublicUsers().FindByID() error = %v", err)
	}
	if len(user.FavoriteCats) != 0 {
		t.Fatalf("favoriteCats = %v, want empty", user.FavoriteCats)
	}
	if files := env.uploadedFiles(t); len(files) != 0 {
		t.Fatalf("upload dir = %v, want empty", files)
	}

	rr = env.do(t, http.MethodGet, "/catslist/"+cat.ID, "", "")
	expectError(t, rr, http.StatusNotFound, constants.ErrCodeNotFound)

	rr = env.do(t, http.MethodDelete, "/catslist/delete/"+cat.ID, "", token)
	expectError(t, rr, http.StatusNotFound, constants.ErrCodeNotFound)
}

func TestGetCat(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")
	cat := createCatWithPhoto(t, env, token, "Whiskers")

	rr := env.do(t, http.MethodGet, "/catslist/"+cat.ID, "", "")
	expectStatus(t, rr, http.StatusOK)

	got := decodeBody[models.CatView](t, rr)
	if got.ID != cat.ID || got.ImageURL != cat.ImageURL {
		t.Fatalf("got = %+v, want %+v", got, cat)
	}
}

var errTransient = errors.New("transient transaction error")

// retryingStore rolls back the first successful attempt of every transaction
// and runs the callback again, the way a driver retries on transient errors.
type retryingStore struct {
	store.Store
	attempts int
}

func (s *retryingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	for first := true; ; first = false {
		err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
			s.attempts++
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if first {
				return errTransient
			}
			return nil
		})
		if first && errors.Is(err, errTransient) {
			continue
		}
		return err
	}
}

func TestCatMutationsSurviveTransactionRetry(t *testing.T) {
	retrying := &retryingStore{}
	env := newTestEnvWithStore(t, func(st store.Store) store.Store {
		retrying.Store = st
		return retrying
	})
	_, token := env.staff(t, "admin")
	ctx := context.Background()

	cat := createCatWithPhoto(t, env, token, "Whiskers")
	if len(cat.Photos) != 1 {
		t.Fatalf("photos = %+v, want exactly one", cat.Photos)
	}
	oldFile := strings.TrimPrefix(cat.ImageURL, "uploads/")

	rr := env.doMultipart(t, http.MethodPut, "/catslist/edit/"+cat.ID, map[string]string{"name": "Whiskers"}, encodePNG(t, 3, 3), token)
	expectStatus(t, rr, http.StatusOK)
	updated := decodeBody[models.CatView](t, rr)
	if len(updated.Photos) != 1 || updated.ImageURL == cat.ImageURL {
		t.Fatalf("photos = %+v, want a single new photo", updated.Photos)
	}

	photos, err := env.store.Photos().FindByCat(ctx, cat.ID)
	if err != nil {
		t.Fatalf("FindByCat() error = %v", err)
	}
	if len(photos) != 1 || photos[0].URL != updated.ImageURL {
		t.Fatalf("photos = %+v, want only %q", photos, updated.ImageURL)
	}
	if _, err := os.Stat(filepath.Join(env.uploadDir, oldFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat(old photo) error = %v, want not exist", err)
	}
	if files := env.uploadedFiles(t); len(files) != 1 {
		t.Fatalf("upload dir = %v, want only the new photo", files)
	}

	rr = env.do(t, http.MethodDelete, "/catslist/delete/"+cat.ID, "", token)
	expectStatus(t, rr, http.StatusOK)
	if files := env.uploadedFiles(t); len(files) != 0 {
		t.Fatalf("upload dir = %v, want empty", files)
	}

	// create, update and delete each ran twice
	if retrying.attempts != 6 {
		t.Fatalf("attempts = %d, want 6", retrying.attempts)
	}
}
