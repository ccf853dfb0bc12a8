package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catcharity/internal/cache"
	"catcharity/internal/models"
	"catcharity/internal/store"
	"catcharity/internal/upload"
)

type CatHandler struct {
	store   store.Store
	uploads *upload.Service
	catalog *cache.CatalogCache
}

func NewCatHandler(st store.Store, uploads *upload.Service, catalog *cache.CatalogCache) *CatHandler {
	return &CatHandler{store: st, uploads: uploads, catalog: catalog}
}

// POST /newcats
func (h *CatHandler) Create(w http.ResponseWriter, r *http.Request) {
	form, ok := readCatForm(w, r, h.uploads.MaxUploadBytes())
	if !ok {
		return
	}
	defer form.Close()

	stored, ok := h.savePhoto(w, r, form)
	if !ok {
		return
	}

	cat := &models.Cat{Name: form.Name, Age: form.Age, Breed: form.Breed}
	photos := map[string]*models.Photo{}
	err := h.store.InTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		// The callback may be retried.
		clear(photos)
		cat.PhotoIDs = nil

		if err := tx.Cats().Create(ctx, cat); err != nil {
			return err
		}
		if stored == nil {
			return nil
		}

		photo := &models.Photo{CatID: cat.ID, URL: stored.URL, Description: form.Description}
		if err := tx.Photos().Create(ctx, photo); err != nil {
			return err
		}
		cat.PhotoIDs = []string{photo.ID}
		photos[photo.ID] = photo
		return tx.Cats().SetPhotos(ctx, cat.ID, cat.PhotoIDs)
	})
	if err != nil {
		if stored != nil {
			removeUploads(h.uploads, []string{stored.URL})
		}
		slog.Error("error creating cat", "error", err)
		internalError(w)
		return
	}

	h.catalog.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, models.Populate(cat, photos))
}

// PUT /catslist/edit/{id}
func (h *CatHandler) Update(w http.ResponseWriter, r *http.Request) {
	catID := chi.URLParam(r, "id")

	form, ok := readCatForm(w, r, h.uploads.MaxUploadBytes())
	if !ok {
		return
	}
	defer form.Close()

	stored, ok := h.savePhoto(w, r, form)
	if !ok {
		return
	}

	var cat *models.Cat
	var replaced []string
	err := h.store.InTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		replaced = replaced[:0]

		var err error
		cat, err = tx.Cats().FindByID(ctx, catID)
		if err != nil {
			return err
		}

		cat.Name = form.Name
		cat.Age = form.Age
		cat.Breed = form.Breed
		if err := tx.Cats().Save(ctx, cat); err != nil {
			return err
		}
		if stored == nil {
			return nil
		}

		previous, err := tx.Photos().FindByCat(ctx, cat.ID)
		if err != nil {
			return err
		}
		previousIDs := make([]string, 0, len(previous))
		for _, p := range previous {
			previousIDs = append(previousIDs, p.ID)
			replaced = append(replaced, p.URL)
		}
		if _, err := tx.Photos().DeleteByIDs(ctx, previousIDs); err != nil {
			return err
		}

		photo := &models.Photo{CatID: cat.ID, URL: stored.URL, Description: form.Description}
		if err := tx.Photos().Create(ctx, photo); err != nil {
			return err
		}
		cat.PhotoIDs = []string{photo.ID}
		return tx.Cats().SetPhotos(ctx, cat.ID, cat.PhotoIDs)
	})
	if err != nil {
		if stored != nil {
			removeUploads(h.uploads, []string{stored.URL})
		}
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "Cat not found")
			return
		}
		slog.Error("error updating cat", "error", err, "cat_id", catID)
		internalError(w)
		return
	}

	removeUploads(h.uploads, replaced)
	h.catalog.Invalidate(r.Context())

	view, err := h.populateOne(r.Context(), cat.ID)
	if err != nil {
		slog.Error("error loading updated cat", "error", err, "cat_id", catID)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /catslist/delete/{id}
func (h *CatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	catID := chi.URLParam(r, "id")

	var removed []string
	err := h.store.InTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		removed = removed[:0]

		if _, err := tx.Cats().FindByID(ctx, catID); err != nil {
			return err
		}

		photos, err := tx.Photos().FindByCat(ctx, catID)
		if err != nil {
			return err
		}
		for _, p := range photos {
			removed = append(removed, p.URL)
		}

		if _, err := tx.Photos().DeleteByCat(ctx, catID); err != nil {
			return err
		}
		if err := tx.PublicUsers().RemoveFavoriteEverywhere(ctx, catID); err != nil {
			return err
		}
		return tx.Cats().DeleteByID(ctx, catID)
	})
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "Cat not found")
		return
	}
	if err != nil {
		slog.Error("error deleting cat", "error", err, "cat_id", catID)
		internalError(w)
		return
	}

	removeUploads(h.uploads, removed)
	h.catalog.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Cat deleted successfully"})
}

// GET /catslist
func (h *CatHandler) List(w http.ResponseWriter, r *http.Request) {
	body, gen, ok := h.catalog.Get(r.Context())
	if ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	cats, err := h.store.Cats().FindAll(r.Context())
	if err != nil {
		slog.Error("error listing cats", "error", err)
		internalError(w)
		return
	}

	views, err := populateCats(r.Context(), h.store.Photos(), cats)
	if err != nil {
		slog.Error("error resolving cat photos", "error", err)
		internalError(w)
		return
	}

	body, err = json.Marshal(views)
	if err != nil {
		slog.Error("error encoding cat catalog", "error", err)
		internalError(w)
		return
	}
	h.catalog.Set(r.Context(), gen, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// GET /catslist/{id}
func (h *CatHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.populateOne(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "Cat not found")
		return
	}
	if err != nil {
		slog.Error("error finding cat", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// savePhoto stores the form's photo, if any. A nil result with true means
// the request carried no photo.
func (h *CatHandler) savePhoto(w http.ResponseWriter, r *http.Request, form *catForm) (*upload.Stored, bool) {
	if !form.hasPhoto() {
		return nil, true
	}
	stored, err := h.uploads.Save(r.Context(), form.header.Filename, form.file)
	if err != nil {
		handleUploadSaveError(w, err)
		return nil, false
	}
	return stored, true
}

func (h *CatHandler) populateOne(ctx context.Context, catID string) (*models.CatView, error) {
	cat, err := h.store.Cats().FindByID(ctx, catID)
	if err != nil {
		return nil, err
	}
	views, err := populateCats(ctx, h.store.Photos(), []*models.Cat{cat})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// populateCats resolves the photo ids of every cat with a single lookup.
func populateCats(ctx context.Context, photos store.PhotoRepository, cats []*models.Cat) ([]*models.CatView, error) {
	var ids []string
	for _, c := range cats {
		ids = append(ids, c.PhotoIDs...)
	}

	resolved := map[string]*models.Photo{}
	if len(ids) > 0 {
		var err error
		resolved, err = photos.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("finding photos: %w", err)
		}
	}

	views := make([]*models.CatView, 0, len(cats))
	for _, c := range cats {
		views = append(views, models.Populate(c, resolved))
	}
	return views, nil
}
