package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catcharity/internal/constants"
	"catcharity/internal/store"
)

type FavoritesHandler struct {
	store store.Store
}

func NewFavoritesHandler(st store.Store) *FavoritesHandler {
	return &FavoritesHandler{store: st}
}

type AddFavoriteRequest struct {
	CatID string `json:"_id" validate:"required"`
}

// POST /public-users/{userId}/favorites
func (h *FavoritesHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canAccessUser(r, userID, false) {
		forbidden(w, "Cannot modify another user's favorites")
		return
	}

	var req AddFavoriteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	if _, err := h.store.PublicUsers().FindByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		slog.Error("error finding public user", "error", err)
		internalError(w)
		return
	}

	if _, err := h.store.Cats().FindByID(ctx, req.CatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "Cat not found")
			return
		}
		slog.Error("error finding cat", "error", err)
		internalError(w)
		return
	}

	err := h.store.PublicUsers().AddFavorite(ctx, userID, req.CatID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, constants.ErrCodeAlreadyFavorited, "Cat already in favorites")
		return
	case errors.Is(err, store.ErrNotFound):
		notFound(w, "User not found")
		return
	default:
		slog.Error("error adding favorite", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	h.writeFavoriteIDs(w, r, userID)
}

// GET /public-users/{userId}/favorites
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canAccessUser(r, userID, true) {
		forbidden(w, "Cannot read another user's favorites")
		return
	}

	user, err := h.store.PublicUsers().FindByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding public user", "error", err)
		internalError(w)
		return
	}

	cats, err := h.store.Cats().FindByIDs(r.Context(), user.FavoriteCats)
	if err != nil {
		slog.Error("error finding favorite cats", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	views, err := populateCats(r.Context(), h.store.Photos(), cats)
	if err != nil {
		slog.Error("error resolving cat photos", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// DELETE /public-users/{userId}/favorites/{catId}
func (h *FavoritesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canAccessUser(r, userID, false) {
		forbidden(w, "Cannot modify another user's favorites")
		return
	}

	err := h.store.PublicUsers().RemoveFavorite(r.Context(), userID, chi.URLParam(r, "catId"))
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error removing favorite", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	h.writeFavoriteIDs(w, r, userID)
}

func (h *FavoritesHandler) writeFavoriteIDs(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.store.PublicUsers().FindByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding public user", "error", err)
		internalError(w)
		return
	}

	favorites := user.FavoriteCats
	if favorites == nil {
		favorites = []string{}
	}
	writeJSON(w, http.StatusOK, favorites)
}
