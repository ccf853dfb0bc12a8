package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"catcharity/internal/auth"
	"catcharity/internal/models"
	"catcharity/internal/store"
)

var (
	errCodeUnknown = errors.New("registration code unknown")
	errCodeUsed    = errors.New("registration code already used")
)

type UserHandler struct {
	store      store.Store
	tokens     *auth.TokenService
	bcryptCost int
}

func NewUserHandler(st store.Store, tokens *auth.TokenService, bcryptCost int) *UserHandler {
	return &UserHandler{store: st, tokens: tokens, bcryptCost: bcryptCost}
}

type RegisterStaffRequest struct {
	Username         string `json:"username" validate:"required,max=64"`
	Password         string `json:"password" validate:"required,password"`
	RegistrationCode string `json:"registrationCode" validate:"max=64"`
}

type RegisterPublicRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	ID      string `json:"_id"`
}

// POST /users
func (h *UserHandler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var req RegisterStaffRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	code := strings.TrimSpace(req.RegistrationCode)
	if code == "" {
		invalidCode(w, "Invalid registration code")
		return
	}

	hash, ok := h.hashPassword(w, req.Password)
	if !ok {
		return
	}

	user := &models.User{Username: username, PasswordHash: hash}
	err := h.store.InTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		rc, err := tx.RegistrationCodes().FindByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return errCodeUnknown
		}
		if err != nil {
			return err
		}
		if rc.Used {
			return errCodeUsed
		}

		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}

		if err := tx.RegistrationCodes().MarkUsed(ctx, code, user.ID); err != nil {
			// Without a real transaction the user row would outlive the
			// failed registration.
			if derr := tx.Users().DeleteByID(ctx, user.ID); derr != nil {
				slog.Error("error removing staff user after failed registration", "error", derr, "user_id", user.ID)
			}
			if errors.Is(err, store.ErrNotFound) {
				return errCodeUsed
			}
			return err
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errCodeUnknown):
		invalidCode(w, "Invalid registration code")
		return
	case errors.Is(err, errCodeUsed):
		invalidCode(w, "Invalid or already used registration code")
		return
	case errors.Is(err, store.ErrDuplicate):
		conflict(w, "Username already exists")
		return
	default:
		slog.Error("error registering staff user", "error", err)
		internalError(w)
		return
	}

	user.UsedRegistrationCodes = []string{code}
	writeJSON(w, http.StatusOK, user)
}

// POST /register/public-users
func (h *UserHandler) RegisterPublic(w http.ResponseWriter, r *http.Request) {
	var req RegisterPublicRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	users := h.store.PublicUsers()

	taken, err := users.ExistsByUsername(r.Context(), username)
	if err != nil {
		slog.Error("error checking username availability", "error", err)
		internalError(w)
		return
	}
	if taken {
		conflict(w, "Username already exists")
		return
	}

	taken, err = users.ExistsByEmail(r.Context(), email)
	if err != nil {
		slog.Error("error checking email availability", "error", err)
		internalError(w)
		return
	}
	if taken {
		conflict(w, "Email already exists")
		return
	}

	hash, ok := h.hashPassword(w, req.Password)
	if !ok {
		return
	}

	user := &models.PublicUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FavoriteCats: []string{},
	}
	if err := users.Create(r.Context(), user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, store.ErrDuplicate) {
			conflict(w, "Username or email already exists")
			return
		}
		slog.Error("error creating public user", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) hashPassword(w http.ResponseWriter, password string) (string, bool) {
	hash, err := auth.HashPassword(password, h.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		badRequest(w, "password is out of range")
		return "", false
	}
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return "", false
	}
	return hash, true
}

// POST /login
func (h *UserHandler) LoginStaff(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.store.Users().FindByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrNotFound) {
		invalidCredentials(w)
		return
	}
	if err != nil {
		slog.Error("error finding staff user", "error", err)
		internalError(w)
		return
	}

	h.completeLogin(w, user.ID, user.PasswordHash, req.Password, auth.KindStaff)
}

// POST /login/public-users
func (h *UserHandler) LoginPublic(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.store.PublicUsers().FindByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrNotFound) {
		invalidCredentials(w)
		return
	}
	if err != nil {
		slog.Error("error finding public user", "error", err)
		internalError(w)
		return
	}

	h.completeLogin(w, user.ID, user.PasswordHash, req.Password, auth.KindPublic)
}

func (h *UserHandler) completeLogin(w http.ResponseWriter, userID, hash, password, kind string) {
	if !auth.CheckPassword(hash, password) {
		invalidCredentials(w)
		return
	}

	token, err := h.tokens.Issue(userID, kind)
	if err != nil {
		slog.Error("error issuing token", "error", err, "kind", kind)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   token,
		ID:      userID,
	})
}
