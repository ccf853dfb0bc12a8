package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"catcharity/internal/auth"
	"catcharity/internal/models"
	"catcharity/internal/store"
)

type RegistrationCodeHandler struct {
	codes store.RegistrationCodeRepository
}

func NewRegistrationCodeHandler(codes store.RegistrationCodeRepository) *RegistrationCodeHandler {
	return &RegistrationCodeHandler{codes: codes}
}

type CreateRegistrationCodeRequest struct {
	Code string `json:"code" validate:"omitempty,min=4,max=64"`
}

// POST /registration-codes
func (h *RegistrationCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistrationCodeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		generated, err := auth.GenerateCode()
		if err != nil {
			slog.Error("error generating registration code", "error", err)
			internalError(w)
			return
		}
		code = generated
	}

	rc := &models.RegistrationCode{Code: code}
	if err := h.codes.Create(r.Context(), rc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			conflict(w, "Registration code already exists")
			return
		}
		slog.Error("error creating registration code", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, rc)
}
