package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"catcharity/internal/auth"
	"catcharity/internal/constants"
)

type contextKey string

const claimsKey contextKey = "claims"

type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth accepts the token either bare or with a Bearer prefix.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromHeader(r.Header.Get("Authorization"))
		if token == "" {
			missingCredentials(w)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			writeTokenError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStaff must run after RequireAuth.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r)
		if claims == nil || !claims.IsStaff() {
			forbidden(w, "Staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClaimsFrom(r *http.Request) *auth.Claims {
	if v := r.Context().Value(claimsKey); v != nil {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func tokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = strings.TrimSpace(header[7:])
	}
	return header
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusForbidden, constants.ErrCodeTokenExpired, "Authentication token has expired")
	case errors.Is(err, auth.ErrTokenMalformed):
		writeError(w, http.StatusForbidden, constants.ErrCodeInvalidToken, "Invalid authentication token")
	default:
		writeError(w, http.StatusForbidden, constants.ErrCodeAuthFailed, err.Error())
	}
}

// canAccessUser reports whether the caller owns userID's resources. Staff
// pass too when allowStaff is set.
func canAccessUser(r *http.Request, userID string, allowStaff bool) bool {
	claims := ClaimsFrom(r)
	if claims == nil {
		return false
	}
	if allowStaff && claims.IsStaff() {
		return true
	}
	return claims.Kind == auth.KindPublic && claims.UserID == userID
}
