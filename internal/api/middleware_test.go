package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catcharity/internal/auth"
	"catcharity/internal/constants"
)

func TestStaffEndpointsRejectPublicTokens(t *testing.T) {
	env := newTestEnv(t)
	_, publicToken := env.publicUser(t, "frank")

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/registration-codes", `{}`},
		{http.MethodPost, "/newcats", `{"name":"Tom"}`},
		{http.MethodPut, "/catslist/edit/abc", `{"name":"Tom"}`},
		{http.MethodDelete, "/catslist/delete/abc", ""},
		{http.MethodGet, "/getmessages", ""},
		{http.MethodPost, "/messages/reply", `{"messageId":"m","replyContent":"hi"}`},
		{http.MethodPut, "/messages/reply/m", `{"replyContent":"hi"}`},
		{http.MethodDelete, "/messages/reply/m", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body, publicToken)
			expectError(t, rr, http.StatusForbidden, constants.ErrCodeForbidden)
		})
	}
}

func TestRequireAuthClassifiesTokens(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.staff(t, "admin")

	expired, err := auth.NewTokenService(testSecret, -time.Minute).Issue(user.ID, auth.KindStaff)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	foreign, err := auth.NewTokenService("another-secret-that-is-32-bytes-long!!", time.Hour).Issue(user.ID, auth.KindStaff)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized, code: constants.ErrCodeMissingCredentials},
		{name: "garbage", header: "not-a-token", status: http.StatusForbidden, code: constants.ErrCodeInvalidToken},
		{name: "expired", header: expired, status: http.StatusForbidden, code: constants.ErrCodeTokenExpired},
		{name: "wrong_signature", header: "Bearer " + foreign, status: http.StatusForbidden, code: constants.ErrCodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/getmessages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, req)

			expectError(t, rr, tt.status, tt.code)
		})
	}
}

func TestRequireAuthAcceptsBareAndBearerTokens(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.staff(t, "admin")

	for _, header := range []string{token, "Bearer " + token, "bearer " + token} {
		req := httptest.NewRequest(http.MethodGet, "/getmessages", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)

		expectStatus(t, rr, http.StatusOK)
	}
}
