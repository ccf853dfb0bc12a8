package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"catcharity/internal/auth"
	"catcharity/internal/config"
	"catcharity/internal/db"
	"catcharity/internal/events"
	"catcharity/internal/models"
	"catcharity/internal/store"
	"catcharity/internal/upload"
	"catcharity/internal/ws"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type testEnv struct {
	store     *db.DB
	tokens    *auth.TokenService
	uploadDir string
	events    *recordingPublisher
	notifier  *recordingNotifier
	handler   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithUploadLimit(t, 1<<20)
}

func newTestEnvWithUploadLimit(t *testing.T, maxUploadBytes int64) *testEnv {
	t.Helper()
	return buildTestEnv(t, maxUploadBytes, nil)
}

// newTestEnvWithStore serves requests through wrap(database). Assertions
// made through env.store still see the underlying database.
func newTestEnvWithStore(t *testing.T, wrap func(store.Store) store.Store) *testEnv {
	t.Helper()
	return buildTestEnv(t, 1<<20, wrap)
}

func buildTestEnv(t *testing.T, maxUploadBytes int64, wrap func(store.Store) store.Store) *testEnv {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(context.Background())
	})

	uploadDir := filepath.Join(dir, "uploads")
	uploads, err := upload.NewService(uploadDir, maxUploadBytes, 1_000_000)
	if err != nil {
		t.Fatalf("upload.NewService() error = %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	cfg := &config.Config{Auth: config.AuthConfig{BcryptCost: 4}}
	tokens := auth.NewTokenService(testSecret, time.Hour)
	recorder := &recordingPublisher{}
	notifier := &recordingNotifier{sent: make(chan string, 4)}

	var served store.Store = database
	if wrap != nil {
		served = wrap(database)
	}

	server := NewServer(Deps{
		Config:    cfg,
		Store:     served,
		Tokens:    tokens,
		Uploads:   uploads,
		Publisher: events.NewFanout(hub, recorder),
		Notifier:  notifier,
		Hub:       hub,
	})

	return &testEnv{
		store:     database,
		tokens:    tokens,
		uploadDir: uploadDir,
		events:    recorder,
		notifier:  notifier,
		handler:   server,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doMultipart(t *testing.T, method, path string, fields map[string]string, photo []byte, token string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if photo != nil {
		part, err := mw.CreateFormFile("photo", "whiskers.png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(photo); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close() error = %v", err)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) staff(t *testing.T, username string) (*models.User, string) {
	t.Helper()

	hash, err := auth.HashPassword("admin", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user := &models.User{Username: username, PasswordHash: hash}
	if err := e.store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Users().Create() error = %v", err)
	}
	return user, e.issue(t, user.ID, auth.KindStaff)
}

func (e *testEnv) publicUser(t *testing.T, username string) (*models.PublicUser, string) {
	t.Helper()

	hash, err := auth.HashPassword("secret", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user := &models.PublicUser{Username: username, Email: username + "@example.com", PasswordHash: hash}
	if err := e.store.PublicUsers().Create(context.Background(), user); err != nil {
		t.Fatalf("PublicUsers().Create() error = %v", err)
	}
	return user, e.issue(t, user.ID, auth.KindPublic)
}

func (e *testEnv) issue(t *testing.T, userID, kind string) string {
	t.Helper()

	token, err := e.tokens.Issue(userID, kind)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

// uploadedFiles lists stored photos, ignoring in-flight temp files.
func (e *testEnv) uploadedFiles(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(e.uploadDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rr.Code != status {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, status, rr.Body.String())
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if resp.Error.Code != code {
		t.Fatalf("error.code = %q, want %q", resp.Error.Code, code)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()

	if rr.Code != status {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, status, rr.Body.String())
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: 120, B: uint8(y * 40), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []events.Type
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type recordingNotifier struct {
	sent chan string
}

func (n *recordingNotifier) SendReplyNotification(to, _, _, _ string) error {
	n.sent <- to
	return nil
}
