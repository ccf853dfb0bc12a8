package api

import (
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catcharity/internal/auth"
	"catcharity/internal/cache"
	"catcharity/internal/config"
	"catcharity/internal/constants"
	"catcharity/internal/events"
	"catcharity/internal/mediaurl"
	"catcharity/internal/store"
	"catcharity/internal/upload"
	"catcharity/internal/ws"
)

// Deps are the collaborators of the HTTP layer. Catalog, Publisher and
// Notifier may be nil.
type Deps struct {
	Config    *config.Config
	Store     store.Store
	Tokens    *auth.TokenService
	Uploads   *upload.Service
	Catalog   *cache.CatalogCache
	Publisher events.Publisher
	Notifier  ReplyNotifier
	Hub       *ws.Hub
}

type Server struct {
	router *chi.Mux
}

func NewServer(deps Deps) *Server {
	cfg := deps.Config
	origins := newOriginPolicy(cfg.Server.AllowedOrigins)

	userHandler := NewUserHandler(deps.Store, deps.Tokens, cfg.Auth.BcryptCost)
	codeHandler := NewRegistrationCodeHandler(deps.Store.RegistrationCodes())
	catHandler := NewCatHandler(deps.Store, deps.Uploads, deps.Catalog)
	favoritesHandler := NewFavoritesHandler(deps.Store)
	messageHandler := NewMessageHandler(deps.Store, deps.Publisher, deps.Notifier)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Tokens, origins)

	var cachePinger pinger
	if deps.Catalog != nil {
		cachePinger = deps.Catalog
	}
	healthHandler := NewHealthHandler(deps.Store, cachePinger)

	authMiddleware := NewAuthMiddleware(deps.Tokens)
	jsonBody := maxBodySizeMiddleware(constants.MaxJSONBodyBytes)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(origins))
	r.Use(securityHeadersMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", wsHandler.ServeWS)
	r.Handle(mediaurl.RoutePrefix+"*", http.StripPrefix(mediaurl.RoutePrefix, uploadFileServer(deps.Uploads.RootDir())))

	// Public surface.
	r.Group(func(r chi.Router) {
		r.Use(jsonBody)
		r.Post("/users", userHandler.RegisterStaff)
		r.Post("/register/public-users", userHandler.RegisterPublic)
		r.Post("/login", userHandler.LoginStaff)
		r.Post("/login/public-users", userHandler.LoginPublic)
		r.Get("/catslist", catHandler.List)
		r.Get("/catslist/{id}", catHandler.Get)
	})

	// Staff only. Cat writes carry their own multipart limit.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Use(RequireStaff)

		r.Post("/newcats", catHandler.Create)
		r.Put("/catslist/edit/{id}", catHandler.Update)
		r.Delete("/catslist/delete/{id}", catHandler.Delete)

		r.With(jsonBody).Post("/registration-codes", codeHandler.Create)
		r.Get("/getmessages", messageHandler.ListAll)
		r.With(jsonBody).Post("/messages/reply", messageHandler.Reply)
		r.With(jsonBody).Put("/messages/reply/{messageId}", messageHandler.UpdateReply)
		r.Delete("/messages/reply/{messageId}", messageHandler.DeleteReply)
	})

	// Any authenticated user; ownership is checked per handler.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Use(jsonBody)

		r.Route("/public-users/{userId}/favorites", func(r chi.Router) {
			r.Post("/", favoritesHandler.Add)
			r.Get("/", favoritesHandler.List)
			r.Delete("/{catId}", favoritesHandler.Remove)
		})

		r.Post("/messages", messageHandler.Create)
		r.Get("/messages/{userId}", messageHandler.ListForUser)
	})

	return &Server{router: r}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// originPolicy allows every origin when no list is configured.
type originPolicy struct {
	allowed []string
}

func newOriginPolicy(allowed []string) *originPolicy {
	var cleaned []string
	for _, origin := range allowed {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			cleaned = append(cleaned, origin)
		}
	}
	return &originPolicy{allowed: cleaned}
}

func (p *originPolicy) any() bool {
	return len(p.allowed) == 0 || slices.Contains(p.allowed, "*")
}

func (p *originPolicy) allows(origin string) bool {
	if p.any() {
		return true
	}
	for _, allowed := range p.allowed {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

// originMatchesAllowed supports a trailing "*" as a prefix wildcard.
func originMatchesAllowed(origin, allowed string) bool {
	if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
		return strings.HasPrefix(origin, prefix)
	}
	return origin == allowed
}

func corsMiddleware(origins *originPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origins.any() {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" && origins.allows(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// uploadFileServer serves stored photos without directory listings or
// dot-files (in-flight temp uploads start with a dot).
func uploadFileServer(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(path.Clean("/" + r.URL.Path))
		if name == "/" || name == "." || strings.HasPrefix(name, ".") || strings.HasSuffix(r.URL.Path, "/") {
			notFound(w, "File not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
