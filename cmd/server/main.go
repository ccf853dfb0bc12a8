package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"catcharity/internal/api"
	"catcharity/internal/auth"
	"catcharity/internal/cache"
	"catcharity/internal/config"
	"catcharity/internal/db"
	"catcharity/internal/email"
	"catcharity/internal/events"
	"catcharity/internal/models"
	"catcharity/internal/mongodb"
	"catcharity/internal/store"
	"catcharity/internal/upload"
	"catcharity/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}()

	if err := ensureBootstrapCode(ctx, st, cfg.Auth.BootstrapCode); err != nil {
		slog.Error("failed to create bootstrap registration code", "error", err)
		os.Exit(1)
	}

	uploads, err := upload.NewService(cfg.Storage.UploadDir, cfg.Storage.UploadMaxBytes, cfg.Storage.MaxImagePixels)
	if err != nil {
		slog.Error("failed to initialize upload storage", "error", err)
		os.Exit(1)
	}
	slog.Info("upload storage initialized", "dir", cfg.Storage.UploadDir, "upload_max_bytes", cfg.Storage.UploadMaxBytes)

	sweeper := upload.NewSweeper(st.Photos(), uploads, cfg.Storage.SweepInterval, cfg.Storage.SweepGrace)
	go sweeper.Start(ctx)

	var catalog *cache.CatalogCache
	if cfg.Cache.RedisURL != "" {
		catalog, err = cache.New(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer catalog.Close()
		slog.Info("catalog cache enabled", "ttl", cfg.Cache.TTL.String())
	}

	hub := ws.NewHub()
	go hub.Run()
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "catcharity",
		Name:      "websocket_clients",
		Help:      "Connected WebSocket clients.",
	}, func() float64 { return float64(hub.ClientCount()) })

	publishers := []events.Publisher{hub}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		slog.Info("message events enabled", "queue", cfg.Events.Queue)
	}

	var notifier api.ReplyNotifier
	if cfg.Email.SMTP.Enabled() {
		notifier = email.NewSMTPService(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
			cfg.Email.SMTP.From,
		)
		slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)
	}

	server := api.NewServer(api.Deps{
		Config:    cfg,
		Store:     st,
		Tokens:    auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Uploads:   uploads,
		Catalog:   catalog,
		Publisher: events.NewFanout(publishers...),
		Notifier:  notifier,
		Hub:       hub,
	})

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.UsesMongo() {
		client, err := mongodb.New(ctx, cfg.Database.URL, cfg.Database.Name)
		if err != nil {
			return nil, err
		}
		slog.Info("database opened", "backend", "mongodb", "name", cfg.Database.Name)
		return client, nil
	}

	path := db.PathFromURL(cfg.Database.URL)
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "backend", "sqlite", "path", path)
	return database, nil
}

// ensureBootstrapCode creates the configured first-staff registration code
// unless it already exists, used or not.
func ensureBootstrapCode(ctx context.Context, st store.Store, code string) error {
	if code == "" {
		return nil
	}

	exists, err := st.RegistrationCodes().ExistsByCode(ctx, code)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = st.RegistrationCodes().Create(ctx, &models.RegistrationCode{Code: code})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return err
	}
	slog.Info("bootstrap registration code created")
	return nil
}
