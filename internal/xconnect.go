package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgellow/x-connect/internal/auth"
	"github.com/dgellow/x-connect/internal/config"
	"github.com/dgellow/x-connect/internal/crypto"
	"github.com/dgellow/x-connect/internal/log"
	"github.com/dgellow/x-connect/internal/server"
	"github.com/dgellow/x-connect/internal/session"
	"github.com/dgellow/x-connect/internal/storage"
	"github.com/dgellow/x-connect/internal/xoauth"
)

// XConnect is the complete x-connect application
type XConnect struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.Storage
	cleanup    *storage.CleanupManager
}

// NewXConnect creates the application with all dependencies built
func NewXConnect(ctx context.Context, cfg config.Config) (*XConnect, error) {
	log.LogInfoWithFields("xconnect", "Building x-connect application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Storage.Kind),
	})

	cipher := crypto.NewTokenCipher(string(cfg.EncryptionKey))
	if err := cipher.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	xClient := xoauth.NewClient(xoauth.Config{
		ClientID:         cfg.X.ClientID,
		ClientSecret:     string(cfg.X.ClientSecret),
		RedirectURI:      cfg.X.RedirectURI,
		Scopes:           cfg.X.Scopes,
		AuthorizationURL: cfg.X.AuthorizationURL,
		TokenURL:         cfg.X.TokenURL,
		ProfileURL:       cfg.X.ProfileURL,
	})

	validator := session.NewCachedValidator(
		session.NewSupabaseValidator(cfg.Auth.SupabaseURL, string(cfg.Auth.SupabaseAnonKey), nil),
		cfg.Auth.SessionCacheTTL,
	)

	service := auth.NewXConnectService(xClient, cipher, store)
	handler := buildHTTPHandler(cfg, service, validator)

	app := &XConnect{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
	}
	if cfg.Storage.AuditRetention > 0 {
		app.cleanup = storage.NewCleanupManager(store, cfg.Storage.CleanupInterval, cfg.Storage.AuditRetention)
	}
	return app, nil
}

// Run starts the server and blocks until a signal or a server error
func (x *XConnect) Run() error {
	log.LogInfoWithFields("xconnect", "Starting x-connect", map[string]any{
		"addr": x.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := x.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if x.cleanup != nil {
		x.cleanup.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("xconnect", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("xconnect", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("xconnect", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := x.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("xconnect", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if x.cleanup != nil {
		x.cleanup.Stop()
	}

	if err := x.storage.Close(); err != nil {
		log.LogErrorWithFields("xconnect", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("xconnect", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Storage.Kind == config.StorageKindFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":         cfg.Storage.GCPProject,
			"database":        cfg.Storage.FirestoreDatabase,
			"tokenCollection": cfg.Storage.TokenCollection,
			"auditCollection": cfg.Storage.AuditCollection,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.TokenCollection,
			cfg.Storage.AuditCollection,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

func buildHTTPHandler(cfg config.Config, service server.XConnector, validator session.Validator) http.Handler {
	mux := http.NewServeMux()

	cors := server.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	logger := server.NewLoggerMiddleware("http")
	recoverer := server.NewRecoverMiddleware("http")
	requireAuth := server.NewRequireAuthMiddleware(validator)

	protected := func(h http.HandlerFunc) http.Handler {
		return server.ChainMiddleware(h, requireAuth, cors, logger, recoverer)
	}

	connectionURL := strings.TrimRight(cfg.Server.BaseURL, "/") + cfg.Server.ConnectionPage
	xHandlers := server.NewXHandlers(service, connectionURL)

	mux.Handle("/health", server.NewHealthHandler())
	mux.Handle("/api/x/oauth/start", protected(xHandlers.StartHandler))
	mux.Handle("/api/x/oauth/callback", protected(xHandlers.CallbackHandler))
	mux.Handle("/api/x/disconnect", protected(xHandlers.DisconnectHandler))
	mux.Handle("/api/x/status", protected(xHandlers.StatusHandler))
	mux.Handle("/api/x/profile", protected(xHandlers.ProfileHandler))
	mux.Handle("/api/x/activity", protected(xHandlers.ActivityHandler))

	return mux
}
