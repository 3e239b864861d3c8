// Package app contains the application core: signup and activation, the book
// catalog, reviews, library tracking, and recommendation building. Handlers
// stay thin; all rules live here.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"context"

	"soniclibrary/pkg/ai"
	"soniclibrary/pkg/auth"
	"soniclibrary/pkg/cache"
	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/mail"
	"soniclibrary/pkg/storage"
	"soniclibrary/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	JWTSecret      string
	AccessTokenTTL time.Duration

	Store     store.Store
	Cache     cache.Cache
	Tokens    *auth.TokenService
	Revoker   auth.TokenRevoker
	Mail      mail.Publisher
	Books     ExternalCatalog
	Generator ai.TextGenerator
	Objects   storage.ObjectStore

	MaxUploadBytes int64

	SearchCacheTTL    time.Duration
	PopularCacheTTL   time.Duration
	RecommendCacheTTL time.Duration
}

// ExternalCatalog is the external book lookup used for search, external book
// detail, and recommendation candidates.
type ExternalCatalog interface {
	Search(ctx context.Context, query string, page, pageSize int) ([]domain.ExternalBook, int64, error)
	Get(ctx context.Context, volumeID string) (domain.ExternalBook, error)
}

// App is the application core wiring storage, caching, and external services.
type App struct {
	store     store.Store
	cache     cache.Cache
	tokens    *auth.TokenService
	revoker   auth.TokenRevoker
	mail      mail.Publisher
	books     ExternalCatalog
	generator ai.TextGenerator
	objects   storage.ObjectStore

	maxUploadBytes int64

	searchCacheTTL    time.Duration
	popularCacheTTL   time.Duration
	recommendCacheTTL time.Duration
}

// New constructs the application. Store and Cache fall back to Postgres and an
// in-process cache when not injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	tokens := cfg.Tokens
	if tokens == nil {
		var err error
		tokens, err = auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("init token service: %w", err)
		}
	}
	dataCache := cfg.Cache
	if dataCache == nil {
		dataCache = cache.NewMemoryCache(2048)
	}
	revoker := cfg.Revoker
	if revoker == nil {
		revoker = auth.NewMemoryTokenRevoker()
	}
	if cfg.SearchCacheTTL <= 0 {
		cfg.SearchCacheTTL = 30 * time.Minute
	}
	if cfg.PopularCacheTTL <= 0 {
		cfg.PopularCacheTTL = 10 * time.Minute
	}
	if cfg.RecommendCacheTTL <= 0 {
		cfg.RecommendCacheTTL = time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	return &App{
		store:             dataStore,
		cache:             dataCache,
		tokens:            tokens,
		revoker:           revoker,
		mail:              cfg.Mail,
		books:             cfg.Books,
		generator:         cfg.Generator,
		objects:           cfg.Objects,
		maxUploadBytes:    cfg.MaxUploadBytes,
		searchCacheTTL:    cfg.SearchCacheTTL,
		popularCacheTTL:   cfg.PopularCacheTTL,
		recommendCacheTTL: cfg.RecommendCacheTTL,
	}, nil
}

// MaxUploadBytes reports the configured profile picture upload limit.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// Tokens exposes the token service for the session middleware.
func (a *App) Tokens() *auth.TokenService { return a.tokens }

// audit emits a structured audit log entry for security-relevant actions.
func audit(action string, userID int64, attrs ...any) {
	args := append([]any{"action", action, "user_id", userID}, attrs...)
	slog.Info("audit", args...)
}
