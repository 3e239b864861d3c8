package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"soniclibrary/internal/app"
	"soniclibrary/internal/config"
	"soniclibrary/internal/ratelimit"
	"soniclibrary/internal/server"
	"soniclibrary/internal/util"
	"soniclibrary/pkg/ai"
	"soniclibrary/pkg/auth"
	"soniclibrary/pkg/cache"
	"soniclibrary/pkg/googlebooks"
	"soniclibrary/pkg/mail"
	"soniclibrary/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	publisher, err := mail.NewRabbitPublisher(cfg.RabbitMQURL, cfg.MailQueueName)
	if err != nil {
		log.Fatalf("failed to connect rabbitmq: %v", err)
	}
	defer publisher.Close()

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	appCfg := app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		JWTSecret:         cfg.JWTSecret,
		AccessTokenTTL:    time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		Cache:             cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, ""),
		Revoker:           auth.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword),
		Mail:              publisher,
		Objects:           objects,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		SearchCacheTTL:    time.Duration(cfg.SearchCacheTTLMinutes) * time.Minute,
		PopularCacheTTL:   time.Duration(cfg.PopularCacheTTLMinutes) * time.Minute,
		RecommendCacheTTL: time.Duration(cfg.RecommendCacheTTLMinutes) * time.Minute,
	}
	if cfg.GoogleBooksBaseURL != "" {
		appCfg.Books = googlebooks.NewClient(nil, cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey)
	}
	switch cfg.LLMProvider {
	case "ollama":
		appCfg.Generator = ai.NewOllamaGenerator(cfg.LLMBaseURL, cfg.LLMModel)
	default:
		appCfg.Generator = ai.NewOpenAICompatGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.AuthRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		AuthLimiter:    limiter,
		TrustedProxies: proxies,
		SessionTTL:     time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		SecureCookies:  cfg.SecureCookies,
	})

	handler := util.WithRequestID(
		util.WithRequestLog("soniclibrary",
			util.WithCORS(cfg.CORSAllowedOrigins,
				util.WithSecurityHeaders(httpServer.Router()))))

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.ActivateURL)
	worker := mail.NewWorker(publisher, sender)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
	}
}
