package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"snaptale/internal/app"
	"snaptale/internal/config"
	"snaptale/internal/lulu"
	"snaptale/internal/ratelimit"
	"snaptale/internal/server"
	"snaptale/internal/usertoken"
	"snaptale/internal/util"
	"snaptale/pkg/ai"
	"snaptale/pkg/auth"
	"snaptale/pkg/queue"
	"snaptale/pkg/storage"
	"snaptale/pkg/store"
)

const tokenTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	orderQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   "snaptale:orders",
		Group:    "order-workers",
	})
	if err != nil {
		log.Fatalf("failed to init order queue: %v", err)
	}
	transformQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   "snaptale:transforms",
		Group:    "transform-workers",
	})
	if err != nil {
		log.Fatalf("failed to init transform queue: %v", err)
	}

	transformer, generator, err := buildAIClients(cfg)
	if err != nil {
		log.Fatalf("failed to init ai clients: %v", err)
	}

	payments, err := app.NewStripePayments(cfg.StripeSecretKey, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("failed to init stripe: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          db,
		Objects:        objects,
		OrderQueue:     orderQueue,
		TransformQueue: transformQueue,
		Transformer:    transformer,
		Generator:      generator,
		Vendor:         lulu.NewClient(cfg.LuluBaseURL, cfg.LuluClientKey, cfg.LuluClientSecret),
		Payments:       payments,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	var identityVerifier *usertoken.Verifier
	if cfg.IDPJWKSURL != "" {
		identityVerifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.IDPJWKSURL,
			Issuer:     cfg.IDPIssuer,
			Audience:   cfg.IDPAudience,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			log.Fatalf("failed to init jwks verifier: %v", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	storyLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "snaptale:ratelimit:story", cfg.StoryRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init story rate limiter: %v", err)
	}
	transformLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "snaptale:ratelimit:transform", cfg.TransformRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init transform rate limiter: %v", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:              appCore,
		Tokens:           tokens,
		IdentityVerifier: identityVerifier,
		InternalToken:    cfg.InternalToken,
		StripeWebhook:    server.NewStripeWebhook(appCore, cfg.StripeWebhookSecret),
		StoryLimiter:     storyLimiter,
		TransformLimiter: transformLimiter,
		TrustedProxies:   trustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildAIClients(cfg config.FileConfig) (ai.Transformer, ai.TextGenerator, error) {
	switch cfg.AIProvider {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.AIAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return ai.NewGeminiTransformer(client, cfg.AIImageModel), ai.NewGeminiGenerator(client, cfg.AITextModel), nil
	default:
		return ai.NewOpenAICompatTransformer(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIImageModel),
			ai.NewOpenAICompatGenerator(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITextModel), nil
	}
}
