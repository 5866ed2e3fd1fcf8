package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"snaptale/internal/app"
	"snaptale/internal/config"
	"snaptale/internal/lulu"
	"snaptale/internal/util"
	"snaptale/pkg/ai"
	"snaptale/pkg/queue"
	"snaptale/pkg/storage"
	"snaptale/pkg/store"
)

const (
	orderConcurrency     = 2
	transformConcurrency = 4
	vendorSyncInterval   = time.Minute
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

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

	appCore, err := app.New(app.Config{
		Store:          db,
		Objects:        objects,
		OrderQueue:     orderQueue,
		TransformQueue: transformQueue,
		Transformer:    transformer,
		Generator:      generator,
		Vendor:         lulu.NewClient(cfg.LuluBaseURL, cfg.LuluClientKey, cfg.LuluClientSecret),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orderQueue.Start(ctx, orderConcurrency, func(ctx context.Context, job queue.JobStatus) error {
		return appCore.ProcessOrder(ctx, job.RefID)
	})
	transformQueue.Start(ctx, transformConcurrency, func(ctx context.Context, job queue.JobStatus) error {
		return appCore.TransformImage(ctx, job.RefID)
	})

	slog.Info("worker started",
		"order_concurrency", orderConcurrency,
		"transform_concurrency", transformConcurrency)

	ticker := time.NewTicker(vendorSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			return
		case <-ticker.C:
			appCore.SyncOpenOrders(ctx)
		}
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
