package app

import (
	"context"
	"fmt"
	"time"

	"snaptale/internal/lulu"
	"snaptale/internal/pdf"
	"snaptale/pkg/ai"
	"snaptale/pkg/queue"
	"snaptale/pkg/storage"
	"snaptale/pkg/store"
)

// Page-count bounds for new books. The print vendor will not bind fewer
// than two interior pages.
const (
	MinPageCount = 2
	MaxPageCount = 50
)

// Enqueuer pushes a job referencing a record onto a work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, refID string) (queue.JobStatus, error)
}

// PrintVendor is the subset of the vendor client the orchestrator needs.
type PrintVendor interface {
	CreatePrintJob(ctx context.Context, in lulu.CreatePrintJobInput) (lulu.PrintJob, error)
	GetPrintJob(ctx context.Context, jobID string) (lulu.PrintJob, error)
}

// Config holds the dependencies of the core application service.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	OrderQueue     Enqueuer
	TransformQueue Enqueuer
	Transformer    ai.Transformer
	Generator      ai.TextGenerator
	Vendor         PrintVendor
	Payments       Payments
	PresignExpiry  time.Duration
	MaxUploadBytes int64
}

// App wires storage, queues, AI providers, payments, and the print
// vendor behind the operations the HTTP layer and worker call.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	orderQueue     Enqueuer
	transformQueue Enqueuer
	transformer    ai.Transformer
	generator      ai.TextGenerator
	vendor         PrintVendor
	payments       Payments
	composer       *pdf.Composer
	presignExpiry  time.Duration
	maxUploadBytes int64
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("app: object store is required")
	}
	presignExpiry := cfg.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 15 << 20
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		orderQueue:     cfg.OrderQueue,
		transformQueue: cfg.TransformQueue,
		transformer:    cfg.Transformer,
		generator:      cfg.Generator,
		vendor:         cfg.Vendor,
		payments:       cfg.Payments,
		composer:       pdf.NewComposer(cfg.Objects),
		presignExpiry:  presignExpiry,
		maxUploadBytes: maxUpload,
	}, nil
}

// MaxUploadBytes is the request-body cap for photo uploads.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}
