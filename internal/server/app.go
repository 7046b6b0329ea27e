// Package server assembles the brandscan service from configuration and runs
// it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/brandscan/internal/api"
	"github.com/JakeFAU/brandscan/internal/browser"
	systemclock "github.com/JakeFAU/brandscan/internal/clock/system"
	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/dispatcher"
	sha "github.com/JakeFAU/brandscan/internal/hash/sha256"
	"github.com/JakeFAU/brandscan/internal/id/uuid"
	"github.com/JakeFAU/brandscan/internal/progress"
	"github.com/JakeFAU/brandscan/internal/progress/sinks"
	pubmem "github.com/JakeFAU/brandscan/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/brandscan/internal/publisher/pubsub"
	queuemem "github.com/JakeFAU/brandscan/internal/queue/memory"
	"github.com/JakeFAU/brandscan/internal/scan"
	"github.com/JakeFAU/brandscan/internal/storage"
	storemem "github.com/JakeFAU/brandscan/internal/storage/memory"
	"github.com/JakeFAU/brandscan/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Options override infrastructure chosen by Build. Zero values pick the
// production defaults.
type Options struct {
	// Launcher starts the browser; nil means headless Chrome.
	Launcher browser.Launcher
	// Registerer receives the progress collectors.
	Registerer prometheus.Registerer
	// ClientOptions are passed to the GCS and Pub/Sub clients.
	ClientOptions []option.ClientOption
}

// App bundles the long-lived services.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Pipeline   *Pipeline
	Store      *storemem.ScanStore
	Hub        *progress.Hub
	Jobs       *queuemem.Queue
	Dispatcher *dispatcher.Dispatcher
	Registry   *worker.Registry
	API        *api.Server

	pubsubClient *pubsub.Client
	pubsubPub    *pubsubpublisher.Publisher
	closeBlobs   func() error
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	app := &App{Config: cfg, Logger: logger, Store: storemem.NewScanStore()}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("create prometheus sink: %w", err)
	}
	app.Hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.ProgressBatchWait(),
		Logger:         logger,
	},
		sinks.NewLogSink(logger, cfg.Progress.LogEveryNEvents),
		promSink,
		sinks.NewStoreSink(app.Store, logger),
	)

	app.Pipeline, err = NewPipeline(cfg, opts.Launcher, app.Hub, logger)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	blobs, closeBlobs, err := storage.Open(ctx, cfg.Storage, opts.ClientOptions...)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	app.closeBlobs = closeBlobs

	publisher, err := app.openPublisher(ctx, opts.ClientOptions)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Jobs = queuemem.NewQueue(cfg.Jobs.QueueDepth)
	app.Registry = worker.NewRegistry()
	hasher := sha.New()
	workers := make([]dispatcher.Runner, 0, cfg.Jobs.Workers)
	for range cfg.Jobs.Workers {
		workers = append(workers, worker.New(
			app.Jobs,
			app.Store,
			app.Pipeline.Scanner,
			blobs,
			publisher,
			hasher,
			app.Registry,
			worker.Config{BlobPrefix: cfg.Storage.Prefix, Topic: cfg.PubSub.TopicName},
			logger,
		))
	}
	app.Dispatcher = dispatcher.New(app.Jobs, workers...)

	app.API = api.NewServer(api.Deps{
		Store:    app.Store,
		Progress: api.NewProgressHandler(app.Store, logger),
		Queue:    app.Dispatcher,
		Canceler: app.Registry,
		IDs:      uuid.New(),
		Clock:    systemclock.New(),
		Ready:    app.ready,
	}, cfg, logger)

	return app, nil
}

// openPublisher returns a Pub/Sub publisher when a topic is configured and an
// in-memory one otherwise.
func (a *App) openPublisher(ctx context.Context, opts []option.ClientOption) (scan.Publisher, error) {
	if a.Config.PubSub.TopicName == "" {
		return pubmem.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.Config.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPub = pubsubpublisher.New(client, a.Config.PubSub.TopicName, a.Logger)
	return a.pubsubPub, nil
}

func (a *App) ready(context.Context) error {
	if a.Pipeline == nil || a.Pipeline.Session.Closed() {
		return browser.ErrSessionClosed
	}
	return nil
}

// Run starts the workers and the HTTP server and blocks until ctx ends or
// SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		a.Dispatcher.Run(workCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.API.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http server shutdown failed", zap.Error(err))
	}

	// Queued scans still drain; running ones are canceled at the deadline.
	a.Jobs.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		cancelWork()
		<-dispatched
	}

	a.Close(shutdownCtx)
	return runErr
}

// Close releases every resource Build acquired. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) {
	if a.Jobs != nil {
		a.Jobs.Close()
	}
	if err := a.Pipeline.Close(); err != nil {
		a.Logger.Warn("pipeline close failed", zap.Error(err))
	}
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPub != nil {
		a.pubsubPub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.closeBlobs != nil {
		if err := a.closeBlobs(); err != nil {
			a.Logger.Warn("blob store close failed", zap.Error(err))
		}
	}
}
