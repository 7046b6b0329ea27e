// Package worker runs queued scans and persists their artifacts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/scan"
)

// Artifact names written for every successful scan.
const (
	ArtifactTokens      = "tokens.json"
	ArtifactCSS         = "theme.css"
	ArtifactThemeConfig = "theme.config.js"
)

// Runner executes one scan. *scan.Scanner satisfies it.
type Runner interface {
	Scan(ctx context.Context, req scan.Request) (scan.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix string
	// Topic receives completion messages; empty disables publishing.
	Topic string
}

// Registry tracks cancel functions of running scans.
type Registry struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]context.CancelFunc)}
}

func (r *Registry) add(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.running[id] = cancel
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Cancel cancels the running scan and reports whether one was found.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports how many scans are in flight.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Worker consumes queue items and executes scans.
type Worker struct {
	queue     scan.Queue
	store     scan.Store
	runner    Runner
	blobStore scan.BlobStore
	publisher scan.Publisher
	hasher    scan.Hasher
	registry  *Registry
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil; a nil registry disables
// cancellation of running scans.
func New(
	queue scan.Queue,
	store scan.Store,
	runner Runner,
	blobStore scan.BlobStore,
	publisher scan.Publisher,
	hasher scan.Hasher,
	registry *Registry,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Worker{
		queue:     queue,
		store:     store,
		runner:    runner,
		blobStore: blobStore,
		publisher: publisher,
		hasher:    hasher,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, scan.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued scan", zap.String("scan_id", item.ScanID))
		w.processScan(ctx, item)
	}
}

func (w *Worker) processScan(ctx context.Context, item scan.QueueItem) {
	logger := w.logger.With(zap.String("scan_id", item.ScanID))
	rec, err := w.store.GetScan(ctx, item.ScanID)
	if err != nil {
		logger.Error("load scan failed", zap.Error(err))
		return
	}
	if rec.Status.Terminal() {
		logger.Info("skipping finished scan", zap.String("status", string(rec.Status)))
		return
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.registry.add(item.ScanID, cancel)
	defer w.registry.remove(item.ScanID)

	if err := w.store.UpdateStatus(ctx, item.ScanID, scan.StatusRunning, ""); err != nil {
		logger.Warn("mark scan running failed", zap.Error(err))
		return
	}

	req := item.Request
	req.ID = item.ScanID
	result, err := w.runner.Scan(scanCtx, req)
	if err != nil {
		w.finishWithError(ctx, item, err)
		return
	}

	artifacts, err := w.storeArtifacts(ctx, item.ScanID, result)
	if err != nil {
		w.finishWithError(ctx, item, err)
		return
	}
	if err := w.store.SaveResult(ctx, item.ScanID, result, artifacts); err != nil {
		if errors.Is(err, scan.ErrFinished) {
			logger.Info("scan finished elsewhere before its result was saved")
			return
		}
		logger.Error("save result failed", zap.Error(err))
		return
	}
	logger.Info("scan succeeded",
		zap.Int("pages", result.Coverage.PagesScanned),
		zap.Int("logos", result.Coverage.LogosFound),
		zap.Int("artifacts", len(artifacts)),
	)
	w.publish(ctx, scan.Completion{
		ScanID:    item.ScanID,
		URL:       result.URL,
		Status:    scan.StatusSucceeded,
		Coverage:  result.Coverage,
		Artifacts: artifacts,
	})
}

func (w *Worker) finishWithError(ctx context.Context, item scan.QueueItem, cause error) {
	logger := w.logger.With(zap.String("scan_id", item.ScanID))
	status := scan.StatusFailed
	if errors.Is(cause, context.Canceled) {
		status = scan.StatusCanceled
	}
	if err := w.store.UpdateStatus(ctx, item.ScanID, status, cause.Error()); err != nil {
		if errors.Is(err, scan.ErrFinished) {
			logger.Info("scan already finished", zap.NamedError("cause", cause))
			return
		}
		logger.Error("update scan status failed", zap.Error(err))
		return
	}
	logger.Warn("scan did not succeed", zap.String("status", string(status)), zap.Error(cause))
	w.publish(ctx, scan.Completion{
		ScanID:    item.ScanID,
		URL:       item.Request.URL,
		Status:    status,
		ErrorText: cause.Error(),
	})
}

func (w *Worker) storeArtifacts(ctx context.Context, scanID string, result scan.Result) ([]scan.Artifact, error) {
	if w.blobStore == nil {
		return nil, nil
	}
	tokensJSON, err := json.MarshalIndent(result.Tokens, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tokens: %w", err)
	}
	files := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{ArtifactTokens, "application/json", tokensJSON},
		{ArtifactCSS, "text/css; charset=utf-8", []byte(result.CSSVarsExport)},
		{ArtifactThemeConfig, "text/javascript; charset=utf-8", []byte(result.ThemeConfigExport)},
	}
	artifacts := make([]scan.Artifact, 0, len(files))
	for _, f := range files {
		digest := ""
		if w.hasher != nil {
			if digest, err = w.hasher.Hash(f.data); err != nil {
				return nil, fmt.Errorf("hash %s: %w", f.name, err)
			}
		}
		uri, err := w.blobStore.PutObject(ctx, w.BlobPath(scanID, f.name), f.contentType, f.data)
		if err != nil {
			return nil, fmt.Errorf("put %s: %w", f.name, err)
		}
		artifacts = append(artifacts, scan.Artifact{Name: f.name, URI: uri, Digest: digest})
	}
	return artifacts, nil
}

// BlobPath returns the object path of a scan artifact.
func (w *Worker) BlobPath(scanID, name string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", scanID, name)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, scanID, name)
}

func (w *Worker) publish(ctx context.Context, completion scan.Completion) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, completion)
	if err != nil {
		w.logger.Warn("publish completion failed", zap.String("scan_id", completion.ScanID), zap.Error(err))
		return
	}
	w.logger.Debug("completion published",
		zap.String("scan_id", completion.ScanID),
		zap.String("message_id", id),
		zap.String("status", string(completion.Status)),
	)
}
