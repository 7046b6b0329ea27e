package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/metrics"
	"github.com/JakeFAU/brandscan/internal/queue"
	queuemem "github.com/JakeFAU/brandscan/internal/queue/memory"
	"github.com/JakeFAU/brandscan/internal/scan"
)

const (
	requestTimeout = 60 * time.Second
	enqueueTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// Export names served from a finished scan.
const (
	ExportCSS         = "theme.css"
	ExportThemeConfig = "theme.config.js"
	ExportTokens      = "tokens.json"
)

// Enqueuer submits scans to the workers. *dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scan.QueueItem) error
}

// Canceler stops a running scan. *worker.Registry satisfies it.
type Canceler interface {
	Cancel(scanID string) bool
}

// Deps are the collaborators of the Server. Progress, Canceler and Ready are
// optional.
type Deps struct {
	Store    scan.Store
	Progress *ProgressHandler
	Queue    Enqueuer
	Canceler Canceler
	IDs      scan.IDGenerator
	Clock    scan.Clock
	// Ready reports whether downstream dependencies can take work.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/scans", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/", s.submitScan)
		r.Route("/{scan_id}", func(r chi.Router) {
			r.Get("/status", s.getStatus)
			r.Get("/result", s.getResult)
			r.Get("/exports/{name}", s.getExport)
			r.Post("/cancel", s.cancelScan)
			if deps.Progress != nil {
				r.Get("/progress", deps.Progress.GetProgress)
			}
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL           string `json:"url" validate:"required,http_url,max=2048"`
	MaxDepth      *int   `json:"max_depth" validate:"omitempty,min=0,max=5"`
	MaxPages      *int   `json:"max_pages" validate:"omitempty,min=1,max=100"`
	TimeoutMs     *int   `json:"timeout_ms" validate:"omitempty,min=100,max=300000"`
	RespectRobots *bool  `json:"respect_robots"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	req := s.toRequest(body)
	scanID, err := s.enqueue(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, queuemem.ErrFull), errors.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, "scan queue is full")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusRequestTimeout, err.Error())
		default:
			s.logger.Error("submit scan failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to submit scan")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"scan_id": scanID,
		"status":  string(scan.StatusQueued),
	})
}

func (s *Server) toRequest(body submitRequest) scan.Request {
	req := scan.Request{
		URL:           body.URL,
		MaxDepth:      valueOrDefault(body.MaxDepth, s.cfg.Crawler.MaxDepthDefault),
		MaxPages:      valueOrDefault(body.MaxPages, s.cfg.Crawler.MaxPagesDefault),
		RespectRobots: valueOrDefault(body.RespectRobots, s.cfg.Crawler.RespectRobots),
		Timeout:       s.cfg.TaskTimeout(),
	}
	if body.TimeoutMs != nil {
		req.Timeout = time.Duration(*body.TimeoutMs) * time.Millisecond
	}
	return req
}

func (s *Server) enqueue(ctx context.Context, req scan.Request) (string, error) {
	scanID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate scan id: %w", err)
	}
	req.ID = scanID
	now := s.deps.Clock.Now()
	record := scan.Record{
		ID:        scanID,
		Status:    scan.StatusQueued,
		Request:   req,
		Submitted: now,
	}
	if err := s.deps.Store.CreateScan(ctx, record); err != nil {
		return "", fmt.Errorf("create scan: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := scan.QueueItem{ScanID: scanID, Request: req, Attempt: 1, Submitted: now.Unix()}
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		if updErr := s.deps.Store.UpdateStatus(ctx, scanID, scan.StatusFailed, "not enqueued: "+err.Error()); updErr != nil {
			s.logger.Warn("mark unqueued scan failed", zap.String("scan_id", scanID), zap.Error(updErr))
		}
		return "", fmt.Errorf("enqueue scan: %w", err)
	}
	s.logger.Info("scan submitted", zap.String("scan_id", scanID), zap.String("url", req.URL))
	return scanID, nil
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadScan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan": rec})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var contentType string
	switch name {
	case ExportCSS:
		contentType = "text/css; charset=utf-8"
	case ExportThemeConfig:
		contentType = "text/javascript; charset=utf-8"
	case ExportTokens:
		contentType = "application/json"
	default:
		writeError(w, http.StatusNotFound, "unknown export")
		return
	}
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	var body []byte
	switch name {
	case ExportCSS:
		body = []byte(result.CSSVarsExport)
	case ExportThemeConfig:
		body = []byte(result.ThemeConfigExport)
	default:
		var err error
		if body, err = json.MarshalIndent(result.Tokens, "", "  "); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode tokens")
			return
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("write export failed", zap.Error(err))
	}
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadScan(w, r)
	if !ok {
		return
	}
	if rec.Status.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "scan already finished",
			"status": string(rec.Status),
		})
		return
	}
	err := s.deps.Store.UpdateStatus(r.Context(), rec.ID, scan.StatusCanceled, "canceled via API")
	if errors.Is(err, scan.ErrFinished) {
		writeError(w, http.StatusConflict, "scan already finished")
		return
	}
	if err != nil {
		s.logger.Error("cancel scan failed", zap.String("scan_id", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel scan")
		return
	}
	running := false
	if s.deps.Canceler != nil {
		running = s.deps.Canceler.Cancel(rec.ID)
	}
	s.logger.Info("scan canceled", zap.String("scan_id", rec.ID), zap.Bool("was_running", running))
	writeJSON(w, http.StatusOK, map[string]string{"scan_id": rec.ID, "status": string(scan.StatusCanceled)})
}

func (s *Server) loadScan(w http.ResponseWriter, r *http.Request) (scan.Record, bool) {
	scanID := chi.URLParam(r, "scan_id")
	rec, err := s.deps.Store.GetScan(r.Context(), scanID)
	if errors.Is(err, scan.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return scan.Record{}, false
	}
	if err != nil {
		s.logger.Error("load scan failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return scan.Record{}, false
	}
	return rec, true
}

// loadResult writes 409 while the scan has no result yet.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) (scan.Result, bool) {
	rec, ok := s.loadScan(w, r)
	if !ok {
		return scan.Result{}, false
	}
	if rec.Status != scan.StatusSucceeded {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "scan has no result",
			"status": string(rec.Status),
		})
		return scan.Result{}, false
	}
	result, err := s.deps.Store.GetResult(r.Context(), rec.ID)
	if err != nil {
		s.logger.Error("load result failed", zap.String("scan_id", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return scan.Result{}, false
	}
	return result, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := map[string]string{
		"URL":       "url",
		"MaxDepth":  "max_depth",
		"MaxPages":  "max_pages",
		"TimeoutMs": "timeout_ms",
	}[fe.Field()]
	if field == "" {
		field = fe.Field()
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Debug("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
