package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/store"
)

const progressTimeout = 3 * time.Second

// ProgressHandler exposes the live progress view of scans.
type ProgressHandler struct {
	repo    store.ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo store.ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger.Named("progress_api"),
	}
}

// GetProgress handles GET /v1/scans/{scan_id}/progress. It returns
// {"progress": {...}} on success, 400 for malformed IDs, 404 when nothing has
// been reported yet, 503 without a repository and 500 otherwise.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	scanID, err := parseScanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	progress, err := h.repo.GetProgress(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no progress recorded")
			return
		}
		h.logger.Error("get progress failed", zap.String("scan_id", scanID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
}

func parseScanID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "scan_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("scan_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid scan_id")
	}
	return id, nil
}
