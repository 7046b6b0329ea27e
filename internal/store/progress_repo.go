package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// RunStatus is the lifecycle state recorded from progress events.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ScanProgress is the live view of one scan.
type ScanProgress struct {
	ScanID     uuid.UUID  `json:"scan_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// LastURL is the most recent page or asset reported.
	LastURL      string      `json:"last_url,omitempty"`
	Pages        int64       `json:"pages"`
	Assets       int64       `json:"assets"`
	Bytes        int64       `json:"bytes"`
	ErrorMessage *string     `json:"error,omitempty"`
	Sites        []SiteStats `json:"sites,omitempty"`
}

// SiteStats aggregates page and asset activity per host.
type SiteStats struct {
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Pages      int64     `json:"pages"`
	Assets     int64     `json:"assets"`
	BytesTotal int64     `json:"bytes_total"`
	Fetch2xx   int64     `json:"fetch_2xx"`
	Fetch3xx   int64     `json:"fetch_3xx"`
	Fetch4xx   int64     `json:"fetch_4xx"`
	Fetch5xx   int64     `json:"fetch_5xx"`
}

// SiteDelta is an increment applied to one site's counters.
type SiteDelta struct {
	Site string
	// LastURL is the latest URL seen in the batch for this site.
	LastURL string
	Pages   int64
	Assets  int64
	Bytes   int64
	// StatusClass applies to Assets.
	StatusClass string
	At          time.Time
}

// ProgressRepository persists incremental scan progress.
type ProgressRepository interface {
	// MarkStarted records the start of a scan. Repeated calls are idempotent.
	MarkStarted(ctx context.Context, scanID uuid.UUID, startedAt time.Time) error
	// MarkFinished records the terminal status and optional error.
	MarkFinished(ctx context.Context, scanID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// ApplySiteDelta adds page and asset counters for one site.
	ApplySiteDelta(ctx context.Context, scanID uuid.UUID, delta SiteDelta) error
	// GetProgress loads the progress view or returns ErrNotFound.
	GetProgress(ctx context.Context, scanID uuid.UUID) (ScanProgress, error)
}
