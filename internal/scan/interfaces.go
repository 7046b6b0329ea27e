package scan

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/JakeFAU/brandscan/internal/crawler"
)

// Store errors.
var (
	ErrNotFound = errors.New("scan not found")
	ErrExists   = errors.New("scan already exists")

	// ErrFinished rejects status changes to a scan in a terminal state.
	ErrFinished = errors.New("scan already finished")

	// ErrQueueClosed is returned by Queue.Dequeue once no more work will arrive.
	ErrQueueClosed = errors.New("scan queue closed")
)

// Browser is the guarded rendering session. *browser.Session satisfies it.
type Browser interface {
	crawler.Navigator
	ValidateURL(ctx context.Context, raw string) (*url.URL, error)
}

// Store persists scan records and results. UpdateStatus never moves a scan
// out of a terminal state.
type Store interface {
	CreateScan(ctx context.Context, record Record) error
	UpdateStatus(ctx context.Context, scanID string, status Status, errText string) error
	SaveResult(ctx context.Context, scanID string, result Result, artifacts []Artifact) error
	GetScan(ctx context.Context, scanID string) (Record, error)
	GetResult(ctx context.Context, scanID string) (Result, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scans.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests of stored artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
