package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/brandscan/internal/scan"
	"github.com/JakeFAU/brandscan/internal/store"
)

// ScanStore keeps scan records, results and live progress in memory. It
// implements scan.Store and store.ProgressRepository.
type ScanStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	scans    map[string]scan.Record
	results  map[string]scan.Result
	progress map[uuid.UUID]*store.ScanProgress
}

// NewScanStore constructs a ScanStore.
func NewScanStore() *ScanStore {
	return &ScanStore{
		now:      func() time.Time { return time.Now().UTC() },
		scans:    make(map[string]scan.Record),
		results:  make(map[string]scan.Result),
		progress: make(map[uuid.UUID]*store.ScanProgress),
	}
}

// CreateScan stores a new scan record.
func (s *ScanStore) CreateScan(_ context.Context, record scan.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[record.ID]; exists {
		return fmt.Errorf("create scan %s: %w", record.ID, scan.ErrExists)
	}
	if record.Status == "" {
		record.Status = scan.StatusQueued
	}
	s.scans[record.ID] = record
	return nil
}

// UpdateStatus moves a scan to status. Started and Finished are stamped on
// the first transition into running and into a terminal state.
func (s *ScanStore) UpdateStatus(_ context.Context, scanID string, status scan.Status, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("update scan %s: %w", scanID, scan.ErrNotFound)
	}
	if record.Status.Terminal() {
		return fmt.Errorf("update scan %s to %s: %w", scanID, status, scan.ErrFinished)
	}
	record.Status = status
	record.ErrorText = errText
	now := s.now()
	if status == scan.StatusRunning && record.Started == nil {
		record.Started = pointerTime(now)
	}
	if status.Terminal() {
		record.Finished = pointerTime(now)
	}
	s.scans[scanID] = record
	return nil
}

// SaveResult stores the result and artifacts and marks the scan succeeded.
func (s *ScanStore) SaveResult(_ context.Context, scanID string, result scan.Result, artifacts []scan.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("save result %s: %w", scanID, scan.ErrNotFound)
	}
	if record.Status.Terminal() {
		return fmt.Errorf("save result %s: %w", scanID, scan.ErrFinished)
	}
	record.Status = scan.StatusSucceeded
	record.ErrorText = ""
	record.Finished = pointerTime(s.now())
	record.Artifacts = slices.Clone(artifacts)
	record.Counters.PagesScanned = result.Coverage.PagesScanned
	s.scans[scanID] = record
	s.results[scanID] = result
	return nil
}

// GetScan fetches a scan record by ID.
func (s *ScanStore) GetScan(_ context.Context, scanID string) (scan.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.scans[scanID]
	if !ok {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", scanID, scan.ErrNotFound)
	}
	record.Artifacts = slices.Clone(record.Artifacts)
	return record, nil
}

// GetResult fetches the result of a succeeded scan.
func (s *ScanStore) GetResult(_ context.Context, scanID string) (scan.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[scanID]
	if !ok {
		return scan.Result{}, fmt.Errorf("get result %s: %w", scanID, scan.ErrNotFound)
	}
	return result, nil
}

// MarkStarted implements store.ProgressRepository.
func (s *ScanStore) MarkStarted(_ context.Context, scanID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progressFor(scanID)
	if p.StartedAt.IsZero() {
		p.StartedAt = startedAt
	}
	if p.Status == "" {
		p.Status = store.RunRunning
	}
	return nil
}

// MarkFinished implements store.ProgressRepository.
func (s *ScanStore) MarkFinished(
	_ context.Context,
	scanID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progressFor(scanID)
	p.Status = status
	p.FinishedAt = pointerTime(finishedAt)
	if errMsg != nil {
		msg := *errMsg
		p.ErrorMessage = &msg
	}
	return nil
}

// ApplySiteDelta implements store.ProgressRepository. Counters also flow into
// the scan record so status queries see live totals.
func (s *ScanStore) ApplySiteDelta(_ context.Context, scanID uuid.UUID, delta store.SiteDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progressFor(scanID)
	if p.Status == "" {
		p.Status = store.RunRunning
	}
	p.Pages += delta.Pages
	p.Assets += delta.Assets
	p.Bytes += delta.Bytes
	if delta.LastURL != "" {
		p.LastURL = delta.LastURL
	}

	i := slices.IndexFunc(p.Sites, func(st store.SiteStats) bool { return st.Site == delta.Site })
	if i < 0 {
		p.Sites = append(p.Sites, store.SiteStats{Site: delta.Site})
		i = len(p.Sites) - 1
	}
	site := &p.Sites[i]
	site.Pages += delta.Pages
	site.Assets += delta.Assets
	site.BytesTotal += delta.Bytes
	switch delta.StatusClass {
	case "2xx":
		site.Fetch2xx += delta.Assets
	case "3xx":
		site.Fetch3xx += delta.Assets
	case "4xx":
		site.Fetch4xx += delta.Assets
	case "5xx":
		site.Fetch5xx += delta.Assets
	}
	if delta.At.After(site.LastUpdate) {
		site.LastUpdate = delta.At
	}

	if record, ok := s.scans[scanID.String()]; ok {
		record.Counters.PagesScanned += int(delta.Pages)
		record.Counters.AssetsFetched += int(delta.Assets)
		s.scans[scanID.String()] = record
	}
	return nil
}

// GetProgress implements store.ProgressRepository.
func (s *ScanStore) GetProgress(_ context.Context, scanID uuid.UUID) (store.ScanProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[scanID]
	if !ok {
		return store.ScanProgress{}, fmt.Errorf("get progress %s: %w", scanID, store.ErrNotFound)
	}
	out := *p
	out.Sites = slices.Clone(p.Sites)
	return out, nil
}

func (s *ScanStore) progressFor(scanID uuid.UUID) *store.ScanProgress {
	p, ok := s.progress[scanID]
	if !ok {
		p = &store.ScanProgress{ScanID: scanID}
		s.progress[scanID] = p
	}
	return p
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
