package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/progress"
	"github.com/JakeFAU/brandscan/internal/store"
)

// StoreSink persists progress via a store.ProgressRepository. Page and asset
// events are collapsed per (scan, site, status class) before writing.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies lifecycle events in order and site deltas once per batch.
// Repository errors are returned wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[deltaKey]*store.SiteDelta)
	var order []deltaKey

	for _, evt := range batch {
		scanID := evt.ScanUUID()
		switch evt.Stage {
		case progress.StageScanStart:
			if err := s.repo.MarkStarted(ctx, scanID, evt.TS); err != nil {
				return fmt.Errorf("mark scan started: %w", err)
			}
		case progress.StagePageDone, progress.StageAssetDone:
			key := deltaKey{scanID: scanID, site: evt.Site, statusClass: string(evt.StatusClass)}
			d, ok := deltas[key]
			if !ok {
				d = &store.SiteDelta{Site: evt.Site, StatusClass: key.statusClass}
				deltas[key] = d
				order = append(order, key)
			}
			if evt.Stage == progress.StagePageDone {
				d.Pages += max(evt.Pages, 1)
			} else {
				d.Assets++
				d.Bytes += evt.Bytes
			}
			if evt.URL != "" {
				d.LastURL = evt.URL
			}
			if d.At.IsZero() || evt.TS.After(d.At) {
				d.At = evt.TS
			}
		}
	}

	// Deltas are flushed before terminal events so a finished scan carries
	// its final counters.
	for _, key := range order {
		if err := s.repo.ApplySiteDelta(ctx, key.scanID, *deltas[key]); err != nil {
			return fmt.Errorf("apply site delta: %w", err)
		}
	}

	for _, evt := range batch {
		var status store.RunStatus
		switch evt.Stage {
		case progress.StageScanDone:
			status = store.RunSuccess
		case progress.StageScanError:
			status = store.RunError
		default:
			continue
		}
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.MarkFinished(ctx, evt.ScanUUID(), evt.TS, status, note); err != nil {
			return fmt.Errorf("mark scan finished: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type deltaKey struct {
	scanID      uuid.UUID
	site        string
	statusClass string
}
