package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/progress"
)

// LogSink emits structured logs for progress streams. Scan lifecycle events
// are always logged; page and asset events are sampled one in every.
type LogSink struct {
	logger *zap.Logger
	every  int
	seen   int
}

// NewLogSink wires a Zap logger to the sink interface. every <= 1 logs all
// page and asset events.
func NewLogSink(logger *zap.Logger, every int) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if every < 1 {
		every = 1
	}
	return &LogSink{logger: logger.Named("progress"), every: every}
}

// Consume logs the batch. The hub calls it from a single goroutine.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePageDone, progress.StageAssetDone:
			s.seen++
			if (s.seen-1)%s.every != 0 {
				continue
			}
		}
		fields := []zap.Field{
			zap.String("scan_id", evt.ScanUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Site != "" {
			fields = append(fields, zap.String("site", evt.Site))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		switch evt.Stage {
		case progress.StagePageDone:
			fields = append(fields, zap.Int("depth", evt.Depth))
		case progress.StageAssetDone:
			fields = append(fields,
				zap.Int64("bytes", evt.Bytes),
				zap.String("status_class", string(evt.StatusClass)),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageScanError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
