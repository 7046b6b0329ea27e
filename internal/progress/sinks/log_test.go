package sinks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/brandscan/internal/progress"
)

func TestLogSinkSamplesPageEvents(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core), 2)
	scanID := progress.UUIDToBytes(uuid.New())

	batch := []progress.Event{{ScanID: scanID, Stage: progress.StageScanStart}}
	for range 4 {
		batch = append(batch, progress.Event{ScanID: scanID, Stage: progress.StagePageDone, Site: "brand.example"})
	}
	batch = append(batch, progress.Event{ScanID: scanID, Stage: progress.StageScanError, Note: "boom"})

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.WarnLevel, entries[3].Level)
	require.Equal(t, "boom", entries[3].ContextMap()["note"])
	require.Equal(t, uuid.UUID(scanID).String(), entries[0].ContextMap()["scan_id"])
}
