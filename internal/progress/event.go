// Package progress defines the event structures emitted while scans run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageScanStart Stage = "SCAN_START"
	StagePageDone  Stage = "PAGE_DONE"
	StageAssetDone Stage = "ASSET_DONE"
	StageScanDone  Stage = "SCAN_DONE"
	StageScanError Stage = "SCAN_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for asset fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single step of scan progress.
type Event struct {
	// ScanID identifies the scan using the 16-byte UUID form.
	ScanID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site scopes page and asset events to a host label.
	Site string
	// URL is the optional page or asset URL.
	URL string
	// Depth is the crawl depth of a page.
	Depth int
	// Pages increments by one for each sampled page.
	Pages int64
	// Bytes is the size of a fetched asset.
	Bytes int64
	// StatusClass groups the HTTP status of an asset fetch.
	StatusClass StatusClass
	// Dur is the page, asset or scan latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ScanID == [16]byte{} {
		return errors.New("scan id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScanStart, StageScanDone, StageScanError:
	case StagePageDone:
		if e.Site == "" {
			return errors.New("page done requires site")
		}
	case StageAssetDone:
		if e.Site == "" {
			return errors.New("asset done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("asset done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ScanUUID converts the binary scan ID to uuid.UUID.
func (e Event) ScanUUID() uuid.UUID {
	return uuid.UUID(e.ScanID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for asset events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
