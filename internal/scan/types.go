package scan

import (
	"time"

	"github.com/JakeFAU/brandscan/internal/crawler"
	"github.com/JakeFAU/brandscan/internal/tokens"
	"github.com/JakeFAU/brandscan/internal/wcag"
)

// Status represents the lifecycle state of a scan.
type Status string

// Scan status values persisted in the scan store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Request describes one scan.
type Request struct {
	// ID labels progress events. It should be a UUID; other values disable
	// progress reporting.
	ID            string        `json:"id,omitempty"`
	URL           string        `json:"url"`
	MaxDepth      int           `json:"max_depth"`
	MaxPages      int           `json:"max_pages"`
	Timeout       time.Duration `json:"timeout"`
	RespectRobots bool          `json:"respect_robots"`
}

// Coverage summarizes how much of the site contributed to the result.
type Coverage struct {
	PagesScanned    int `json:"pages_scanned"`
	PagesSkipped    int `json:"pages_skipped"`
	ColorsExtracted int `json:"colors_extracted"`
	LogosFound      int `json:"logos_found"`
	WCAGIssues      int `json:"wcag_issues"`
}

// LogoAsset is a fetched brand image. Hash is empty when the image could not
// be decoded.
type LogoAsset struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       int    `json:"bytes"`
	Hash        string `json:"perceptual_hash"`
}

// PageSummary records one scanned page.
type PageSummary struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Depth    int    `json:"depth"`
	Title    string `json:"title,omitempty"`
}

// Result is the output envelope of a scan.
type Result struct {
	URL               string                 `json:"url"`
	Tokens            tokens.ThemeTokens     `json:"tokens"`
	Coverage          Coverage               `json:"coverage"`
	WCAGReport        map[string]wcag.Report `json:"wcag_report"`
	CSSVarsExport     string                 `json:"css_vars_export"`
	ThemeConfigExport string                 `json:"theme_config_export"`
	Logos             []LogoAsset            `json:"logos"`
	Pages             []PageSummary          `json:"pages"`
	Skipped           []crawler.Skipped      `json:"skipped,omitempty"`
	RobotsStatus      crawler.RobotsStatus   `json:"robots_status"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
}

// Counters tracks scan progress for status queries.
type Counters struct {
	PagesScanned  int `json:"pages_scanned"`
	AssetsFetched int `json:"assets_fetched"`
}

// Artifact is a stored export of a finished scan.
type Artifact struct {
	Name   string `json:"name"`
	URI    string `json:"uri"`
	Digest string `json:"digest"`
}

// Record is the persisted metadata of a submitted scan.
type Record struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	Request   Request    `json:"request"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Counters  Counters   `json:"counters"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// QueueItem wraps a scan ready to run.
type QueueItem struct {
	ScanID    string
	Request   Request
	Attempt   int
	Submitted int64
}

// Completion is published once a scan reaches a terminal state.
type Completion struct {
	ScanID    string     `json:"scan_id"`
	URL       string     `json:"url"`
	Status    Status     `json:"status"`
	Coverage  Coverage   `json:"coverage"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
}
