package crawler

import (
	"net/http"
	"time"
)

// Options bound a single crawl.
type Options struct {
	// MaxDepth is the deepest link level visited; 0 visits only the entry page.
	MaxDepth int
	// MaxPages caps both visited and discovered URLs.
	MaxPages int
	// RespectRobots enables robots.txt checks for every dequeued URL.
	RespectRobots bool
	// PageTimeout overrides Config.PageTimeout for this crawl when positive.
	PageTimeout time.Duration
}

// Page is one crawled document.
type Page struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url"`
	Depth     int       `json:"depth"`
	HTML      string    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SkipReason explains why a URL was not crawled.
type SkipReason string

// Skip reasons reported in Result.
const (
	SkipRobots SkipReason = "robots"
	SkipFailed SkipReason = "failed"
)

// Skipped records a URL that was dequeued but not crawled.
type Skipped struct {
	URL    string     `json:"url"`
	Depth  int        `json:"depth"`
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// RobotsStatus describes how robots.txt was applied.
type RobotsStatus string

// Robots status values.
const (
	RobotsStatusIgnored     RobotsStatus = "ignored"
	RobotsStatusApplied     RobotsStatus = "applied"
	RobotsStatusUnavailable RobotsStatus = "unavailable"
)

// Result is the outcome of a crawl, pages in visit order.
type Result struct {
	Pages        []Page       `json:"pages"`
	Skipped      []Skipped    `json:"skipped,omitempty"`
	Discovered   int          `json:"discovered"`
	RobotsStatus RobotsStatus `json:"robots_status"`
}

// FetchRequest captures everything needed for a plain HTTP fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}
