package crawler

import (
	"context"

	"github.com/JakeFAU/brandscan/internal/browser"
)

// Navigator renders pages. *browser.Session satisfies it.
type Navigator interface {
	SafeRequest(ctx context.Context, opts browser.RequestOptions, task browser.PageTask) error
}

// Fetcher performs plain HTTP GETs for robots.txt and static assets.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Visitor is called for each crawled page while its browser page is still
// open. A returned error marks the page as failed.
type Visitor func(ctx context.Context, page browser.Page, crawled Page) error

// RobotsPolicy answers whether a URL may be crawled.
type RobotsPolicy interface {
	Allowed(rawURL string) bool
}
