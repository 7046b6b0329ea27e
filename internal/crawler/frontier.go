package crawler

import (
	"context"
	"sync"
	"time"
)

// pageSet holds the normalized page URLs already queued in one crawl, so a
// page linked from several places is sampled once.
type pageSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newPageSet() *pageSet {
	return &pageSet{urls: make(map[string]struct{})}
}

// Claim records pageURL and reports whether this call was the first to see it.
func (s *pageSet) Claim(pageURL string) bool {
	if pageURL == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[pageURL]; ok {
		return false
	}
	s.urls[pageURL] = struct{}{}
	return true
}

// Len is the number of claimed pages.
func (s *pageSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// retryWaiter waits between robots.txt retries.
type retryWaiter interface {
	Sleep(ctx context.Context, delay time.Duration)
}

type ctxBackoff struct{}

// Sleep returns after delay or as soon as ctx ends.
func (ctxBackoff) Sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
