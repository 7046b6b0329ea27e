package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/browser"
)

type sitePage struct {
	url  string
	html string
}

func (p *sitePage) Navigate(context.Context, string) error      { return nil }
func (p *sitePage) Evaluate(context.Context, string, any) error { return nil }
func (p *sitePage) HTML(context.Context) (string, error)        { return p.html, nil }
func (p *sitePage) URL(context.Context) (string, error)         { return p.url, nil }
func (p *sitePage) Screenshot(context.Context) ([]byte, error)  { return nil, nil }
func (p *sitePage) Close() error                                { return nil }

// fakeSite serves canned documents keyed by normalized URL.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	visits   []string
	timeouts []time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: map[string]string{}, failures: map[string]error{}}
}

func (s *fakeSite) add(url string, links ...string) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	s.pages[url] = b.String()
}

func (s *fakeSite) SafeRequest(ctx context.Context, opts browser.RequestOptions, task browser.PageTask) error {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(s.delay)

	s.mu.Lock()
	s.visits = append(s.visits, opts.URL)
	s.timeouts = append(s.timeouts, opts.Timeout)
	html, ok := s.pages[opts.URL]
	failure := s.failures[opts.URL]
	s.mu.Unlock()

	if failure != nil {
		return failure
	}
	if !ok {
		return fmt.Errorf("%w: 404 %s", browser.ErrNavigation, opts.URL)
	}
	return task(ctx, &sitePage{url: opts.URL, html: html})
}

func (s *fakeSite) visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

type fakeFetcher struct {
	status int
	body   string
	err    error
	calls  atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return FetchResponse{}, f.err
	}
	return FetchResponse{URL: req.URL, StatusCode: f.status, Body: []byte(f.body)}, nil
}

func pageURLs(pages []Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.URL)
	}
	return out
}

func TestCrawlSinglePage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/about")
	c := New(site, nil, nil, Config{}, zap.NewNop())

	res, err := c.Crawl(context.Background(), "https://brand.example", Options{MaxDepth: 0, MaxPages: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"https://brand.example/"}, pageURLs(res.Pages))
	require.Equal(t, RobotsStatusIgnored, res.RobotsStatus)
	require.Equal(t, 1, res.Discovered)
}

func TestCrawlPageTimeout(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/")
	c := New(site, nil, nil, Config{PageTimeout: 5 * time.Second}, nil)

	_, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxPages: 1}, nil)
	require.NoError(t, err)
	_, err = c.Crawl(context.Background(), "https://brand.example/", Options{MaxPages: 1, PageTimeout: time.Second}, nil)
	require.NoError(t, err)

	site.mu.Lock()
	defer site.mu.Unlock()
	require.Equal(t, []time.Duration{5 * time.Second, time.Second}, site.timeouts)
}

func TestCrawlBreadthFirstWithinBudget(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/a", "/b", "https://other.example/x", "mailto:hi@brand.example", "/a#top")
	site.add("https://brand.example/a", "/a1", "/b")
	site.add("https://brand.example/b", "/b1")
	site.add("https://brand.example/a1", "/a2")
	site.add("https://brand.example/b1")
	site.add("https://brand.example/a2")

	c := New(site, nil, nil, Config{Concurrency: 2}, zap.NewNop())
	var visitorCalls, emptyDocs atomic.Int32
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 2, MaxPages: 10},
		func(_ context.Context, _ browser.Page, p Page) error {
			visitorCalls.Add(1)
			if p.HTML == "" {
				emptyDocs.Add(1)
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://brand.example/",
		"https://brand.example/a",
		"https://brand.example/b",
		"https://brand.example/a1",
		"https://brand.example/b1",
	}, pageURLs(res.Pages))
	require.Equal(t, int32(5), visitorCalls.Load())
	require.Zero(t, emptyDocs.Load())
	for _, p := range res.Pages {
		require.LessOrEqual(t, p.Depth, 2)
	}
	require.NotContains(t, site.visited(), "https://brand.example/a2", "depth 3 must not be visited")
	require.NotContains(t, site.visited(), "https://other.example/x")
}

func TestCrawlNeverExceedsMaxPages(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	links := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://brand.example/p%d", i)
		links = append(links, u)
		site.add(u, "/")
	}
	site.add("https://brand.example/", links...)

	c := New(site, nil, nil, Config{Concurrency: 3}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 3, MaxPages: 4}, nil)
	require.NoError(t, err)
	require.Len(t, res.Pages, 4)
	require.Len(t, site.visited(), 4)
	require.LessOrEqual(t, res.Discovered, 4)
	require.Equal(t, "https://brand.example/p0", res.Pages[1].URL)
}

func TestCrawlBoundsConcurrency(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.delay = 20 * time.Millisecond
	links := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		u := fmt.Sprintf("https://brand.example/p%d", i)
		links = append(links, u)
		site.add(u)
	}
	site.add("https://brand.example/", links...)

	c := New(site, nil, nil, Config{Concurrency: 2}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 1, MaxPages: 9}, nil)
	require.NoError(t, err)
	require.Len(t, res.Pages, 9)
	require.LessOrEqual(t, site.peak.Load(), int32(2))
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/broken", "/ok")
	site.add("https://brand.example/ok")
	site.failures["https://brand.example/broken"] = errors.New("net::ERR_CONNECTION_RESET")

	c := New(site, nil, nil, Config{}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 1, MaxPages: 5}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"https://brand.example/", "https://brand.example/ok"}, pageURLs(res.Pages))
	require.Len(t, res.Skipped, 1)
	require.Equal(t, SkipFailed, res.Skipped[0].Reason)
	require.Equal(t, "https://brand.example/broken", res.Skipped[0].URL)
}

func TestCrawlEntryFailureAborts(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	c := New(site, nil, nil, Config{}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 1, MaxPages: 5}, nil)
	require.ErrorIs(t, err, ErrEntryUnreachable)
	require.ErrorIs(t, err, browser.ErrNavigation)
	require.Empty(t, res.Pages)
}

func TestCrawlRejectsBadOptions(t *testing.T) {
	t.Parallel()

	c := New(newFakeSite(), nil, nil, Config{}, zap.NewNop())
	_, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: -1, MaxPages: 1}, nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = c.Crawl(context.Background(), "https://brand.example/", Options{MaxPages: 0}, nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = c.Crawl(context.Background(), "/relative", Options{MaxPages: 1}, nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCrawlRobotsDisallowSkipsPrivate(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/private/page", "/public")
	site.add("https://brand.example/private/page")
	site.add("https://brand.example/public")
	fetcher := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\n"}

	c := New(site, fetcher, nil, Config{}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/",
		Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
	require.NoError(t, err)
	require.Equal(t, RobotsStatusApplied, res.RobotsStatus)
	require.Equal(t, []string{"https://brand.example/", "https://brand.example/public"}, pageURLs(res.Pages))
	require.NotContains(t, site.visited(), "https://brand.example/private/page")
	require.Equal(t, []Skipped{{URL: "https://brand.example/private/page", Depth: 1, Reason: SkipRobots}}, res.Skipped)
	require.Equal(t, int32(1), fetcher.calls.Load())
}

func TestCrawlRobotsFallback(t *testing.T) {
	t.Parallel()

	newSite := func() *fakeSite {
		site := newFakeSite()
		site.add("https://brand.example/", "/about")
		site.add("https://brand.example/about")
		return site
	}
	unreachable := &fakeFetcher{err: errors.New("connection refused")}

	allowSite := newSite()
	allow := New(allowSite, unreachable, nil, Config{RobotsFallback: RobotsFallbackAllow}, zap.NewNop())
	res, err := allow.Crawl(context.Background(), "https://brand.example/",
		Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
	require.NoError(t, err)
	require.Equal(t, RobotsStatusUnavailable, res.RobotsStatus)
	require.Len(t, res.Pages, 2)

	denySite := newSite()
	deny := New(denySite, unreachable, nil, Config{RobotsFallback: RobotsFallbackDeny}, zap.NewNop())
	res, err = deny.Crawl(context.Background(), "https://brand.example/",
		Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"https://brand.example/"}, pageURLs(res.Pages))
}

func TestCrawlRobotsServerErrorAppliesFallback(t *testing.T) {
	t.Parallel()

	newSite := func() *fakeSite {
		site := newFakeSite()
		site.add("https://brand.example/", "/about")
		site.add("https://brand.example/about")
		return site
	}

	for _, status := range []int{500, 503, 302} {
		allowSite := newSite()
		allow := New(allowSite, &fakeFetcher{status: status}, nil,
			Config{RobotsFallback: RobotsFallbackAllow}, zap.NewNop())
		res, err := allow.Crawl(context.Background(), "https://brand.example/",
			Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
		require.NoError(t, err)
		require.Equal(t, RobotsStatusUnavailable, res.RobotsStatus, "status %d", status)
		require.Len(t, res.Pages, 2, "status %d", status)
		require.Empty(t, res.Skipped, "status %d", status)

		denySite := newSite()
		deny := New(denySite, &fakeFetcher{status: status}, nil,
			Config{RobotsFallback: RobotsFallbackDeny}, zap.NewNop())
		res, err = deny.Crawl(context.Background(), "https://brand.example/",
			Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
		require.NoError(t, err)
		require.Equal(t, RobotsStatusUnavailable, res.RobotsStatus, "status %d", status)
		require.Equal(t, []string{"https://brand.example/"}, pageURLs(res.Pages), "status %d", status)
	}
}

func TestCrawlRobotsNotFoundAllowsAll(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/about")
	site.add("https://brand.example/about")
	c := New(site, &fakeFetcher{status: 404}, nil, Config{RobotsFallback: RobotsFallbackDeny}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/",
		Options{MaxDepth: 1, MaxPages: 5, RespectRobots: true}, nil)
	require.NoError(t, err)
	require.Equal(t, RobotsStatusApplied, res.RobotsStatus)
	require.Len(t, res.Pages, 2)
}

func TestCrawlVisitorErrorSkipsPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/a")
	site.add("https://brand.example/a")
	c := New(site, nil, nil, Config{}, zap.NewNop())
	res, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 1, MaxPages: 5},
		func(_ context.Context, _ browser.Page, p Page) error {
			if p.URL == "https://brand.example/a" {
				return errors.New("sampling failed")
			}
			return nil
		})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	require.Len(t, res.Skipped, 1)
}

type countingLimiter struct {
	calls atomic.Int32
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return nil
}

func TestCrawlWaitsOnLimiterPerPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/a", "/b")
	site.add("https://brand.example/a")
	site.add("https://brand.example/b")
	limiter := &countingLimiter{}
	c := New(site, nil, limiter, Config{}, zap.NewNop())
	_, err := c.Crawl(context.Background(), "https://brand.example/", Options{MaxDepth: 1, MaxPages: 5}, nil)
	require.NoError(t, err)
	require.Equal(t, int32(3), limiter.calls.Load())
}

func TestCrawlHonorsCancellation(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://brand.example/", "/a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(site, nil, nil, Config{}, zap.NewNop())
	_, err := c.Crawl(ctx, "https://brand.example/", Options{MaxDepth: 1, MaxPages: 5}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
