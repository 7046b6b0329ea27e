package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/brandscan/internal/browser"
	"github.com/JakeFAU/brandscan/internal/metrics"
)

// Errors returned by Crawl.
var (
	ErrInvalidOptions   = errors.New("invalid crawl options")
	ErrEntryUnreachable = errors.New("entry page unreachable")
)

// Crawler is the breadth-first, same-origin site walker.
type Crawler struct {
	nav     Navigator
	fetcher Fetcher
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
	retry   RetryPolicy
	backoff retryWaiter
}

// New builds a Crawler. fetcher is only needed for robots.txt and limiter may
// be nil to disable politeness pacing.
func New(nav Navigator, fetcher Fetcher, limiter Limiter, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		nav:     nav,
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("crawler"),
		retry:   NewExponentialRetryPolicy(),
		backoff: ctxBackoff{},
	}
}

type visitOutcome struct {
	page Page
	err  error
}

// Crawl visits entryURL and then same-origin links level by level. Pages
// within a level are visited with bounded concurrency but merged in discovery
// order, so the result is deterministic for a deterministic site.
//
// Only a malformed entry URL, a failed entry page, or a cancelled context
// produce an error; other page failures are recorded in Result.Skipped.
func (c *Crawler) Crawl(ctx context.Context, entryURL string, opts Options, visit Visitor) (Result, error) {
	var result Result
	if opts.MaxDepth < 0 || opts.MaxPages < 1 {
		return result, fmt.Errorf("%w: max_depth=%d max_pages=%d", ErrInvalidOptions, opts.MaxDepth, opts.MaxPages)
	}
	entry, err := NormalizeURL(entryURL)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	origin, err := url.Parse(entry)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	robots := RobotsPolicy(allowAllPolicy{})
	result.RobotsStatus = RobotsStatusIgnored
	if opts.RespectRobots {
		robots, result.RobotsStatus = c.loadRobots(ctx, origin)
	}

	timeout := c.cfg.PageTimeout
	if opts.PageTimeout > 0 {
		timeout = opts.PageTimeout
	}

	visited := newPageSet()
	visited.Claim(entry)
	result.Discovered = 1
	processed := 0
	level := []string{entry}

	for depth := 0; len(level) > 0 && depth <= opts.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("crawl interrupted: %w", err)
		}

		batch := make([]string, 0, len(level))
		for _, u := range level {
			if !robots.Allowed(u) {
				c.logger.Info("skipping url disallowed by robots", zap.String("url", u), zap.Int("depth", depth))
				result.Skipped = append(result.Skipped, Skipped{URL: u, Depth: depth, Reason: SkipRobots})
				metrics.ObservePage(metrics.SanitizeSite(u), "robots")
				continue
			}
			if processed >= opts.MaxPages {
				break
			}
			batch = append(batch, u)
			processed++
		}

		outcomes := c.visitLevel(ctx, batch, depth, timeout, visit)

		var next []string
		for i, out := range outcomes {
			if out.err != nil {
				if depth == 0 && i == 0 {
					return result, fmt.Errorf("%w: %s: %w", ErrEntryUnreachable, batch[i], out.err)
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, fmt.Errorf("crawl interrupted: %w", ctxErr)
				}
				result.Skipped = append(result.Skipped, Skipped{
					URL: batch[i], Depth: depth, Reason: SkipFailed, Error: out.err.Error(),
				})
				continue
			}
			result.Pages = append(result.Pages, out.page)
			if depth == opts.MaxDepth {
				continue
			}
			next = c.enqueueLinks(out.page, origin, visited, next, &result.Discovered, opts.MaxPages)
		}
		level = next
	}
	return result, nil
}

// visitLevel renders every URL in batch, at most cfg.Concurrency at a time,
// and returns outcomes indexed like batch.
func (c *Crawler) visitLevel(
	ctx context.Context,
	batch []string,
	depth int,
	timeout time.Duration,
	visit Visitor,
) []visitOutcome {
	outcomes := make([]visitOutcome, len(batch))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, u := range batch {
		g.Go(func() error {
			page, err := c.visitPage(ctx, u, depth, timeout, visit)
			outcomes[i] = visitOutcome{page: page, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *Crawler) visitPage(
	ctx context.Context,
	rawURL string,
	depth int,
	timeout time.Duration,
	visit Visitor,
) (Page, error) {
	site := metrics.SanitizeSite(rawURL)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return Page{}, err
		}
	}

	page := Page{URL: rawURL, FinalURL: rawURL, Depth: depth}
	err := c.nav.SafeRequest(ctx, browser.RequestOptions{
		URL:        rawURL,
		Timeout:    timeout,
		BlockMedia: c.cfg.BlockMedia,
	}, func(taskCtx context.Context, p browser.Page) error {
		html, err := p.HTML(taskCtx)
		if err != nil {
			return fmt.Errorf("capture document: %w", err)
		}
		page.HTML = html
		if final, err := p.URL(taskCtx); err == nil && final != "" {
			page.FinalURL = final
		}
		page.FetchedAt = time.Now().UTC()
		if visit != nil {
			return visit(taskCtx, p, page)
		}
		return nil
	})
	if err != nil {
		metrics.ObservePage(site, "error")
		c.logger.Warn("page visit failed", zap.String("url", rawURL), zap.Int("depth", depth), zap.Error(err))
		return Page{}, err
	}
	metrics.ObservePage(site, "ok")
	c.logger.Debug("page visited", zap.String("url", rawURL), zap.Int("depth", depth))
	return page, nil
}

// enqueueLinks appends page's unseen same-origin links to next, stopping once
// discovered reaches limit.
func (c *Crawler) enqueueLinks(
	page Page,
	origin *url.URL,
	visited *pageSet,
	next []string,
	discovered *int,
	limit int,
) []string {
	links, err := ExtractLinks(page.FinalURL, page.HTML)
	if err != nil {
		c.logger.Debug("link extraction failed", zap.String("url", page.URL), zap.Error(err))
		return next
	}
	for _, link := range links {
		if *discovered >= limit {
			break
		}
		u, err := url.Parse(link)
		if err != nil || !SameOrigin(origin, u) {
			continue
		}
		if !visited.Claim(link) {
			continue
		}
		*discovered++
		next = append(next, link)
	}
	return next
}
