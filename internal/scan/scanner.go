// Package scan runs the brand extraction pipeline: crawl, sample, cluster,
// check contrast, fingerprint logos and assemble tokens.
package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/brandscan/internal/browser"
	"github.com/JakeFAU/brandscan/internal/crawler"
	"github.com/JakeFAU/brandscan/internal/metrics"
	"github.com/JakeFAU/brandscan/internal/palette"
	"github.com/JakeFAU/brandscan/internal/phash"
	"github.com/JakeFAU/brandscan/internal/progress"
	"github.com/JakeFAU/brandscan/internal/sampler"
	"github.com/JakeFAU/brandscan/internal/tokens"
	"github.com/JakeFAU/brandscan/internal/wcag"
)

// ErrScanFailed wraps every error that aborts a scan.
var ErrScanFailed = errors.New("scan failed")

const logoFetchConcurrency = 4

// Config controls scan defaults and asset handling.
type Config struct {
	MaxDepth          int
	MaxPages          int
	RespectRobots     bool
	PageTimeout       time.Duration
	Cluster           palette.Options
	MaxLogos          int
	AssetTimeout      time.Duration
	DuplicateDistance int
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 5
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.MaxLogos <= 0 {
		c.MaxLogos = 8
	}
	if c.AssetTimeout <= 0 {
		c.AssetTimeout = 10 * time.Second
	}
	if c.DuplicateDistance < 0 {
		c.DuplicateDistance = 0
	}
	return c
}

// Deps are the collaborators a Scanner needs. Fetcher and Limiter are shared
// with the crawler; Emitter and Clock are optional.
type Deps struct {
	Browser Browser
	Fetcher crawler.Fetcher
	Limiter crawler.Limiter
	Emitter progress.Emitter
	Clock   Clock
}

// Scanner runs scans. It is safe for concurrent use.
type Scanner struct {
	browser Browser
	fetcher crawler.Fetcher
	crawler *crawler.Crawler
	sampler *sampler.Sampler
	emitter progress.Emitter
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type noopEmitter struct{}

func (noopEmitter) Emit(progress.Event) {}

// New builds a Scanner.
func New(deps Deps, crawlCfg crawler.Config, cfg Config, logger *zap.Logger) (*Scanner, error) {
	if deps.Browser == nil {
		return nil, errors.New("browser is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = noopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	return &Scanner{
		browser: deps.Browser,
		fetcher: deps.Fetcher,
		crawler: crawler.New(deps.Browser, deps.Fetcher, deps.Limiter, crawlCfg, logger),
		sampler: sampler.New(logger),
		emitter: deps.Emitter,
		clock:   deps.Clock,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("scan"),
	}, nil
}

// Defaults returns req with unset crawl options replaced by configured
// defaults. MaxDepth is only defaulted together with MaxPages, so an explicit
// single-page request keeps depth 0.
func (s *Scanner) Defaults(req Request) Request {
	if req.MaxPages <= 0 {
		req.MaxPages = s.cfg.MaxPages
		if req.MaxDepth == 0 {
			req.MaxDepth = s.cfg.MaxDepth
		}
	}
	if req.Timeout <= 0 {
		req.Timeout = s.cfg.PageTimeout
	}
	return req
}

// pageState collects what the visitor learns about one page.
type pageState struct {
	signals sampler.PageSignals
	sampled bool
	logos   []sampler.LogoCandidate
}

// Scan runs the pipeline for req. Only an invalid or unreachable entry URL, a
// browser failure or cancellation abort it; such errors wrap ErrScanFailed.
func (s *Scanner) Scan(ctx context.Context, req Request) (Result, error) {
	req = s.Defaults(req)
	started := s.clock.Now()
	result := Result{URL: req.URL, StartedAt: started}
	scanID := eventID(req.ID)
	logger := s.logger.With(zap.String("scan_id", req.ID), zap.String("url", req.URL))

	s.emit(progress.Event{ScanID: scanID, Stage: progress.StageScanStart, URL: req.URL})
	fail := func(err error) (Result, error) {
		err = fmt.Errorf("%w: %w", ErrScanFailed, err)
		result.FinishedAt = s.clock.Now()
		dur := result.FinishedAt.Sub(started)
		status := string(StatusFailed)
		if errors.Is(err, context.Canceled) {
			status = string(StatusCanceled)
		}
		metrics.ObserveScan(status, dur)
		s.emit(progress.Event{ScanID: scanID, Stage: progress.StageScanError, URL: req.URL, Dur: dur, Note: err.Error()})
		logger.Warn("scan failed", zap.Error(err))
		return result, err
	}

	if _, err := s.browser.ValidateURL(ctx, req.URL); err != nil {
		return fail(err)
	}

	var (
		mu    sync.Mutex
		state = make(map[string]*pageState)
	)
	visit := func(taskCtx context.Context, page browser.Page, crawled crawler.Page) error {
		ps := &pageState{}
		signals, err := s.sampler.Sample(taskCtx, crawled.FinalURL, page)
		if err != nil {
			logger.Warn("page sampling failed", zap.String("page", crawled.URL), zap.Error(err))
		} else {
			ps.signals = signals
			ps.sampled = true
		}
		logos, err := sampler.ExtractLogos(crawled.FinalURL, crawled.HTML)
		if err != nil {
			logger.Debug("logo extraction failed", zap.String("page", crawled.URL), zap.Error(err))
		}
		ps.logos = logos

		mu.Lock()
		state[crawled.URL] = ps
		mu.Unlock()

		s.emit(progress.Event{
			ScanID: scanID,
			Stage:  progress.StagePageDone,
			Site:   metrics.SanitizeSite(crawled.URL),
			URL:    crawled.URL,
			Depth:  crawled.Depth,
			Pages:  1,
		})
		return nil
	}

	crawl, err := s.crawler.Crawl(ctx, req.URL, crawler.Options{
		MaxDepth:      req.MaxDepth,
		MaxPages:      req.MaxPages,
		RespectRobots: req.RespectRobots,
		PageTimeout:   req.Timeout,
	}, visit)
	result.Skipped = crawl.Skipped
	result.RobotsStatus = crawl.RobotsStatus
	if err != nil {
		return fail(err)
	}

	var (
		pageSignals []sampler.PageSignals
		candidates  []sampler.LogoCandidate
	)
	for _, page := range crawl.Pages {
		ps := state[page.URL]
		summary := PageSummary{URL: page.URL, FinalURL: page.FinalURL, Depth: page.Depth}
		if ps != nil {
			if ps.sampled {
				pageSignals = append(pageSignals, ps.signals)
				summary.Title = ps.signals.Title
			}
			candidates = appendCandidates(candidates, ps.logos)
		}
		result.Pages = append(result.Pages, summary)
	}

	pools := sampler.Merge(pageSignals)
	pal := palette.Build(pools, s.cfg.Cluster)
	report, issues := wcag.Validate(pal)
	result.WCAGReport = report

	logos, err := s.fetchLogos(ctx, scanID, candidates)
	if err != nil {
		return fail(err)
	}
	result.Logos = logos

	result.Tokens = tokens.Assemble(tokens.InputFromPools(pal, pools))
	if result.CSSVarsExport, err = tokens.CSSVars(result.Tokens); err != nil {
		return fail(err)
	}
	if result.ThemeConfigExport, err = tokens.ThemeConfig(result.Tokens); err != nil {
		return fail(err)
	}

	result.Coverage = Coverage{
		PagesScanned:    len(crawl.Pages),
		PagesSkipped:    len(crawl.Skipped),
		ColorsExtracted: pools.ColorsExtracted(),
		LogosFound:      len(logos),
		WCAGIssues:      issues,
	}
	result.FinishedAt = s.clock.Now()
	dur := result.FinishedAt.Sub(started)
	metrics.ObserveScan(string(StatusSucceeded), dur)
	s.emit(progress.Event{ScanID: scanID, Stage: progress.StageScanDone, URL: req.URL, Dur: dur})
	logger.Info("scan complete",
		zap.Int("pages", result.Coverage.PagesScanned),
		zap.Int("colors", result.Coverage.ColorsExtracted),
		zap.Int("logos", result.Coverage.LogosFound),
		zap.Int("wcag_issues", issues),
		zap.Duration("duration", dur),
	)
	return result, nil
}

// fetchLogos downloads up to MaxLogos candidates, fingerprints them and drops
// near-duplicates, keeping the first of each group in candidate order.
// Unreachable assets are skipped; only cancellation is an error.
func (s *Scanner) fetchLogos(
	ctx context.Context,
	scanID [16]byte,
	candidates []sampler.LogoCandidate,
) ([]LogoAsset, error) {
	if len(candidates) > s.cfg.MaxLogos {
		candidates = candidates[:s.cfg.MaxLogos]
	}
	fetched := make([]*LogoAsset, len(candidates))
	var g errgroup.Group
	g.SetLimit(logoFetchConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			fetched[i] = s.fetchLogo(ctx, scanID, c)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch logos: %w", err)
	}

	logos := make([]LogoAsset, 0, len(fetched))
	for _, asset := range fetched {
		if asset == nil {
			continue
		}
		if s.isDuplicate(logos, asset.Hash) {
			s.logger.Debug("dropping duplicate logo", zap.String("logo", asset.URL))
			continue
		}
		logos = append(logos, *asset)
	}
	return logos, nil
}

func (s *Scanner) fetchLogo(ctx context.Context, scanID [16]byte, c sampler.LogoCandidate) *LogoAsset {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.AssetTimeout)
	defer cancel()

	resp, err := s.fetcher.Fetch(fetchCtx, crawler.FetchRequest{
		URL:     c.URL,
		Headers: http.Header{"Accept": {"image/*"}},
	})
	if err != nil {
		s.logger.Debug("logo fetch failed", zap.String("logo", c.URL), zap.Error(err))
		return nil
	}
	s.emit(progress.Event{
		ScanID:      scanID,
		Stage:       progress.StageAssetDone,
		Site:        metrics.SanitizeSite(c.URL),
		URL:         c.URL,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Duration,
	})
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(resp.Body) == 0 {
		return nil
	}
	return &LogoAsset{
		URL:         c.URL,
		Type:        c.Type,
		ContentType: resp.ContentType,
		Bytes:       len(resp.Body),
		Hash:        phash.Hash(resp.Body),
	}
}

func (s *Scanner) isDuplicate(kept []LogoAsset, hash string) bool {
	if hash == "" {
		return false
	}
	for _, k := range kept {
		if d, err := phash.Distance(k.Hash, hash); err == nil && d <= s.cfg.DuplicateDistance {
			return true
		}
	}
	return false
}

func (s *Scanner) emit(evt progress.Event) {
	if evt.ScanID == [16]byte{} {
		return
	}
	evt.TS = s.clock.Now()
	s.emitter.Emit(evt)
}

func appendCandidates(dst, src []sampler.LogoCandidate) []sampler.LogoCandidate {
	for _, c := range src {
		if !slices.ContainsFunc(dst, func(d sampler.LogoCandidate) bool { return d.URL == c.URL }) {
			dst = append(dst, c)
		}
	}
	return dst
}

func eventID(raw string) [16]byte {
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}
	}
	return progress.UUIDToBytes(id)
}
