package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/browser"
	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/crawler"
	collyfetcher "github.com/JakeFAU/brandscan/internal/fetcher/colly"
	"github.com/JakeFAU/brandscan/internal/netguard"
	"github.com/JakeFAU/brandscan/internal/palette"
	"github.com/JakeFAU/brandscan/internal/policy/ratelimit"
	"github.com/JakeFAU/brandscan/internal/progress"
	"github.com/JakeFAU/brandscan/internal/queue"
	"github.com/JakeFAU/brandscan/internal/scan"
)

// Pipeline owns the browser session and everything a Scanner needs.
type Pipeline struct {
	Scanner  *scan.Scanner
	Session  *browser.Session
	Requests *queue.RequestQueue
	logger   *zap.Logger
}

// NewPipeline wires the network guard, request queue, browser session,
// asset fetcher, politeness limiter and scanner from cfg. A nil launcher
// means headless Chrome. emitter may be nil.
func NewPipeline(cfg config.Config, launcher browser.Launcher, emitter progress.Emitter, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if launcher == nil {
		launcher = browser.NewChromeLauncher(browser.ChromeConfig{
			ExecPath:  cfg.Browser.ExecPath,
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
		}, logger.Named("chrome"))
	}
	fallback, err := crawler.ParseRobotsFallback(cfg.Crawler.RobotsFallback)
	if err != nil {
		return nil, fmt.Errorf("parse robots fallback: %w", err)
	}

	guard := netguard.New(
		netguard.WithLogger(logger.Named("netguard")),
		netguard.WithBlockedHosts(cfg.Netguard.BlockedHosts...),
	)
	requests := queue.New(queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		MaxQueueSize:  cfg.Queue.MaxQueueSize,
		TaskTimeout:   cfg.TaskTimeout(),
	}, logger)
	session, err := browser.Open(browser.Config{
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout(),
		TaskTimeout:       cfg.TaskTimeout(),
		BlockMedia:        cfg.Browser.BlockMedia,
	}, launcher, guard, requests, logger.Named("browser"))
	if err != nil {
		requests.Close()
		return nil, fmt.Errorf("open browser session: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Browser.UserAgent,
		Timeout:     cfg.AssetTimeout(),
		MaxBodySize: int(cfg.Assets.MaxBytes),
	}, guard, logger.Named("fetcher"))
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawler.RequestsPerSecond})

	scanner, err := scan.New(scan.Deps{
		Browser: session,
		Fetcher: fetcher,
		Limiter: limiter,
		Emitter: emitter,
	}, crawler.Config{
		Concurrency:     cfg.Crawler.Concurrency,
		RobotsUserAgent: cfg.Crawler.RobotsUserAgent,
		RobotsFallback:  fallback,
		PageTimeout:     cfg.TaskTimeout(),
		BlockMedia:      cfg.Browser.BlockMedia,
	}, scan.Config{
		MaxDepth:      cfg.Crawler.MaxDepthDefault,
		MaxPages:      cfg.Crawler.MaxPagesDefault,
		RespectRobots: cfg.Crawler.RespectRobots,
		PageTimeout:   cfg.TaskTimeout(),
		Cluster: palette.Options{
			K:          cfg.Cluster.K,
			Iterations: cfg.Cluster.Iterations,
			Epsilon:    cfg.Cluster.Epsilon,
			Seed:       cfg.Cluster.Seed,
		},
		MaxLogos:          cfg.Assets.MaxLogos,
		AssetTimeout:      cfg.AssetTimeout(),
		DuplicateDistance: cfg.Assets.DuplicateDistance,
	}, logger)
	if err != nil {
		_ = session.Close()
		requests.Close()
		return nil, fmt.Errorf("build scanner: %w", err)
	}

	return &Pipeline{Scanner: scanner, Session: session, Requests: requests, logger: logger}, nil
}

// Close drops pending browser work, shuts the browser down and stops the
// request queue.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	if dropped := p.Requests.Clear(); dropped > 0 {
		p.logger.Info("dropped pending browser tasks", zap.Int("count", dropped))
	}
	err := p.Session.Close()
	p.Requests.Close()
	if err != nil {
		return fmt.Errorf("close pipeline: %w", err)
	}
	return nil
}
