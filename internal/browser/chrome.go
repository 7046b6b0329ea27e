package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/metrics"
)

// ChromeConfig controls how Chrome is started.
type ChromeConfig struct {
	ExecPath  string
	Headless  bool
	NoSandbox bool
}

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	cfg    ChromeConfig
	logger *zap.Logger
}

// NewChromeLauncher builds a ChromeLauncher.
func NewChromeLauncher(cfg ChromeConfig, logger *zap.Logger) *ChromeLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{cfg: cfg, logger: logger}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a browser process and verifies it can open a blank page.
func (l *ChromeLauncher) Launch(_ context.Context) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)
	if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b := &chromeBrowser{
		ctx:          browserCtx,
		cancel:       browserCancel,
		allocCancel:  allocCancel,
		disconnected: make(chan struct{}),
		logger:       l.logger,
	}
	var lost <-chan struct{}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		lost = c.Browser.LostConnection
	}
	go func() {
		select {
		case <-browserCtx.Done():
		case <-lost:
		}
		close(b.disconnected)
	}()
	return b, nil
}

type chromeBrowser struct {
	ctx          context.Context
	cancel       context.CancelFunc
	allocCancel  context.CancelFunc
	disconnected chan struct{}
	closeOnce    sync.Once
	logger       *zap.Logger
}

func (b *chromeBrowser) Disconnected() <-chan struct{} {
	return b.disconnected
}

func (b *chromeBrowser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if cerr := chromedp.Cancel(b.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("cancel browser: %w", cerr)
		}
		b.cancel()
		b.allocCancel()
	})
	return err
}

// NewPage opens a new tab with interception and the user agent override in
// place before any navigation happens.
func (b *chromeBrowser) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	p := &chromePage{ctx: tabCtx, cancel: tabCancel, opts: opts, logger: b.logger}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	// The first Run attaches the tab and binds its event loop to the
	// context it is given, so it must be the tab context itself.
	stopForward := forwardCancel(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stopForward()
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			RequestStage: fetch.RequestStageRequest,
		}}).Do(ctx); err != nil {
			return fmt.Errorf("enable fetch interception: %w", err)
		}
		if opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
	if err := p.run(ctx, setup); err != nil {
		tabCancel()
		return nil, err
	}
	return p, nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   PageOptions
	logger *zap.Logger
}

func (p *chromePage) onEvent(ev any) {
	paused, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	go p.resolve(paused)
}

func (p *chromePage) resolve(ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(p.ctx, c.Target)
	rawURL := ""
	if ev.Request != nil {
		rawURL = ev.Request.URL
	}
	decision := decide(p.ctx, p.opts, ev.ResourceType, rawURL)
	metrics.ObserveInterception(string(decision))

	var err error
	if decision == DecisionContinue {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	} else {
		if decision == DecisionBlockedURL {
			p.logger.Warn("in-page request blocked", zap.String("url", rawURL))
		}
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	}
	if err != nil && p.ctx.Err() == nil {
		p.logger.Debug("resolve paused request", zap.String("url", rawURL), zap.Error(err))
	}
}

// run executes actions on the tab, bounded by ctx's cancellation and deadline.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, rawURL string) error {
	return p.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the tab.
func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
