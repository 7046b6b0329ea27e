// Package browser owns the shared headless browser used for rendering and
// guards every request that browser makes.
//
// A Session launches the browser lazily, relaunches it after a disconnect, and
// runs each unit of work in its own page behind the request queue. Deadlines
// are cooperative: the page context is cancelled when the queue deadline
// passes, but a browser operation already in flight may finish after the
// caller has been told it timed out.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/brandscan/internal/metrics"
	"github.com/JakeFAU/brandscan/internal/netguard"
	"github.com/JakeFAU/brandscan/internal/queue"
)

// Errors surfaced by Session.
var (
	ErrSessionClosed = errors.New("browser session closed")
	ErrLaunch        = errors.New("browser launch failed")
	ErrNavigation    = errors.New("navigation failed")
)

// DefaultUserAgent is presented by pages unless configured otherwise.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Page is a single browser tab owned by one task.
type Page interface {
	Navigate(ctx context.Context, rawURL string) error
	Evaluate(ctx context.Context, expression string, out any) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// RequestFilter approves or refuses a request a page is about to make.
type RequestFilter func(ctx context.Context, rawURL string) error

// PageOptions configures a new page.
type PageOptions struct {
	UserAgent  string
	BlockMedia bool
	Filter     RequestFilter
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	// Disconnected is closed once the process or its connection is gone.
	Disconnected() <-chan struct{}
	Close() error
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Config controls page behavior.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	TaskTimeout       time.Duration
	BlockMedia        bool
}

// RequestOptions describes one SafeRequest.
type RequestOptions struct {
	// URL is navigated to before the task runs. Empty leaves the page blank.
	URL     string
	Timeout time.Duration
	// BlockMedia aborts image, stylesheet, font and media requests.
	BlockMedia bool
}

// PageTask runs against an open page. The page is closed when it returns.
type PageTask func(ctx context.Context, page Page) error

// Session is the explicitly owned browser resource shared by dependents.
type Session struct {
	cfg      Config
	guard    *netguard.Guard
	queue    *queue.RequestQueue
	launcher Launcher
	logger   *zap.Logger

	launches singleflight.Group

	mu      sync.Mutex
	current Browser
	closed  bool
}

// Open prepares a Session. The browser itself starts on first use.
func Open(
	cfg Config,
	launcher Launcher,
	guard *netguard.Guard,
	q *queue.RequestQueue,
	logger *zap.Logger,
) (*Session, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if guard == nil {
		return nil, errors.New("network guard is required")
	}
	if q == nil {
		return nil, errors.New("request queue is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 20 * time.Second
	}
	return &Session{
		cfg:      cfg,
		guard:    guard,
		queue:    q,
		launcher: launcher,
		logger:   logger,
	}, nil
}

// Close shuts the browser down and refuses further work.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current == nil {
		return nil
	}
	if err := current.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ValidateURL applies the network guard to raw.
func (s *Session) ValidateURL(ctx context.Context, raw string) (*url.URL, error) {
	u, err := s.guard.ValidateURL(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("validate url: %w", err)
	}
	return u, nil
}

// SafeRequest validates opts.URL, waits for a queue slot, opens a fresh page,
// navigates, and hands the page to task. The page is closed on every path.
func (s *Session) SafeRequest(ctx context.Context, opts RequestOptions, task PageTask) error {
	if opts.URL != "" {
		if _, err := s.ValidateURL(ctx, opts.URL); err != nil {
			return err
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.TaskTimeout
	}
	future, err := s.queue.Enqueue(ctx, func(taskCtx context.Context) (any, error) {
		return nil, s.runPage(taskCtx, opts, task)
	}, timeout)
	if err != nil {
		return fmt.Errorf("enqueue browser task: %w", err)
	}
	if _, err := future.Wait(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Session) runPage(ctx context.Context, opts RequestOptions, task PageTask) (err error) {
	b, err := s.browser(ctx)
	if err != nil {
		return err
	}
	page, err := b.NewPage(ctx, PageOptions{
		UserAgent:  s.cfg.UserAgent,
		BlockMedia: opts.BlockMedia || s.cfg.BlockMedia,
		Filter:     s.filter,
	})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			s.logger.Debug("page close failed", zap.Error(cerr))
		}
	}()

	if opts.URL != "" {
		navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		navErr := page.Navigate(navCtx, opts.URL)
		cancel()
		if navErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrNavigation, opts.URL, navErr)
		}
	}
	if task == nil {
		return nil
	}
	return task(ctx, page)
}

func (s *Session) filter(ctx context.Context, rawURL string) error {
	_, err := s.guard.ValidateURL(ctx, rawURL)
	return err
}

// browser returns the live browser, launching one if needed. Concurrent
// callers share a single launch.
func (s *Session) browser(ctx context.Context) (Browser, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.current != nil {
		b := s.current
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	result := s.launches.DoChan("launch", func() (any, error) {
		return s.launch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for browser launch: %w", ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		b, ok := res.Val.(Browser)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected launch result %T", ErrLaunch, res.Val)
		}
		return b, nil
	}
}

func (s *Session) launch(ctx context.Context) (Browser, error) {
	s.mu.Lock()
	if s.current != nil {
		b := s.current
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	s.logger.Info("launching browser")
	b, err := s.launcher.Launch(ctx)
	if err != nil {
		metrics.ObserveBrowserLaunch("error")
		s.logger.Error("browser launch failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	metrics.ObserveBrowserLaunch("ok")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if cerr := b.Close(); cerr != nil {
			s.logger.Debug("close browser after session shutdown", zap.Error(cerr))
		}
		return nil, ErrSessionClosed
	}
	s.current = b
	s.mu.Unlock()

	go s.watch(b)
	return b, nil
}

// watch drops the cached browser once it disconnects so the next request
// relaunches.
func (s *Session) watch(b Browser) {
	<-b.Disconnected()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == b {
		s.current = nil
		if !s.closed {
			s.logger.Warn("browser disconnected; will relaunch on next request")
		}
	}
}
