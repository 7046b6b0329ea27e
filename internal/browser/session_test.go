package browser

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/netguard"
	"github.com/JakeFAU/brandscan/internal/queue"
)

type stubResolver map[string][]netip.Addr

func (r stubResolver) LookupNetIP(_ context.Context, _ string, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("not found")
	}
	return addrs, nil
}

type fakePage struct {
	navigated []string
	navErr    error
	closed    atomic.Bool
}

func (p *fakePage) Navigate(_ context.Context, rawURL string) error {
	p.navigated = append(p.navigated, rawURL)
	return p.navErr
}
func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }
func (p *fakePage) HTML(context.Context) (string, error)        { return "<html></html>", nil }
func (p *fakePage) URL(context.Context) (string, error)         { return "", nil }
func (p *fakePage) Screenshot(context.Context) ([]byte, error)  { return nil, nil }
func (p *fakePage) Close() error {
	p.closed.Store(true)
	return nil
}

type fakeBrowser struct {
	mu       sync.Mutex
	pages    []*fakePage
	opts     []PageOptions
	navErr   error
	gone     chan struct{}
	goneOnce sync.Once
	closed   atomic.Bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{gone: make(chan struct{})}
}

func (b *fakeBrowser) NewPage(_ context.Context, opts PageOptions) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &fakePage{navErr: b.navErr}
	b.pages = append(b.pages, p)
	b.opts = append(b.opts, opts)
	return p, nil
}

func (b *fakeBrowser) Disconnected() <-chan struct{} { return b.gone }

func (b *fakeBrowser) disconnect() {
	b.goneOnce.Do(func() { close(b.gone) })
}

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	b.disconnect()
	return nil
}

type fakeLauncher struct {
	calls    atomic.Int32
	delay    time.Duration
	err      error
	mu       sync.Mutex
	browsers []*fakeBrowser
	navErr   error
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	if l.err != nil {
		return nil, l.err
	}
	b := newFakeBrowser()
	b.navErr = l.navErr
	l.mu.Lock()
	l.browsers = append(l.browsers, b)
	l.mu.Unlock()
	return b, nil
}

func (l *fakeLauncher) latest() *fakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.browsers[len(l.browsers)-1]
}

func newTestSession(t *testing.T, launcher Launcher) *Session {
	t.Helper()
	guard := netguard.New(netguard.WithResolver(stubResolver{
		"brand.example":    {netip.MustParseAddr("93.184.216.34")},
		"internal.example": {netip.MustParseAddr("10.1.1.1")},
	}))
	q := queue.New(queue.Config{MaxConcurrent: 2, MaxQueueSize: 16, TaskTimeout: time.Second}, zap.NewNop())
	s, err := Open(Config{}, launcher, guard, q, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSafeRequestRejectsPrivateTargetBeforeLaunch(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	s := newTestSession(t, launcher)
	called := false
	err := s.SafeRequest(context.Background(), RequestOptions{URL: "https://internal.example/"},
		func(context.Context, Page) error {
			called = true
			return nil
		})

	require.ErrorIs(t, err, netguard.ErrBlockedIP)
	var vErr *netguard.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.False(t, called)
	require.Zero(t, launcher.calls.Load())
}

func TestSafeRequestNavigatesAndClosesPage(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	s := newTestSession(t, launcher)
	taskErr := errors.New("task failed")

	err := s.SafeRequest(context.Background(), RequestOptions{URL: "https://brand.example/", BlockMedia: true},
		func(_ context.Context, page Page) error {
			require.Equal(t, []string{"https://brand.example/"}, page.(*fakePage).navigated)
			return taskErr
		})
	require.ErrorIs(t, err, taskErr)

	b := launcher.latest()
	require.Len(t, b.pages, 1)
	require.True(t, b.pages[0].closed.Load())
	require.True(t, b.opts[0].BlockMedia)
	require.Equal(t, DefaultUserAgent, b.opts[0].UserAgent)
	require.NotNil(t, b.opts[0].Filter)
	require.Error(t, b.opts[0].Filter(context.Background(), "http://internal.example/secret"))
	require.NoError(t, b.opts[0].Filter(context.Background(), "https://brand.example/app.js"))
}

func TestSafeRequestWrapsNavigationError(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	s := newTestSession(t, launcher)
	err := s.SafeRequest(context.Background(), RequestOptions{URL: "https://brand.example/"}, nil)
	require.ErrorIs(t, err, ErrNavigation)
	require.True(t, launcher.latest().pages[0].closed.Load())
}

func TestConcurrentRequestsShareOneLaunch(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{delay: 30 * time.Millisecond}
	s := newTestSession(t, launcher)

	errs := make(chan error, 6)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SafeRequest(context.Background(), RequestOptions{}, nil)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), launcher.calls.Load())
}

func TestSessionRelaunchesAfterDisconnect(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	s := newTestSession(t, launcher)
	require.NoError(t, s.SafeRequest(context.Background(), RequestOptions{}, nil))
	first := launcher.latest()

	first.disconnect()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.current == nil
	}, time.Second, time.Millisecond)

	require.NoError(t, s.SafeRequest(context.Background(), RequestOptions{}, nil))
	require.Equal(t, int32(2), launcher.calls.Load())
	require.NotSame(t, first, launcher.latest())
}

func TestLaunchFailureIsReported(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{err: errors.New("chrome not found")}
	s := newTestSession(t, launcher)
	err := s.SafeRequest(context.Background(), RequestOptions{}, nil)
	require.ErrorIs(t, err, ErrLaunch)
}

func TestClosedSessionRefusesWork(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	s := newTestSession(t, launcher)
	require.NoError(t, s.SafeRequest(context.Background(), RequestOptions{}, nil))
	b := launcher.latest()

	require.NoError(t, s.Close())
	require.True(t, b.closed.Load())
	err := s.SafeRequest(context.Background(), RequestOptions{}, nil)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestOpenRequiresCollaborators(t *testing.T) {
	t.Parallel()

	q := queue.New(queue.Config{}, nil)
	_, err := Open(Config{}, nil, netguard.New(), q, nil)
	require.Error(t, err)
	_, err = Open(Config{}, &fakeLauncher{}, nil, q, nil)
	require.Error(t, err)
	_, err = Open(Config{}, &fakeLauncher{}, netguard.New(), nil, nil)
	require.Error(t, err)
}
