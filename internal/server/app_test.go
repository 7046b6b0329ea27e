package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/brandscan/internal/browser"
	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/netguard"
)

var errNoBrowser = errors.New("no browser in tests")

type failingLauncher struct{}

func (failingLauncher) Launch(context.Context) (browser.Browser, error) {
	return nil, errNoBrowser
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Port = 0
	return cfg
}

func testOptions() Options {
	return Options{Launcher: failingLauncher{}, Registerer: prometheus.NewRegistry()}
}

func TestBuildServesProbes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := Build(ctx, testConfig(t), zap.NewNop(), testOptions())
	require.NoError(t, err)

	srv := httptest.NewServer(app.API.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	app.Close(ctx)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBuildRejectsBadRobotsFallback(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Crawler.RobotsFallback = "maybe"
	_, err := Build(context.Background(), cfg, zap.NewNop(), testOptions())
	require.ErrorContains(t, err, "parse robots fallback")
}

func TestBuildRejectsUnknownStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = "s3"
	_, err := Build(context.Background(), cfg, zap.NewNop(), testOptions())
	require.ErrorContains(t, err, "open blob store")
}

func TestBuildWithPubSub(t *testing.T) {
	t.Parallel()

	psrv := pstest.NewServer()
	defer psrv.Close()
	conn, err := grpc.NewClient(psrv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	cfg := testConfig(t)
	cfg.PubSub.ProjectID = "brand-project"
	cfg.PubSub.TopicName = "scans-completed"
	opts := testOptions()
	opts.ClientOptions = []option.ClientOption{option.WithGRPCConn(conn)}

	ctx := context.Background()
	app, err := Build(ctx, cfg, zap.NewNop(), opts)
	require.NoError(t, err)
	require.NotNil(t, app.pubsubClient)
	require.NotNil(t, app.pubsubPub)
	app.Close(ctx)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), zap.NewNop(), testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.True(t, app.Pipeline.Session.Closed())
}

func TestPipelineAppliesConfiguredBlockedHosts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Netguard.BlockedHosts = []string{"*.blocked.example"}
	p, err := NewPipeline(cfg, failingLauncher{}, nil, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	_, err = p.Session.ValidateURL(context.Background(), "https://shop.blocked.example/")
	require.ErrorIs(t, err, netguard.ErrBlockedHost)
}
