package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// ErrRobotsFetch marks a robots.txt that could not be retrieved. It is
// logged and resolved by the configured fallback, never returned from Crawl.
var ErrRobotsFetch = errors.New("robots fetch failed")

type robotsDataPolicy struct {
	data  *robotstxt.RobotsData
	agent string
}

// Allowed implements RobotsPolicy.
func (p *robotsDataPolicy) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return p.data.TestAgent(target, p.agent)
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(string) bool { return true }

// onlyPolicy permits exactly one URL.
type onlyPolicy struct {
	url string
}

func (p onlyPolicy) Allowed(rawURL string) bool { return rawURL == p.url }

// NewRobotsPolicy parses a robots.txt body for agent.
func NewRobotsPolicy(statusCode int, body []byte, agent string) (RobotsPolicy, error) {
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return &robotsDataPolicy{data: data, agent: agent}, nil
}

// loadRobots fetches robots.txt for entry once, retrying transient failures,
// and falls back per configuration when it stays unavailable.
func (c *Crawler) loadRobots(ctx context.Context, entry *url.URL) (RobotsPolicy, RobotsStatus) {
	robotsURL := url.URL{Scheme: entry.Scheme, Host: entry.Host, Path: "/robots.txt"}
	policy, err := c.fetchRobots(ctx, robotsURL.String())
	if err == nil {
		return policy, RobotsStatusApplied
	}

	c.logger.Warn("robots unavailable; applying fallback",
		zap.String("url", robotsURL.String()),
		zap.String("fallback", string(c.cfg.RobotsFallback)),
		zap.Error(err),
	)
	if c.cfg.RobotsFallback == RobotsFallbackDeny {
		return onlyPolicy{url: entry.String()}, RobotsStatusUnavailable
	}
	return allowAllPolicy{}, RobotsStatusUnavailable
}

func (c *Crawler) fetchRobots(ctx context.Context, robotsURL string) (RobotsPolicy, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrRobotsFetch)
	}
	for attempt := 0; ; attempt++ {
		resp, err := c.fetcher.Fetch(ctx, FetchRequest{URL: robotsURL})
		if err == nil {
			if !robotsStatusUsable(resp.StatusCode) {
				return nil, fmt.Errorf("%w: status %d", ErrRobotsFetch, resp.StatusCode)
			}
			policy, perr := NewRobotsPolicy(resp.StatusCode, resp.Body, c.cfg.RobotsUserAgent)
			if perr != nil {
				return nil, fmt.Errorf("%w: %w", ErrRobotsFetch, perr)
			}
			return policy, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("%w: %w", ErrRobotsFetch, err)
		}
		c.backoff.Sleep(ctx, c.retry.Backoff(attempt))
	}
}

// robotsStatusUsable reports whether a robots.txt response decides access on
// its own: 2xx bodies are parsed and 4xx means no restrictions. Anything else
// counts as a failed fetch.
func robotsStatusUsable(code int) bool {
	return code >= 200 && code < 300 || code >= 400 && code < 500
}
