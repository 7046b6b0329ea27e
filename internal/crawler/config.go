package crawler

import (
	"fmt"
	"strings"
	"time"
)

// RobotsFallback selects behavior when robots.txt cannot be fetched.
type RobotsFallback string

// Robots fallback modes.
const (
	// RobotsFallbackAllow crawls without restriction.
	RobotsFallbackAllow RobotsFallback = "allow"
	// RobotsFallbackDeny visits only the entry URL.
	RobotsFallbackDeny RobotsFallback = "deny"
)

const (
	defaultConcurrency     = 2
	defaultRobotsUserAgent = "brandscan"
)

// Config holds the settings shared by every crawl a Crawler runs.
type Config struct {
	// Concurrency bounds page visits in flight within one BFS level.
	Concurrency     int
	RobotsUserAgent string
	RobotsFallback  RobotsFallback
	// PageTimeout bounds one page visit; zero uses the session default.
	PageTimeout time.Duration
	BlockMedia  bool
}

// ParseRobotsFallback maps a config string to a RobotsFallback.
func ParseRobotsFallback(raw string) (RobotsFallback, error) {
	switch RobotsFallback(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RobotsFallbackAllow:
		return RobotsFallbackAllow, nil
	case RobotsFallbackDeny:
		return RobotsFallbackDeny, nil
	default:
		return "", fmt.Errorf("unknown robots fallback %q", raw)
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.RobotsUserAgent == "" {
		c.RobotsUserAgent = defaultRobotsUserAgent
	}
	if c.RobotsFallback == "" {
		c.RobotsFallback = RobotsFallbackAllow
	}
	return c
}
