// Package config loads and validates brandscan configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/brandscan/internal/browser"
	"github.com/JakeFAU/brandscan/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Netguard NetguardConfig `mapstructure:"netguard"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// QueueConfig bounds the browser request queue.
type QueueConfig struct {
	MaxConcurrent      int `mapstructure:"max_concurrent"`
	MaxQueueSize       int `mapstructure:"max_queue_size"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
}

// BrowserConfig configures the headless Chrome session.
type BrowserConfig struct {
	UserAgent                string `mapstructure:"user_agent"`
	Headless                 bool   `mapstructure:"headless"`
	ExecPath                 string `mapstructure:"exec_path"`
	NoSandbox                bool   `mapstructure:"no_sandbox"`
	NavigationTimeoutSeconds int    `mapstructure:"navigation_timeout_seconds"`
	BlockMedia               bool   `mapstructure:"block_media"`
}

// CrawlerConfig governs crawl defaults and politeness.
type CrawlerConfig struct {
	MaxDepthDefault   int     `mapstructure:"max_depth_default"`
	MaxPagesDefault   int     `mapstructure:"max_pages_default"`
	Concurrency       int     `mapstructure:"concurrency"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
	RobotsFallback    string  `mapstructure:"robots_fallback"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RobotsUserAgent   string  `mapstructure:"robots_user_agent"`
}

// ClusterConfig tunes palette clustering.
type ClusterConfig struct {
	K          int     `mapstructure:"k"`
	Iterations int     `mapstructure:"iterations"`
	Epsilon    float64 `mapstructure:"epsilon"`
	Seed       uint64  `mapstructure:"seed"`
}

// AssetsConfig bounds logo downloads.
type AssetsConfig struct {
	MaxLogos          int   `mapstructure:"max_logos"`
	MaxBytes          int64 `mapstructure:"max_bytes"`
	TimeoutSeconds    int   `mapstructure:"timeout_seconds"`
	DuplicateDistance int   `mapstructure:"duplicate_distance"`
}

// JobsConfig sizes the scan job queue and worker pool.
type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// StorageConfig selects the artifact blob store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchEvents  int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int `mapstructure:"max_batch_wait_ms"`
	LogEveryNEvents int `mapstructure:"log_every_n_events"`
}

// NetguardConfig extends the outbound host blocklist. Entries are exact
// hostnames or "*.example.com" suffix patterns.
type NetguardConfig struct {
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRANDSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("queue.max_concurrent", 2)
	v.SetDefault("queue.max_queue_size", 64)
	v.SetDefault("queue.task_timeout_seconds", 30)
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.navigation_timeout_seconds", 20)
	v.SetDefault("browser.block_media", false)
	v.SetDefault("crawler.max_depth_default", 1)
	v.SetDefault("crawler.max_pages_default", 5)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.robots_fallback", string(crawler.RobotsFallbackAllow))
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.robots_user_agent", "brandscan")
	v.SetDefault("cluster.k", 5)
	v.SetDefault("cluster.iterations", 20)
	v.SetDefault("cluster.epsilon", 0.001)
	v.SetDefault("cluster.seed", 1)
	v.SetDefault("assets.max_logos", 8)
	v.SetDefault("assets.max_bytes", 2<<20)
	v.SetDefault("assets.timeout_seconds", 10)
	v.SetDefault("assets.duplicate_distance", 64)
	v.SetDefault("jobs.workers", 1)
	v.SetDefault("jobs.queue_depth", 16)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "scans")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.log_every_n_events", 1)
	v.SetDefault("netguard.blocked_hosts", []string{})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue.max_concurrent must be > 0")
	}
	if c.Queue.MaxQueueSize <= 0 {
		return fmt.Errorf("queue.max_queue_size must be > 0")
	}
	if c.Queue.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("queue.task_timeout_seconds must be > 0")
	}
	if c.Browser.NavigationTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.navigation_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxDepthDefault < 0 {
		return fmt.Errorf("crawler.max_depth_default must be >= 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if _, err := crawler.ParseRobotsFallback(c.Crawler.RobotsFallback); err != nil {
		return fmt.Errorf("crawler.robots_fallback: %w", err)
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.Cluster.K <= 0 {
		return fmt.Errorf("cluster.k must be > 0")
	}
	if c.Cluster.Iterations <= 0 {
		return fmt.Errorf("cluster.iterations must be > 0")
	}
	if c.Cluster.Epsilon < 0 {
		return fmt.Errorf("cluster.epsilon must be >= 0")
	}
	if c.Assets.MaxLogos < 0 {
		return fmt.Errorf("assets.max_logos must be >= 0")
	}
	if c.Assets.MaxBytes <= 0 {
		return fmt.Errorf("assets.max_bytes must be > 0")
	}
	if c.Assets.TimeoutSeconds <= 0 {
		return fmt.Errorf("assets.timeout_seconds must be > 0")
	}
	if c.Assets.DuplicateDistance < 0 {
		return fmt.Errorf("assets.duplicate_distance must be >= 0")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("jobs.queue_depth must be > 0")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	return nil
}

// TaskTimeout is the default per-page browser task budget.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Queue.TaskTimeoutSeconds) * time.Second
}

// NavigationTimeout bounds a single navigation.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavigationTimeoutSeconds) * time.Second
}

// AssetTimeout bounds a single logo download.
func (c Config) AssetTimeout() time.Duration {
	return time.Duration(c.Assets.TimeoutSeconds) * time.Second
}

// ProgressBatchWait is the hub's maximum batching delay.
func (c Config) ProgressBatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
