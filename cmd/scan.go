package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/id/uuid"
	"github.com/JakeFAU/brandscan/internal/progress"
	"github.com/JakeFAU/brandscan/internal/progress/sinks"
	"github.com/JakeFAU/brandscan/internal/scan"
	"github.com/JakeFAU/brandscan/internal/server"
	"github.com/JakeFAU/brandscan/internal/storage/local"
	"github.com/JakeFAU/brandscan/internal/worker"
)

// newRunner builds the scanner for a one-shot scan. Tests replace it.
var newRunner = func(e *env) (worker.Runner, func() error, error) {
	hub := progress.NewHub(progress.Config{
		BufferSize:     e.cfg.Progress.BufferSize,
		MaxBatchEvents: e.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   e.cfg.ProgressBatchWait(),
		Logger:         e.logger,
	}, sinks.NewLogSink(e.logger, e.cfg.Progress.LogEveryNEvents))

	pipeline, err := server.NewPipeline(e.cfg, nil, hub, e.logger)
	if err != nil {
		_ = hub.Close(context.Background())
		return nil, nil, err
	}
	closer := func() error {
		perr := pipeline.Close()
		if err := hub.Close(context.Background()); err != nil {
			return err
		}
		return perr
	}
	return pipeline.Scanner, closer, nil
}

type scanFlags struct {
	maxDepth      int
	maxPages      int
	timeout       time.Duration
	respectRobots bool
	out           string
}

func newScanCmd() *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Scan one site and print its brand tokens",
		Long: `Scan crawls the given URL once and prints the full result as JSON.
With --out the tokens.json, theme.css and theme.config.js exports are
written to that directory instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			req, err := buildRequest(cmd, e, args[0], flags)
			if err != nil {
				return err
			}

			runner, closeRunner, err := newRunner(e)
			if err != nil {
				return fmt.Errorf("build scanner: %w", err)
			}
			defer func() {
				if cerr := closeRunner(); cerr != nil {
					e.logger.Warn("close scanner failed", zap.Error(cerr))
				}
			}()

			result, err := runner.Scan(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("scan %s: %w", req.URL, err)
			}
			if flags.out != "" {
				return writeExports(cmd, flags.out, result)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "link depth to follow (default crawler.max_depth_default)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "pages to sample (default crawler.max_pages_default)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-page budget (default queue.task_timeout_seconds)")
	cmd.Flags().BoolVar(&flags.respectRobots, "respect-robots", true, "honor robots.txt")
	cmd.Flags().StringVar(&flags.out, "out", "", "directory for the export files")
	return cmd
}

func buildRequest(cmd *cobra.Command, e *env, rawURL string, flags scanFlags) (scan.Request, error) {
	id, err := uuid.New().NewID()
	if err != nil {
		return scan.Request{}, fmt.Errorf("generate scan id: %w", err)
	}
	req := scan.Request{
		ID:            id,
		URL:           rawURL,
		MaxDepth:      e.cfg.Crawler.MaxDepthDefault,
		MaxPages:      e.cfg.Crawler.MaxPagesDefault,
		Timeout:       e.cfg.TaskTimeout(),
		RespectRobots: e.cfg.Crawler.RespectRobots,
	}
	if cmd.Flags().Changed("max-depth") {
		if flags.maxDepth < 0 {
			return scan.Request{}, fmt.Errorf("--max-depth must be >= 0")
		}
		req.MaxDepth = flags.maxDepth
	}
	if cmd.Flags().Changed("max-pages") {
		if flags.maxPages <= 0 {
			return scan.Request{}, fmt.Errorf("--max-pages must be > 0")
		}
		req.MaxPages = flags.maxPages
	}
	if cmd.Flags().Changed("timeout") {
		if flags.timeout <= 0 {
			return scan.Request{}, fmt.Errorf("--timeout must be > 0")
		}
		req.Timeout = flags.timeout
	}
	if cmd.Flags().Changed("respect-robots") {
		req.RespectRobots = flags.respectRobots
	}
	return req, nil
}

func writeExports(cmd *cobra.Command, dir string, result scan.Result) error {
	store, err := local.New(local.Config{BaseDir: dir})
	if err != nil {
		return fmt.Errorf("open output directory: %w", err)
	}
	tokensJSON, err := json.MarshalIndent(result.Tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	files := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{worker.ArtifactTokens, "application/json", tokensJSON},
		{worker.ArtifactCSS, "text/css; charset=utf-8", []byte(result.CSSVarsExport)},
		{worker.ArtifactThemeConfig, "text/javascript; charset=utf-8", []byte(result.ThemeConfigExport)},
	}
	for _, f := range files {
		uri, err := store.PutObject(cmd.Context(), f.name, f.contentType, f.data)
		if err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), uri)
	}
	return nil
}
