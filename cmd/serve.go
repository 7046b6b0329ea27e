package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan HTTP API and workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			app, err := server.Build(cmd.Context(), cfg, e.logger, server.Options{})
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			e.logger.Info("starting brandscan",
				zap.Int("port", cfg.Server.Port),
				zap.Int("workers", cfg.Jobs.Workers),
				zap.String("storage", cfg.Storage.Backend),
			)
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}
