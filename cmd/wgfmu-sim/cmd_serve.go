package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/config"
	"github.com/nvandessel/wgfmu-sim/internal/mcp"
	"github.com/nvandessel/wgfmu-sim/internal/metrics"
	"github.com/nvandessel/wgfmu-sim/internal/pathutil"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulator as MCP tools over stdio",
		Long: `Run an MCP server on stdin/stdout that exposes the simulated driver
to orchestration clients.

Logs go to stderr. When a metrics address is configured (or given with
--metrics-addr) Prometheus metrics are served on /metrics.

Examples:
  wgfmu-sim serve
  wgfmu-sim serve --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				cfg.Metrics.Addr = addr
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid config: %w", err)
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if cfg.Metrics.Tracing {
				shutdown, err := metrics.InitTracing(ctx)
				if err != nil {
					return err
				}
				defer shutdown(context.Background())
			}

			env := newSimEnv(ctx, cfg)
			defer env.Close()

			var a *archive.Archive
			if cfg.Archive.Enabled {
				path, err := cfg.ArchivePath()
				if err != nil {
					return err
				}
				a, err = archive.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open archive: %w", err)
				}
				defer a.Close()
			}

			stateDir, err := config.Dir()
			if err != nil {
				return err
			}
			workDir, _ := os.Getwd()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "wgfmu-sim",
				Version:  version,
				Driver:   env.driver,
				Archive:  a,
				Defaults: env.defaults(),
				StateDir: stateDir,
				PlanDirs: pathutil.DefaultPlanDirs(stateDir, workDir),
				Logger:   env.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			if cfg.Metrics.Addr != "" {
				go func() {
					if err := metrics.Serve(ctx, cfg.Metrics.Addr, env.stats, version, env.logger); err != nil {
						env.logger.Error("metrics endpoint failed", "error", err)
					}
				}()
			}

			env.logger.Info("serving MCP over stdio", "instrument", cfg.Instrument.Address, "channel", cfg.Instrument.DefaultChannel)
			return server.Run(ctx)
		},
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on host:port")

	return cmd
}
