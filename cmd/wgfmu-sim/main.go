package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nvandessel/wgfmu-sim/internal/config"
	"github.com/nvandessel/wgfmu-sim/internal/logging"
	"github.com/nvandessel/wgfmu-sim/internal/metrics"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wgfmu-sim",
		Short: "Simulated waveform generator / fast measurement unit",
		Long: `wgfmu-sim stands in for a WGFMU instrument driver.

It builds voltage patterns from timed vectors, tiles them into
multi-cycle sequences and returns the sampled timeline, so that
measurement plans and orchestration clients can be exercised
without hardware.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.wgfmu-sim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newServeCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "wgfmu-sim version %s\n", version)
			}
		},
	}
}

// loadConfig resolves configuration from --config (or the default
// locations), then applies --log-level and validates.
func loadConfig(cmd *cobra.Command) (*config.SimConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.SimConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// settleSleep builds the simulator's settling wait, cut short when ctx ends.
// Tests replace it to skip the delay.
var settleSleep = func(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

// simEnv is the simulator and its ambient wiring for one command.
type simEnv struct {
	cfg    *config.SimConfig
	logger *slog.Logger
	events *logging.EventLog
	sim    *wgfmu.Simulator
	stats  *metrics.Stats
	driver wgfmu.Driver
}

func newSimEnv(ctx context.Context, cfg *config.SimConfig) *simEnv {
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	var events *logging.EventLog
	if dir, err := config.Dir(); err == nil {
		events = logging.NewEventLog(dir, cfg.Logging.Level)
	}

	sim := wgfmu.NewSimulator(
		wgfmu.WithLogger(logger),
		wgfmu.WithEventLog(events),
		wgfmu.WithSleep(settleSleep(ctx)),
	)
	stats := metrics.NewStats()

	return &simEnv{
		cfg:    cfg,
		logger: logger,
		events: events,
		sim:    sim,
		stats:  stats,
		driver: metrics.Instrument(sim, stats),
	}
}

func (e *simEnv) defaults() plan.Defaults {
	return plan.Defaults{
		Instrument: e.cfg.Instrument.Address,
		Channel:    e.cfg.Instrument.DefaultChannel,
	}
}

func (e *simEnv) Close() {
	e.events.Close()
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
