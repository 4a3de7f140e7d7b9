package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/wgfmu-sim/internal/archive"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a measurement plan against the simulator",
		Long: `Execute a YAML measurement plan and print the captured samples.

The plan is driven through the full session: patterns are authored,
sequences tiled, the channel connected and executed, and the samples
retrieved after the settling delay.

Examples:
  wgfmu-sim run pulse-train.yaml
  wgfmu-sim run pulse-train.yaml --archive
  wgfmu-sim run pulse-train.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			archiveFlag, _ := cmd.Flags().GetBool("archive")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			env := newSimEnv(ctx, cfg)
			defer env.Close()

			runner := plan.NewRunner(env.driver, env.logger, env.defaults())
			capture, err := runner.Run(ctx, p)
			if err != nil {
				return fmt.Errorf("plan %s: %w", p.Name, err)
			}

			var runID string
			if archiveFlag || cfg.Archive.Enabled {
				path, err := cfg.ArchivePath()
				if err != nil {
					return err
				}
				a, err := archive.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open archive: %w", err)
				}
				defer a.Close()

				runID, err = a.Save(ctx, capture)
				if err != nil {
					return fmt.Errorf("failed to archive capture: %w", err)
				}
				env.logger.Info("capture archived", "run_id", runID, "path", path)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*plan.Capture
					RunID string `json:"run_id,omitempty"`
				}{capture, runID})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s on %s channel %d: %d samples\n",
				capture.Plan, capture.Instrument, capture.Channel, len(capture.Samples))
			if runID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Archived as %s\n", runID)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			printSamples(cmd, capture.Samples)
			return nil
		},
	}

	cmd.Flags().Bool("archive", false, "Record the capture in the run archive")

	return cmd
}

// printSamples writes samples as an aligned time/voltage/current table.
func printSamples(cmd *cobra.Command, samples []wgfmu.Measurement) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tVOLTAGE\tCURRENT")
	for _, m := range samples {
		current := "-"
		if m.Current != nil {
			current = fmt.Sprintf("%g", *m.Current)
		}
		fmt.Fprintf(w, "%g\t%g\t%s\n", m.Time, m.Voltage, current)
	}
	w.Flush()
}
