package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/dutexpect/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		record string
		limit  int
		runID  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scenario runs",
		Long: `Lists runs recorded with --record, most recent first, or shows one run in detail.

Examples:
  dutexpect history --record runs.db --limit 20
  dutexpect history --record runs.db --run 6f1c0d7e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("invalid format %q (must be %s or %s)", format, formatText, formatJSON)
			}
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if record == "" {
				record = cfg.HistoryPath
			}
			if record == "" {
				return fmt.Errorf("no history database: pass --record or set history_path in the config")
			}
			cmd.SilenceUsage = true

			store, err := history.Open(record, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []history.Run
			if runID != "" {
				r, err := store.Get(cmd.Context(), runID)
				if err != nil {
					return err
				}
				runs = []history.Run{*r}
			} else if runs, err = store.List(cmd.Context(), limit); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == formatJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if runID != "" {
				writeRunDetail(out, runs[0])
				return nil
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tRUN\tSCENARIO\tDEVICE\tSTATUS\tREASON\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), shortID(r.RunID), r.Scenario, r.Device,
					r.Status, r.Reason, r.Duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&record, "record", "", "SQLite database written by run --record (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show a single run in detail")
	cmd.Flags().StringVar(&format, "format", formatText, "Output format: text or json")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeRunDetail(w io.Writer, r history.Run) {
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	fmt.Fprintf(w, "Scenario: %s\n", r.Scenario)
	fmt.Fprintf(w, "Device:   %s\n", r.Device)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", r.Duration)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	if r.FailedStep >= 0 {
		fmt.Fprintf(w, "Step:     %d %s\n", r.FailedStep, r.Step)
		fmt.Fprintf(w, "Reason:   %s\n", r.Reason)
	}
	if r.UnityTests != nil {
		fmt.Fprintf(w, "Unity:    %d Tests %d Failures %d Ignored\n", *r.UnityTests, *r.UnityFailures, *r.UnityIgnored)
	}
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.ErrorMessage)
	}
	if len(r.Context) > 0 {
		fmt.Fprintf(w, "Context:\n  %s\n", strings.Join(r.Context, "\n  "))
	}
}
