package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	dutexpect "github.com/srg/dutexpect"
	"github.com/srg/dutexpect/internal/history"
	"github.com/srg/dutexpect/pkg/config"
	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/scenario"
)

// sessionFlags are shared by every command that runs expectations against devices.
type sessionFlags struct {
	ports   []string
	timeout time.Duration
	record  string
	format  string
	capture string
	noColor bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.ports, "port", "p", nil, "Device target (repeat to run on several devices in parallel)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-step timeout (default from scenario or config)")
	cmd.Flags().StringVar(&f.record, "record", "", "Record outcomes in this SQLite database (default from config)")
	cmd.Flags().StringVar(&f.format, "format", formatText, "Report format: text or json")
	cmd.Flags().StringVar(&f.capture, "capture", "", "Write every device line with its timestamp to this file")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	_ = cmd.MarkFlagRequired("port")
}

func newRunCmd() *cobra.Command {
	var (
		flags   sessionFlags
		builtin string
	)

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run a scenario of log expectations against one or more devices",
		Long: fmt.Sprintf(`Runs the steps of a scenario strictly in order against the device output.
Lines that do not match the current step are skipped. The run stops at the
first step that times out, sees the stream close, or reports Unity failures.

Examples:
  # Run a scenario file against a USB serial console
  dutexpect run scenarios/jrnl_example_basic.yaml --port /dev/ttyUSB0

  # Run a built-in scenario on two boards at once and record the results
  dutexpect run --builtin jrnl_basic -p serial:/dev/ttyUSB0 -p serial:/dev/ttyUSB1 --record runs.db

  # Replay a captured log
  dutexpect run scenarios/jrnl_basic.yaml --port file:boot.log

Built-in scenarios: %v`, dutexpect.BuiltinScenarioNames()),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := resolveScenario(args, builtin)
			if err != nil {
				return err
			}
			return runScenario(cmd, sc, &flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&builtin, "builtin", "", "Run a built-in scenario by name instead of a file")
	return cmd
}

func resolveScenario(args []string, builtin string) (*scenario.Scenario, error) {
	switch {
	case builtin != "" && len(args) > 0:
		return nil, fmt.Errorf("give either a scenario file or --builtin, not both")
	case builtin != "":
		data, err := dutexpect.BuiltinScenario(builtin)
		if err != nil {
			return nil, err
		}
		sc, err := scenario.Parse(data)
		if err != nil {
			return nil, err
		}
		if sc.Name == "" {
			sc.Name = builtin
		}
		return sc, nil
	case len(args) == 1:
		return scenario.Load(args[0])
	default:
		return nil, fmt.Errorf("scenario file or --builtin required")
	}
}

// runScenario opens the devices, runs sc on each, then captures, records and
// reports the outcomes. A non-pass outcome yields ErrScenarioFailed.
func runScenario(cmd *cobra.Command, sc *scenario.Scenario, flags *sessionFlags) error {
	if flags.format != formatText && flags.format != formatJSON {
		return fmt.Errorf("invalid format %q (must be %s or %s)", flags.format, formatText, formatJSON)
	}
	if flags.timeout > 0 {
		sc.Timeout = flags.timeout
	}
	if err := sc.Validate(); err != nil {
		return err
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	sc.Match = cfg.ScenarioMatch(sc.Match)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := withInterrupt(cmd.Context(), cmd.ErrOrStderr())
	defer cancel()

	sessions, err := openSessions(ctx, flags.ports, cfg, logger, flags.capture != "")
	if err != nil {
		return err
	}

	runnerOpts := cfg.RunnerOptions()
	var progress *ProgressPrinter
	if len(sessions) == 1 && flags.format == formatText && isTerminal(cmd.ErrOrStderr()) {
		progress = NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Running %s on %s", sc.Name, sessions[0].Name()), "Starting")
		runnerOpts.OnStep = func(index int, _ scenario.Step) {
			progress.SetPhase(fmt.Sprintf("step %d/%d", index+1, len(sc.Steps)))
		}
		progress.Start()
	}

	outcomes := execute(ctx, scenario.NewRunner(logger, runnerOpts), sessions, sc)
	if progress != nil {
		progress.Stop()
	}

	if flags.capture != "" {
		if err := writeCaptures(flags.capture, sessions, logger); err != nil {
			return err
		}
	}

	ordered := sortedOutcomes(outcomes)
	if err := recordOutcomes(ctx, cfg, flags.record, ordered, logger); err != nil {
		return err
	}

	colored := !flags.noColor && isTerminal(cmd.OutOrStdout())
	if err := writeReports(cmd.OutOrStdout(), ordered, flags.format, colored); err != nil {
		return err
	}

	return verdict(ordered)
}

func execute(ctx context.Context, runner *scenario.Runner, sessions []*dut.Session, sc *scenario.Scenario) map[string]*scenario.Outcome {
	if len(sessions) == 1 {
		o := runner.Run(ctx, sessions[0], sc)
		return map[string]*scenario.Outcome{o.Device: o}
	}

	targets := make([]scenario.Target, len(sessions))
	for i, s := range sessions {
		targets[i] = scenario.Target{Device: s, Scenario: sc}
	}
	return runner.RunFleet(ctx, targets)
}

func verdict(outcomes []*scenario.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Status == scenario.StatusCancelled {
			return fmt.Errorf("run interrupted: %w", context.Canceled)
		}
		if !o.Passed() {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	if len(outcomes) == 1 {
		return fmt.Errorf("%w: %s", ErrScenarioFailed, FormatUserError(outcomes[0].Err()))
	}
	return fmt.Errorf("%w on %d of %d devices", ErrScenarioFailed, failed, len(outcomes))
}

// writeCaptures saves each session transcript. With several sessions the
// device index is appended to the file name.
func writeCaptures(path string, sessions []*dut.Session, logger *logrus.Logger) error {
	for i, s := range sessions {
		t := s.Transcript()
		if t == nil {
			continue
		}
		name := path
		if len(sessions) > 1 {
			name = fmt.Sprintf("%s.%d", path, i)
		}

		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		n, werr := t.WriteTo(f)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return fmt.Errorf("failed to write capture %s: %w", name, err)
		}

		entry := logger.WithFields(logrus.Fields{
			"device": s.Name(),
			"file":   name,
			"bytes":  n,
		})
		if dropped := t.Overwritten(); dropped > 0 {
			entry.Warnf("Capture kept the last lines only, %d older lines were overwritten", dropped)
		} else {
			entry.Debug("Capture written")
		}
	}
	return nil
}

func recordOutcomes(ctx context.Context, cfg *config.Config, path string, outcomes []*scenario.Outcome, logger *logrus.Logger) error {
	if path == "" {
		path = cfg.HistoryPath
	}
	if path == "" {
		return nil
	}

	store, err := history.Open(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// record even when the run was interrupted
	ctx = context.WithoutCancel(ctx)
	for _, o := range outcomes {
		if err := store.Record(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
