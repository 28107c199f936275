package main

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/dutexpect/pkg/dut"
)

func newMonitorCmd() *cobra.Command {
	var (
		port       string
		until      string
		duration   time.Duration
		timestamps bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print decoded device lines",
		Long: `Prints every line the device sends, decoded the same way expectations see
them, until Ctrl+C, the stream ends, --duration elapses or a line matches --until.

Examples:
  dutexpect monitor --port /dev/ttyUSB0
  dutexpect monitor --port exec:"qemu-system-xtensa -nographic ..." --until "Returned from app_main"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stop *regexp.Regexp
			if until != "" {
				var err error
				if stop, err = regexp.Compile(until); err != nil {
					return fmt.Errorf("invalid --until pattern: %w", err)
				}
			}

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			ctx, cancel := withInterrupt(cmd.Context(), cmd.ErrOrStderr())
			defer cancel()

			s, err := openSession(ctx, port, cfg, logger, false)
			if err != nil {
				return err
			}
			defer s.Close()

			deadline := s.Deadline(duration)
			out := cmd.OutOrStdout()
			for {
				line, err := s.NextLine(ctx, deadline)
				switch {
				case err == nil:
				case errors.Is(err, dut.ErrStreamClosed), errors.Is(err, dut.ErrCancelled):
					return nil
				case errors.Is(err, dut.ErrTimeout):
					if stop != nil {
						return s.Annotate(err, fmt.Sprintf("monitor until /%s/", until), s.LinesRead())
					}
					return nil
				default:
					return err
				}

				if timestamps {
					fmt.Fprintf(out, "%s %s\n", s.Now().Format("15:04:05.000"), line)
				} else {
					fmt.Fprintln(out, line)
				}
				if stop != nil && stop.MatchString(line) {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Device target")
	cmd.Flags().StringVar(&until, "until", "", "Stop after the first line matching this regular expression")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 = no limit)")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "Prefix each line with the time it was received")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}
