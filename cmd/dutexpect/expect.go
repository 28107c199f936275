package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/dutexpect/pkg/expect"
	"github.com/srg/dutexpect/pkg/scenario"
)

func newExpectCmd() *cobra.Command {
	var (
		flags      sessionFlags
		regex      bool
		unordered  bool
		substring  bool
		ignoreCase bool
	)

	cmd := &cobra.Command{
		Use:   "expect <line>...",
		Short: "Wait for one or more lines from a device, in order",
		Long: `Waits for each argument as a device line, in the given order, without a
scenario file. Literal lines must match a whole device line unless --substring
is given.

Examples:
  # Wait for the boot banner
  dutexpect expect --port /dev/ttyUSB0 "Journaled FatFS mounted successfully."

  # Regular expressions, 10 seconds each
  dutexpect expect --port tcp:localhost:5555 --regex --timeout 10s "Read from file: '.*'" "unmounted\.$"

  # Lines that may appear in any order
  dutexpect expect --port /dev/ttyUSB0 --any-order "wifi: connected" "sntp: synced"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := &scenario.Scenario{
				Name:  "expect",
				Match: expect.MatchOptions{Substring: substring, IgnoreCase: ignoreCase},
			}
			switch {
			case unordered:
				sc.Steps = []scenario.Step{scenario.AllOf(args...)}
			case regex:
				for _, a := range args {
					sc.Steps = append(sc.Steps, scenario.Pattern(a))
				}
			default:
				for _, a := range args {
					sc.Steps = append(sc.Steps, scenario.Exact(a))
				}
			}
			return runScenario(cmd, sc, &flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat arguments as regular expressions")
	cmd.Flags().BoolVar(&unordered, "any-order", false, "Accept the lines in any order")
	cmd.Flags().BoolVar(&substring, "substring", false, "A literal matches when it occurs anywhere in the line")
	cmd.Flags().BoolVar(&ignoreCase, "ignore-case", false, "Compare literals case-insensitively")
	cmd.MarkFlagsMutuallyExclusive("regex", "any-order")
	return cmd
}
