package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/dutexpect/pkg/scenario"
)

func newUnityCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "unity",
		Short: "Wait for a Unity test result block and report it",
		Long: `Waits for the Unity test runner output of the target: one result line per
test followed by the "N Tests F Failures I Ignored" summary. Fails when any
test failed or the counts do not add up.

Examples:
  dutexpect unity --port /dev/ttyUSB0 --timeout 2m
  dutexpect unity --port file:unity.log --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := &scenario.Scenario{
				Name:  "unity",
				Steps: []scenario.Step{scenario.Unity()},
			}
			return runScenario(cmd, sc, &flags)
		},
	}

	flags.register(cmd)
	return cmd
}
