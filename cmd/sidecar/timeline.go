package main

import (
	"github.com/spf13/cobra"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <id>",
	Short: "Show the success/failure timeline for an entity id",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimeline,
}

func runTimeline(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), led.Timeline(args[0]))
}

var failuresCmd = &cobra.Command{
	Use:   "failures <id>",
	Short: "Show the failure audit entries touching an entity id",
	Args:  cobra.ExactArgs(1),
	RunE:  runFailures,
}

func runFailures(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), led.FailureReasons(args[0]))
}
