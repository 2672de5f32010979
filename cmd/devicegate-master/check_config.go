package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/internal/project"
	"github.com/determined-ai/devicegate/internal/resolver"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and show the device every job deploys to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := initializeConfig()
		if err != nil {
			return err
		}
		return printDevices(cmd.OutOrStdout(), config)
	},
}

func printDevices(out io.Writer, cfg *config.Config) error {
	for _, w := range cfg.Warnings() {
		if _, err := fmt.Fprintf(out, "warning: %s\n", w); err != nil {
			return err
		}
	}

	res := resolver.New()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tDEVICE")
	for _, job := range project.NewRegistry(cfg.Jobs).List() {
		for _, d := range job.Devices(res) {
			udid := string(d.Device)
			if udid == "" {
				udid = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\n", d.Task, udid)
		}
	}
	return tw.Flush()
}
