package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newLogsCmd builds the "logs" command. The daemon logs to stderr
// (captured by systemd when installed via "jolt daemon install"), so
// this shells out to journalctl rather than tailing a file of its own.
func newLogsCmd() *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show jolt daemon logs from the systemd user journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			journalctl, err := exec.LookPath("journalctl")
			if err != nil {
				return newExit(1, fmt.Errorf("journalctl not found: run the daemon in a terminal with --verbose instead"))
			}

			jargs := []string{"--user", "-u", "jolt", "-n", fmt.Sprint(lines)}
			if follow {
				jargs = append(jargs, "-f")
			}

			sub := exec.Command(journalctl, jargs...)
			sub.Stdout = os.Stdout
			sub.Stderr = os.Stderr
			if err := sub.Run(); err != nil {
				return newExit(1, fmt.Errorf("journalctl: %w", err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow new log lines as they arrive")
	cmd.Flags().IntVarP(&lines, "lines", "n", 200, "number of log lines to show")
	return cmd
}
