// Command jolt is the battery and power telemetry daemon and its CLI
// surface (spec §1, §6).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jolt-daemon/jolt/internal/jerr"
)

// Version is the daemon/CLI's reported build version.
const Version = "0.1.0"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jolt:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jolt",
		Short:         "Battery and power telemetry daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config.toml (defaults to the XDG config directory)")
	root.PersistentFlags().String("log", "", "comma-separated log topics to enable, or 'all'")
	root.PersistentFlags().Bool("verbose", false, "enable all log topics (equivalent to -log=all)")

	root.AddCommand(newDaemonCmd())
	root.AddCommand(newPipeCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newStubCmd("ui"))
	root.AddCommand(newStubCmd("theme"))
	root.AddCommand(newStubCmd("config"))
	root.AddCommand(newStubCmd("debug"))

	return root
}

// exitError carries the process exit code spec.md §6 assigns to a
// class of failure, alongside the underlying cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// Exit codes (spec §6): 0 success, 1 general, 2 invalid args, 3
// permission denied, 4 daemon not running, 5 config error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	var je *jerr.Error
	if errors.As(err, &je) {
		switch je.Code {
		case jerr.PermissionDenied:
			return 3
		case jerr.SchemaIncompatible:
			return 5
		case jerr.InvalidRequest:
			return 2
		}
	}

	return 1
}
