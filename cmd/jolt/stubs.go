package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStubCmd builds a command for a CLI surface that belongs to the
// desktop UI layer, not this daemon/CLI binary.
func newStubCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:                name,
		Short:              fmt.Sprintf("%s is implemented by the UI layer, not this binary", name),
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("jolt %s is implemented by the UI layer; nothing to do here\n", name)
			return nil
		},
	}
}
