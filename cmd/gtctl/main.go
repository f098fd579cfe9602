// gtctl keeps the Gatekeeper dataplane's LPM tables in sync with an
// aggregate of prefixes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gtctl",
		Short:         "Gatekeeper dataplane control agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newDyncfgCommand())
	cmd.AddCommand(newEstimateCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gtctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gtctl %s\n", version)
		},
	}
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "gtctl: %v\n", err)
		os.Exit(1)
	}
}
