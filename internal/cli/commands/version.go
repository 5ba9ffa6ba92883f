package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, buildDate, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridboard %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  build date: %s\n", buildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "  git commit: %s\n", gitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n", runtime.Version())
		},
	}
}
