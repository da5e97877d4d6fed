package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, buildDate, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display Sparkify version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sparkify v%s\n", version)
			if buildDate != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Built:  %s\n", buildDate)
			}
			if gitCommit != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", gitCommit)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Song play lakehouse built with Go, parquet, and DuckDB")
		},
	}
}
