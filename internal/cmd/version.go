package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/update"
	"github.com/upcall/upcall-cli/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "upcall version %s\n", version.Version)

			// Check for updates (non-blocking, fails silently)
			result := update.Check(cmd.Context(), version.Version)
			if result != nil && result.UpdateAvailable {
				errOut := cmd.ErrOrStderr()
				_, _ = fmt.Fprintf(errOut, "\nUpdate available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
				_, _ = fmt.Fprintf(errOut, "Download: %s\n", result.UpdateURL)
			}
		},
	}
}
