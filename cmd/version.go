package cmd

import (
	"fmt"

	"github.com/sigvaldr/tacklebox/pkg/tooling"
	"github.com/spf13/cobra"
)

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tacklebox v%s\n", tooling.GetVersion())
	},
}
