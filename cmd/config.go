package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/sigvaldr/tacklebox/internal/config"
	"github.com/sigvaldr/tacklebox/internal/fsutil"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the tacklebox configuration file",
}

var configSaveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Write the effective configuration to a file",
	Long: `Write the effective configuration (defaults, config file, environment and
flags merged) as YAML. Without a path the user config directory is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			dir, err := fsutil.GetConfigDir(config.AppName)
			if err != nil {
				return err
			}
			path = filepath.Join(dir, config.AppName+".yaml")
		}

		if err := config.SaveConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSaveCmd)
}
