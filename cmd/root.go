package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/sigvaldr/tacklebox/internal/config"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/sigvaldr/tacklebox/pkg/tooling"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "tacklebox",
	Short: "Pack directories into compressed archives and unpack them",
	Long: `tacklebox packs a directory tree into a single tar archive compressed
at maximum ratio (zstd by default) and unpacks such archives again.

Stamped archives get a date prefix and the opaque .box extension, and are
written atomically. Unpacking detects the compression format from the
archive contents, so .box files and renamed archives extract the same way.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configErr := config.Reload(cfgFile)
		if errors.Is(configErr, apperrors.ErrConfigInvalid) {
			return configErr
		}

		logConfig := logger.LoggerConfig{
			Debug:     config.Instance.Debug,
			LogFormat: config.Instance.LogFormat,
			LogFile:   config.Instance.LogFile,
		}
		if err := logger.InitLogger(logConfig); err != nil {
			return err
		}
		tooling.Attach()

		// A broken config file is reported but the defaults remain usable
		if configErr != nil {
			logger.LogError("Error loading config file", configErr, map[string]interface{}{
				"config_file": cfgFile,
			})
		}
		logger.LogDebug("Configuration loaded", map[string]interface{}{
			"config_file": config.ConfigFile,
			"codec":       config.Instance.Archive.Codec,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(tooling.GetVersion()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file")

	config.BindFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	config.BindFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	config.BindFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// singleDashFlags are long flags also accepted with one dash, the spelling
// "-to <folder>" and "-stamp" that pflag would otherwise read as shorthand
// clusters ("-t o", "-s -t ...")
var singleDashFlags = []string{"to", "stamp"}

// normalizeArgs rewrites single-dash long flags to their double-dash form
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		for _, name := range singleDashFlags {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				out[i] = "-" + arg
				break
			}
		}
	}
	return out
}
