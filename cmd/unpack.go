package cmd

import (
	"fmt"

	"github.com/sigvaldr/tacklebox/internal/archive"
	"github.com/sigvaldr/tacklebox/internal/config"
	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/spf13/cobra"
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive>",
	Short: "Unpack an archive into a folder",
	Long: `Unpack an archive produced by pack, or any tar stream compressed with a
supported codec. The codec is detected from the file contents.

Without --to the folder is named after the archive with its extension
removed, e.g. "photos.tar.zst" unpacks into "photos".`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpack,
}

func init() {
	unpackCmd.Flags().StringP("to", "t", "", "folder to unpack into")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	req := archive.ExtractRequest{ArchivePath: args[0], OutputFolder: to}

	fmt.Fprintf(cmd.OutOrStdout(), "Extracting %s into %s\n", req.ArchivePath, req.Destination())

	unpackager := archive.UnpackagerFromConfig(config.Instance)
	summary, err := unpackager.Extract(req)
	if err != nil {
		logger.LogError("Extraction failed", err, map[string]interface{}{
			"archive": req.ArchivePath,
		})
		return err
	}

	logger.LogInfo("Archive extracted", map[string]interface{}{
		"folder":  summary.Path,
		"codec":   summary.Codec.String(),
		"entries": summary.Entries,
		"skipped": summary.Skipped,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Archive extracted to '%s'\n", summary.Path)
	return nil
}
