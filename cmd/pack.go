package cmd

import (
	"fmt"

	"github.com/sigvaldr/tacklebox/internal/archive"
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	"github.com/sigvaldr/tacklebox/internal/config"
	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack <dir> [output]",
	Short: "Pack a directory into a compressed archive",
	Long: `Pack a directory into a tar archive compressed at maximum ratio.

Without an output path the archive is named after the directory, e.g.
"photos.tar.zst". An explicit output keeps its directory and stem and always
gets the archive extension. With --stamp the archive becomes
"<DDMONYYYY>-<name>.box" and is written atomically.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPack,
}

func init() {
	packCmd.Flags().BoolP("stamp", "s", false, "date-stamp the name and use the .box extension")
	packCmd.Flags().StringP("codec", "c", "", "compression codec: zstd, xz, bzip2, gzip or lz4")
}

func runPack(cmd *cobra.Command, args []string) error {
	req := archive.ArchiveRequest{
		SourceDir: args[0],
		Stamp:     config.Instance.Archive.Stamp,
		Codec:     config.Codec(),
	}
	if len(args) > 1 {
		req.Output = args[1]
	}

	if cmd.Flags().Changed("stamp") {
		req.Stamp, _ = cmd.Flags().GetBool("stamp")
	}
	if cmd.Flags().Changed("codec") {
		name, _ := cmd.Flags().GetString("codec")
		codec, err := compression.ParseCodec(name)
		if err != nil {
			return err
		}
		req.Codec = codec
	}

	packager := archive.PackagerFromConfig(config.Instance, req.Codec)
	summary, err := packager.Pack(req)
	if err != nil {
		logger.LogError("Compression failed", err, map[string]interface{}{
			"source": req.SourceDir,
		})
		return err
	}

	logger.LogInfo("Archive created", map[string]interface{}{
		"archive":       summary.Path,
		"codec":         summary.Codec.String(),
		"entries":       summary.Entries,
		"raw_bytes":     summary.RawBytes,
		"archive_bytes": summary.ArchiveBytes,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Archive created: %s\n", summary.Path)
	return nil
}
