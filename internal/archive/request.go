// Package archive packs directory trees into compressed tar archives and
// unpacks them again.
//
// Packaging streams DirectoryWalker → tar → compression encoder → file.
// Unpacking sniffs the compression frame, decodes it and writes the tar
// entries below a destination directory. Both pipelines are synchronous and
// hold their file handles only for the duration of one call.
package archive

import (
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	"github.com/sigvaldr/tacklebox/internal/naming"
)

// ArchiveRequest describes one packaging run. Output may be empty, in which
// case the name is derived from SourceDir.
type ArchiveRequest struct {
	SourceDir string
	Output    string
	Stamp     bool
	Codec     compression.Codec
}

// OutputPath returns the final archive path for the request
func (r ArchiveRequest) OutputPath(clock naming.Clock) string {
	return naming.DeriveOutput(r.SourceDir, r.Output, r.Stamp, naming.Options{
		Codec: r.Codec,
		Clock: clock,
	})
}

// ExtractRequest describes one unpacking run. OutputFolder may be empty, in
// which case it is derived from the archive name.
type ExtractRequest struct {
	ArchivePath  string
	OutputFolder string
}

// Destination returns the folder the archive is extracted into
func (r ExtractRequest) Destination() string {
	return naming.DeriveOutputFolder(r.ArchivePath, r.OutputFolder)
}

// Summary reports what a pipeline run processed
type Summary struct {
	Path         string // archive written, or folder extracted into
	Codec        compression.Codec
	Entries      int
	Files        int
	Dirs         int
	Symlinks     int
	Links        int
	Skipped      int
	RawBytes     int64 // uncompressed file content
	ArchiveBytes int64 // compressed bytes on disk
}

// Ratio is ArchiveBytes/RawBytes, or 0 when nothing was archived
func (s Summary) Ratio() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.ArchiveBytes) / float64(s.RawBytes)
}

func (s *Summary) addTarStats(stats compression.TarStats) {
	s.Entries = stats.Entries
	s.Files = stats.Files
	s.Dirs = stats.Dirs
	s.Symlinks = stats.Symlinks
	s.Links = stats.Links
	s.Skipped = stats.Skipped
	s.RawBytes = stats.Bytes
}
