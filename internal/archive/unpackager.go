package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"

	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/logger"
)

const opUnpack = "unpack"

// Unpackager extracts archives produced by Packager, or any tar stream framed
// by a supported codec. The codec is detected from the frame's magic bytes,
// so the file extension is never trusted.
type Unpackager struct {
	PreservePermissions bool
	PreserveTimes       bool
}

// NewUnpackager returns an Unpackager that restores permissions and times
func NewUnpackager() *Unpackager {
	return &Unpackager{PreservePermissions: true, PreserveTimes: true}
}

// Unpack extracts req with a default Unpackager
func Unpack(req ExtractRequest) (Summary, error) {
	return NewUnpackager().Extract(req)
}

// Extract resolves the destination for req and unpacks the archive into it
func (u *Unpackager) Extract(req ExtractRequest) (Summary, error) {
	return u.Unpack(req.ArchivePath, req.Destination())
}

// Unpack extracts archivePath below dest, creating dest as needed
func (u *Unpackager) Unpack(archivePath, dest string) (Summary, error) {
	summary := Summary{Path: dest}

	info, err := os.Stat(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return summary, apperrors.New(opUnpack, archivePath, apperrors.KindInvalidInput, err)
		}
		return summary, apperrors.New(opUnpack, archivePath, apperrors.KindIoFailure, err)
	}
	if !info.Mode().IsRegular() {
		return summary, apperrors.New(opUnpack, archivePath, apperrors.KindInvalidInput, apperrors.ErrNotFile)
	}
	summary.ArchiveBytes = info.Size()

	file, err := os.Open(archivePath)
	if err != nil {
		return summary, apperrors.New(opUnpack, archivePath, apperrors.KindIoFailure, err)
	}
	defer file.Close()

	raw := &countingReader{r: file}
	codec, dec, err := compression.OpenReader(raw)
	if err != nil {
		if raw.err != nil {
			return summary, apperrors.New(opUnpack, archivePath, apperrors.KindIoFailure, err)
		}
		return summary, apperrors.New(opUnpack, archivePath, apperrors.KindCompressionFailure, err)
	}
	defer dec.Close()
	summary.Codec = codec

	logger.LogDebug("Unpacking archive", map[string]interface{}{
		"archive": archivePath,
		"dest":    dest,
		"codec":   codec.String(),
	})

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return summary, apperrors.New(opUnpack, dest, apperrors.KindIoFailure, err)
	}

	frame := &countingReader{r: dec}
	tr := compression.NewTarReader(frame)
	opts := compression.ExtractOptions{
		PreservePermissions: u.PreservePermissions,
		PreserveTimes:       u.PreserveTimes,
		OnSkip: func(name string, mode fs.FileMode) {
			logger.LogDebug("Skipping unsupported entry", map[string]interface{}{
				"entry": name,
				"mode":  mode.String(),
			})
		},
	}

	err = tr.ExtractTo(dest, opts)
	summary.addTarStats(tr.Stats())
	if err != nil {
		return summary, classifyRead(archivePath, raw, frame, err)
	}

	// The tar trailer may end before the compression frame does. Reading the
	// rest verifies the frame checksum and catches truncation after the trailer.
	if _, err := io.Copy(io.Discard, frame); err != nil {
		return summary, classifyRead(archivePath, raw, frame, err)
	}
	return summary, nil
}

// classifyRead maps an extraction failure to the layer that produced it:
// the archive file, the decoder, the local filesystem, or the tar stream
func classifyRead(path string, raw, frame *countingReader, err error) error {
	switch {
	case raw.err != nil:
		return apperrors.New(opUnpack, path, apperrors.KindIoFailure, err)
	case frame.err != nil:
		return apperrors.New(opUnpack, path, apperrors.KindCompressionFailure, err)
	case errors.Is(err, apperrors.ErrTruncated), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.New(opUnpack, path, apperrors.KindCompressionFailure, err)
	case errors.Is(err, apperrors.ErrUnsafePath), errors.Is(err, apperrors.ErrSymlinkInPath):
		return apperrors.New(opUnpack, path, apperrors.KindContainerFailure, err)
	case isFSError(err):
		return apperrors.New(opUnpack, path, apperrors.KindIoFailure, err)
	default:
		return apperrors.New(opUnpack, path, apperrors.KindContainerFailure, err)
	}
}

