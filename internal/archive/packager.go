package archive

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/sigvaldr/tacklebox/internal/naming"
)

const opPackage = "package"

// Packager writes a directory tree into a compressed tar archive
type Packager struct {
	Codec compression.Codec
	// Atomic writes to a hidden temporary file next to the destination and
	// renames it into place only after every layer has been finalized.
	Atomic bool
	Clock  naming.Clock
}

// NewPackager returns a Packager for codec. An empty codec selects the default.
func NewPackager(codec compression.Codec, atomic bool) *Packager {
	return &Packager{Codec: codec, Atomic: atomic, Clock: naming.SystemClock}
}

func (p *Packager) codec() compression.Codec {
	if p.Codec == "" {
		return compression.DefaultCodec
	}
	return p.Codec
}

// Pack packages req with a default Packager
func Pack(req ArchiveRequest) (Summary, error) {
	return NewPackager(req.Codec, false).Pack(req)
}

// Pack resolves the output name for req and packages its source directory.
// Stamped archives are always committed atomically.
func (p *Packager) Pack(req ArchiveRequest) (Summary, error) {
	if req.Codec == "" {
		req.Codec = p.codec()
	}
	output := req.OutputPath(p.Clock)

	packager := *p
	packager.Codec = req.Codec
	packager.Atomic = p.Atomic || req.Stamp
	return packager.Package(req.SourceDir, output)
}

// Package writes sourceDir into an archive at dest
func (p *Packager) Package(sourceDir, dest string) (Summary, error) {
	summary := Summary{Path: dest, Codec: p.codec()}

	if err := checkSourceDir(sourceDir); err != nil {
		return summary, err
	}

	logger.LogDebug("Packaging directory", map[string]interface{}{
		"source": sourceDir,
		"output": dest,
		"codec":  summary.Codec.String(),
		"atomic": p.Atomic,
	})

	if err := p.commit(sourceDir, dest, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// commit writes the archive directly, or through a temporary sibling that is
// renamed into place once complete
func (p *Packager) commit(sourceDir, dest string, summary *Summary) error {
	if !p.Atomic {
		return p.writeArchive(sourceDir, dest, summary)
	}

	tmp := tempPath(dest, summary.Codec)
	if err := p.writeArchive(sourceDir, tmp, summary); err != nil {
		removeTemp(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		removeTemp(tmp)
		return apperrors.New(opPackage, dest, apperrors.KindIoFailure, err)
	}
	return nil
}

// writeArchive streams the tree through tar and the encoder into path. The
// layers are finalized innermost first: tar trailer, compression frame, file.
func (p *Packager) writeArchive(sourceDir, path string, summary *Summary) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.New(opPackage, path, apperrors.KindIoFailure, err)
	}
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	sink := &countingWriter{w: file}
	enc, err := compression.NewWriter(summary.Codec, sink)
	if err != nil {
		return apperrors.New(opPackage, path, apperrors.KindCompressionFailure, err)
	}
	defer func() {
		if enc != nil {
			_ = enc.Close()
		}
	}()

	tw := compression.NewTarWriter(enc)
	tw.OnSkip = func(name string, mode fs.FileMode) {
		logger.LogDebug("Skipping unsupported entry", map[string]interface{}{
			"entry": name,
			"mode":  mode.String(),
		})
	}
	if info, statErr := file.Stat(); statErr == nil {
		tw.Exclude(info)
	}

	if err := tw.AddTree(sourceDir); err != nil {
		return classifyWrite(path, sink, err)
	}
	if err := tw.Close(); err != nil {
		return classifyWrite(path, sink, err)
	}
	summary.addTarStats(tw.Stats())

	closing := enc
	enc = nil
	if err := closing.Close(); err != nil {
		if sink.err != nil {
			return apperrors.New(opPackage, path, apperrors.KindIoFailure, err)
		}
		return apperrors.New(opPackage, path, apperrors.KindCompressionFailure, err)
	}

	f := file
	file = nil
	if err := f.Close(); err != nil {
		return apperrors.New(opPackage, path, apperrors.KindIoFailure, err)
	}
	summary.ArchiveBytes = sink.n
	return nil
}

// classifyWrite maps a failure raised while feeding the tar layer. Errors that
// surfaced from the file sink or from reading the tree are I/O; the rest came
// from the tar writer.
func classifyWrite(path string, sink *countingWriter, err error) error {
	if sink.err != nil || isFSError(err) {
		return apperrors.New(opPackage, path, apperrors.KindIoFailure, err)
	}
	return apperrors.New(opPackage, path, apperrors.KindContainerFailure, err)
}

func checkSourceDir(sourceDir string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return apperrors.New(opPackage, sourceDir, apperrors.KindInvalidInput, err)
	}
	if !info.IsDir() {
		return apperrors.New(opPackage, sourceDir, apperrors.KindInvalidInput, apperrors.ErrNotDirectory)
	}
	return nil
}

// tempPath returns a hidden sibling of dest, e.g. ".photos-<uuid>.tar.zst"
func tempPath(dest string, codec compression.Codec) string {
	stem := naming.StripArchiveExtension(filepath.Base(dest))
	name := "." + stem + "-" + uuid.NewString() + codec.ContainerExtension()
	return filepath.Join(filepath.Dir(dest), name)
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.LogWarn("Failed to remove temporary archive", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}
