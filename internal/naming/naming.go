// Package naming derives archive file names and extraction folder names.
//
// Packaging names follow two variants. The plain variant exposes both layers in
// a compound extension ("photos.tar.zst"). The stamped variant prefixes a date
// and hides the inner format behind the ".box" extension
// ("08JUN2025-photos.box"). Extraction reverses either form.
package naming

import (
	"path/filepath"
	"strings"
	"time"

	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
)

const (
	// BoxExtension is the single public extension of stamped archives
	BoxExtension = ".box"

	tarExtension = ".tar"

	// stampLayout renders as e.g. "08Jun2025" before upper-casing
	stampLayout = "02Jan2006"
)

// Clock returns the current time
type Clock func() time.Time

// SystemClock reads the local wall clock
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock returns a Clock frozen at t
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Options tune DeriveOutput. The zero value uses the default codec and the
// system clock.
type Options struct {
	Codec compression.Codec
	Clock Clock
}

func (o Options) codec() compression.Codec {
	if o.Codec == "" {
		return compression.DefaultCodec
	}
	return o.Codec
}

func (o Options) now() time.Time {
	if o.Clock == nil {
		return SystemClock()
	}
	return o.Clock()
}

// DateStamp formats t as an upper-case day-month-year stamp, e.g. "08JUN2025"
func DateStamp(t time.Time) string {
	return strings.ToUpper(t.Format(stampLayout))
}

// ContainerExtension returns the extension an archive gets for the variant
func ContainerExtension(stamp bool, codec compression.Codec) string {
	if stamp {
		return BoxExtension
	}
	if codec == "" {
		codec = compression.DefaultCodec
	}
	return codec.ContainerExtension()
}

// DeriveOutput computes the archive path for sourceDir. An explicit output keeps
// its directory and stem but always receives the container extension. With
// stamp the name becomes "<DATE>-<stem>.box" in the same directory.
func DeriveOutput(sourceDir, explicitOutput string, stamp bool, opts Options) string {
	var parent, stem string
	if explicitOutput == "" {
		stem = sourceBaseName(sourceDir)
	} else {
		parent = filepath.Dir(explicitOutput)
		stem = StripArchiveExtension(filepath.Base(explicitOutput))
	}

	name := stem
	if stamp {
		name = DateStamp(opts.now()) + "-" + stem
	}
	name += ContainerExtension(stamp, opts.codec())

	if parent == "" || parent == "." {
		return name
	}
	return filepath.Join(parent, name)
}

// DeriveOutputFolder returns explicitFolder when given; otherwise the archive's
// base name with its recognized archive extension removed. Unrecognized names
// are used whole so nothing is guessed.
func DeriveOutputFolder(archivePath, explicitFolder string) string {
	if explicitFolder != "" {
		return explicitFolder
	}

	base := filepath.Base(archivePath)
	stem, ok := trimArchiveExtension(base)
	if !ok || stem == "" {
		return base
	}
	return stem
}

// StripArchiveExtension removes a recognized archive extension, or else the last
// extension of name
func StripArchiveExtension(name string) string {
	if stem, ok := trimArchiveExtension(name); ok && stem != "" {
		return stem
	}
	if ext := filepath.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// trimArchiveExtension strips ".box", ".tar", ".tar.<codec>", a bare codec
// extension, or a tar shorthand such as ".tgz"
func trimArchiveExtension(name string) (string, bool) {
	ext := filepath.Ext(name)
	lower := strings.ToLower(ext)

	switch lower {
	case "":
		return name, false
	case BoxExtension, tarExtension:
		return strings.TrimSuffix(name, ext), true
	}

	_, shorthand, ok := compression.CodecForExtension(lower)
	if !ok {
		return name, false
	}

	stem := strings.TrimSuffix(name, ext)
	if !shorthand && strings.EqualFold(filepath.Ext(stem), tarExtension) {
		stem = stem[:len(stem)-len(tarExtension)]
	}
	return stem, true
}

func sourceBaseName(sourceDir string) string {
	clean := filepath.Clean(sourceDir)
	if clean == "." || clean == ".." {
		if abs, err := filepath.Abs(clean); err == nil {
			clean = abs
		}
	}
	base := filepath.Base(clean)
	if base == string(filepath.Separator) || base == "." || base == "" {
		return "archive"
	}
	return base
}
