package archive

import (
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	"github.com/sigvaldr/tacklebox/internal/config"
	"github.com/sigvaldr/tacklebox/internal/naming"
)

// PackagerFromConfig builds a Packager for codec using the archive settings
// of cfg. An empty codec falls back to cfg's codec.
func PackagerFromConfig(cfg config.AppConfig, codec compression.Codec) *Packager {
	if codec == "" {
		parsed, err := compression.ParseCodec(cfg.Archive.Codec)
		if err != nil {
			parsed = compression.DefaultCodec
		}
		codec = parsed
	}
	return &Packager{
		Codec:  codec,
		Atomic: cfg.Archive.Atomic,
		Clock:  naming.SystemClock,
	}
}

// UnpackagerFromConfig builds an Unpackager from the extract settings of cfg
func UnpackagerFromConfig(cfg config.AppConfig) *Unpackager {
	return &Unpackager{
		PreservePermissions: cfg.Extract.PreservePermissions,
		PreserveTimes:       cfg.Extract.PreserveTimes,
	}
}
