package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
)

// Codec names a compression format that can frame a tar stream
type Codec string

const (
	Zstd  Codec = "zstd"
	XZ    Codec = "xz"
	Bzip2 Codec = "bzip2"
	Gzip  Codec = "gzip"
	LZ4   Codec = "lz4"

	// DefaultCodec is used when no codec is configured
	DefaultCodec = Zstd
)

type writerFunc func(w io.Writer) (io.WriteCloser, error)
type readerFunc func(r io.Reader) (io.ReadCloser, error)

type codecSpec struct {
	codec     Codec
	ext       string
	shorthand string
	aliases   []string
	magic     []byte
	newWriter writerFunc
	newReader readerFunc
}

// Detection order matters only for readability; no magic is a prefix of another.
var codecs = []codecSpec{
	{
		codec:     Zstd,
		ext:       ".zst",
		shorthand: ".tzst",
		aliases:   []string{"zst", "zstandard"},
		magic:     []byte{0x28, 0xB5, 0x2F, 0xFD},
		newWriter: newZstdWriter,
		newReader: newZstdReader,
	},
	{
		codec:     XZ,
		ext:       ".xz",
		shorthand: ".txz",
		aliases:   []string{"lzma2"},
		magic:     []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
		newWriter: newXZWriter,
		newReader: newXZReader,
	},
	{
		codec:     Bzip2,
		ext:       ".bz2",
		shorthand: ".tbz2",
		aliases:   []string{"bz2", "bzip"},
		magic:     []byte{0x42, 0x5A, 0x68},
		newWriter: newBzip2Writer,
		newReader: newBzip2Reader,
	},
	{
		codec:     Gzip,
		ext:       ".gz",
		shorthand: ".tgz",
		aliases:   []string{"gz"},
		magic:     []byte{0x1F, 0x8B},
		newWriter: newGzipWriter,
		newReader: newGzipReader,
	},
	{
		codec:     LZ4,
		ext:       ".lz4",
		shorthand: ".tlz4",
		magic:     []byte{0x04, 0x22, 0x4D, 0x18},
		newWriter: newLZ4Writer,
		newReader: newLZ4Reader,
	},
}

// maxMagicLen is the number of header bytes DetectFormat needs
const maxMagicLen = 6

func lookup(c Codec) (codecSpec, error) {
	for _, spec := range codecs {
		if spec.codec == c {
			return spec, nil
		}
	}
	return codecSpec{}, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedCompression, string(c))
}

// Codecs lists every supported codec
func Codecs() []Codec {
	out := make([]Codec, 0, len(codecs))
	for _, spec := range codecs {
		out = append(out, spec.codec)
	}
	return out
}

// ParseCodec resolves a codec name or alias, case-insensitively. An empty name
// yields DefaultCodec.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultCodec, nil
	}
	for _, spec := range codecs {
		if string(spec.codec) == name {
			return spec.codec, nil
		}
		for _, alias := range spec.aliases {
			if alias == name {
				return spec.codec, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedCompression, name)
}

func (c Codec) String() string {
	return string(c)
}

// Extension returns the single-layer file extension, e.g. ".zst"
func (c Codec) Extension() string {
	spec, err := lookup(c)
	if err != nil {
		return ""
	}
	return spec.ext
}

// ContainerExtension returns the compound tar extension, e.g. ".tar.zst"
func (c Codec) ContainerExtension() string {
	ext := c.Extension()
	if ext == "" {
		return ""
	}
	return ".tar" + ext
}

// CodecForExtension maps a trailing extension (".zst", ".tgz", ...) to its codec.
// The second result reports whether the extension is a tar shorthand that
// already implies the container layer.
func CodecForExtension(ext string) (Codec, bool, bool) {
	ext = strings.ToLower(ext)
	for _, spec := range codecs {
		switch ext {
		case spec.ext:
			return spec.codec, false, true
		case spec.shorthand:
			return spec.codec, true, true
		}
	}
	return "", false, false
}

// NewWriter returns an encoder for c over w, configured for maximum ratio.
// Closing the encoder writes the final frame but does not close w.
func NewWriter(c Codec, w io.Writer) (io.WriteCloser, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}
	return spec.newWriter(w)
}

// NewReader returns a decoder for c over r
func NewReader(c Codec, r io.Reader) (io.ReadCloser, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}
	return spec.newReader(r)
}

// DetectFormat determines the codec from the leading magic bytes of a stream
func DetectFormat(header []byte) (Codec, error) {
	for _, spec := range codecs {
		if bytes.HasPrefix(header, spec.magic) {
			return spec.codec, nil
		}
	}
	return "", apperrors.ErrUnknownFormat
}

// DetectFileFormat sniffs the codec of the file at path
func DetectFileFormat(filename string) (Codec, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, maxMagicLen)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return DetectFormat(header[:n])
}

// OpenReader sniffs the codec of r and returns a matching decoder. Sniffing is
// done through a buffered reader, so no bytes of r are lost.
func OpenReader(r io.Reader) (Codec, io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(maxMagicLen)
	if err != nil && err != io.EOF {
		return "", nil, err
	}

	codec, err := DetectFormat(header)
	if err != nil {
		return "", nil, err
	}

	dec, err := NewReader(codec, br)
	if err != nil {
		return codec, nil, err
	}
	return codec, dec, nil
}
