package compression

import (
	"io"

	"github.com/ulikunitz/xz"
)

// xz exposes no preset levels; the dictionary capacity is the ratio lever.
// 64 MiB matches the xz -9 preset.
const xzDictCap = 64 << 20

func newXZWriter(w io.Writer) (io.WriteCloser, error) {
	cfg := xz.WriterConfig{DictCap: xzDictCap}
	return cfg.NewWriter(w)
}

func newXZReader(r io.Reader) (io.ReadCloser, error) {
	xzReader, err := xz.NewReader(newTrailerGuard(r, xzComplete))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xzReader), nil
}
