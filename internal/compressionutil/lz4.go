package compression

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

func newLZ4Writer(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
		return nil, fmt.Errorf("configure lz4 writer: %w", err)
	}
	return zw, nil
}

func newLZ4Reader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(newTrailerGuard(r, lz4Complete))), nil
}
