package compression

import (
	"bytes"
	"io"
)

// guardLen is how many leading and trailing bytes a trailerGuard keeps
const guardLen = 16

// trailerGuard turns the end of the compressed input into io.ErrUnexpectedEOF
// unless the bytes seen so far end the way a complete frame does. The xz and
// lz4 decoders accept an input cut at a block boundary as a clean end.
type trailerGuard struct {
	r        io.Reader
	head     []byte
	tail     []byte
	complete func(head, tail []byte) bool
}

func newTrailerGuard(r io.Reader, complete func(head, tail []byte) bool) *trailerGuard {
	return &trailerGuard{
		r:        r,
		head:     make([]byte, 0, guardLen),
		tail:     make([]byte, 0, 2*guardLen),
		complete: complete,
	}
}

func (g *trailerGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.record(p[:n])
	if err == io.EOF && !g.complete(g.head, g.tail) {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (g *trailerGuard) record(b []byte) {
	if need := guardLen - len(g.head); need > 0 {
		g.head = append(g.head, b[:min(need, len(b))]...)
	}
	if len(b) >= guardLen {
		g.tail = append(g.tail[:0], b[len(b)-guardLen:]...)
		return
	}
	g.tail = append(g.tail, b...)
	if over := len(g.tail) - guardLen; over > 0 {
		g.tail = append(g.tail[:0], g.tail[over:]...)
	}
}

var xzFooterMagic = []byte{'Y', 'Z'}

// xzComplete reports whether the input ends with a stream footer, allowing
// for the zero padding permitted between and after streams
func xzComplete(_, tail []byte) bool {
	end := len(tail)
	for end >= 4 && bytes.Equal(tail[end-4:end], []byte{0, 0, 0, 0}) {
		end -= 4
	}
	return bytes.HasSuffix(tail[:end], xzFooterMagic)
}

const (
	lz4FlagContentChecksum = 0x04
	lz4EndMarkLen          = 4
	lz4ChecksumLen         = 4
)

var lz4FrameMagic = []byte{0x04, 0x22, 0x4D, 0x18}

// lz4Complete reports whether the input ends with the frame end mark,
// followed by the content checksum when the frame descriptor announces one.
// Legacy and skippable frames are left to the decoder.
func lz4Complete(head, tail []byte) bool {
	if !bytes.HasPrefix(head, lz4FrameMagic) {
		return true
	}
	if len(head) <= len(lz4FrameMagic) {
		return false
	}

	end := len(tail)
	if head[len(lz4FrameMagic)]&lz4FlagContentChecksum != 0 {
		end -= lz4ChecksumLen
	}
	if end < lz4EndMarkLen {
		return false
	}
	return bytes.Equal(tail[end-lz4EndMarkLen:end], []byte{0, 0, 0, 0})
}
