package compression

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
)

const (
	// rootEntryName is the tar name of the packaged directory itself
	rootEntryName = "./"

	// blockSize is the tar record unit. The end-of-archive marker is two
	// zero-filled blocks.
	blockSize = 512
)

// TarStats counts what went through a tar stream
type TarStats struct {
	Entries  int
	Files    int
	Dirs     int
	Symlinks int
	Links    int
	Skipped  int
	Bytes    int64 // regular file content bytes
}

// SkipFunc is notified of entries that are not archived or not extracted
type SkipFunc func(name string, mode fs.FileMode)

// TarWriter adds directory trees to a tar stream
type TarWriter struct {
	tw      *tar.Writer
	stats   TarStats
	exclude []fs.FileInfo
	OnSkip  SkipFunc
}

// NewTarWriter creates a tar encoder over w. Close flushes the end-of-archive
// marker but does not close w.
func NewTarWriter(w io.Writer) *TarWriter {
	return &TarWriter{tw: tar.NewWriter(w)}
}

// Stats returns counters for everything written so far
func (t *TarWriter) Stats() TarStats {
	return t.stats
}

// Exclude keeps the file described by info out of the archive. It is used for
// the archive itself when it is written inside the tree being packed.
func (t *TarWriter) Exclude(info fs.FileInfo) {
	t.exclude = append(t.exclude, info)
}

func (t *TarWriter) excluded(info fs.FileInfo) bool {
	for _, ex := range t.exclude {
		if os.SameFile(ex, info) {
			return true
		}
	}
	return false
}

// AddTree walks root without following symlinks and adds every directory,
// regular file and symlink using names relative to root ("./", "./a", "./dir/").
func (t *TarWriter) AddTree(root string) error {
	// A symlinked source directory is archived by its contents
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		name := entryName(rel, d.IsDir())

		mode := info.Mode()
		switch {
		case mode.IsDir():
			return t.writeHeader(info, name, "")
		case mode.IsRegular():
			if t.excluded(info) {
				return nil
			}
			return t.addFile(path, info, name)
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read link %s: %w", path, err)
			}
			return t.writeHeader(info, name, target)
		default:
			t.stats.Skipped++
			if t.OnSkip != nil {
				t.OnSkip(name, mode)
			}
			return nil
		}
	})
}

func (t *TarWriter) writeHeader(info fs.FileInfo, name, link string) error {
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	hdr.Name = name
	if err := t.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}

	t.stats.Entries++
	switch hdr.Typeflag {
	case tar.TypeDir:
		t.stats.Dirs++
	case tar.TypeSymlink:
		t.stats.Symlinks++
	}
	return nil
}

func (t *TarWriter) addFile(path string, info fs.FileInfo, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := t.writeHeader(info, name, ""); err != nil {
		return err
	}

	n, err := io.Copy(t.tw, file)
	if err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	t.stats.Files++
	t.stats.Bytes += n
	return nil
}

// Close writes the end-of-archive marker
func (t *TarWriter) Close() error {
	return t.tw.Close()
}

func entryName(rel string, isDir bool) string {
	if rel == "." {
		return rootEntryName
	}
	name := "./" + filepath.ToSlash(rel)
	if isDir {
		name += "/"
	}
	return name
}

// ExtractOptions controls metadata restoration during extraction
type ExtractOptions struct {
	PreservePermissions bool
	PreserveTimes       bool
	OnSkip              SkipFunc
}

// TarReader extracts tar streams into a directory
type TarReader struct {
	tr    *tar.Reader
	src   *markerReader
	stats TarStats
}

// NewTarReader creates a tar decoder over r
func NewTarReader(r io.Reader) *TarReader {
	src := &markerReader{r: r}
	return &TarReader{tr: tar.NewReader(src), src: src}
}

// markerReader counts the all-zero blocks at the end of the consumed stream.
// archive/tar reports a stream that simply stops at a block boundary as a
// clean end, the same as one closed by the end-of-archive marker.
type markerReader struct {
	r          io.Reader
	off        int64
	blockZero  bool
	zeroBlocks int
}

func (m *markerReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	for b := p[:n]; len(b) > 0; {
		pos := int(m.off % blockSize)
		if pos == 0 {
			m.blockZero = true
		}
		k := min(len(b), blockSize-pos)
		if m.blockZero && !allZero(b[:k]) {
			m.blockZero = false
		}
		m.off += int64(k)
		b = b[k:]

		if m.off%blockSize == 0 {
			if m.blockZero {
				m.zeroBlocks++
			} else {
				m.zeroBlocks = 0
			}
		}
	}
	return n, err
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (m *markerReader) sawEndMarker() bool {
	return m.zeroBlocks >= 2
}

// Stats returns counters for everything extracted so far
func (t *TarReader) Stats() TarStats {
	return t.stats
}

type pendingDir struct {
	path string
	hdr  *tar.Header
}

// ExtractTo writes every entry below dest. Entry names that are absolute,
// escape dest, or pass through a symlink are rejected. A stream without the
// end-of-archive marker fails with ErrTruncated.
func (t *TarReader) ExtractTo(dest string, opts ExtractOptions) error {
	var dirs []pendingDir

	for {
		hdr, err := t.tr.Next()
		if errors.Is(err, io.EOF) {
			if !t.src.sawEndMarker() {
				return apperrors.ErrTruncated
			}
			break
		}
		if err != nil {
			return fmt.Errorf("read entry: %w", err)
		}

		target, err := SafeEntryPath(dest, hdr.Name)
		if err != nil {
			return err
		}
		if target == dest {
			continue
		}
		if err := checkNoSymlinkParents(dest, target); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// A symlink planted by an earlier entry is replaced, never followed
			if err := removeNonDir(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			dirs = append(dirs, pendingDir{path: target, hdr: hdr})
			t.stats.Dirs++
		case tar.TypeReg:
			n, err := writeFile(target, hdr, t.tr, opts)
			if err != nil {
				return err
			}
			t.stats.Files++
			t.stats.Bytes += n
		case tar.TypeSymlink:
			if err := writeSymlink(target, hdr.Linkname); err != nil {
				return err
			}
			t.stats.Symlinks++
		case tar.TypeLink:
			if err := writeHardLink(dest, target, hdr.Linkname); err != nil {
				return err
			}
			t.stats.Links++
		case tar.TypeXGlobalHeader:
			continue
		default:
			t.stats.Skipped++
			if opts.OnSkip != nil {
				opts.OnSkip(hdr.Name, hdr.FileInfo().Mode())
			}
			continue
		}
		t.stats.Entries++
	}

	// Directory metadata last, deepest first, so read-only directories and
	// mtimes are not disturbed by their own contents.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := applyDirMetadata(dirs[i].path, dirs[i].hdr, opts); err != nil {
			return err
		}
	}
	return nil
}

// SafeEntryPath joins an entry name to dest, rejecting names that are
// absolute or climb out of dest
func SafeEntryPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return dest, nil
	}
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsafePath, name)
	}
	return filepath.Join(dest, clean), nil
}

// checkNoSymlinkParents refuses to write below an existing symlink, which an
// earlier entry could have planted to redirect writes outside dest
func checkNoSymlinkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}

	current := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrSymlinkInPath, target)
		}
	}
	return nil
}

// removeNonDir clears a previous non-directory at path so it is replaced
// rather than written through
func removeNonDir(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	return os.Remove(path)
}

func writeFile(target string, hdr *tar.Header, r io.Reader, opts ExtractOptions) (_ int64, err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	if err := removeNonDir(target); err != nil {
		return 0, err
	}

	perm := fs.FileMode(0o644)
	if opts.PreservePermissions {
		perm = hdr.FileInfo().Mode().Perm()
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(file, r)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", target, err)
	}

	return n, applyMetadata(target, hdr, opts)
}

func writeSymlink(target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := removeNonDir(target); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

func writeHardLink(dest, target, linkname string) error {
	source, err := SafeEntryPath(dest, linkname)
	if err != nil {
		return err
	}
	if err := checkNoSymlinkParents(dest, source); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := removeNonDir(target); err != nil {
		return err
	}
	return os.Link(source, target)
}

// applyDirMetadata restores directory metadata only while path is still a real
// directory. chmod and chtimes follow symlinks.
func applyDirMetadata(path string, hdr *tar.Header, opts ExtractOptions) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", apperrors.ErrSymlinkInPath, path)
	}
	return applyMetadata(path, hdr, opts)
}

// applyMetadata restores mode bits (umask-independent) and modification time
func applyMetadata(path string, hdr *tar.Header, opts ExtractOptions) error {
	if opts.PreservePermissions {
		if err := os.Chmod(path, hdr.FileInfo().Mode().Perm()); err != nil {
			return err
		}
	}
	if opts.PreserveTimes && !hdr.ModTime.IsZero() {
		atime := hdr.AccessTime
		if atime.IsZero() {
			atime = hdr.ModTime
		}
		if err := os.Chtimes(path, atime, hdr.ModTime); err != nil {
			return err
		}
	}
	return nil
}
