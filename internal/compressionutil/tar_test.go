package compression

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/osutil"
)

func TestSafeEntryPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"./", dest, false},
		{".", dest, false},
		{"./a.txt", filepath.Join(dest, "a.txt"), false},
		{"sub/dir/", filepath.Join(dest, "sub", "dir"), false},
		{"sub/../b", filepath.Join(dest, "b"), false},
		{"../escape", "", true},
		{"./sub/../../escape", "", true},
		{"/etc/passwd", "", true},
	}

	for _, tt := range tests {
		got, err := SafeEntryPath(dest, tt.name)
		if tt.wantErr {
			if !errors.Is(err, apperrors.ErrUnsafePath) {
				t.Errorf("SafeEntryPath(%q) error = %v, want ErrUnsafePath", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SafeEntryPath(%q) unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SafeEntryPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTarTreeRoundTrip(t *testing.T) {
	if !osutil.SupportsSymlinks() {
		t.Skip("symlinks require privileges on windows")
	}

	src := t.TempDir()
	mustWrite(t, filepath.Join(src, "root.txt"), "root", 0o644)
	mustWrite(t, filepath.Join(src, "nested", "deep", "file.txt"), "deep", 0o600)
	mustWrite(t, filepath.Join(src, "empty.txt"), "", 0o644)
	mustWrite(t, filepath.Join(src, "run.sh"), "#!/bin/sh\n", 0o755)
	if err := os.Symlink("nested/deep/file.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := NewTarWriter(&buf)
	if err := tw.AddTree(src); err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stats := tw.Stats()
	if stats.Files != 4 || stats.Symlinks != 1 || stats.Dirs != 3 {
		t.Errorf("unexpected writer stats: %+v", stats)
	}

	names := tarNames(t, buf.Bytes())
	if names[0] != "./" {
		t.Errorf("first entry = %q, want ./", names[0])
	}
	for _, name := range names {
		if filepath.IsAbs(name) || name[:2] != "./" {
			t.Errorf("entry %q is not relative to the source root", name)
		}
	}

	dest := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	tr := NewTarReader(bytes.NewReader(buf.Bytes()))
	if err := tr.ExtractTo(dest, ExtractOptions{PreservePermissions: true, PreserveTimes: true}); err != nil {
		t.Fatalf("ExtractTo: %v", err)
	}

	assertFile(t, filepath.Join(dest, "root.txt"), "root")
	assertFile(t, filepath.Join(dest, "nested", "deep", "file.txt"), "deep")
	assertFile(t, filepath.Join(dest, "empty.txt"), "")

	target, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "nested/deep/file.txt" {
		t.Errorf("symlink target = %q", target)
	}

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("run.sh mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	entries := []struct {
		name string
		hdr  tar.Header
	}{
		{"parent escape", tar.Header{Name: "../evil.txt", Typeflag: tar.TypeReg, Mode: 0o644}},
		{"absolute", tar.Header{Name: "/tmp/evil.txt", Typeflag: tar.TypeReg, Mode: 0o644}},
		{"hard link escape", tar.Header{Name: "./ok", Typeflag: tar.TypeLink, Linkname: "../../etc/passwd"}},
	}

	for _, tt := range entries {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := tar.NewWriter(&buf)
			if err := tw.WriteHeader(&tt.hdr); err != nil {
				t.Fatal(err)
			}
			if err := tw.Close(); err != nil {
				t.Fatal(err)
			}

			dest := t.TempDir()
			err := NewTarReader(&buf).ExtractTo(dest, ExtractOptions{})
			if !errors.Is(err, apperrors.ErrUnsafePath) {
				t.Fatalf("ExtractTo error = %v, want ErrUnsafePath", err)
			}
		})
	}
}

func TestExtractRejectsWritesThroughSymlink(t *testing.T) {
	if !osutil.SupportsSymlinks() {
		t.Skip("symlinks require privileges on windows")
	}

	outside := t.TempDir()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	headers := []*tar.Header{
		{Name: "./pivot", Typeflag: tar.TypeSymlink, Linkname: outside},
		{Name: "./pivot/planted.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	}
	for _, hdr := range headers {
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write([]byte("evil")); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	err := NewTarReader(&buf).ExtractTo(dest, ExtractOptions{})
	if !errors.Is(err, apperrors.ErrSymlinkInPath) {
		t.Fatalf("ExtractTo error = %v, want ErrSymlinkInPath", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "planted.txt")); !os.IsNotExist(err) {
		t.Fatal("file was written outside the destination")
	}
}

func TestExtractReplacesSymlinkWithDirectory(t *testing.T) {
	if !osutil.SupportsSymlinks() {
		t.Skip("symlinks require privileges on windows")
	}

	outside := t.TempDir()
	if err := os.Chmod(outside, 0o700); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(outside)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	headers := []*tar.Header{
		{Name: "./evil", Typeflag: tar.TypeSymlink, Linkname: outside},
		{Name: "./evil/", Typeflag: tar.TypeDir, Mode: 0o777, ModTime: time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, hdr := range headers {
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	opts := ExtractOptions{PreservePermissions: true, PreserveTimes: true}
	if err := NewTarReader(&buf).ExtractTo(dest, opts); err != nil {
		t.Fatalf("ExtractTo: %v", err)
	}

	after, err := os.Stat(outside)
	if err != nil {
		t.Fatal(err)
	}
	if after.Mode() != before.Mode() || !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("directory outside dest changed: mode %v -> %v, mtime %v -> %v",
			before.Mode(), after.Mode(), before.ModTime(), after.ModTime())
	}

	info, err := os.Lstat(filepath.Join(dest, "evil"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Errorf("evil = %v, want a real directory", info.Mode())
	}
}

func TestExtractRequiresEndMarker(t *testing.T) {
	entry := func() *bytes.Buffer {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		if err := tw.WriteHeader(&tar.Header{Name: "./a.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 3}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte("abc")); err != nil {
			t.Fatal(err)
		}
		if err := tw.Flush(); err != nil {
			t.Fatal(err)
		}
		return &buf
	}

	oneZeroBlock := entry()
	oneZeroBlock.Write(make([]byte, blockSize))

	streams := map[string]*bytes.Buffer{
		"empty":           {},
		"no marker":       entry(),
		"half the marker": oneZeroBlock,
	}
	for name, stream := range streams {
		t.Run(name, func(t *testing.T) {
			err := NewTarReader(stream).ExtractTo(t.TempDir(), ExtractOptions{})
			if !errors.Is(err, apperrors.ErrTruncated) {
				t.Fatalf("ExtractTo error = %v, want ErrTruncated", err)
			}
		})
	}

	complete := entry()
	complete.Write(make([]byte, 2*blockSize))
	if err := NewTarReader(complete).ExtractTo(t.TempDir(), ExtractOptions{}); err != nil {
		t.Fatalf("ExtractTo with end marker: %v", err)
	}
}

func TestExtractReplacesSymlinkWithFile(t *testing.T) {
	if !osutil.SupportsSymlinks() {
		t.Skip("symlinks require privileges on windows")
	}

	outside := filepath.Join(t.TempDir(), "victim.txt")
	mustWrite(t, outside, "original", 0o644)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "./f", Typeflag: tar.TypeSymlink, Linkname: outside}); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "./f", Typeflag: tar.TypeReg, Mode: 0o644, Size: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("new")); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := NewTarReader(&buf).ExtractTo(dest, ExtractOptions{}); err != nil {
		t.Fatalf("ExtractTo: %v", err)
	}
	assertFile(t, outside, "original")
	assertFile(t, filepath.Join(dest, "f"), "new")
}

func mustWrite(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatal(err)
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("%s = %q, want %q", path, got, want)
	}
}

func tarNames(t *testing.T, data []byte) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	return names
}
