package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// executeCommand runs the root command with args and returns its stdout
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range []*cobra.Command{rootCmd, packCmd, unpackCmd} {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(normalizeArgs(args))
	err := rootCmd.Execute()
	return out.String(), err
}

func sourceTree(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "album")
	if err := os.MkdirAll(filepath.Join(src, "raw"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "raw", "img.txt"), []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestPackAndUnpackCommands(t *testing.T) {
	src := sourceTree(t)
	work := t.TempDir()
	output := filepath.Join(work, "album.zip")

	out, err := executeCommand(t, "pack", src, output, "--codec", "lz4")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	archivePath := filepath.Join(work, "album.tar.lz4")
	if !strings.Contains(out, "Archive created: "+archivePath) {
		t.Errorf("pack output = %q", out)
	}

	dest := filepath.Join(work, "restored")
	out, err = executeCommand(t, "unpack", archivePath, "-to", dest)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !strings.Contains(out, "Archive extracted to '"+dest+"'") {
		t.Errorf("unpack output = %q", out)
	}

	data, err := os.ReadFile(filepath.Join(dest, "raw", "img.txt"))
	if err != nil || string(data) != "pixels" {
		t.Errorf("restored file = %q, %v", data, err)
	}
}

func TestPackStampCommand(t *testing.T) {
	for _, flag := range []string{"--stamp", "-stamp", "-s"} {
		t.Run(flag, func(t *testing.T) {
			src := sourceTree(t)
			work := t.TempDir()

			out, err := executeCommand(t, "pack", src, filepath.Join(work, "album"), flag)
			if err != nil {
				t.Fatalf("pack: %v", err)
			}
			if !strings.Contains(out, "-album.box") {
				t.Errorf("pack output = %q, want a stamped .box", out)
			}
		})
	}
}

func TestPackCommandErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCommand(t, "pack", file); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("pack of a file: error = %v, want InvalidInput", err)
	}
	if _, err := executeCommand(t, "pack", t.TempDir(), "--codec", "rar"); !errors.Is(err, apperrors.ErrUnsupportedCompression) {
		t.Errorf("unknown codec: error = %v, want ErrUnsupportedCompression", err)
	}
	if _, err := executeCommand(t, "pack"); err == nil {
		t.Error("pack without arguments should fail")
	}
}

func TestUnpackCommandNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.box")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := executeCommand(t, "unpack", path, "--to", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, apperrors.ErrCompressionFailure) {
		t.Fatalf("error = %v, want CompressionFailure", err)
	}
}

func TestRunCommand(t *testing.T) {
	src := sourceTree(t)
	work := t.TempDir()
	workflow := filepath.Join(work, "flow.yaml")
	content := "name: flow\nsteps:\n  - name: pack\n    type: pack\n    input: " + src +
		"\n    output: " + filepath.Join(work, "flow") + "\n    codec: bzip2\n"
	if err := os.WriteFile(workflow, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, "run", workflow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	archivePath := filepath.Join(work, "flow.tar.bz2")
	if !strings.Contains(out, "Workflow finished: "+archivePath) {
		t.Errorf("run output = %q", out)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Errorf("workflow archive missing: %v", err)
	}

	bad := filepath.Join(work, "bad.yaml")
	if err := os.WriteFile(bad, []byte("name: bad\nsteps: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeCommand(t, "run", bad); !errors.Is(err, apperrors.ErrWorkflowInvalid) {
		t.Errorf("error = %v, want ErrWorkflowInvalid", err)
	}
}

func TestConfigSaveCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "tacklebox.yaml")
	out, err := executeCommand(t, "config", "save", path, "--log-format", "json")
	if err != nil {
		t.Fatalf("config save: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"log_format: json", "codec: zstd"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved config missing %q:\n%s", want, data)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "tacklebox v") {
		t.Errorf("version output = %q", out)
	}
}

func TestNormalizeArgs(t *testing.T) {
	got := normalizeArgs([]string{"unpack", "a.box", "-to", "dir", "-to=x", "-t", "y", "--to", "z", "-tox", "-stamp", "-stamp=false", "-s"})
	want := []string{"unpack", "a.box", "--to", "dir", "--to=x", "-t", "y", "--to", "z", "-tox", "--stamp", "--stamp=false", "-s"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeArgs = %v, want %v", got, want)
	}
}
