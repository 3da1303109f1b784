package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/spf13/pflag"
)

func restoreInstance(t *testing.T) {
	t.Helper()
	saved := Instance
	t.Cleanup(func() { Instance = saved })
}

func TestReloadFromFile(t *testing.T) {
	restoreInstance(t)

	cfgFile := filepath.Join(t.TempDir(), "tacklebox.yaml")
	content := `
log_format: json
archive:
  codec: xz
  stamp: true
extract:
  preserve_times: false
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Reload(cfgFile); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !ConfigLoaded || ConfigFile != cfgFile {
		t.Errorf("ConfigLoaded=%v ConfigFile=%q", ConfigLoaded, ConfigFile)
	}
	if Instance.LogFormat != "json" {
		t.Errorf("LogFormat = %q", Instance.LogFormat)
	}
	if Codec() != compression.XZ || !Instance.Archive.Stamp {
		t.Errorf("archive settings not loaded: %+v", Instance.Archive)
	}
	if Instance.Extract.PreserveTimes {
		t.Error("preserve_times should be false")
	}
	if !Instance.Extract.PreservePermissions {
		t.Error("preserve_permissions default should stay true")
	}
}

func TestReloadEnvOverride(t *testing.T) {
	restoreInstance(t)

	cfgFile := filepath.Join(t.TempDir(), "tacklebox.yaml")
	if err := os.WriteFile(cfgFile, []byte("archive:\n  codec: gzip\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TACKLEBOX_ARCHIVE_CODEC", "lz4")

	if err := Reload(cfgFile); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if Codec() != compression.LZ4 {
		t.Errorf("Codec = %s, want lz4 from environment", Codec())
	}
}

func TestReloadRejectsInvalidValues(t *testing.T) {
	restoreInstance(t)

	cfgFile := filepath.Join(t.TempDir(), "tacklebox.yaml")
	if err := os.WriteFile(cfgFile, []byte("archive:\n  codec: rar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Reload(cfgFile)
	if !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Fatalf("Reload error = %v, want ErrConfigInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.LogFormat = "xml"
	if err := Validate(cfg); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("Validate(log_format=xml) = %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	restoreInstance(t)

	Instance = defaultConfig()
	Instance.Archive.Codec = "bzip2"
	Instance.Archive.Atomic = true

	path := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	if err := SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	Instance = defaultConfig()
	if err := Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if Codec() != compression.Bzip2 || !Instance.Archive.Atomic {
		t.Errorf("saved settings not restored: %+v", Instance.Archive)
	}
}

func TestBindFlagOverridesFile(t *testing.T) {
	restoreInstance(t)

	cfgFile := filepath.Join(t.TempDir(), "tacklebox.yaml")
	if err := os.WriteFile(cfgFile, []byte("log_format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-format", "human", "")
	BindFlag("log_format", flags.Lookup("log-format"))
	t.Cleanup(func() { delete(flagBindings, "log_format") })

	// Unchanged flags leave the file value alone
	if err := Reload(cfgFile); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if Instance.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json from file", Instance.LogFormat)
	}

	if err := flags.Parse([]string{"--log-format", "human"}); err != nil {
		t.Fatal(err)
	}
	if err := Reload(cfgFile); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if Instance.LogFormat != "human" {
		t.Errorf("LogFormat = %q, want human from flag", Instance.LogFormat)
	}
}
