package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/fsutil"
	"github.com/sigvaldr/tacklebox/internal/osutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "tacklebox"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "TACKLEBOX"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Packaging settings
	Archive struct {
		Codec  string `mapstructure:"codec"`  // zstd, xz, bzip2, gzip, lz4
		Stamp  bool   `mapstructure:"stamp"`  // date-stamp and box every archive
		Atomic bool   `mapstructure:"atomic"` // temp file + rename for plain archives too
	} `mapstructure:"archive"`

	// Extraction settings
	Extract struct {
		PreservePermissions bool `mapstructure:"preserve_permissions"`
		PreserveTimes       bool `mapstructure:"preserve_times"`
	} `mapstructure:"extract"`
}

// Global variables
var (
	// Global configuration instance
	Instance = defaultConfig()

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	v *viper.Viper

	initOnce sync.Once

	// flags bound to config keys, applied on every load
	flagBindings = map[string]*pflag.Flag{}
)

// BindFlag makes a command-line flag override the config key when the flag is
// set explicitly. Takes effect on the next Initialize or Reload.
func BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	flagBindings[key] = flag
}

func defaultConfig() AppConfig {
	var c AppConfig
	c.LogFormat = "human"
	c.Archive.Codec = string(compression.DefaultCodec)
	c.Extract.PreservePermissions = true
	c.Extract.PreserveTimes = true
	return c
}

// Initialize sets up the configuration system. Only the first call has any
// effect; use Reload to read a different file later.
func Initialize(cfgFile string) error {
	var err error
	initOnce.Do(func() {
		err = load(cfgFile)
	})
	return err
}

// Reload re-reads configuration from cfgFile (or the search paths when empty)
func Reload(cfgFile string) error {
	return load(cfgFile)
}

func load(cfgFile string) error {
	nv := viper.New()
	setDefaults(nv)

	if cfgFile != "" {
		nv.SetConfigFile(cfgFile)
	} else {
		nv.SetConfigName(AppName)
		nv.SetConfigType("yaml")
		addSearchPaths(nv)
	}

	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	for key, flag := range flagBindings {
		if err := nv.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag.Name, err)
		}
	}

	var readErr error
	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Only surface the error if the config file was found but couldn't be read
			readErr = fmt.Errorf("error reading config file: %w", err)
		}
		ConfigLoaded = false
		ConfigFile = ""
	} else {
		ConfigLoaded = true
		ConfigFile = nv.ConfigFileUsed()
	}

	cfg := defaultConfig()
	if err := nv.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	v = nv
	Instance = cfg
	return readErr
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	d := defaultConfig()

	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", "")

	v.SetDefault("archive.codec", d.Archive.Codec)
	v.SetDefault("archive.stamp", d.Archive.Stamp)
	v.SetDefault("archive.atomic", d.Archive.Atomic)

	v.SetDefault("extract.preserve_permissions", d.Extract.PreservePermissions)
	v.SetDefault("extract.preserve_times", d.Extract.PreserveTimes)
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")

	if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
		v.AddConfigPath(configDir)
	}

	// CI runs only trust the working directory and /etc
	if osutil.IsRunningInPipeline() {
		v.AddConfigPath("/etc/" + AppName)
		return
	}

	if systemConfigDir, err := fsutil.GetSystemConfigDir(AppName); err == nil {
		v.AddConfigPath(systemConfigDir)
	}
}

// Validate checks values viper cannot type-check
func Validate(cfg AppConfig) error {
	switch cfg.LogFormat {
	case "human", "json":
	default:
		return fmt.Errorf("%w: log_format must be human or json, got %q", apperrors.ErrConfigInvalid, cfg.LogFormat)
	}
	if _, err := compression.ParseCodec(cfg.Archive.Codec); err != nil {
		return fmt.Errorf("%w: archive.codec: %v", apperrors.ErrConfigInvalid, err)
	}
	return nil
}

// Codec returns the configured packaging codec
func Codec() compression.Codec {
	codec, err := compression.ParseCodec(Instance.Archive.Codec)
	if err != nil {
		return compression.DefaultCodec
	}
	return codec
}

// SaveConfig saves the current configuration to a file
func SaveConfig(filePath string) error {
	saveV := viper.New()
	saveV.SetConfigFile(filePath)

	saveV.Set("debug", Instance.Debug)
	saveV.Set("log_format", Instance.LogFormat)
	saveV.Set("log_file", Instance.LogFile)
	saveV.Set("archive.codec", Instance.Archive.Codec)
	saveV.Set("archive.stamp", Instance.Archive.Stamp)
	saveV.Set("archive.atomic", Instance.Archive.Atomic)
	saveV.Set("extract.preserve_permissions", Instance.Extract.PreservePermissions)
	saveV.Set("extract.preserve_times", Instance.Extract.PreserveTimes)

	if err := fsutil.CreateDirIfNotExists(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return saveV.WriteConfig()
}
