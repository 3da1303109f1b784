// Package tooling is the library entry point for embedding tacklebox in other
// programs. It wires configuration and logging once and exposes packing,
// unpacking and workflow execution.
package tooling

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sigvaldr/tacklebox/internal/archive"
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	"github.com/sigvaldr/tacklebox/internal/composition"
	"github.com/sigvaldr/tacklebox/internal/config"
	"github.com/sigvaldr/tacklebox/internal/logger"
)

// Version is overridden at build time with -ldflags "-X .../pkg/tooling.Version=..."
var Version = "0.1.0"

// InitOptions contains options for initializing the tooling API
type InitOptions struct {
	ConfigFile  string // Path to configuration file
	Debug       bool   // Enable debug logging
	LogFormat   string // Log format: "human" or "json"
	LogFile     string // Path to log file
	SuppressLog bool   // Suppress all logging
}

// Summary reports what a pack or unpack call processed
type Summary = archive.Summary

// WorkflowResult contains the results of a workflow execution
type WorkflowResult struct {
	Success      bool                   // Whether the workflow completed successfully
	ErrorMessage string                 // Error message if any
	Variables    map[string]interface{} // Final state of variables after workflow execution
}

var initialized bool

// PackOptions tunes Pack. Unset fields fall back to the configuration.
type PackOptions struct {
	Output string // empty derives the name from the source directory
	Codec  string // empty uses archive.codec
	Stamp  *bool  // nil uses archive.stamp
}

// Bool returns a pointer to v, for PackOptions.Stamp
func Bool(v bool) *bool {
	return &v
}

// Initialize initializes the tooling API with the given options
func Initialize(options InitOptions) error {
	if initialized {
		return nil
	}

	configErr := config.Initialize(options.ConfigFile)

	if options.Debug {
		config.Instance.Debug = true
	}
	if options.LogFormat != "" {
		config.Instance.LogFormat = options.LogFormat
	}
	if options.LogFile != "" {
		config.Instance.LogFile = options.LogFile
	}

	if !options.SuppressLog {
		logConfig := logger.LoggerConfig{
			Debug:     config.Instance.Debug,
			LogFormat: config.Instance.LogFormat,
			LogFile:   config.Instance.LogFile,
		}
		if err := logger.InitLogger(logConfig); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.LogDebug("Tooling API initialized", map[string]interface{}{
			"config_file": config.ConfigFile,
			"debug":       config.Instance.Debug,
			"log_format":  config.Instance.LogFormat,
		})
		if configErr != nil {
			logger.LogWarn("Configuration initialization warning", map[string]interface{}{
				"error": configErr.Error(),
			})
		}
	}

	initialized = true
	return nil
}

// DefaultOptions returns the default initialization options
func DefaultOptions() InitOptions {
	return InitOptions{
		LogFormat: "human",
	}
}

// Attach marks the API as initialized with the configuration and logger the
// host program has already set up, so later calls do not reload them
func Attach() {
	initialized = true
}

func ensureInitialized() error {
	if initialized {
		return nil
	}
	if err := Initialize(DefaultOptions()); err != nil {
		return fmt.Errorf("failed to initialize tooling API: %w", err)
	}
	return nil
}

// Pack archives sourceDir
func Pack(sourceDir string, opts PackOptions) (Summary, error) {
	if err := ensureInitialized(); err != nil {
		return Summary{}, err
	}

	c := config.Codec()
	if opts.Codec != "" {
		parsed, err := compression.ParseCodec(opts.Codec)
		if err != nil {
			return Summary{}, err
		}
		c = parsed
	}

	stamp := config.Instance.Archive.Stamp
	if opts.Stamp != nil {
		stamp = *opts.Stamp
	}

	packager := archive.PackagerFromConfig(config.Instance, c)
	return packager.Pack(archive.ArchiveRequest{
		SourceDir: sourceDir,
		Output:    opts.Output,
		Stamp:     stamp,
		Codec:     c,
	})
}

// Unpack extracts archivePath. An empty folder derives it from the archive name.
func Unpack(archivePath, folder string) (Summary, error) {
	if err := ensureInitialized(); err != nil {
		return Summary{}, err
	}

	unpackager := archive.UnpackagerFromConfig(config.Instance)
	return unpackager.Extract(archive.ExtractRequest{ArchivePath: archivePath, OutputFolder: folder})
}

// ExecuteWorkflow executes a workflow defined in a file
func ExecuteWorkflow(workflowFile string) (*WorkflowResult, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	logger.LogInfo("Executing workflow", map[string]interface{}{
		"file": workflowFile,
	})

	workflow, err := composition.LoadWorkflow(workflowFile)
	if err != nil {
		return &WorkflowResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("Failed to load workflow: %s", err.Error()),
		}, err
	}

	errs := composition.ValidateWorkflow(workflow)
	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}

		errorMessage := fmt.Sprintf("Workflow validation failed with %d errors: %s",
			len(errs), strings.Join(errorMessages, "; "))

		return &WorkflowResult{
			Success:      false,
			ErrorMessage: errorMessage,
		}, errors.Join(errs...)
	}

	if err := composition.ExecuteWorkflow(workflow); err != nil {
		return &WorkflowResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("Workflow execution failed: %s", err.Error()),
			Variables:    workflow.Variables,
		}, err
	}

	return &WorkflowResult{
		Success:   true,
		Variables: workflow.Variables,
	}, nil
}

// ExecuteWorkflowFromYAML executes a workflow defined in a YAML string
func ExecuteWorkflowFromYAML(workflowYAML string) (*WorkflowResult, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp("", "workflow-*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.WriteString(workflowYAML); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("failed to write workflow to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}

	return ExecuteWorkflow(tempFile.Name())
}

// SetCodec sets the default packaging codec
func SetCodec(codec string) error {
	if err := ensureInitialized(); err != nil {
		return err
	}
	parsed, err := compression.ParseCodec(codec)
	if err != nil {
		return err
	}
	config.Instance.Archive.Codec = parsed.String()
	return nil
}

// GetVersion returns the current version of the tooling API
func GetVersion() string {
	return Version
}

// Shutdown flushes the logger
func Shutdown() error {
	if initialized {
		logger.LogDebug("Tooling API shutting down", nil)
		_ = logger.Sync()
	}
	return nil
}
