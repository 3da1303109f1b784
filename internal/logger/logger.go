package logger

import (
	"fmt"
	"path/filepath"

	"github.com/sigvaldr/tacklebox/internal/fsutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// AutoLogFile places the log file in the platform log directory
	AutoLogFile = "auto"

	appName     = "tacklebox"
	logFileName = "tacklebox.log"
)

// Logger is the process-wide logger. It discards everything until InitLogger
// runs, so library callers and tests need no setup.
var Logger = zap.NewNop().Sugar()

// LoggerConfig contains configuration for the logger
type LoggerConfig struct {
	Debug     bool   // Enable debug level logging
	LogFormat string // "json" or "human"
	LogFile   string // Path to log file (optional), or AutoLogFile
}

// DefaultConfig returns a default configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Debug:     false,
		LogFormat: "human",
	}
}

// InitLogger initializes the logger with the provided configuration
func InitLogger(config LoggerConfig) error {
	var zapConfig zap.Config

	if config.LogFormat == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapConfig.DisableStacktrace = true
	}

	// stdout carries command output; diagnostics go to stderr
	outputPaths := []string{"stderr"}
	logFile, err := resolveLogFile(config.LogFile)
	if err != nil {
		return err
	}
	if logFile != "" {
		if err := fsutil.CreateDirIfNotExists(filepath.Dir(logFile)); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		outputPaths = append(outputPaths, logFile)
	}
	zapConfig.OutputPaths = outputPaths
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	if config.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	Logger = logger.Sugar()
	return nil
}

func resolveLogFile(path string) (string, error) {
	if path != AutoLogFile {
		return path, nil
	}
	dir, err := fsutil.GetLogDir(appName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve log directory: %w", err)
	}
	return filepath.Join(dir, logFileName), nil
}

// Log functions
func LogInfo(message string, fields map[string]interface{}) {
	Logger.Infow(message, flattenFields(fields)...)
}

func LogWarn(message string, fields map[string]interface{}) {
	Logger.Warnw(message, flattenFields(fields)...)
}

func LogError(message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	Logger.Errorw(message, flattenFields(fields)...)
}

func LogDebug(message string, fields map[string]interface{}) {
	Logger.Debugw(message, flattenFields(fields)...)
}

func flattenFields(fields map[string]interface{}) []interface{} {
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return flat
}

// Sync flushes any buffered log entries
func Sync() error {
	return Logger.Sync()
}
