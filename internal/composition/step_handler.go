package composition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sigvaldr/tacklebox/internal/archive"
	compression "github.com/sigvaldr/tacklebox/internal/compressionutil"
	"github.com/sigvaldr/tacklebox/internal/config"
	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/logger"
)

// StepHandler is a function that executes a workflow step
type StepHandler func(step Step, variables map[string]interface{}) (map[string]interface{}, error)

func createStepHandlerRegistry() map[string]StepHandler {
	return map[string]StepHandler{
		"pack":   handlePackStep,
		"unpack": handleUnpackStep,
	}
}

// requiredParameters lists the parameters each step type cannot run without
var requiredParameters = map[string][]string{
	"pack":   {"input"},
	"unpack": {"input"},
}

// validateStepParameters validates parameters for a specific step type
func validateStepParameters(step Step) []error {
	var errs []error

	for _, key := range requiredParameters[step.Type] {
		if _, ok := step.Parameters[key]; !ok {
			errs = append(errs, fmt.Errorf("missing required parameter '%s'", key))
		}
	}

	if step.Type == "pack" {
		if raw, ok := step.Parameters["codec"].(string); ok && !strings.Contains(raw, "{{") {
			if _, err := compression.ParseCodec(raw); err != nil {
				errs = append(errs, err)
			}
		}
		if _, err := boolParam(step, "stamp", false); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// evaluateCondition renders the condition and reports whether it is truthy
func evaluateCondition(condition string, variables map[string]interface{}) (bool, error) {
	result, err := processTemplate(condition, variables)
	if err != nil {
		return false, err
	}

	result = strings.TrimSpace(strings.ToLower(result))
	return result == "true" || result == "yes" || result == "1", nil
}

func handlePackStep(step Step, variables map[string]interface{}) (map[string]interface{}, error) {
	input, err := stringParam(step, "input")
	if err != nil {
		return nil, err
	}
	output, _ := step.Parameters["output"].(string)

	stamp, err := boolParam(step, "stamp", config.Instance.Archive.Stamp)
	if err != nil {
		return nil, err
	}

	codec := config.Codec()
	if raw, ok := step.Parameters["codec"].(string); ok && raw != "" {
		if codec, err = compression.ParseCodec(raw); err != nil {
			return nil, err
		}
	}

	packager := archive.PackagerFromConfig(config.Instance, codec)
	summary, err := packager.Pack(archive.ArchiveRequest{
		SourceDir: input,
		Output:    output,
		Stamp:     stamp,
		Codec:     codec,
	})
	if err != nil {
		logger.LogError("Pack step failed", err, map[string]interface{}{"step": step.Name})
		return nil, err
	}

	logger.LogInfo("Archive created", map[string]interface{}{
		"step":          step.Name,
		"archive":       summary.Path,
		"files":         summary.Files,
		"raw_bytes":     summary.RawBytes,
		"archive_bytes": summary.ArchiveBytes,
	})
	return summaryResult(summary), nil
}

func handleUnpackStep(step Step, variables map[string]interface{}) (map[string]interface{}, error) {
	input, err := stringParam(step, "input")
	if err != nil {
		return nil, err
	}

	to, _ := step.Parameters["to"].(string)
	if to == "" {
		to, _ = step.Parameters["output"].(string)
	}

	unpackager := archive.UnpackagerFromConfig(config.Instance)
	summary, err := unpackager.Extract(archive.ExtractRequest{ArchivePath: input, OutputFolder: to})
	if err != nil {
		logger.LogError("Unpack step failed", err, map[string]interface{}{"step": step.Name})
		return nil, err
	}

	logger.LogInfo("Archive extracted", map[string]interface{}{
		"step":   step.Name,
		"folder": summary.Path,
		"files":  summary.Files,
	})
	return summaryResult(summary), nil
}

func summaryResult(s archive.Summary) map[string]interface{} {
	return map[string]interface{}{
		"output":        s.Path,
		"codec":         s.Codec.String(),
		"files":         s.Files,
		"raw_bytes":     s.RawBytes,
		"archive_bytes": s.ArchiveBytes,
	}
}

func stringParam(step Step, key string) (string, error) {
	value, ok := step.Parameters[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: step '%s' requires a string parameter '%s'", apperrors.ErrWorkflowInvalid, step.Name, key)
	}
	return value, nil
}

// boolParam accepts YAML booleans as well as rendered template strings
func boolParam(step Step, key string, fallback bool) (bool, error) {
	raw, ok := step.Parameters[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		if strings.Contains(v, "{{") {
			return fallback, nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: step '%s' parameter '%s' must be a boolean", apperrors.ErrWorkflowInvalid, step.Name, key)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: step '%s' parameter '%s' must be a boolean", apperrors.ErrWorkflowInvalid, step.Name, key)
	}
}
