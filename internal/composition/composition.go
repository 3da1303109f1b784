// Package composition runs workflow files that chain pack and unpack steps.
package composition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	apperrors "github.com/sigvaldr/tacklebox/internal/errors"
	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/sigvaldr/tacklebox/internal/naming"
	"github.com/spf13/viper"
)

// LastOutputVariable holds the output path of the most recent step
const LastOutputVariable = "last_output"

// LoadWorkflow loads a workflow from a YAML, TOML or JSON file
func LoadWorkflow(filePath string) (*Workflow, error) {
	v := viper.New()

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: workflow file not found: %s", apperrors.ErrWorkflowInvalid, filePath)
	}

	v.SetConfigFile(filePath)

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext != "" {
		v.SetConfigType(ext[1:])
	} else {
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading workflow file: %w", err)
	}

	workflow := &Workflow{}
	if err := v.Unmarshal(workflow); err != nil {
		return nil, fmt.Errorf("error parsing workflow: %w", err)
	}

	if workflow.Variables == nil {
		workflow.Variables = make(map[string]interface{})
	}
	addSystemVariables(workflow, naming.SystemClock)

	return workflow, nil
}

// addSystemVariables fills in built-in variables without overriding user ones
func addSystemVariables(workflow *Workflow, clock naming.Clock) {
	now := clock()
	system := map[string]interface{}{
		"date":      naming.DateStamp(now),
		"timestamp": fmt.Sprintf("%d", now.Unix()),
	}
	if cwd, err := os.Getwd(); err == nil {
		system["current_dir"] = cwd
	}

	for k, val := range system {
		if _, ok := workflow.Variables[k]; !ok {
			workflow.Variables[k] = val
		}
	}
}

// renderStep returns a copy of step with its string parameters rendered
// against variables. Steps are rendered just before they run, so a step can
// refer to the outputs of the steps before it.
func renderStep(step Step, variables map[string]interface{}) (Step, error) {
	rendered := step
	rendered.Parameters = make(map[string]interface{}, len(step.Parameters))
	for key, value := range step.Parameters {
		strValue, ok := value.(string)
		if !ok {
			rendered.Parameters[key] = value
			continue
		}
		processed, err := processTemplate(strValue, variables)
		if err != nil {
			return step, fmt.Errorf("error processing template in step %s, parameter %s: %w", step.Name, key, err)
		}
		rendered.Parameters[key] = processed
	}
	return rendered, nil
}

// processTemplate processes a single template string
func processTemplate(templateString string, variables map[string]interface{}) (string, error) {
	if !strings.Contains(templateString, "{{") {
		return templateString, nil
	}

	tmpl, err := template.New("inline").Option("missingkey=error").Parse(templateString)
	if err != nil {
		return "", err
	}

	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, variables); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// ValidateWorkflow validates the workflow structure and parameters
func ValidateWorkflow(workflow *Workflow) []error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrWorkflowInvalid}, args...)...))
	}

	if workflow.Name == "" {
		invalid("workflow name is required")
	}
	if len(workflow.Steps) == 0 {
		invalid("workflow must contain at least one step")
	}

	registry := createStepHandlerRegistry()
	seen := make(map[string]bool)

	for i, step := range workflow.Steps {
		if step.Name == "" {
			invalid("step %d: name is required", i+1)
		} else if seen[step.Name] {
			invalid("step %d: duplicate name '%s'", i+1, step.Name)
		}
		seen[step.Name] = true

		if step.Type == "" {
			invalid("step %d (%s): type is required", i+1, step.Name)
			continue
		}
		if _, ok := registry[step.Type]; !ok {
			invalid("step %d (%s): invalid type '%s'", i+1, step.Name, step.Type)
			continue
		}

		for _, err := range validateStepParameters(step) {
			invalid("step %d (%s): %v", i+1, step.Name, err)
		}
	}

	return errs
}

// ExecuteWorkflow runs the steps in order and stops at the first failure.
// Step results are stored as "<step>_<key>"; the output path of the latest
// step is also stored as "last_output".
func ExecuteWorkflow(workflow *Workflow) error {
	if workflow.Variables == nil {
		workflow.Variables = make(map[string]interface{})
	}

	logger.LogInfo("Starting workflow execution", map[string]interface{}{
		"workflow": workflow.Name,
		"steps":    len(workflow.Steps),
	})

	registry := createStepHandlerRegistry()
	started := time.Now()

	for i, step := range workflow.Steps {
		logger.LogInfo(fmt.Sprintf("Executing step %d/%d: %s", i+1, len(workflow.Steps), step.Name),
			map[string]interface{}{
				"type":        step.Type,
				"description": step.Description,
			})

		if step.Condition != "" {
			shouldRun, err := evaluateCondition(step.Condition, workflow.Variables)
			if err != nil {
				return fmt.Errorf("error evaluating condition for step '%s': %w", step.Name, err)
			}
			if !shouldRun {
				logger.LogInfo(fmt.Sprintf("Skipping step %d/%d: %s (condition not met)", i+1, len(workflow.Steps), step.Name), nil)
				continue
			}
		}

		handler, found := registry[step.Type]
		if !found {
			return fmt.Errorf("%w: no handler found for step type '%s'", apperrors.ErrWorkflowInvalid, step.Type)
		}

		rendered, err := renderStep(step, workflow.Variables)
		if err != nil {
			return err
		}

		result, err := handler(rendered, workflow.Variables)
		if err != nil {
			return fmt.Errorf("error executing step '%s': %w", step.Name, err)
		}

		for k, v := range result {
			workflow.Variables[step.Name+"_"+k] = v
		}
		if output, ok := result["output"]; ok {
			workflow.Variables[LastOutputVariable] = output
		}

		logger.LogInfo(fmt.Sprintf("Completed step %d/%d: %s", i+1, len(workflow.Steps), step.Name), nil)
	}

	logger.LogInfo("Workflow execution completed successfully", map[string]interface{}{
		"workflow": workflow.Name,
		"duration": time.Since(started).String(),
	})

	return nil
}
