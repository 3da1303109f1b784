package composition

// Workflow is an ordered list of pack and unpack steps
type Workflow struct {
	// Name of the workflow (required)
	Name string `mapstructure:"name"`

	// Optional description of the workflow
	Description string `mapstructure:"description,omitempty"`

	// Version of the workflow definition
	Version string `mapstructure:"version,omitempty"`

	// Ordered list of steps to execute
	Steps []Step `mapstructure:"steps"`

	// Variables that can be referenced in step parameters
	Variables map[string]interface{} `mapstructure:"variables,omitempty"`
}

// Step is a single pack or unpack operation
type Step struct {
	// Unique name for the step (required)
	Name string `mapstructure:"name"`

	// Type of operation to perform: pack or unpack (required)
	Type string `mapstructure:"type"`

	// Optional human-readable description of the step
	Description string `mapstructure:"description,omitempty"`

	// Optional condition; the step runs when it renders to true, yes or 1
	Condition string `mapstructure:"condition,omitempty"`

	// Step parameters: input, output, stamp, codec, to
	// Uses ",remain" to capture all additional parameters
	Parameters map[string]interface{} `mapstructure:",remain"`
}
