package cmd

import (
	"fmt"

	"github.com/sigvaldr/tacklebox/internal/logger"
	"github.com/sigvaldr/tacklebox/pkg/tooling"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow file of pack and unpack steps",
	Long: `Run a workflow file (YAML, TOML or JSON) whose steps pack and unpack
directories in order. Step parameters are templates over the workflow
variables and the outputs of earlier steps.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	result, err := tooling.ExecuteWorkflow(args[0])
	if err != nil {
		fields := map[string]interface{}{"file": args[0]}
		if result != nil {
			fields["reason"] = result.ErrorMessage
		}
		logger.LogError("Workflow failed", err, fields)
		return err
	}

	if output, ok := result.Variables["last_output"].(string); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow finished: %s\n", output)
	}
	return nil
}
