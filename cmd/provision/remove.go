package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

var removeMethod string

var removeCmd = &cobra.Command{
	Use:   "remove <tool>",
	Short: "Uninstall a tool",
	Long: `Uninstall a tool using its recipe's rollback command for the method it
was installed with, or the per-method undo catalog when the recipe
declares none.

The install method is required because the undo command depends on it:
  provision remove ruff --method pipx`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		tool := args[0]
		pl, err := rt.resolver.ResolveRollback(tool, recipe.Method(removeMethod), rt.profile)
		if err != nil {
			printError(err, tool)
			exitWithCode(resolveExitCode(err))
		}

		res, err := rt.engine.ExecutePlan(ctx, pl)
		if err != nil {
			printError(err, tool)
			exitWithCode(ExitGeneral)
		}
		if !res.Ok() {
			exitWithCode(reportFailure(res))
		}
		fmt.Fprintf(os.Stdout, "✓ %s removed\n", tool)
	},
}

func init() {
	removeCmd.Flags().StringVar(&removeMethod, "method", "", "Install method the tool was installed with (required)")
	_ = removeCmd.MarkFlagRequired("method")
}
