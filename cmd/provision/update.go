package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

var updateMethod string

var updateCmd = &cobra.Command{
	Use:   "update <tool>...",
	Short: "Update an installed tool in place",
	Long: `Update a tool using its recipe's update command, falling back to the
install command for package-manager backed methods (where re-installing
upgrades).

Pass --method when the tool was installed with a method other than the one
selection would pick today.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		for _, tool := range args {
			pl, err := rt.resolver.ResolveUpdate(tool, recipe.Method(updateMethod), rt.profile)
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
			fmt.Printf("✓ %s updated\n", tool)
		}
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateMethod, "method", "", "Install method the tool was installed with")
}
