package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/engine"
)

var resumeApply string

var resumeCmd = &cobra.Command{
	Use:   "resume <plan-id>",
	Short: "Resume an interrupted or failed plan",
	Long: `Resume a persisted plan, skipping steps that already succeeded.

When the previous run failed with a diagnosed cause, --apply runs one of
the diagnosis's remediation options first (see the option ids printed with
the failure), then retries the plan.

Examples:
  provision resume 4f2c91d8-77aa-4f4e-9a31-2a5dc0a3d911
  provision resume 4f2c91d8-... --apply switch_pipx`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		planID := args[0]

		if resumeApply != "" {
			// Re-run the failed step first to rebuild the diagnosis, then
			// apply the chosen option against it.
			res, err := rt.engine.ResumePlan(ctx, planID)
			if err != nil {
				printError(err, "")
				exitWithCode(ExitGeneral)
			}
			if res.Ok() {
				reportSuccess(res)
				return
			}
			out, err := rt.engine.ApplyRemedy(ctx, res, resumeApply)
			if err != nil {
				var manual *engine.ManualRemedyError
				if errors.As(err, &manual) {
					fmt.Fprintf(os.Stderr, "%s\n\n%s\n", manual.Label, manual.Instructions)
					fmt.Fprintf(os.Stderr, "\nThen resume with:\n  provision resume %s\n", planID)
					exitWithCode(ExitStepFailed)
				}
				printError(err, res.Tool)
				exitWithCode(ExitGeneral)
			}
			exitWithCode(finish(out))
		}

		res, err := rt.engine.ResumePlan(ctx, planID)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		exitWithCode(finish(res))
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeApply, "apply", "", "Remediation option id to apply before retrying")
}
