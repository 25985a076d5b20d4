package main

import (
	"context"

	"github.com/spf13/cobra"
)

var planAnswersFile string

var planCmd = &cobra.Command{
	Use:   "plan <tool>",
	Short: "Resolve and print an install plan without executing it",
	Long: `Resolve a recipe against the detected machine profile and print the
resulting plan as JSON. Nothing is executed and nothing is persisted.

Resolution is deterministic: the same tool, profile, and answers always
produce the same plan.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		answers, err := loadAnswers(planAnswersFile)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitUsage)
		}

		pl, err := rt.resolver.ResolveWithChoices(args[0], rt.profile, rt.deep.Probe(ctx), answers)
		if err != nil {
			printError(err, args[0])
			exitWithCode(resolveExitCode(err))
		}
		if err := printJSON(pl); err != nil {
			printError(err, args[0])
			exitWithCode(ExitGeneral)
		}
	},
}

func init() {
	planCmd.Flags().StringVar(&planAnswersFile, "answers", "", "YAML file mapping choice ids to option ids")
}
