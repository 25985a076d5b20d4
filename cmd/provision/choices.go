package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var choicesJSON bool

var choicesCmd = &cobra.Command{
	Use:   "choices <tool>",
	Short: "Show a recipe's variant choices and their availability",
	Long: `List every choice a recipe declares, with each option's availability
on this machine. Unavailable options include the reason and, when the
blocker is fixable, a hint for enabling them.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		choices, err := rt.resolver.ResolveChoices(args[0], rt.profile, rt.deep.Probe(ctx))
		if err != nil {
			printError(err, args[0])
			exitWithCode(resolveExitCode(err))
		}

		if choicesJSON {
			if err := printJSON(choices); err != nil {
				printError(err, args[0])
				exitWithCode(ExitGeneral)
			}
			return
		}

		if len(choices) == 0 {
			fmt.Printf("%s has no variant choices\n", args[0])
			return
		}
		for _, c := range choices {
			fmt.Printf("%s (%s):\n", c.Label, c.ID)
			for _, opt := range c.Options {
				marker := ""
				if opt.Recommended {
					marker = " (recommended)"
				}
				if !opt.Available {
					marker = fmt.Sprintf(" [unavailable: %s]", opt.DisabledReason)
				}
				fmt.Printf("  %s: %s%s\n", opt.ID, opt.Label, marker)
				if !opt.Available && opt.EnableHint != "" {
					fmt.Printf("    to enable: %s\n", opt.EnableHint)
				}
			}
		}
	},
}

func init() {
	choicesCmd.Flags().BoolVar(&choicesJSON, "json", false, "Output as JSON")
}
