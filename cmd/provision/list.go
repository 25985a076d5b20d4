package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available recipes",
	Long:  `List every tool with a recipe, with its description.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		reg, err := recipe.LoadEmbedded()
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		for _, name := range reg.List() {
			rec, err := reg.Get(name)
			if err != nil {
				continue
			}
			fmt.Printf("%-16s %s\n", name, rec.Description)
		}
	},
}
