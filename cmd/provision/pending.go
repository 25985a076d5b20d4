package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pendingJSON bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List resumable plans",
	Long: `List persisted plans that can be resumed: failed runs, paused runs,
and runs whose owning process died. Each entry shows how far the plan got.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		pending, err := rt.engine.ListPending()
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}

		if pendingJSON {
			if err := printJSON(pending); err != nil {
				printError(err, "")
				exitWithCode(ExitGeneral)
			}
			return
		}

		if len(pending) == 0 {
			fmt.Println("No pending plans.")
			return
		}
		for _, ps := range pending {
			fmt.Printf("%s  %s  %s  %d/%d steps  updated %s\n",
				ps.PlanID, ps.Tool, ps.Status, ps.LastCompletedIndex, len(ps.Plan.Steps),
				ps.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Output as JSON")
}
