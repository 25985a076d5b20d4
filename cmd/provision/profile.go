package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

var profileDeep bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the detected machine profile",
	Long: `Print the machine profile the resolver uses: distro family, package
managers on PATH, systemd, container markers.

--deep additionally runs the slow probes (GPU, CUDA, toolchain, disk) and
prints their cached results.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := sysinfo.NewDetector().Detect()

		out := struct {
			Profile *sysinfo.Profile     `json:"profile"`
			Deep    *sysinfo.DeepProfile `json:"deep,omitempty"`
		}{Profile: p}

		if profileDeep {
			cfg, err := config.DefaultConfig()
			if err != nil {
				printError(err, "")
				exitWithCode(ExitGeneral)
			}
			out.Deep = sysinfo.NewDeepDetector(cfg.ProbeCachePath).Probe(context.Background())
		}

		if err := printJSON(out); err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
	},
}

func init() {
	profileCmd.Flags().BoolVar(&profileDeep, "deep", false, "Run the slow probes too")
}
