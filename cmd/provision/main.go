package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/buildinfo"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
)

var (
	flagVerbose bool
	flagDebug   bool
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "provision",
	Short: "Declarative tool provisioning for developer machines",
	Long: `provision installs developer tools from declarative recipes.

It detects the machine profile (distro, package managers, GPU), resolves a
recipe into an executable plan, runs the plan steps in dependency order, and
persists progress so interrupted installs can be resumed.

Examples:
  provision install cargo-audit
  provision install pytorch --answers answers.yaml
  provision plan docker
  provision pending
  provision resume 4f2c91d8-...`,
	Version: buildinfo.Version(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		switch {
		case flagDebug:
			level = slog.LevelDebug
		case flagVerbose:
			level = slog.LevelInfo
		case flagQuiet:
			level = slog.LevelError
		}
		log.SetDefault(log.NewText(os.Stderr, level))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Show operational logging")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Show internal debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only show errors")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(choicesCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitWithCode(ExitUsage)
	}
}
