package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/engine"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
)

var (
	installAnswersFile string
	installForce       bool
)

var installCmd = &cobra.Command{
	Use:   "install <tool>...",
	Short: "Install a tool from its recipe",
	Long: `Install a tool by resolving its recipe into an executable plan and
running the plan steps in dependency order.

Recipes with variants (CPU/GPU builds, release channels) ask their
questions interactively, or read answers from a YAML file:

  compute: cuda
  channel: stable

Examples:
  provision install cargo-audit
  provision install pytorch --answers answers.yaml
  provision install docker --force`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := buildRuntime(ctx)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitGeneral)
		}
		defer rt.close()

		answers, err := loadAnswers(installAnswersFile)
		if err != nil {
			printError(err, "")
			exitWithCode(ExitUsage)
		}

		for _, tool := range args {
			if code := runInstall(ctx, rt, tool, answers); code != ExitSuccess {
				exitWithCode(code)
			}
		}
	},
}

func init() {
	installCmd.Flags().StringVar(&installAnswersFile, "answers", "", "YAML file mapping choice ids to option ids")
	installCmd.Flags().BoolVar(&installForce, "force", false, "Skip risk confirmation prompts")
}

func runInstall(ctx context.Context, rt *runtimeEnv, tool string, answers map[string]string) int {
	deep := rt.deep.Probe(ctx)

	pl, err := rt.resolver.ResolveWithChoices(tool, rt.profile, deep, answers)

	// Unanswered choices fall back to an interactive menu on a terminal.
	var choiceErr *resolver.ChoiceUnresolvedError
	if errors.As(err, &choiceErr) && choiceErr.OptionID == "" && isInteractive() {
		var asked map[string]string
		if asked, err = promptChoices(rt, tool); err == nil {
			pl, err = rt.resolver.ResolveWithChoices(tool, rt.profile, deep, asked)
		}
	}
	if err != nil {
		printError(err, tool)
		return resolveExitCode(err)
	}

	if pl.Risk == recipe.RiskHigh && !installForce {
		if !isInteractive() || !confirmRisk(tool, pl.Risk) {
			fmt.Fprintln(os.Stderr, "Aborted. Re-run with --force to skip this prompt.")
			return ExitGeneral
		}
	}

	res, err := rt.engine.ExecutePlan(ctx, pl)
	if err != nil {
		printError(err, tool)
		return ExitGeneral
	}
	return finish(res)
}

func finish(res *engine.Result) int {
	if !res.Ok() {
		return reportFailure(res)
	}
	reportSuccess(res)
	return ExitSuccess
}

// loadAnswers reads a choice-answers YAML file (choice id -> option id).
func loadAnswers(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers file: %w", err)
	}
	answers := map[string]string{}
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("parsing answers file %s: %w", path, err)
	}
	return answers, nil
}

// promptChoices walks the recipe's choices on the terminal and returns the
// collected answers. Unavailable options are shown but cannot be picked.
func promptChoices(rt *runtimeEnv, tool string) (map[string]string, error) {
	choices, err := rt.resolver.ResolveChoices(tool, rt.profile, rt.deep.Probe(context.Background()))
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(os.Stdin)
	answers := make(map[string]string, len(choices))
	for _, c := range choices {
		if sole := c.SoleAvailable(); sole != "" && c.AutoSelectIfSingleton {
			answers[c.ID] = sole
			continue
		}

		fmt.Fprintf(os.Stderr, "%s:\n", c.Label)
		for i, opt := range c.Options {
			marker := ""
			if opt.Recommended {
				marker = " (recommended)"
			}
			if !opt.Available {
				marker = fmt.Sprintf(" [unavailable: %s]", opt.DisabledReason)
			}
			fmt.Fprintf(os.Stderr, "  %d. %s%s\n", i+1, opt.Label, marker)
			if !opt.Available && opt.EnableHint != "" {
				fmt.Fprintf(os.Stderr, "     to enable: %s\n", opt.EnableHint)
			}
		}

		for {
			fmt.Fprintf(os.Stderr, "Select [1-%d]: ", len(c.Options))
			line, err := reader.ReadString('\n')
			if err != nil {
				return nil, fmt.Errorf("choice %q unanswered", c.ID)
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || n < 1 || n > len(c.Options) {
				continue
			}
			opt := c.Options[n-1]
			if !opt.Available {
				fmt.Fprintf(os.Stderr, "That option is unavailable: %s\n", opt.DisabledReason)
				continue
			}
			answers[c.ID] = opt.ID
			break
		}
	}
	return answers, nil
}
