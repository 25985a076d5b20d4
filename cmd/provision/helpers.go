package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/engine"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/errmsg"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/executor"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/secrets"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/state"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// runtimeEnv bundles everything a command needs: config, registry, profile,
// state store, resolver, and the engine. Built once per invocation.
type runtimeEnv struct {
	cfg      *config.Config
	reg      *recipe.Registry
	profile  *sysinfo.Profile
	deep     *sysinfo.DeepDetector
	store    *state.Store
	resolver *resolver.Resolver
	engine   *engine.Engine

	// passwords caches the sudo password for the process lifetime; Zero is
	// deferred in every command that builds a runtimeEnv.
	passwords *secrets.CachingProvider
}

func buildRuntime(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	reg, err := recipe.LoadEmbedded()
	if err != nil {
		return nil, err
	}

	profile := sysinfo.NewDetector().Detect()
	deep := sysinfo.NewDeepDetector(cfg.ProbeCachePath)

	store, err := state.NewStore(cfg.PlansDir)
	if err != nil {
		return nil, err
	}

	res := resolver.New(reg)
	passwords := secrets.NewCaching(&secrets.TerminalProvider{})

	exec := executor.New(
		executor.WithLogger(log.Default()),
		executor.WithPasswords(passwords),
		executor.WithSystemd(profile.HasSystemd),
	)

	eng := engine.New(reg, res, store, profile,
		engine.WithLogger(log.Default()),
		engine.WithExecutor(exec),
		engine.WithDeepProfile(deep.Probe(ctx)),
	)

	return &runtimeEnv{
		cfg:       cfg,
		reg:       reg,
		profile:   profile,
		deep:      deep,
		store:     store,
		resolver:  res,
		engine:    eng,
		passwords: passwords,
	}, nil
}

// close wipes the cached sudo password.
func (rt *runtimeEnv) close() {
	rt.passwords.Zero()
}

// printError formats an error with causes and suggestions on stderr.
func printError(err error, tool string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", errmsg.Format(err, &errmsg.ErrorContext{ToolName: tool}))
}

// reportFailure renders a failed or paused plan result: the diagnosis and
// the resume hint. Returns the exit code to use.
func reportFailure(res *engine.Result) int {
	if res.Status == state.PlanPaused {
		fmt.Fprintf(os.Stderr, "Plan paused.\n\nResume with:\n  provision resume %s\n", res.PlanID)
		return ExitPaused
	}
	if res.FirstFailure != nil {
		stepRes := res.Results[res.FailedStep.ID]
		fmt.Fprint(os.Stderr, errmsg.FormatReport(res.FirstFailure, res.FailedStep, stepRes))
		if opt := res.FirstFailure.Recommended(); opt != nil {
			fmt.Fprintf(os.Stderr, "\nApply the recommended fix with:\n  provision resume %s --apply %s\n", res.PlanID, opt.ID)
		} else {
			fmt.Fprintf(os.Stderr, "\nResume after fixing with:\n  provision resume %s\n", res.PlanID)
		}
	} else if res.FailedStep != nil {
		fmt.Fprintf(os.Stderr, "Step failed: %s\n", res.FailedStep.Label)
		if r := res.Results[res.FailedStep.ID]; r != nil && r.Error != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", r.Error)
		}
		fmt.Fprintf(os.Stderr, "\nResume with:\n  provision resume %s\n", res.PlanID)
	}
	return ExitStepFailed
}

// reportSuccess prints the completion line plus any restart requirement.
func reportSuccess(res *engine.Result) {
	fmt.Printf("✓ %s installed\n", res.Tool)
	switch res.Restart {
	case recipe.RestartShell:
		fmt.Println("Restart your shell (or re-source your profile) to pick up PATH changes.")
	case recipe.RestartSession:
		fmt.Println("Log out and back in for group membership changes to take effect.")
	case recipe.RestartSystem:
		fmt.Println("Reboot the system to finish the installation.")
	}
}

// isInteractive returns true if stdin is connected to a terminal
func isInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// confirmRisk prompts before running a plan whose recipe declares elevated
// risk. Returns true when the user agrees.
func confirmRisk(tool string, risk recipe.Risk) bool {
	fmt.Fprintf(os.Stderr, "Installing %s is marked %s risk.\n", tool, risk)
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprint(os.Stderr, "Continue? [y/N] ")
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
