package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	reg, err := recipe.LoadEmbedded()
	require.NoError(t, err)
	return NewAnalyzer(reg, log.NewNoop())
}

func debianProfile(onPath ...string) *sysinfo.Profile {
	p := &sysinfo.Profile{
		OS:               "linux",
		Distro:           "ubuntu",
		DistroFamily:     recipe.FamilyDebian,
		PrimaryPM:        recipe.MethodApt,
		HasSystemd:       true,
		WritableRoot:     true,
		PMBinariesOnPath: map[string]bool{"apt-get": true},
	}
	for _, bin := range onPath {
		p.PMBinariesOnPath[bin] = true
	}
	return p
}

func pipFailure(stderr ...string) (*plan.Step, *plan.StepResult) {
	step := &plan.Step{
		ID:       "tool:ruff",
		Type:     plan.StepTool,
		Command:  []string{"pip3", "install", "--user", "ruff"},
		Metadata: plan.Metadata{Tool: "ruff", Method: recipe.MethodPip},
	}
	return step, &plan.StepResult{
		StepID:     "tool:ruff",
		Status:     plan.StatusFailed,
		ExitCode:   1,
		StderrTail: stderr,
	}
}

func TestAnalyzePEP668WithPipxAvailable(t *testing.T) {
	a := newAnalyzer(t)
	step, res := pipFailure("error: externally-managed-environment")

	rep := a.Analyze(step, res, debianProfile("pipx"))
	require.NotNil(t, rep)
	assert.Equal(t, "pip_externally_managed", rep.FailureID)
	assert.Equal(t, LayerFamily, rep.Layer)
	assert.Equal(t, recipe.CategoryEnvironment, rep.Category)

	require.NotEmpty(t, rep.Options)
	best := rep.Recommended()
	require.NotNil(t, best)
	assert.Equal(t, "switch_pipx", best.ID)
	assert.Equal(t, recipe.StrategySwitchMethod, best.Strategy)
	assert.Equal(t, recipe.MethodPipx, best.Method)
}

func TestAnalyzePEP668WithoutPipxDemotesSwitch(t *testing.T) {
	a := newAnalyzer(t)
	step, res := pipFailure("error: externally-managed-environment")

	rep := a.Analyze(step, res, debianProfile())
	require.NotNil(t, rep)

	// pipx missing: the switch is locked and the retry modifier ranks first.
	require.Len(t, rep.Options, 2)
	assert.Equal(t, "break_system_packages", rep.Options[0].ID)
	assert.Equal(t, resolver.Ready, rep.Options[0].Availability)
	assert.Equal(t, "switch_pipx", rep.Options[1].ID)
	assert.Equal(t, resolver.Locked, rep.Options[1].Availability)
	assert.NotEmpty(t, rep.Options[1].Hint)
}

func TestAnalyzeToolHandlerWinsOverCatalogs(t *testing.T) {
	a := newAnalyzer(t)
	step := &plan.Step{
		ID:       "verify:docker",
		Type:     plan.StepVerify,
		Metadata: plan.Metadata{Tool: "docker", Method: recipe.MethodApt},
	}
	res := &plan.StepResult{
		StepID:     step.ID,
		Status:     plan.StatusFailed,
		StderrTail: []string{"Cannot connect to the Docker daemon at unix:///var/run/docker.sock"},
	}

	rep := a.Analyze(step, res, debianProfile())
	require.NotNil(t, rep)
	assert.Equal(t, LayerTool, rep.Layer)
	assert.Equal(t, "docker_daemon_down", rep.FailureID)
	best := rep.Recommended()
	require.NotNil(t, best)
	assert.Equal(t, "start_daemon", best.ID)
}

func TestAnalyzeMethodRestrictionSkipsWrongFamily(t *testing.T) {
	a := newAnalyzer(t)
	step := &plan.Step{
		ID:       "tool:cargo-audit",
		Type:     plan.StepTool,
		Metadata: plan.Metadata{Tool: "cargo-audit", Method: recipe.MethodCargo},
	}
	res := &plan.StepResult{
		Status:     plan.StatusFailed,
		StderrTail: []string{"error: failed to compile: requires rustc 1.74 or newer"},
	}

	rep := a.Analyze(step, res, debianProfile())
	require.NotNil(t, rep)
	assert.Equal(t, "cargo_rustc_too_old", rep.FailureID)
	best := rep.Recommended()
	require.NotNil(t, best)
	assert.Equal(t, recipe.StrategyEnvFix, best.Strategy)
}

func TestAnalyzeInfraFallback(t *testing.T) {
	a := newAnalyzer(t)
	step := &plan.Step{
		ID:       "packages:debian",
		Type:     plan.StepPackages,
		Metadata: plan.Metadata{Family: recipe.FamilyDebian},
	}
	res := &plan.StepResult{
		Status:     plan.StatusFailed,
		StderrTail: []string{"E: Write error - write (28: No space left on device)"},
	}

	rep := a.Analyze(step, res, debianProfile())
	require.NotNil(t, rep)
	assert.Equal(t, LayerInfra, rep.Layer)
	assert.Equal(t, "infra_disk_full", rep.FailureID)
}

func TestAnalyzeFlattensEveryMatchingHandler(t *testing.T) {
	a := newAnalyzer(t)
	step, res := pipFailure(
		"error: externally-managed-environment",
		"OSError: [Errno 28] no space left on device",
	)

	rep := a.Analyze(step, res, debianProfile("pipx"))
	require.NotNil(t, rep)

	// The most specific match names the diagnosis.
	assert.Equal(t, "pip_externally_managed", rep.FailureID)
	assert.Equal(t, LayerFamily, rep.Layer)

	// The infra disk-full options are still offered after the family ones.
	ids := make([]string, len(rep.Options))
	for i, o := range rep.Options {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"switch_pipx", "break_system_packages", "clean_pm_cache", "manual_space"}, ids)
}

func TestRankKeepsDeclaredOrderWithinClass(t *testing.T) {
	a := newAnalyzer(t)
	opts := []recipe.RemedyOption{
		{ID: "first", Strategy: recipe.StrategyManual},
		{ID: "second", Strategy: recipe.StrategyRetryModifier, Recommended: true},
	}

	ranked := a.rank(opts, debianProfile())
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
}

func TestAnalyzeNoMatchReturnsNil(t *testing.T) {
	a := newAnalyzer(t)
	step := &plan.Step{ID: "tool:x", Type: plan.StepTool}
	res := &plan.StepResult{Status: plan.StatusFailed, StderrTail: []string{"some inscrutable failure"}}

	assert.Nil(t, a.Analyze(step, res, debianProfile()))
}

func TestRankInstallPackagesNeedsFamilyMapping(t *testing.T) {
	a := newAnalyzer(t)
	opts := []recipe.RemedyOption{{
		ID:       "install_build_tools",
		Strategy: recipe.StrategyInstallPackages,
		Packages: map[recipe.Family][]string{recipe.FamilyDebian: {"build-essential"}},
	}}

	ranked := a.rank(opts, debianProfile())
	assert.Equal(t, resolver.Ready, ranked[0].Availability)

	rhel := &sysinfo.Profile{DistroFamily: recipe.FamilyRHEL, WritableRoot: true,
		PMBinariesOnPath: map[string]bool{}}
	ranked = a.rank(opts, rhel)
	assert.Equal(t, resolver.Impossible, ranked[0].Availability)
}

func TestRankSwitchMethodNativeWrongFamily(t *testing.T) {
	a := newAnalyzer(t)
	opts := []recipe.RemedyOption{{
		ID: "use_apt", Strategy: recipe.StrategySwitchMethod, Method: recipe.MethodApt,
	}}

	rhel := &sysinfo.Profile{DistroFamily: recipe.FamilyRHEL,
		PMBinariesOnPath: map[string]bool{"dnf": true}}
	ranked := a.rank(opts, rhel)
	assert.Equal(t, resolver.Impossible, ranked[0].Availability)
}
