package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/executor"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/state"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

type testRig struct {
	engine *Engine
	fake   *executor.FakeRunner
	store  *state.Store
}

func ubuntuProfile(extraBins ...string) *sysinfo.Profile {
	p := &sysinfo.Profile{
		OS:           "linux",
		Distro:       "ubuntu",
		DistroFamily: recipe.FamilyDebian,
		Arch:         "x86_64",
		PrimaryPM:    recipe.MethodApt,
		HasSystemd:   true,
		WritableRoot: true,
		PMBinariesOnPath: map[string]bool{
			"apt-get": true,
		},
	}
	for _, b := range extraBins {
		p.PMBinariesOnPath[b] = true
	}
	return p
}

func newRig(t *testing.T, p *sysinfo.Profile, store *state.Store) *testRig {
	t.Helper()
	reg, err := recipe.LoadEmbedded()
	require.NoError(t, err)

	if store == nil {
		store, err = state.NewStore(t.TempDir(), state.WithLogger(log.NewNoop()))
		require.NoError(t, err)
	}

	fake := executor.NewFakeRunner()
	exec := executor.New(
		executor.WithLogger(log.NewNoop()),
		executor.WithRunner(fake),
		executor.WithSink(nil),
		executor.WithHomeDir(t.TempDir()),
	)
	res := resolver.New(reg,
		resolver.WithLogger(log.NewNoop()),
		resolver.WithPathProbe(func(string) bool { return false }),
	)
	eng := New(reg, res, store, p,
		WithLogger(log.NewNoop()),
		WithExecutor(exec),
		WithWorkers(2),
		WithIDGenerator(func() string { return "plan-test-1" }),
	)
	return &testRig{engine: eng, fake: fake, store: store}
}

func TestInstallToolRunsPlanInDependencyOrder(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	require.True(t, res.Ok(), "result: %+v", res)
	assert.Equal(t, "plan-test-1", res.PlanID)

	lines := rig.fake.CommandLines()
	require.Len(t, lines, 4)
	assert.Equal(t, "apt-get install -y pkg-config libssl-dev", lines[0])
	assert.Contains(t, lines[1], "rustup")
	assert.Equal(t, "cargo install cargo-audit --locked", lines[2])
	assert.Equal(t, "cargo audit --version", lines[3])

	// Finished installs leave no resume record behind.
	_, err = rig.store.Load(res.PlanID)
	assert.ErrorIs(t, err, state.ErrPlanNotFound)
}

func TestFailedPlanPersistsAndBlocksDependents(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	rig.fake.Respond("apt-get install", executor.FakeResponse{
		ExitCode: 100,
		Stderr:   []string{"E: Write error - write (28: No space left on device)"},
	})

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	assert.Equal(t, state.PlanFailed, res.Status)

	require.NotNil(t, res.FailedStep)
	assert.Equal(t, "packages:debian", res.FailedStep.ID)
	require.NotNil(t, res.FirstFailure)
	assert.Equal(t, "infra_disk_full", res.FirstFailure.FailureID)

	ps, err := rig.store.Load(res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, state.PlanFailed, ps.Status)
	assert.Equal(t, plan.StatusFailed, ps.Results["packages:debian"].Status)
	assert.Equal(t, plan.StatusBlocked, ps.Results["tool:rustup"].Status)
	assert.Equal(t, plan.StatusBlocked, ps.Results["verify:cargo-audit"].Status)
	assert.Zero(t, ps.LastCompletedIndex)
}

func TestCancelledPlanPersistsAsPaused(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := rig.engine.InstallTool(ctx, "cargo-audit", nil)
	require.NoError(t, err)
	assert.Equal(t, state.PlanPaused, res.Status)
	assert.Nil(t, res.FirstFailure, "a pause is not a diagnosed failure")

	ps, err := rig.store.Load(res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, state.PlanPaused, ps.Status)
	assert.Zero(t, ps.PID)

	pending, err := rig.engine.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.PlanID, pending[0].PlanID)

	// A fresh context resumes and completes the plan.
	rig2 := newRig(t, ubuntuProfile(), rig.store)
	res2, err := rig2.engine.ResumePlan(context.Background(), res.PlanID)
	require.NoError(t, err)
	assert.True(t, res2.Ok())
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	rig.fake.Respond("cargo install cargo-audit", executor.FakeResponse{
		ExitCode: 1,
		Stderr:   []string{"error: connection refused"},
	})

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	require.Equal(t, state.PlanFailed, res.Status)

	ps, err := rig.store.Load(res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.LastCompletedIndex, "packages and rustup completed")

	// Second engine instance over the same store, with the failure fixed.
	rig2 := newRig(t, ubuntuProfile(), rig.store)
	res2, err := rig2.engine.ResumePlan(context.Background(), res.PlanID)
	require.NoError(t, err)
	assert.True(t, res2.Ok())

	lines := rig2.fake.CommandLines()
	require.Len(t, lines, 2, "only the failed step and its dependents re-run: %v", lines)
	assert.Equal(t, "cargo install cargo-audit --locked", lines[0])
	assert.Equal(t, "cargo audit --version", lines[1])
}

func TestResumeMissingPlan(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	_, err := rig.engine.ResumePlan(context.Background(), "nope")
	assert.ErrorIs(t, err, state.ErrPlanNotFound)
}

func TestAlreadyInstalledShortCircuit(t *testing.T) {
	reg, err := recipe.LoadEmbedded()
	require.NoError(t, err)
	store, err := state.NewStore(t.TempDir(), state.WithLogger(log.NewNoop()))
	require.NoError(t, err)

	fake := executor.NewFakeRunner()
	exec := executor.New(
		executor.WithLogger(log.NewNoop()),
		executor.WithRunner(fake),
		executor.WithSink(nil),
	)
	res := resolver.New(reg,
		resolver.WithLogger(log.NewNoop()),
		resolver.WithPathProbe(func(string) bool { return false }),
		resolver.WithInstalledCheck(func(r *recipe.Recipe) bool { return r.Name == "jq" }),
	)
	eng := New(reg, res, store, ubuntuProfile(),
		WithLogger(log.NewNoop()), WithExecutor(exec))

	out, err := eng.InstallTool(context.Background(), "jq", nil)
	require.NoError(t, err)
	assert.True(t, out.Ok())
	assert.Empty(t, fake.Calls(), "nothing executes for an installed tool")

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records, "ephemeral plans are not persisted")
}

func TestApplyRemedyRetryWithModifier(t *testing.T) {
	rig := newRig(t, ubuntuProfile("pip3"), nil)
	rig.fake.Respond("pip3 install --user ruff", executor.FakeResponse{
		ExitCode: 1,
		Stderr:   []string{"error: externally-managed-environment"},
	})
	rig.fake.Respond("pip3 install --user ruff --break-system-packages", executor.FakeResponse{})

	res, err := rig.engine.InstallTool(context.Background(), "ruff", nil)
	require.NoError(t, err)
	require.Equal(t, state.PlanFailed, res.Status)
	require.NotNil(t, res.FirstFailure)
	assert.Equal(t, "pip_externally_managed", res.FirstFailure.FailureID)

	// pipx is absent, so the ready option is the retry modifier.
	best := res.FirstFailure.Recommended()
	require.NotNil(t, best)
	assert.Equal(t, "break_system_packages", best.ID)

	out, err := rig.engine.ApplyRemedy(context.Background(), res, "break_system_packages")
	require.NoError(t, err)
	assert.True(t, out.Ok())

	lines := rig.fake.CommandLines()
	last := lines[len(lines)-2]
	assert.Equal(t, "pip3 install --user ruff --break-system-packages", last)
}

func TestApplyRemedyManualReturnsInstructions(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	rig.fake.Respond("apt-get install", executor.FakeResponse{
		ExitCode: 1,
		Stderr:   []string{"E: Write error - write (28: No space left on device)"},
	})

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	require.NotNil(t, res.FirstFailure)

	_, err = rig.engine.ApplyRemedy(context.Background(), res, "manual_space")
	var merr *ManualRemedyError
	require.ErrorAs(t, err, &merr)
	assert.NotEmpty(t, merr.Instructions)
}

func TestApplyRemedyRejectsUnknownOption(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	rig.fake.Respond("apt-get install", executor.FakeResponse{
		ExitCode: 1,
		Stderr:   []string{"no space left on device"},
	})

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	require.NotNil(t, res.FirstFailure)

	_, err = rig.engine.ApplyRemedy(context.Background(), res, "does-not-exist")
	assert.Error(t, err)
}

func TestListPendingSurfacesFailedPlans(t *testing.T) {
	rig := newRig(t, ubuntuProfile(), nil)
	rig.fake.Respond("cargo install", executor.FakeResponse{ExitCode: 1, Stderr: []string{"boom"}})

	res, err := rig.engine.InstallTool(context.Background(), "cargo-audit", nil)
	require.NoError(t, err)
	require.Equal(t, state.PlanFailed, res.Status)

	pending, err := rig.engine.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.PlanID, pending[0].PlanID)
	assert.Equal(t, "cargo-audit", pending[0].Tool)
}
