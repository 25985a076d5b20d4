package resolver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

func ubuntuProfile() *sysinfo.Profile {
	return &sysinfo.Profile{
		OS:            "linux",
		Distro:        "ubuntu",
		DistroFamily:  recipe.FamilyDebian,
		DistroVersion: "24.04",
		Arch:          "x86_64",
		PrimaryPM:     recipe.MethodApt,
		HasSystemd:    true,
		WritableRoot:  true,
		PMBinariesOnPath: map[string]bool{
			"apt-get": true,
		},
	}
}

func fedoraProfile() *sysinfo.Profile {
	return &sysinfo.Profile{
		OS:            "linux",
		Distro:        "fedora",
		DistroFamily:  recipe.FamilyRHEL,
		DistroVersion: "40",
		Arch:          "x86_64",
		PrimaryPM:     recipe.MethodDnf,
		HasSystemd:    true,
		WritableRoot:  true,
		PMBinariesOnPath: map[string]bool{
			"dnf": true,
		},
	}
}

func newTestResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	reg, err := recipe.LoadEmbedded()
	require.NoError(t, err)
	opts = append([]Option{WithPathProbe(func(string) bool { return false })}, opts...)
	return New(reg, opts...)
}

func stepIDs(p *plan.Plan) []string {
	ids := make([]string, len(p.Steps))
	for i := range p.Steps {
		ids[i] = p.Steps[i].ID
	}
	return ids
}

func TestResolveCargoAuditOnUbuntu(t *testing.T) {
	r := newTestResolver(t)

	pl, err := r.Resolve("cargo-audit", ubuntuProfile(), nil)
	require.NoError(t, err)

	assert.Equal(t, recipe.MethodCargo, pl.Method)
	assert.True(t, pl.NeedsSudo)
	require.Equal(t, []string{
		"packages:debian",
		"tool:rustup",
		"tool:cargo-audit",
		"verify:cargo-audit",
	}, stepIDs(pl))

	pkgs := pl.StepByID("packages:debian")
	assert.Equal(t, []string{"apt-get", "install", "-y", "pkg-config", "libssl-dev"}, pkgs.Command)
	assert.True(t, pkgs.NeedsSudo)
	assert.True(t, pkgs.Batchable)

	rustup := pl.StepByID("tool:rustup")
	assert.False(t, rustup.NeedsSudo)
	assert.Equal(t, "bash", rustup.Command[0])

	audit := pl.StepByID("tool:cargo-audit")
	assert.Equal(t, []string{"cargo", "install", "cargo-audit", "--locked"}, audit.Command)
	assert.False(t, audit.NeedsSudo)
	assert.Equal(t, "$HOME/.cargo/bin:$PATH", audit.Env["PATH"])
	assert.Contains(t, audit.DependsOn, "tool:rustup")

	verify := pl.StepByID("verify:cargo-audit")
	assert.Equal(t, []string{"cargo", "audit", "--version"}, verify.Command)
	assert.Equal(t, "$HOME/.cargo/bin:$PATH", verify.Env["PATH"])
}

func TestResolveCargoAuditOnFedora(t *testing.T) {
	r := newTestResolver(t)

	pl, err := r.Resolve("cargo-audit", fedoraProfile(), nil)
	require.NoError(t, err)

	// Same plan shape as Ubuntu; only the package step differs.
	require.Equal(t, []string{
		"packages:rhel",
		"tool:rustup",
		"tool:cargo-audit",
		"verify:cargo-audit",
	}, stepIDs(pl))
	assert.Equal(t,
		[]string{"dnf", "install", "-y", "pkgconf-pkg-config", "openssl-devel"},
		pl.StepByID("packages:rhel").Command)
}

func TestResolveIsDeterministic(t *testing.T) {
	p := ubuntuProfile()

	var runs [][]byte
	for i := 0; i < 2; i++ {
		r := newTestResolver(t)
		pl, err := r.Resolve("cargo-audit", p, nil)
		require.NoError(t, err)
		raw, err := json.Marshal(pl)
		require.NoError(t, err)
		runs = append(runs, raw)
	}
	assert.Equal(t, string(runs[0]), string(runs[1]))
}

func TestResolveSkipsDependencyOnPath(t *testing.T) {
	r := newTestResolver(t, WithPathProbe(func(bin string) bool {
		return bin == "cargo"
	}))
	p := ubuntuProfile()
	p.PMBinariesOnPath["cargo"] = true

	pl, err := r.Resolve("cargo-audit", p, nil)
	require.NoError(t, err)

	assert.Nil(t, pl.StepByID("tool:rustup"), "rustup must not be planned when cargo is present")
	require.Equal(t, []string{
		"packages:debian",
		"tool:cargo-audit",
		"verify:cargo-audit",
	}, stepIDs(pl))
	assert.Empty(t, pl.StepByID("tool:cargo-audit").Env)
}

func TestResolveDockerNativeAutoAnswer(t *testing.T) {
	r := newTestResolver(t)

	pl, err := r.Resolve("docker", ubuntuProfile(), nil)
	require.NoError(t, err)

	assert.Equal(t, recipe.MethodApt, pl.Method)
	require.Equal(t, []string{
		"repo:docker:0",
		"repo:docker:1",
		"tool:docker",
		"post:docker:0",
		"service:docker",
		"verify:docker",
	}, stepIDs(pl))

	assert.Equal(t, []string{"repo:docker:0"}, pl.StepByID("repo:docker:1").DependsOn)
	assert.Contains(t, pl.StepByID("tool:docker").DependsOn, "repo:docker:1")
	assert.Equal(t, "docker", pl.StepByID("service:docker").Metadata.Unit)
	assert.Equal(t, []string{"post:docker:0", "service:docker"},
		pl.StepByID("verify:docker").DependsOn)
	assert.True(t, pl.NeedsSudo)
}

func TestResolveDockerSnapAnswer(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile()
	p.SnapAvailable = true
	p.PMBinariesOnPath["snap"] = true

	pl, err := r.ResolveWithChoices("docker", p, nil,
		map[string]string{"install_method": "snap"})
	require.NoError(t, err)

	assert.Equal(t, recipe.MethodSnap, pl.Method)
	assert.Nil(t, pl.StepByID("repo:docker:0"), "snap install needs no apt repo setup")
	assert.Equal(t, []string{"snap", "install", "docker"}, pl.StepByID("tool:docker").Command)
}

func TestResolveDockerSnapAnswerRejectedWithoutSnapd(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile() // systemd present, snapd absent

	_, err := r.ResolveWithChoices("docker", p, nil,
		map[string]string{"install_method": "snap"})

	var cerr *ChoiceUnresolvedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "install_method", cerr.ChoiceID)
	assert.Equal(t, "snap", cerr.OptionID)
}

func TestResolvePytorchDefaultsToCPUWheel(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile()
	p.PMBinariesOnPath["pip3"] = true

	pl, err := r.Resolve("pytorch", p, nil)
	require.NoError(t, err)

	tool := pl.StepByID("tool:pytorch")
	require.NotNil(t, tool)
	assert.Contains(t, tool.Command, "https://download.pytorch.org/whl/cpu")
}

func TestResolvePytorchCUDAAnswerNeedsGPU(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile()
	p.PMBinariesOnPath["pip3"] = true

	_, err := r.ResolveWithChoices("pytorch", p, nil, map[string]string{"compute": "cuda"})
	var cerr *ChoiceUnresolvedError
	require.ErrorAs(t, err, &cerr)

	deep := &sysinfo.DeepProfile{GPUVendor: "nvidia", CUDAVersion: "12.4"}
	pl, err := r.ResolveWithChoices("pytorch", p, deep, map[string]string{"compute": "cuda"})
	require.NoError(t, err)
	assert.Contains(t, pl.StepByID("tool:pytorch").Command, "https://download.pytorch.org/whl/cu124")
}

func TestSelectMethodHonorsPreferThenFallsBack(t *testing.T) {
	r := newTestResolver(t)

	p := ubuntuProfile()
	p.PMBinariesOnPath["pipx"] = true
	p.PMBinariesOnPath["pip3"] = true
	pl, err := r.Resolve("ruff", p, nil)
	require.NoError(t, err)
	assert.Equal(t, recipe.MethodPipx, pl.Method)

	p2 := ubuntuProfile()
	p2.PMBinariesOnPath["pip3"] = true
	pl2, err := r.Resolve("ruff", p2, nil)
	require.NoError(t, err)
	assert.Equal(t, recipe.MethodPip, pl2.Method)
}

func TestResolveNoSelectableMethod(t *testing.T) {
	r := newTestResolver(t)
	p := &sysinfo.Profile{
		OS:           "linux",
		Arch:         "x86_64",
		DistroFamily: recipe.FamilyAlpine,
		Distro:       "alpine",
		// No PM binaries at all and no systemd.
		PMBinariesOnPath: map[string]bool{},
	}

	_, err := r.Resolve("ruff", p, nil)
	var nerr *NoSelectableMethodError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "ruff", nerr.Tool)
	assert.Contains(t, nerr.Error(), "pipx")
}

func TestResolveNotInstallable(t *testing.T) {
	r := newTestResolver(t)

	pl, err := r.Resolve("shell-defaults", ubuntuProfile(), nil)
	require.NoError(t, err)
	require.Len(t, pl.Steps, 1)
	assert.Equal(t, plan.StepNotification, pl.Steps[0].Type)
}

func TestResolveAlreadyInstalled(t *testing.T) {
	r := newTestResolver(t, WithInstalledCheck(func(rec *recipe.Recipe) bool {
		return rec.Name == "jq"
	}))

	pl, err := r.Resolve("jq", ubuntuProfile(), nil)
	require.NoError(t, err)
	assert.True(t, pl.AlreadyInstalled)
	require.Len(t, pl.Steps, 1)
	assert.Equal(t, plan.StepNotification, pl.Steps[0].Type)
}

func TestResolveChoicesListsEveryOption(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile()
	p.PMBinariesOnPath["pip3"] = true

	choices, err := r.ResolveChoices("pytorch", p, &sysinfo.DeepProfile{})
	require.NoError(t, err)
	require.Len(t, choices, 1)
	require.Len(t, choices[0].Options, 3, "unavailable options stay visible")

	byID := map[string]AnnotatedOption{}
	for _, opt := range choices[0].Options {
		byID[opt.ID] = opt
	}
	assert.True(t, byID["cpu"].Available)
	assert.True(t, byID["cpu"].Recommended)
	assert.False(t, byID["cuda"].Available)
	assert.NotEmpty(t, byID["cuda"].DisabledReason)
	assert.NotEmpty(t, byID["cuda"].EnableHint)
	assert.False(t, byID["rocm"].Available)
}

func TestResolveUpdateUsesUpdateCommand(t *testing.T) {
	r := newTestResolver(t)
	p := ubuntuProfile()
	p.PMBinariesOnPath["cargo"] = true

	pl, err := r.ResolveUpdate("cargo-audit", "", p)
	require.NoError(t, err)
	assert.Equal(t, recipe.MethodCargo, pl.Method)
	assert.Equal(t,
		[]string{"cargo", "install", "cargo-audit", "--locked", "--force"},
		pl.StepByID("tool:cargo-audit").Command)
}

func TestResolveRollbackFallsBackToCatalog(t *testing.T) {
	r := newTestResolver(t)

	// docker has no pacman rollback command; the catalog template applies.
	pl, err := r.ResolveRollback("docker", recipe.MethodPacman, ubuntuProfile())
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"pacman", "-R", "--noconfirm", "docker"},
		pl.StepByID("tool:docker").Command)

	// Explicit rollback commands win over the catalog.
	pl2, err := r.ResolveRollback("cargo-audit", recipe.MethodCargo, ubuntuProfile())
	require.NoError(t, err)
	assert.Equal(t, []string{"cargo", "uninstall", "cargo-audit"},
		pl2.StepByID("tool:cargo-audit").Command)
}

func TestResolveVersionConstraintTriggersReinstall(t *testing.T) {
	probeVersion := "1.5.0"
	r := newTestResolver(t,
		WithPathProbe(func(bin string) bool { return bin == "jq" }),
		WithVersionProbe(func(bin string) string { return probeVersion }),
	)
	c := newCollector(r, ubuntuProfile())
	assert.False(t, c.satisfiedOnPath("jq", ">=1.6"), "stale version must not satisfy")

	probeVersion = "1.7.1"
	assert.True(t, c.satisfiedOnPath("jq", ">=1.6"))
	assert.True(t, c.satisfiedOnPath("jq", ""))
}
