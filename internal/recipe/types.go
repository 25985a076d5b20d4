package recipe

import (
	"fmt"
	"strings"
)

// Method identifies an install strategy from a recipe's install map.
type Method string

// Known install methods. MethodDefault is the catch-all script method.
const (
	MethodApt     Method = "apt"
	MethodDnf     Method = "dnf"
	MethodYum     Method = "yum"
	MethodApk     Method = "apk"
	MethodPacman  Method = "pacman"
	MethodZypper  Method = "zypper"
	MethodBrew    Method = "brew"
	MethodSnap    Method = "snap"
	MethodPip     Method = "pip"
	MethodPipx    Method = "pipx"
	MethodNpm     Method = "npm"
	MethodCargo   Method = "cargo"
	MethodGo      Method = "go"
	MethodSource  Method = "source"
	MethodDefault Method = "_default"
)

// KnownMethods lists every valid install method key.
var KnownMethods = []Method{
	MethodApt, MethodDnf, MethodYum, MethodApk, MethodPacman, MethodZypper,
	MethodBrew, MethodSnap, MethodPip, MethodPipx, MethodNpm, MethodCargo,
	MethodGo, MethodSource, MethodDefault,
}

// IsKnownMethod reports whether m is a valid method key.
func IsKnownMethod(m Method) bool {
	for _, k := range KnownMethods {
		if m == k {
			return true
		}
	}
	return false
}

// Family identifies a distro package ecosystem.
type Family string

// Known distro families.
const (
	FamilyDebian Family = "debian"
	FamilyRHEL   Family = "rhel"
	FamilyAlpine Family = "alpine"
	FamilyArch   Family = "arch"
	FamilySuse   Family = "suse"
	FamilyMacOS  Family = "macos"
)

// KnownFamilies lists every valid distro family.
var KnownFamilies = []Family{
	FamilyDebian, FamilyRHEL, FamilyAlpine, FamilyArch, FamilySuse, FamilyMacOS,
}

// IsKnownFamily reports whether f is a valid family key.
func IsKnownFamily(f Family) bool {
	for _, k := range KnownFamilies {
		if f == k {
			return true
		}
	}
	return false
}

// Risk drives UI confirmation gating before execution.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Restart signals what the user must restart after installation.
type Restart string

const (
	RestartNone    Restart = "none"
	RestartShell   Restart = "shell"
	RestartSession Restart = "session"
	RestartSystem  Restart = "system"
)

// Command is an ordered argv. In recipe TOML it may be written either as a
// plain string (split on whitespace, no shell interpretation) or as an
// explicit array for commands that need shell fragments:
//
//	install._default = "cargo install cargo-audit"
//	install.source   = ["bash", "-c", "curl -sSf https://sh.rustup.rs | sh -s -- -y"]
//
// Array form is trusted recipe data; the engine never interpolates
// untrusted strings into it.
type Command []string

// UnmarshalTOML accepts both string and array forms.
func (c *Command) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*c = Command(strings.Fields(v))
		return nil
	case []interface{}:
		out := make(Command, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("command array element must be a string, got %T", item)
			}
			out = append(out, s)
		}
		*c = out
		return nil
	default:
		return fmt.Errorf("command must be a string or array of strings, got %T", data)
	}
}

// String renders the argv for display.
func (c Command) String() string {
	return strings.Join(c, " ")
}

// Requires declares a recipe's dependencies.
type Requires struct {
	// Binaries lists other recipe ids, optionally with a semver constraint
	// appended (e.g. "jq>=1.6"). These form transitive dependency edges.
	Binaries []string `toml:"binaries"`

	// Packages maps distro family to OS package names needed by this tool.
	Packages map[Family][]string `toml:"packages"`
}

// CommandStep is a labelled command used in repo_setup and post_install lists.
type CommandStep struct {
	Label     string  `toml:"label"`
	Command   Command `toml:"command"`
	NeedsSudo bool    `toml:"needs_sudo"`
	Streaming bool    `toml:"streaming"`
}

// Recipe is the declarative description of one installable tool.
type Recipe struct {
	// Name is the stable tool id.
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Homepage    string `toml:"homepage"`

	// NotInstallable marks configuration presets that carry no install
	// methods. Mutually exclusive with a non-empty Install map.
	NotInstallable bool `toml:"not_installable"`

	// Provides lists the binaries this tool puts on PATH once installed
	// (with its post_env applied). Defaults to the tool id itself. Used to
	// satisfy requires.binaries edges and language-PM availability gates.
	Provides []string `toml:"provides"`

	// Services lists service units this tool manages; the resolver emits a
	// service step (enable+start) per unit after post_install.
	Services []string `toml:"services"`

	// Install maps method key to command template.
	Install map[Method]Command `toml:"install"`

	// NeedsSudo must cover every method in Install. Extra keys name
	// post-install subphases (e.g. "post_install.docker-group").
	NeedsSudo map[string]bool `toml:"needs_sudo"`

	// Requires declares transitive recipe deps and per-family OS packages.
	Requires Requires `toml:"requires"`

	// Prefer is an ordered list of method keys expressing per-recipe
	// ordering hints for method selection.
	Prefer []Method `toml:"prefer"`

	// RepoSetup maps method key to pre-install steps (add PPA, import key).
	RepoSetup map[Method][]CommandStep `toml:"repo_setup"`

	// PostInstall steps run after install succeeds.
	PostInstall []CommandStep `toml:"post_install"`

	// PostEnv is a shell fragment exporting environment needed by
	// subsequent steps in the same plan (e.g. PATH additions).
	PostEnv string `toml:"post_env"`

	// Verify is a command whose exit 0 confirms success.
	Verify Command `toml:"verify"`

	// Update mirrors Install for in-place upgrades.
	Update map[Method]Command `toml:"update"`

	// Rollback mirrors Install for uninstall.
	Rollback map[Method]Command `toml:"rollback"`

	Risk            Risk    `toml:"risk"`
	RestartRequired Restart `toml:"restart_required"`

	// RequiresToolchain lists toolchain binaries needed by the source
	// method (e.g. cc, make). Used by the source-toolchain gate.
	RequiresToolchain []string `toml:"requires_toolchain"`

	// OnFailure holds tool-specific failure handlers, matched before the
	// method-family and infra catalogs.
	OnFailure []Handler `toml:"on_failure"`

	// Choices holds per-recipe variant questions (CPU/GPU, channel, ...).
	Choices []Choice `toml:"choices"`
}

// ProvidedBinaries returns Provides, defaulting to the tool id.
func (r *Recipe) ProvidedBinaries() []string {
	if len(r.Provides) > 0 {
		return r.Provides
	}
	return []string{r.Name}
}

// Methods returns the install method keys in deterministic order: the order
// used for tie-breaking is the declared order in KnownMethods.
func (r *Recipe) Methods() []Method {
	out := make([]Method, 0, len(r.Install))
	for _, m := range KnownMethods {
		if _, ok := r.Install[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// HasMethod reports whether the recipe declares the given install method.
func (r *Recipe) HasMethod(m Method) bool {
	_, ok := r.Install[m]
	return ok
}

// EffectiveRisk returns the declared risk, defaulting to low.
func (r *Recipe) EffectiveRisk() Risk {
	if r.Risk == "" {
		return RiskLow
	}
	return r.Risk
}

// EffectiveRestart returns the declared restart requirement, defaulting to none.
func (r *Recipe) EffectiveRestart() Restart {
	if r.RestartRequired == "" {
		return RestartNone
	}
	return r.RestartRequired
}
