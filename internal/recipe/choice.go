package recipe

// OptionWhen is the availability predicate for a choice option, evaluated
// against the system profile. Zero-value fields are unconstrained.
type OptionWhen struct {
	// GPUVendor requires a detected GPU from this vendor ("nvidia", "amd").
	GPUVendor string `toml:"gpu_vendor"`

	// CUDA requires a usable CUDA toolkit on the system.
	CUDA bool `toml:"cuda"`

	// Systemd requires systemd as the init system.
	Systemd bool `toml:"systemd"`

	// Arch restricts to the listed normalized architectures.
	Arch []string `toml:"arch"`

	// Method requires the named install method to be usable on the system
	// (native PM present, snap+systemd, language PM on PATH, ...).
	Method Method `toml:"method"`
}

// FragmentPosition says where a plan fragment's steps are spliced relative
// to the primary install step.
type FragmentPosition string

const (
	FragmentBeforeInstall FragmentPosition = "before_install"
	FragmentAfterInstall  FragmentPosition = "after_install"
)

// PlanFragment is the data a choice option contributes to the plan when
// selected. ReplaceInstall swaps the primary install command entirely
// (e.g. pytorch CPU wheel vs CUDA wheel).
type PlanFragment struct {
	Position FragmentPosition `toml:"position"`

	// ForceMethod, when non-empty, forces the install method selection.
	ForceMethod Method `toml:"force_method"`

	// ReplaceInstall, when non-empty, replaces the primary install command.
	ReplaceInstall Command `toml:"replace_install"`

	// Steps are extra labelled commands inserted at Position.
	Steps []CommandStep `toml:"steps"`

	// ExtraEnv is merged into the primary install step's environment.
	ExtraEnv map[string]string `toml:"extra_env"`
}

// ChoiceOption is one selectable variant of a choice question.
type ChoiceOption struct {
	ID          string `toml:"id"`
	Label       string `toml:"label"`
	Recommended bool   `toml:"recommended"`

	// When gates availability; resolved against the profile at choice time.
	When OptionWhen `toml:"when"`

	// EnableHint overrides the generated remediation guidance for an
	// unavailable option.
	EnableHint string `toml:"enable_hint"`

	Fragment PlanFragment `toml:"plan_fragment"`
}

// Choice is a per-recipe variant question (CPU/GPU, version, channel).
type Choice struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`

	// AutoSelectIfSingleton lets the orchestrator short-circuit when
	// exactly one option is available. The choice is still presented.
	AutoSelectIfSingleton bool `toml:"auto_select_if_singleton"`

	Options []ChoiceOption `toml:"options"`
}

// Option returns the option with the given id, or nil.
func (c *Choice) Option(id string) *ChoiceOption {
	for i := range c.Options {
		if c.Options[i].ID == id {
			return &c.Options[i]
		}
	}
	return nil
}
