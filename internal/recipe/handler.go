package recipe

// FailureCategory classifies the root cause a handler diagnoses.
type FailureCategory string

const (
	CategoryEnvironment   FailureCategory = "environment"
	CategoryDependency    FailureCategory = "dependency"
	CategoryPermissions   FailureCategory = "permissions"
	CategoryCompiler      FailureCategory = "compiler"
	CategoryNetwork       FailureCategory = "network"
	CategoryConfiguration FailureCategory = "configuration"
)

// Strategy identifies how a remediation option is executed.
type Strategy string

const (
	// StrategyInstallDep enqueues a nested plan for Dep, then retries.
	StrategyInstallDep Strategy = "install_dep"

	// StrategySwitchMethod re-resolves the tool with Method forced.
	StrategySwitchMethod Strategy = "switch_method"

	// StrategyRetryModifier retries with ExtraArgs/ExtraEnv applied.
	StrategyRetryModifier Strategy = "retry_with_modifier"

	// StrategyInstallPackages inserts a packages step, then retries.
	StrategyInstallPackages Strategy = "install_packages"

	// StrategyEnvFix runs Commands to correct the environment, then retries.
	StrategyEnvFix Strategy = "env_fix"

	// StrategyManual emits Instructions and requires acknowledgement.
	StrategyManual Strategy = "manual"

	// StrategyCleanupRetry runs Commands (cache removal), then retries.
	StrategyCleanupRetry Strategy = "cleanup_retry"
)

// KnownStrategies lists every valid remediation strategy.
var KnownStrategies = []Strategy{
	StrategyInstallDep, StrategySwitchMethod, StrategyRetryModifier,
	StrategyInstallPackages, StrategyEnvFix, StrategyManual,
	StrategyCleanupRetry,
}

// IsKnownStrategy reports whether s is a valid strategy.
func IsKnownStrategy(s Strategy) bool {
	for _, k := range KnownStrategies {
		if s == k {
			return true
		}
	}
	return false
}

// RemedyOption is one ranked remediation a handler can propose.
// Only the fields relevant to Strategy are populated.
type RemedyOption struct {
	ID          string   `toml:"id"`
	Label       string   `toml:"label"`
	Strategy    Strategy `toml:"strategy"`
	Recommended bool     `toml:"recommended"`

	// Dep is the recipe id to install first (install_dep).
	Dep string `toml:"dep"`

	// Method is the forced install method (switch_method).
	Method Method `toml:"method"`

	// ExtraArgs/ExtraEnv modify the retried command (retry_with_modifier).
	ExtraArgs []string          `toml:"extra_args"`
	ExtraEnv  map[string]string `toml:"extra_env"`

	// Packages maps family to OS packages to install first (install_packages).
	Packages map[Family][]string `toml:"packages"`

	// Commands run before the retry (env_fix, cleanup_retry).
	Commands []Command `toml:"commands"`

	// Instructions are shown to the user (manual).
	Instructions string `toml:"instructions"`
}

// Handler matches a failure signature in command stderr and proposes
// remediation options. Handlers live in three layers: tool on_failure,
// method family, and infra; match order is most-specific first.
type Handler struct {
	// Pattern is a regular expression applied case-insensitively and
	// multiline against the concatenated stderr and stdout tails.
	Pattern string `toml:"pattern"`

	// FailureID is a stable identifier for this failure signature.
	FailureID string `toml:"failure_id"`

	Category      FailureCategory `toml:"category"`
	Label         string          `toml:"label"`
	Description   string          `toml:"description"`
	ExampleStderr string          `toml:"example_stderr"`

	// Methods restricts a method-family handler to steps using one of the
	// listed methods. Empty means the handler applies regardless of method.
	Methods []Method `toml:"methods"`

	Options []RemedyOption `toml:"options"`
}
