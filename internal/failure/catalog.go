// Package failure diagnoses failed steps: it matches output against
// layered handler catalogs (tool-specific, method-family, infrastructure)
// and ranks the remediation options by availability on the profiled system.
package failure

import "github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"

// Layer identifies which catalog produced a diagnosis. Matching runs
// most-specific first: tool handlers, then method family, then infra.
type Layer string

const (
	LayerTool   Layer = "tool"
	LayerFamily Layer = "method_family"
	LayerInfra  Layer = "infra"
)

// InfraHandlers match environment problems that can hit any step
// regardless of tool or method.
var InfraHandlers = []recipe.Handler{
	{
		Pattern:     `network is unreachable|could not resolve host|temporary failure in name resolution|connection refused`,
		FailureID:   "infra_network_unreachable",
		Category:    recipe.CategoryNetwork,
		Label:       "Network is unreachable",
		Description: "The step needed network access and could not reach the remote host.",
		Options: []recipe.RemedyOption{
			{
				ID: "retry", Label: "Retry once connectivity is restored",
				Strategy: recipe.StrategyRetryModifier, Recommended: true,
			},
			{
				ID: "manual_network", Label: "Check connectivity and proxy settings",
				Strategy:     recipe.StrategyManual,
				Instructions: "Verify DNS and outbound connectivity (e.g. `curl -I https://example.com`), then resume the plan.",
			},
		},
	},
	{
		Pattern:     `certificate verify failed|x509: certificate|SSL certificate problem`,
		FailureID:   "infra_tls_certificate",
		Category:    recipe.CategoryNetwork,
		Label:       "TLS certificate validation failed",
		Description: "The remote certificate could not be verified, often a missing CA bundle or an intercepting proxy.",
		Options: []recipe.RemedyOption{
			{
				ID: "install_ca", Label: "Install the CA certificates package",
				Strategy: recipe.StrategyInstallPackages, Recommended: true,
				Packages: map[recipe.Family][]string{
					recipe.FamilyDebian: {"ca-certificates"},
					recipe.FamilyRHEL:   {"ca-certificates"},
					recipe.FamilyAlpine: {"ca-certificates"},
					recipe.FamilyArch:   {"ca-certificates"},
					recipe.FamilySuse:   {"ca-certificates"},
				},
			},
			{
				ID: "manual_proxy", Label: "Check for an intercepting proxy",
				Strategy:     recipe.StrategyManual,
				Instructions: "If your network uses a TLS-intercepting proxy, install its root CA into the system trust store and retry.",
			},
		},
	},
	{
		Pattern:     `no space left on device`,
		FailureID:   "infra_disk_full",
		Category:    recipe.CategoryEnvironment,
		Label:       "Disk is full",
		Description: "The filesystem ran out of space mid-step.",
		Options: []recipe.RemedyOption{
			{
				ID: "clean_pm_cache", Label: "Clear the package manager cache and retry",
				Strategy: recipe.StrategyCleanupRetry, Recommended: true,
				Commands: []recipe.Command{{"sh", "-c", "apt-get clean 2>/dev/null || dnf clean all 2>/dev/null || true"}},
			},
			{
				ID: "manual_space", Label: "Free disk space",
				Strategy:     recipe.StrategyManual,
				Instructions: "Free space on the affected filesystem (check `df -h`), then resume the plan.",
			},
		},
	},
	{
		Pattern:     `read-only file system`,
		FailureID:   "infra_readonly_fs",
		Category:    recipe.CategoryEnvironment,
		Label:       "Filesystem is read-only",
		Description: "The target filesystem is mounted read-only; system-wide installs cannot proceed.",
		Options: []recipe.RemedyOption{
			{
				ID: "switch_user_install", Label: "Use a user-level install method",
				Strategy: recipe.StrategySwitchMethod, Method: recipe.MethodPipx, Recommended: true,
			},
			{
				ID: "manual_remount", Label: "Remount the filesystem writable",
				Strategy:     recipe.StrategyManual,
				Instructions: "On immutable distros use the overlay mechanism (e.g. `rpm-ostree`), or remount with `mount -o remount,rw /`.",
			},
		},
	},
	{
		Pattern:     `permission denied|EACCES`,
		FailureID:   "infra_permission_denied",
		Category:    recipe.CategoryPermissions,
		Label:       "Permission denied",
		Description: "The step lacked the privileges to write its target.",
		Options: []recipe.RemedyOption{
			{
				ID: "manual_perms", Label: "Re-run the step with sudo",
				Strategy: recipe.StrategyManual, Recommended: true,
				Instructions: "The failing path is owned by another user. Fix its ownership or resume the plan with sudo available.",
			},
		},
	},
	{
		Pattern:     `sudo: .*(incorrect password|authentication failure)|sudo: no password was provided`,
		FailureID:   "infra_sudo_auth",
		Category:    recipe.CategoryPermissions,
		Label:       "sudo authentication failed",
		Description: "The sudo password was wrong or unavailable.",
		Options: []recipe.RemedyOption{
			{
				ID: "manual_sudo", Label: "Retry with the correct password",
				Strategy: recipe.StrategyManual, Recommended: true,
				Instructions: "Resume the plan and enter the sudo password when prompted.",
			},
		},
	},
	{
		Pattern:     `connection timed out|timed out after`,
		FailureID:   "infra_timeout",
		Category:    recipe.CategoryNetwork,
		Label:       "Operation timed out",
		Description: "The step exceeded its time budget, usually a slow mirror or a hung process.",
		Options: []recipe.RemedyOption{
			{
				ID: "retry_longer", Label: "Retry with a longer timeout",
				Strategy: recipe.StrategyRetryModifier, Recommended: true,
				ExtraEnv: map[string]string{"PROVISION_STEP_TIMEOUT": "30m"},
			},
		},
	},
	{
		Pattern:     `cannot allocate memory|out of memory|oom-kill`,
		FailureID:   "infra_oom",
		Category:    recipe.CategoryEnvironment,
		Label:       "Out of memory",
		Description: "The step was killed or failed to allocate memory.",
		Options: []recipe.RemedyOption{
			{
				ID: "manual_memory", Label: "Free memory or add swap",
				Strategy: recipe.StrategyManual, Recommended: true,
				Instructions: "Close memory-heavy processes or add swap, then resume. Source builds can also be retried with fewer parallel jobs.",
			},
		},
	},
	{
		Pattern:     `407 Proxy Authentication Required|proxyconnect`,
		FailureID:   "infra_proxy_auth",
		Category:    recipe.CategoryNetwork,
		Label:       "Proxy authentication required",
		Description: "An HTTP proxy rejected the connection.",
		Options: []recipe.RemedyOption{
			{
				ID: "manual_proxy_env", Label: "Configure proxy credentials",
				Strategy: recipe.StrategyManual, Recommended: true,
				Instructions: "Export HTTP_PROXY/HTTPS_PROXY with credentials and resume the plan.",
			},
		},
	},
}

// FamilyHandlers match failure signatures specific to one ecosystem's
// package manager. Keys are handler groups; the Methods field restricts
// each handler to steps that used one of the listed methods.
var FamilyHandlers = []recipe.Handler{
	{
		Pattern:     `externally-managed-environment`,
		FailureID:   "pip_externally_managed",
		Category:    recipe.CategoryEnvironment,
		Label:       "Python environment is externally managed",
		Description: "This distro blocks `pip install` into the system interpreter (PEP 668).",
		Methods:     []recipe.Method{recipe.MethodPip},
		ExampleStderr: "error: externally-managed-environment\n" +
			"× This environment is externally managed",
		Options: []recipe.RemedyOption{
			{
				ID: "switch_pipx", Label: "Install with pipx instead",
				Strategy: recipe.StrategySwitchMethod, Method: recipe.MethodPipx, Recommended: true,
			},
			{
				ID: "break_system_packages", Label: "Override with --break-system-packages",
				Strategy:  recipe.StrategyRetryModifier,
				ExtraArgs: []string{"--break-system-packages"},
			},
		},
	},
	{
		Pattern:     `No matching distribution found for`,
		FailureID:   "pip_no_distribution",
		Category:    recipe.CategoryDependency,
		Label:       "No matching package distribution",
		Description: "PyPI has no wheel or sdist for this Python version and platform.",
		Methods:     []recipe.Method{recipe.MethodPip, recipe.MethodPipx},
		Options: []recipe.RemedyOption{
			{
				ID: "manual_python", Label: "Check Python version compatibility",
				Strategy: recipe.StrategyManual, Recommended: true,
				Instructions: "The package may need a newer Python. Check the project's supported versions and upgrade python3 first.",
			},
		},
	},
	{
		Pattern:     `requires rustc ([0-9.]+) or newer|feature .* is required`,
		FailureID:   "cargo_rustc_too_old",
		Category:    recipe.CategoryCompiler,
		Label:       "Rust toolchain is too old",
		Description: "The crate needs a newer rustc than the one on PATH.",
		Methods:     []recipe.Method{recipe.MethodCargo},
		Options: []recipe.RemedyOption{
			{
				ID: "rustup_update", Label: "Update the Rust toolchain",
				Strategy: recipe.StrategyEnvFix, Recommended: true,
				Commands: []recipe.Command{{"rustup", "update", "stable"}},
			},
			{
				ID: "install_rustup", Label: "Install rustup-managed Rust",
				Strategy: recipe.StrategyInstallDep, Dep: "rustup",
			},
		},
	},
	{
		Pattern:     `linker .cc. not found|cannot find -l|C compiler cannot create executables`,
		FailureID:   "cargo_missing_toolchain",
		Category:    recipe.CategoryCompiler,
		Label:       "C toolchain is missing",
		Description: "A native build dependency needs a C compiler and linker.",
		Methods:     []recipe.Method{recipe.MethodCargo, recipe.MethodSource, recipe.MethodPip},
		Options: []recipe.RemedyOption{
			{
				ID: "install_build_tools", Label: "Install the build toolchain",
				Strategy: recipe.StrategyInstallPackages, Recommended: true,
				Packages: map[recipe.Family][]string{
					recipe.FamilyDebian: {"build-essential"},
					recipe.FamilyRHEL:   {"gcc", "gcc-c++", "make"},
					recipe.FamilyAlpine: {"build-base"},
					recipe.FamilyArch:   {"base-devel"},
					recipe.FamilySuse:   {"gcc", "make"},
				},
			},
		},
	},
	{
		Pattern:     `Could not get lock /var/lib/dpkg|dpkg frontend lock|Could not get lock /var/lib/apt`,
		FailureID:   "apt_lock_held",
		Category:    recipe.CategoryEnvironment,
		Label:       "Another package operation is running",
		Description: "dpkg's lock is held, usually by unattended-upgrades.",
		Methods:     []recipe.Method{recipe.MethodApt},
		Options: []recipe.RemedyOption{
			{
				ID: "retry_lock", Label: "Wait and retry",
				Strategy: recipe.StrategyRetryModifier, Recommended: true,
			},
		},
	},
	{
		Pattern:     `dpkg was interrupted`,
		FailureID:   "apt_dpkg_interrupted",
		Category:    recipe.CategoryEnvironment,
		Label:       "dpkg was interrupted",
		Description: "A previous package operation died mid-flight and left dpkg inconsistent.",
		Methods:     []recipe.Method{recipe.MethodApt},
		Options: []recipe.RemedyOption{
			{
				ID: "dpkg_configure", Label: "Repair the dpkg state and retry",
				Strategy: recipe.StrategyEnvFix, Recommended: true,
				Commands: []recipe.Command{{"dpkg", "--configure", "-a"}},
			},
		},
	},
	{
		Pattern:     `Unable to locate package`,
		FailureID:   "apt_unknown_package",
		Category:    recipe.CategoryDependency,
		Label:       "Package index is stale or repo missing",
		Description: "apt does not know the package; the index is stale or the repo was never added.",
		Methods:     []recipe.Method{recipe.MethodApt},
		Options: []recipe.RemedyOption{
			{
				ID: "apt_update", Label: "Refresh the package index and retry",
				Strategy: recipe.StrategyEnvFix, Recommended: true,
				Commands: []recipe.Command{{"apt-get", "update"}},
			},
		},
	},
	{
		Pattern:     `EACCES.*npm|npm ERR! code EACCES`,
		FailureID:   "npm_global_eacces",
		Category:    recipe.CategoryPermissions,
		Label:       "npm cannot write the global prefix",
		Description: "The npm global directory is root-owned.",
		Methods:     []recipe.Method{recipe.MethodNpm},
		Options: []recipe.RemedyOption{
			{
				ID: "npm_user_prefix", Label: "Install into a user-level prefix",
				Strategy: recipe.StrategyRetryModifier, Recommended: true,
				ExtraEnv: map[string]string{"NPM_CONFIG_PREFIX": "$HOME/.npm-global"},
			},
		},
	},
}
