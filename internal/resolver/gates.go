package resolver

import (
	"fmt"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// Availability is the triage label for a method, choice option, or
// remediation option on the profiled system.
type Availability string

const (
	// Ready means all gates are satisfied; executable now.
	Ready Availability = "ready"

	// Locked means a prerequisite is missing but installable.
	Locked Availability = "locked"

	// Impossible means the option cannot be satisfied on this system.
	Impossible Availability = "impossible"
)

// Gate is the outcome of an availability check: the label plus the reason
// and remediation hint used when the option is not ready.
type Gate struct {
	Availability Availability
	Reason       string // why not ready; empty when ready
	Hint         string // how to unlock; empty when ready or impossible
}

var gateReady = Gate{Availability: Ready}

// MethodGate evaluates the availability of an install method against the
// profile. The provides set lists binaries contributed by dependency
// recipes in the same plan; a language PM provided by a dependency counts
// as satisfiable.
func MethodGate(m recipe.Method, rec *recipe.Recipe, p *sysinfo.Profile, provides map[string]bool) Gate {
	switch m {
	case recipe.MethodDefault:
		return gateReady

	case recipe.MethodApt, recipe.MethodDnf, recipe.MethodYum, recipe.MethodApk,
		recipe.MethodPacman, recipe.MethodZypper:
		fam := recipe.FamilyForMethod[m]
		if p.DistroFamily != fam {
			return Gate{
				Availability: Impossible,
				Reason:       fmt.Sprintf("%s targets the %s family but this system is %s", m, fam, describeFamily(p)),
			}
		}
		if bin := recipe.PMBinaries[m]; !p.OnPath(bin) {
			return Gate{
				Availability: Locked,
				Reason:       fmt.Sprintf("%s is not on PATH", bin),
				Hint:         fmt.Sprintf("install %s or repair the base system", bin),
			}
		}
		return gateReady

	case recipe.MethodBrew:
		if p.OnPath("brew") {
			return gateReady
		}
		if p.OS == "macos" || p.OS == "linux" {
			return Gate{
				Availability: Locked,
				Reason:       "Homebrew is not installed",
				Hint:         "install Homebrew from https://brew.sh and re-run",
			}
		}
		return Gate{Availability: Impossible, Reason: "Homebrew is not supported on this OS"}

	case recipe.MethodSnap:
		if !p.HasSystemd {
			return Gate{
				Availability: Impossible,
				Reason:       "snap requires systemd, which is not the init system here",
			}
		}
		if !p.SnapAvailable {
			return Gate{
				Availability: Locked,
				Reason:       "snapd is not installed",
				Hint:         "install the snapd package and re-run",
			}
		}
		return gateReady

	case recipe.MethodPip, recipe.MethodPipx, recipe.MethodNpm,
		recipe.MethodCargo, recipe.MethodGo:
		bin := recipe.LanguageMethodBinaries[m]
		if p.OnPath(bin) || provides[bin] {
			return gateReady
		}
		return Gate{
			Availability: Locked,
			Reason:       fmt.Sprintf("%s is not on PATH", bin),
			Hint:         fmt.Sprintf("install %s first (it has its own recipe)", bin),
		}

	case recipe.MethodSource:
		missing := missingToolchain(rec, p)
		if len(missing) == 0 {
			return gateReady
		}
		return Gate{
			Availability: Locked,
			Reason:       fmt.Sprintf("build toolchain incomplete: %v missing", missing),
			Hint:         "install the build toolchain packages for your distro",
		}

	default:
		return Gate{Availability: Impossible, Reason: fmt.Sprintf("unknown method %q", m)}
	}
}

// WritableRootGate gates strategies that install OS packages.
func WritableRootGate(p *sysinfo.Profile) Gate {
	if p.WritableRoot || p.IsRoot {
		return gateReady
	}
	return Gate{
		Availability: Impossible,
		Reason:       "root filesystem is read-only",
	}
}

// missingToolchain returns the toolchain binaries a source build needs but
// PATH lacks. Defaults to cc and make when the recipe declares none.
func missingToolchain(rec *recipe.Recipe, p *sysinfo.Profile) []string {
	required := rec.RequiresToolchain
	if len(required) == 0 {
		required = []string{"cc", "make"}
	}
	var missing []string
	for _, bin := range required {
		if !p.OnPath(bin) {
			missing = append(missing, bin)
		}
	}
	return missing
}

func describeFamily(p *sysinfo.Profile) string {
	if p.DistroFamily != "" {
		return string(p.DistroFamily)
	}
	if p.OS != "" {
		return p.OS
	}
	return "unknown"
}

// OptionGate evaluates a choice option's availability predicate against
// the fast and deep profiles, producing the disabled_reason / enable_hint
// decision-table output.
func OptionGate(opt *recipe.ChoiceOption, rec *recipe.Recipe, p *sysinfo.Profile, deep *sysinfo.DeepProfile) Gate {
	when := opt.When

	if when.GPUVendor != "" {
		if deep == nil || deep.GPUVendor != when.GPUVendor {
			g := Gate{
				Availability: Impossible,
				Reason:       fmt.Sprintf("no %s GPU detected on this system", when.GPUVendor),
			}
			if opt.EnableHint != "" {
				g.Hint = opt.EnableHint
				g.Availability = Locked
			}
			return g
		}
	}

	if when.CUDA {
		if deep == nil || !deep.HasCUDA() {
			g := Gate{
				Availability: Locked,
				Reason:       "CUDA toolkit not detected",
				Hint:         "install the CUDA toolkit matching your driver",
			}
			if opt.EnableHint != "" {
				g.Hint = opt.EnableHint
			}
			return g
		}
	}

	if when.Systemd && !p.HasSystemd {
		g := Gate{
			Availability: Impossible,
			Reason:       "requires systemd, which is not the init system here",
		}
		if opt.EnableHint != "" {
			g.Hint = opt.EnableHint
		}
		return g
	}

	if len(when.Arch) > 0 {
		match := false
		for _, a := range when.Arch {
			if a == p.Arch {
				match = true
				break
			}
		}
		if !match {
			return Gate{
				Availability: Impossible,
				Reason:       fmt.Sprintf("not available for %s", p.Arch),
			}
		}
	}

	if when.Method != "" {
		g := MethodGate(when.Method, rec, p, nil)
		if g.Availability != Ready {
			if opt.EnableHint != "" {
				g.Hint = opt.EnableHint
			}
			return g
		}
	}

	return gateReady
}
