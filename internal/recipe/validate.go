package recipe

import (
	"fmt"
	"strings"
)

// ValidationError describes one schema violation in a recipe.
type ValidationError struct {
	Recipe  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("recipe %q: %s: %s", e.Recipe, e.Field, e.Message)
}

// Validate checks a recipe against the schema invariants. Violations cause
// registry load failure; callers get every problem at once rather than the
// first. Unknown requires.binaries ids are the loader's concern (they need
// the full registry) and are reported there as warnings.
func Validate(r *Recipe) []ValidationError {
	var errs []ValidationError
	name := r.Name

	if name == "" {
		errs = append(errs, ValidationError{Recipe: "(unnamed)", Field: "name", Message: "name is required"})
		name = "(unnamed)"
	} else if strings.Contains(name, " ") {
		errs = append(errs, ValidationError{Recipe: name, Field: "name", Message: "name must not contain spaces (use kebab-case)"})
	}

	if r.NotInstallable {
		if len(r.Install) > 0 {
			errs = append(errs, ValidationError{Recipe: name, Field: "install",
				Message: "not_installable recipes must not declare install methods"})
		}
	} else if len(r.Install) == 0 {
		errs = append(errs, ValidationError{Recipe: name, Field: "install",
			Message: "at least one install method is required (or set not_installable)"})
	}

	for m := range r.Install {
		if !IsKnownMethod(m) {
			errs = append(errs, ValidationError{Recipe: name, Field: "install." + string(m),
				Message: "unknown method key"})
		}
		// needs_sudo must cover every install method. A missing entry is a
		// load failure, not a default: sudo handling is too important to
		// guess.
		if _, ok := r.NeedsSudo[string(m)]; !ok {
			errs = append(errs, ValidationError{Recipe: name, Field: "needs_sudo." + string(m),
				Message: "missing needs_sudo entry for install method"})
		}
		if len(r.Install[m]) == 0 {
			errs = append(errs, ValidationError{Recipe: name, Field: "install." + string(m),
				Message: "command must not be empty"})
		}
	}

	for _, m := range r.Prefer {
		if !r.HasMethod(m) {
			errs = append(errs, ValidationError{Recipe: name, Field: "prefer",
				Message: fmt.Sprintf("prefer entry %q is not an install method of this recipe", m)})
		}
	}

	for fam := range r.Requires.Packages {
		if !IsKnownFamily(fam) {
			errs = append(errs, ValidationError{Recipe: name, Field: "requires.packages",
				Message: fmt.Sprintf("unknown distro family %q", fam)})
		}
	}

	for m := range r.RepoSetup {
		if !r.HasMethod(m) {
			errs = append(errs, ValidationError{Recipe: name, Field: "repo_setup." + string(m),
				Message: "repo_setup declared for a method not in install"})
		}
	}

	if r.Risk != "" && r.Risk != RiskLow && r.Risk != RiskMedium && r.Risk != RiskHigh {
		errs = append(errs, ValidationError{Recipe: name, Field: "risk",
			Message: fmt.Sprintf("invalid risk %q (valid: low, medium, high)", r.Risk)})
	}

	switch r.RestartRequired {
	case "", RestartNone, RestartShell, RestartSession, RestartSystem:
	default:
		errs = append(errs, ValidationError{Recipe: name, Field: "restart_required",
			Message: fmt.Sprintf("invalid restart_required %q", r.RestartRequired)})
	}

	errs = append(errs, validateHandlers(name, "on_failure", r.OnFailure)...)
	errs = append(errs, validateChoices(name, r.Choices)...)

	return errs
}

// validateHandlers checks handler schema shared by recipe on_failure lists
// and the built-in catalogs.
func validateHandlers(recipeName, field string, handlers []Handler) []ValidationError {
	var errs []ValidationError
	for i, h := range handlers {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		if h.Pattern == "" {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".pattern",
				Message: "pattern is required"})
		}
		if h.FailureID == "" {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".failure_id",
				Message: "failure_id is required"})
		}
		if len(h.Options) == 0 {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".options",
				Message: "at least one remediation option is required"})
		}
		for j, opt := range h.Options {
			optField := fmt.Sprintf("%s.options[%d]", prefix, j)
			if !IsKnownStrategy(opt.Strategy) {
				errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".strategy",
					Message: fmt.Sprintf("unknown strategy %q", opt.Strategy)})
				continue
			}
			switch opt.Strategy {
			case StrategyInstallDep:
				if opt.Dep == "" {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".dep",
						Message: "install_dep requires 'dep'"})
				}
			case StrategySwitchMethod:
				if opt.Method == "" {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".method",
						Message: "switch_method requires 'method'"})
				}
			case StrategyRetryModifier:
				if len(opt.ExtraArgs) == 0 && len(opt.ExtraEnv) == 0 {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField,
						Message: "retry_with_modifier requires extra_args or extra_env"})
				}
			case StrategyInstallPackages:
				if len(opt.Packages) == 0 {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".packages",
						Message: "install_packages requires 'packages'"})
				}
			case StrategyEnvFix, StrategyCleanupRetry:
				if len(opt.Commands) == 0 {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".commands",
						Message: string(opt.Strategy) + " requires 'commands'"})
				}
			case StrategyManual:
				if opt.Instructions == "" {
					errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".instructions",
						Message: "manual requires 'instructions'"})
				}
			}
		}
	}
	return errs
}

func validateChoices(recipeName string, choices []Choice) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, c := range choices {
		prefix := fmt.Sprintf("choices[%d]", i)
		if c.ID == "" {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".id",
				Message: "id is required"})
		} else if seen[c.ID] {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".id",
				Message: fmt.Sprintf("duplicate choice id %q", c.ID)})
		}
		seen[c.ID] = true

		if len(c.Options) == 0 {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix + ".options",
				Message: "at least one option is required"})
		}

		recommended := 0
		optSeen := make(map[string]bool)
		for j, opt := range c.Options {
			optField := fmt.Sprintf("%s.options[%d]", prefix, j)
			if opt.ID == "" {
				errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".id",
					Message: "id is required"})
			} else if optSeen[opt.ID] {
				errs = append(errs, ValidationError{Recipe: recipeName, Field: optField + ".id",
					Message: fmt.Sprintf("duplicate option id %q", opt.ID)})
			}
			optSeen[opt.ID] = true
			if opt.Recommended {
				recommended++
			}
		}
		if recommended > 1 {
			errs = append(errs, ValidationError{Recipe: recipeName, Field: prefix,
				Message: "at most one option may be recommended"})
		}
	}
	return errs
}
