package resolver

import (
	"fmt"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// AnnotatedOption is a choice option with its availability verdict on the
// profiled system. Unavailable options are still listed so the user sees the
// full menu with reasons, never a silently shrunken one.
type AnnotatedOption struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Recommended    bool   `json:"recommended,omitempty"`
	Available      bool   `json:"available"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	EnableHint     string `json:"enable_hint,omitempty"`
}

// AnnotatedChoice is a recipe choice annotated for presentation.
type AnnotatedChoice struct {
	ID                    string            `json:"id"`
	Label                 string            `json:"label"`
	AutoSelectIfSingleton bool              `json:"auto_select_if_singleton,omitempty"`
	Options               []AnnotatedOption `json:"options"`
}

// SoleAvailable returns the id of the only available option, or "" when
// zero or several options are available.
func (c *AnnotatedChoice) SoleAvailable() string {
	sole := ""
	for _, opt := range c.Options {
		if !opt.Available {
			continue
		}
		if sole != "" {
			return ""
		}
		sole = opt.ID
	}
	return sole
}

// ResolveChoices evaluates every choice of a recipe against the profile.
// The result always contains every declared option.
func (r *Resolver) ResolveChoices(toolID string, p *sysinfo.Profile, deep *sysinfo.DeepProfile) ([]AnnotatedChoice, error) {
	rec, err := r.reg.Get(toolID)
	if err != nil {
		return nil, err
	}

	out := make([]AnnotatedChoice, 0, len(rec.Choices))
	for i := range rec.Choices {
		c := &rec.Choices[i]
		ac := AnnotatedChoice{
			ID:                    c.ID,
			Label:                 c.Label,
			AutoSelectIfSingleton: c.AutoSelectIfSingleton,
			Options:               make([]AnnotatedOption, 0, len(c.Options)),
		}
		for j := range c.Options {
			opt := &c.Options[j]
			g := OptionGate(opt, rec, p, deep)
			ac.Options = append(ac.Options, AnnotatedOption{
				ID:             opt.ID,
				Label:          opt.Label,
				Recommended:    opt.Recommended,
				Available:      g.Availability == Ready,
				DisabledReason: g.Reason,
				EnableHint:     g.Hint,
			})
		}
		out = append(out, ac)
	}
	return out, nil
}

// ResolveUpdate builds an in-place upgrade plan. With an empty method the
// normal selection precedence applies; callers that know the installed
// method (from plan history) pass it explicitly.
func (r *Resolver) ResolveUpdate(toolID string, m recipe.Method, p *sysinfo.Profile) (*plan.Plan, error) {
	rec, err := r.reg.Get(toolID)
	if err != nil {
		return nil, err
	}
	if rec.NotInstallable {
		return notificationPlan(rec, fmt.Sprintf("%s is a configuration preset and has nothing to update", rec.Name)), nil
	}
	if m == "" {
		if m, err = r.selectMethod(rec, p, "", nil); err != nil {
			return nil, err
		}
	}

	cmd, ok := rec.Update[m]
	if !ok {
		// No dedicated update command; re-running install upgrades for
		// every package-manager backed method.
		if cmd, ok = rec.Install[m]; !ok {
			return nil, &NoSelectableMethodError{Tool: rec.Name,
				Attempted: map[recipe.Method]string{m: "no update or install command declared"}}
		}
	}

	expand := commandExpander(p)
	pl := &plan.Plan{
		Tool:   rec.Name,
		Label:  "Update " + rec.Name,
		Method: m,
		Risk:   rec.EffectiveRisk(),
		Steps: []plan.Step{{
			ID:        "tool:" + rec.Name,
			Type:      plan.StepTool,
			Label:     fmt.Sprintf("Update %s via %s", rec.Name, m),
			Command:   expand(cmd),
			NeedsSudo: rec.NeedsSudo[string(m)],
			Streaming: true,
			Metadata:  plan.Metadata{Tool: rec.Name, Method: m},
		}},
	}
	if len(rec.Verify) > 0 {
		pl.Steps = append(pl.Steps, plan.Step{
			ID:        "verify:" + rec.Name,
			Type:      plan.StepVerify,
			Label:     "Verify " + rec.Name,
			Command:   expand(rec.Verify),
			Env:       envMap(parsePostEnv(rec.PostEnv)),
			DependsOn: []string{"tool:" + rec.Name},
			Metadata:  plan.Metadata{Tool: rec.Name, Method: m},
		})
	}
	pl.NeedsSudo = pl.Steps[0].NeedsSudo
	return pl, nil
}

// ResolveRollback builds an uninstall plan for a tool installed via the
// given method. Recipes without an explicit rollback command fall back to
// the per-method undo catalog.
func (r *Resolver) ResolveRollback(toolID string, m recipe.Method, p *sysinfo.Profile) (*plan.Plan, error) {
	rec, err := r.reg.Get(toolID)
	if err != nil {
		return nil, err
	}
	if rec.NotInstallable {
		return notificationPlan(rec, fmt.Sprintf("%s is a configuration preset and has nothing to remove", rec.Name)), nil
	}
	if m == "" {
		return nil, fmt.Errorf("rollback of %q requires the install method it was installed with", rec.Name)
	}

	cmd, ok := rec.Rollback[m]
	if !ok {
		tmpl, found := recipe.UndoCatalog[m]
		if !found {
			return nil, fmt.Errorf("no rollback command for %q via %s and no catalog entry", rec.Name, m)
		}
		cmd = make(recipe.Command, len(tmpl))
		for i, arg := range tmpl {
			cmd[i] = strings.ReplaceAll(arg, "{tool}", rec.Name)
		}
	}

	pl := &plan.Plan{
		Tool:   rec.Name,
		Label:  "Remove " + rec.Name,
		Method: m,
		Risk:   recipe.RiskMedium,
		Steps: []plan.Step{{
			ID:        "tool:" + rec.Name,
			Type:      plan.StepTool,
			Label:     fmt.Sprintf("Remove %s via %s", rec.Name, m),
			Command:   commandExpander(p)(cmd),
			NeedsSudo: rec.NeedsSudo[string(m)],
			Streaming: true,
			Metadata:  plan.Metadata{Tool: rec.Name, Method: m},
		}},
	}
	pl.NeedsSudo = pl.Steps[0].NeedsSudo
	return pl, nil
}
