// Package resolver turns a recipe plus a system profile into an ordered,
// executable plan: it selects the install method, collects transitive
// dependencies, batches OS packages per family, propagates post_env
// fragments, and splices user choices.
//
// Resolution is deterministic: given identical (tool, profile, answers,
// registry) inputs and an identical PATH probe, it produces byte-identical
// plans. No clock, no randomness, no network.
package resolver

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// Resolver assembles plans from the recipe registry.
type Resolver struct {
	reg    *recipe.Registry
	logger log.Logger

	// onPath reports whether a binary is already on PATH; dependency
	// edges to binaries that are present are skipped. Injected for tests.
	onPath func(string) bool

	// alreadyInstalled, when set, short-circuits resolution for tools
	// whose verify command already succeeds.
	alreadyInstalled func(*recipe.Recipe) bool

	// versionOf, when set, reports the installed version of a binary so
	// requires.binaries constraints like "jq>=1.6" can be checked. When
	// nil, a binary on PATH is trusted to satisfy its constraint.
	versionOf func(string) string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithPathProbe replaces the binary-on-PATH probe.
func WithPathProbe(probe func(string) bool) Option {
	return func(r *Resolver) { r.onPath = probe }
}

// WithInstalledCheck enables the verify-first short-circuit.
func WithInstalledCheck(check func(*recipe.Recipe) bool) Option {
	return func(r *Resolver) { r.alreadyInstalled = check }
}

// WithVersionProbe enables version-constraint checks on requires.binaries
// entries for binaries already on PATH.
func WithVersionProbe(probe func(string) string) Option {
	return func(r *Resolver) { r.versionOf = probe }
}

// New creates a Resolver over the given registry.
func New(reg *recipe.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		reg:    reg,
		logger: log.Default(),
		onPath: func(bin string) bool {
			_, err := exec.LookPath(bin)
			return err == nil
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a plan with no user choices. Recipes with choices are
// resolved through their recommended or sole-available options; if any
// choice cannot be auto-answered, a ChoiceUnresolvedError is returned.
func (r *Resolver) Resolve(toolID string, p *sysinfo.Profile, deep *sysinfo.DeepProfile) (*plan.Plan, error) {
	return r.ResolveWithChoices(toolID, p, deep, nil)
}

// ResolveWithChoices produces a plan with the given choice answers
// (choice id -> option id) spliced in. Every choice must be answered with
// an available option; otherwise a ChoiceUnresolvedError is returned.
func (r *Resolver) ResolveWithChoices(toolID string, p *sysinfo.Profile, deep *sysinfo.DeepProfile, answers map[string]string) (*plan.Plan, error) {
	rec, err := r.reg.Get(toolID)
	if err != nil {
		return nil, err
	}

	if rec.NotInstallable {
		return notificationPlan(rec, fmt.Sprintf("%s is a configuration preset and has nothing to install", rec.Name)), nil
	}

	if r.alreadyInstalled != nil && r.alreadyInstalled(rec) {
		pl := notificationPlan(rec, fmt.Sprintf("%s is already installed", rec.Name))
		pl.AlreadyInstalled = true
		return pl, nil
	}

	selected, err := r.selectOptions(rec, p, deep, answers)
	if err != nil {
		return nil, err
	}

	forced := recipe.Method("")
	for _, opt := range selected {
		if opt.Fragment.ForceMethod != "" {
			forced = opt.Fragment.ForceMethod
		}
	}

	col := newCollector(r, p)
	if err := col.collect(rec, forced); err != nil {
		return nil, err
	}

	return r.assemble(rec, p, col, selected)
}

// ResolveForced produces a plan with the install method pinned, bypassing
// the selection precedence. Used when a failure handler switches methods.
// Choices are auto-answered as in Resolve.
func (r *Resolver) ResolveForced(toolID string, forced recipe.Method, p *sysinfo.Profile, deep *sysinfo.DeepProfile) (*plan.Plan, error) {
	rec, err := r.reg.Get(toolID)
	if err != nil {
		return nil, err
	}
	if rec.NotInstallable {
		return notificationPlan(rec, fmt.Sprintf("%s is a configuration preset and has nothing to install", rec.Name)), nil
	}
	selected, err := r.selectOptions(rec, p, deep, nil)
	if err != nil {
		return nil, err
	}
	col := newCollector(r, p)
	if err := col.collect(rec, forced); err != nil {
		return nil, err
	}
	return r.assemble(rec, p, col, selected)
}

// selectOptions resolves choice answers to concrete options. With nil
// answers, each choice is auto-answered by its recommended available
// option, or its sole available option.
func (r *Resolver) selectOptions(rec *recipe.Recipe, p *sysinfo.Profile, deep *sysinfo.DeepProfile, answers map[string]string) ([]*recipe.ChoiceOption, error) {
	var selected []*recipe.ChoiceOption
	for i := range rec.Choices {
		c := &rec.Choices[i]

		if id, ok := answers[c.ID]; ok {
			opt := c.Option(id)
			if opt == nil {
				return nil, &ChoiceUnresolvedError{Tool: rec.Name, ChoiceID: c.ID, OptionID: id, Reason: "does not exist"}
			}
			if g := OptionGate(opt, rec, p, deep); g.Availability != Ready {
				return nil, &ChoiceUnresolvedError{Tool: rec.Name, ChoiceID: c.ID, OptionID: id,
					Reason: "is not available: " + g.Reason}
			}
			selected = append(selected, opt)
			continue
		}

		if answers != nil {
			return nil, &ChoiceUnresolvedError{Tool: rec.Name, ChoiceID: c.ID}
		}

		// Auto-answer: recommended available option, else sole available.
		var avail []*recipe.ChoiceOption
		var recommended *recipe.ChoiceOption
		for j := range c.Options {
			opt := &c.Options[j]
			if OptionGate(opt, rec, p, deep).Availability == Ready {
				avail = append(avail, opt)
				if opt.Recommended {
					recommended = opt
				}
			}
		}
		switch {
		case recommended != nil:
			selected = append(selected, recommended)
		case len(avail) == 1:
			selected = append(selected, avail[0])
		default:
			return nil, &ChoiceUnresolvedError{Tool: rec.Name, ChoiceID: c.ID}
		}
	}
	return selected, nil
}

// selectMethod scores install methods per the fixed precedence: prefer
// hints, primary PM, snap, _default, then any method whose implementor is
// on PATH. Ties break by declared method order.
func (r *Resolver) selectMethod(rec *recipe.Recipe, p *sysinfo.Profile, forced recipe.Method, provides map[string]bool) (recipe.Method, error) {
	attempted := make(map[recipe.Method]string)

	usable := func(m recipe.Method) bool {
		g := MethodGate(m, rec, p, provides)
		if g.Availability == Ready {
			return true
		}
		attempted[m] = g.Reason
		return false
	}

	if forced != "" {
		if !rec.HasMethod(forced) {
			return "", &NoSelectableMethodError{Tool: rec.Name,
				Attempted: map[recipe.Method]string{forced: "not declared by recipe"}}
		}
		if usable(forced) {
			return forced, nil
		}
		return "", &NoSelectableMethodError{Tool: rec.Name, Attempted: attempted}
	}

	// 1. Per-recipe prefer hints in declared order.
	for _, m := range rec.Prefer {
		if rec.HasMethod(m) && usable(m) {
			return m, nil
		}
	}

	// 2. The system's primary package manager.
	if p.PrimaryPM != "" && rec.HasMethod(p.PrimaryPM) && usable(p.PrimaryPM) {
		return p.PrimaryPM, nil
	}

	// 3. Snap when the system supports it.
	if rec.HasMethod(recipe.MethodSnap) && usable(recipe.MethodSnap) {
		return recipe.MethodSnap, nil
	}

	// 4. The recipe's _default script.
	if rec.HasMethod(recipe.MethodDefault) {
		return recipe.MethodDefault, nil
	}

	// 5. Any remaining method whose implementor is available.
	for _, m := range rec.Methods() {
		if _, tried := attempted[m]; tried {
			continue
		}
		if usable(m) {
			return m, nil
		}
	}

	return "", &NoSelectableMethodError{Tool: rec.Name, Attempted: attempted}
}

// notificationPlan builds a single-step plan carrying a message.
func notificationPlan(rec *recipe.Recipe, msg string) *plan.Plan {
	return &plan.Plan{
		Tool:  rec.Name,
		Label: "Install " + rec.Name,
		Steps: []plan.Step{{
			ID:       "notify:" + rec.Name,
			Type:     plan.StepNotification,
			Label:    msg,
			Metadata: plan.Metadata{Tool: rec.Name, Message: msg},
		}},
	}
}

// parsePostEnv parses a post_env shell fragment into ordered KEY=VALUE
// pairs. Lines look like `export PATH="$HOME/.cargo/bin:$PATH"`; quotes
// are stripped, variable references are kept for expansion at execution.
func parsePostEnv(fragment string) []envEntry {
	var entries []envEntry
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "export "))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"'`)
		entries = append(entries, envEntry{Key: strings.TrimSpace(key), Value: value})
	}
	return entries
}

type envEntry struct {
	Key   string
	Value string
}
