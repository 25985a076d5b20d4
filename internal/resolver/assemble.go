package resolver

import (
	"fmt"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// assemble lays the collected closure out as a plan with deterministic step
// ids and explicit edges: repo_setup steps, one batched packages step, tool
// steps leaf-first each followed by its post-install steps, choice fragments
// spliced around the primary install, service steps, and a final verify.
func (r *Resolver) assemble(rec *recipe.Recipe, p *sysinfo.Profile, col *collector, selected []*recipe.ChoiceOption) (*plan.Plan, error) {
	primary := col.nodes[rec.Name]
	pl := &plan.Plan{
		Tool:    rec.Name,
		Label:   "Install " + rec.Name,
		Method:  primary.method,
		Risk:    rec.EffectiveRisk(),
		Restart: rec.EffectiveRestart(),
	}

	expand := commandExpander(p)

	// Repo setup, leaf-first, chained within each recipe.
	var repoIDs []string
	lastRepo := make(map[string]string) // recipe name -> its last repo step id
	for _, node := range col.order {
		var prev string
		for i, cs := range node.rec.RepoSetup[node.method] {
			id := fmt.Sprintf("repo:%s:%d", node.rec.Name, i)
			step := plan.Step{
				ID:        id,
				Type:      plan.StepRepoSetup,
				Label:     cs.Label,
				Command:   expand(cs.Command),
				NeedsSudo: cs.NeedsSudo,
				Streaming: cs.Streaming,
				Metadata:  plan.Metadata{Tool: node.rec.Name, Method: node.method},
			}
			if prev != "" {
				step.DependsOn = []string{prev}
			}
			pl.Steps = append(pl.Steps, step)
			repoIDs = append(repoIDs, id)
			prev = id
		}
		if prev != "" {
			lastRepo[node.rec.Name] = prev
		}
	}

	// One batched OS package step for the whole plan.
	var pkgStepID string
	if len(col.packages) > 0 {
		fam := p.DistroFamily
		argv, ok := recipe.InstallCommandForFamily[fam]
		if !ok {
			return nil, &UnsupportedFamilyError{Tool: rec.Name, Family: fam}
		}
		pkgStepID = "packages:" + string(fam)
		pl.Steps = append(pl.Steps, plan.Step{
			ID:        pkgStepID,
			Type:      plan.StepPackages,
			Label:     "Install OS packages: " + strings.Join(col.packages, " "),
			Command:   append(append([]string{}, argv...), col.packages...),
			NeedsSudo: recipe.PackagesNeedSudo[fam],
			DependsOn: append([]string{}, repoIDs...),
			Batchable: true,
			Streaming: true,
			Metadata:  plan.Metadata{Family: fam, Packages: col.packages},
		})
	}

	// Tool steps leaf-first, each followed by its post-install steps.
	// Dependents hang off a node's tail, so a dependency's post-install
	// completes before anything that needs the tool runs.
	tails := make(map[string]string)
	for _, node := range col.order {
		isPrimary := node.rec.Name == rec.Name

		cmd := node.rec.Install[node.method]
		env := envMap(node.inherited)
		if isPrimary {
			for _, opt := range selected {
				if len(opt.Fragment.ReplaceInstall) > 0 {
					cmd = opt.Fragment.ReplaceInstall
				}
				for k, v := range opt.Fragment.ExtraEnv {
					if env == nil {
						env = make(map[string]string)
					}
					env[k] = v
				}
			}
		}

		deps := make([]string, 0, len(node.deps)+2)
		if pkgStepID != "" {
			deps = append(deps, pkgStepID)
		}
		if repo, ok := lastRepo[node.rec.Name]; ok {
			deps = append(deps, repo)
		}
		for _, depName := range node.deps {
			deps = append(deps, tails[depName])
		}

		// Choice steps positioned before the primary install.
		if isPrimary {
			deps = append(deps, r.spliceFragments(pl, selected, recipe.FragmentBeforeInstall, rec.Name, deps, expand)...)
		}

		toolID := "tool:" + node.rec.Name
		pl.Steps = append(pl.Steps, plan.Step{
			ID:        toolID,
			Type:      plan.StepTool,
			Label:     fmt.Sprintf("Install %s via %s", node.rec.Name, node.method),
			Command:   expand(cmd),
			Env:       env,
			NeedsSudo: node.rec.NeedsSudo[string(node.method)],
			DependsOn: deps,
			Streaming: true,
			Metadata:  plan.Metadata{Tool: node.rec.Name, Method: node.method},
		})

		tail := toolID
		if isPrimary {
			if ids := r.spliceFragments(pl, selected, recipe.FragmentAfterInstall, rec.Name, []string{tail}, expand); len(ids) > 0 {
				tail = ids[len(ids)-1]
			}
		}

		for i, cs := range node.rec.PostInstall {
			id := fmt.Sprintf("post:%s:%d", node.rec.Name, i)
			pl.Steps = append(pl.Steps, plan.Step{
				ID:        id,
				Type:      plan.StepPostInstall,
				Label:     cs.Label,
				Command:   expand(cs.Command),
				Env:       envMap(node.all),
				NeedsSudo: cs.NeedsSudo,
				Streaming: cs.Streaming,
				DependsOn: []string{tail},
				Metadata:  plan.Metadata{Tool: node.rec.Name, Method: node.method},
			})
			tail = id
		}
		tails[node.rec.Name] = tail
	}

	// Service units the primary tool manages.
	verifyDeps := []string{tails[rec.Name]}
	for _, unit := range rec.Services {
		id := "service:" + unit
		pl.Steps = append(pl.Steps, plan.Step{
			ID:        id,
			Type:      plan.StepService,
			Label:     "Enable and start " + unit,
			NeedsSudo: !p.IsRoot,
			DependsOn: []string{tails[rec.Name]},
			Metadata:  plan.Metadata{Tool: rec.Name, Unit: unit, ServiceAction: "enable_start"},
		})
		verifyDeps = append(verifyDeps, id)
	}

	if len(rec.Verify) > 0 {
		pl.Steps = append(pl.Steps, plan.Step{
			ID:        "verify:" + rec.Name,
			Type:      plan.StepVerify,
			Label:     "Verify " + rec.Name,
			Command:   expand(rec.Verify),
			Env:       envMap(primary.all),
			DependsOn: verifyDeps,
			Metadata:  plan.Metadata{Tool: rec.Name, Method: primary.method},
		})
	}

	for i := range pl.Steps {
		if pl.Steps[i].NeedsSudo {
			pl.NeedsSudo = true
			break
		}
	}

	// The graph build doubles as validation of the ids and edges above.
	if _, err := plan.BuildGraph(pl); err != nil {
		return nil, err
	}
	return pl, nil
}

// spliceFragments appends the fragment steps of the selected options at the
// given position and returns their ids. Steps within one option chain; the
// first step of each option waits on deps.
func (r *Resolver) spliceFragments(pl *plan.Plan, selected []*recipe.ChoiceOption, pos recipe.FragmentPosition, tool string, deps []string, expand func(recipe.Command) []string) []string {
	var ids []string
	for _, opt := range selected {
		if opt.Fragment.Position != pos || len(opt.Fragment.Steps) == 0 {
			continue
		}
		prev := append([]string{}, deps...)
		for i, cs := range opt.Fragment.Steps {
			id := fmt.Sprintf("choice:%s:%d", opt.ID, i)
			pl.Steps = append(pl.Steps, plan.Step{
				ID:        id,
				Type:      plan.StepInstall,
				Label:     cs.Label,
				Command:   expand(cs.Command),
				NeedsSudo: cs.NeedsSudo,
				Streaming: cs.Streaming,
				DependsOn: prev,
				Metadata:  plan.Metadata{Tool: tool},
			})
			ids = append(ids, id)
			prev = []string{id}
		}
	}
	return ids
}

// commandExpander substitutes the profile placeholders recipes may embed in
// command templates. Environment references like $HOME are left for the
// executor to expand.
func commandExpander(p *sysinfo.Profile) func(recipe.Command) []string {
	rep := strings.NewReplacer(
		"{arch}", p.Arch,
		"{os}", p.OS,
		"{distro}", p.Distro,
		"{family}", string(p.DistroFamily),
	)
	return func(cmd recipe.Command) []string {
		if len(cmd) == 0 {
			return nil
		}
		out := make([]string, len(cmd))
		for i, arg := range cmd {
			out[i] = rep.Replace(arg)
		}
		return out
	}
}

// envMap flattens ordered env entries into a map; later entries win.
func envMap(entries []envEntry) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out
}
