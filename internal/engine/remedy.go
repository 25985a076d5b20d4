package engine

import (
	"context"
	"fmt"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/failure"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
)

// ManualRemedyError carries instructions the user must act on before the
// plan can be resumed.
type ManualRemedyError struct {
	Label        string
	Instructions string
}

func (e *ManualRemedyError) Error() string {
	return fmt.Sprintf("manual action required: %s", e.Instructions)
}

// ApplyRemedy executes one remediation option from a failure diagnosis and
// retries the plan. The option must be available; locked or impossible
// options are rejected.
func (e *Engine) ApplyRemedy(ctx context.Context, res *Result, optionID string) (*Result, error) {
	if res.FirstFailure == nil {
		return nil, fmt.Errorf("plan %s has no diagnosed failure", res.PlanID)
	}
	var opt *failure.RankedOption
	for i := range res.FirstFailure.Options {
		if res.FirstFailure.Options[i].ID == optionID {
			opt = &res.FirstFailure.Options[i]
			break
		}
	}
	if opt == nil {
		return nil, fmt.Errorf("failure %s has no option %q", res.FirstFailure.FailureID, optionID)
	}
	if opt.Availability != resolver.Ready {
		return nil, fmt.Errorf("option %q is %s: %s", optionID, opt.Availability, opt.Reason)
	}

	e.logger.Info("applying remediation", "plan", res.PlanID, "failure", res.FirstFailure.FailureID,
		"option", opt.ID, "strategy", string(opt.Strategy))

	switch opt.Strategy {
	case recipe.StrategyManual:
		return nil, &ManualRemedyError{Label: opt.Label, Instructions: opt.Instructions}

	case recipe.StrategySwitchMethod:
		return e.switchMethod(ctx, res, opt.Method)

	case recipe.StrategyInstallDep:
		if depRes, err := e.InstallTool(ctx, opt.Dep, nil); err != nil {
			return nil, fmt.Errorf("installing dependency %q: %w", opt.Dep, err)
		} else if !depRes.Ok() {
			return depRes, fmt.Errorf("dependency %q install failed", opt.Dep)
		}
		return e.ResumePlan(ctx, res.PlanID)

	case recipe.StrategyRetryModifier:
		if err := e.modifyFailedStep(res, opt.ExtraArgs, opt.ExtraEnv); err != nil {
			return nil, err
		}
		return e.ResumePlan(ctx, res.PlanID)

	case recipe.StrategyInstallPackages:
		if err := e.installPackages(ctx, opt.Packages[e.profile.DistroFamily]); err != nil {
			return nil, err
		}
		return e.ResumePlan(ctx, res.PlanID)

	case recipe.StrategyEnvFix, recipe.StrategyCleanupRetry:
		if err := e.runFixCommands(ctx, opt.Commands); err != nil {
			return nil, err
		}
		return e.ResumePlan(ctx, res.PlanID)

	default:
		return nil, fmt.Errorf("unknown remediation strategy %q", opt.Strategy)
	}
}

// switchMethod re-resolves the tool with the method pinned and executes the
// fresh plan, retiring the failed record.
func (e *Engine) switchMethod(ctx context.Context, res *Result, m recipe.Method) (*Result, error) {
	pl, err := e.resolver.ResolveForced(res.Tool, m, e.profile, e.deep)
	if err != nil {
		return nil, fmt.Errorf("re-resolving %q via %s: %w", res.Tool, m, err)
	}
	out, err := e.ExecutePlan(ctx, pl)
	if err != nil {
		return nil, err
	}
	if out.Ok() {
		if derr := e.store.Delete(res.PlanID); derr != nil {
			e.logger.Warn("could not remove superseded plan record", "plan", res.PlanID, "error", derr.Error())
		}
	}
	return out, nil
}

// modifyFailedStep rewrites the failed step in the persisted plan with the
// option's extra arguments and environment, so the resume retries the
// modified command.
func (e *Engine) modifyFailedStep(res *Result, extraArgs []string, extraEnv map[string]string) error {
	if res.FailedStep == nil {
		return fmt.Errorf("plan %s has no failed step to modify", res.PlanID)
	}
	ps, err := e.store.Load(res.PlanID)
	if err != nil {
		return err
	}
	step := ps.Plan.StepByID(res.FailedStep.ID)
	if step == nil {
		return fmt.Errorf("plan %s has no step %q", res.PlanID, res.FailedStep.ID)
	}
	step.Command = append(append([]string{}, step.Command...), extraArgs...)
	if len(extraEnv) > 0 && step.Env == nil {
		step.Env = map[string]string{}
	}
	for k, v := range extraEnv {
		step.Env[k] = v
	}
	delete(ps.Results, step.ID)
	return e.store.Save(ps)
}

// installPackages runs a one-off batched package install for the current
// family outside any plan.
func (e *Engine) installPackages(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages mapped for the %s family", e.profile.DistroFamily)
	}
	argv, ok := recipe.InstallCommandForFamily[e.profile.DistroFamily]
	if !ok {
		return fmt.Errorf("no package install command for the %s family", e.profile.DistroFamily)
	}
	step := &plan.Step{
		ID:        "remedy:packages",
		Type:      plan.StepPackages,
		Label:     "Install prerequisite packages",
		Command:   append(append([]string{}, argv...), pkgs...),
		NeedsSudo: recipe.PackagesNeedSudo[e.profile.DistroFamily] && !e.profile.IsRoot,
		Streaming: true,
		Metadata:  plan.Metadata{Family: e.profile.DistroFamily, Packages: pkgs},
	}
	if sr := e.exec.Run(ctx, step); !sr.Ok() {
		return fmt.Errorf("package install failed: %s", sr.Error)
	}
	return nil
}

// runFixCommands executes an option's repair commands in order.
func (e *Engine) runFixCommands(ctx context.Context, cmds []recipe.Command) error {
	for i, cmd := range cmds {
		step := &plan.Step{
			ID:        fmt.Sprintf("remedy:fix:%d", i),
			Type:      plan.StepInstall,
			Label:     "Repair environment",
			Command:   []string(cmd),
			NeedsSudo: !e.profile.IsRoot,
			Streaming: true,
		}
		if sr := e.exec.Run(ctx, step); !sr.Ok() {
			return fmt.Errorf("repair command %q failed: %s", cmd.String(), sr.Error)
		}
	}
	return nil
}
