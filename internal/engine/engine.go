// Package engine orchestrates installs end to end: resolve a plan, execute
// its DAG under the worker budget, persist progress after every step, and
// diagnose failures through the handler catalogs.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/executor"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/failure"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/state"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// Engine wires the resolver, executor, state store, and failure analyzer.
type Engine struct {
	reg      *recipe.Registry
	resolver *resolver.Resolver
	exec     *executor.Executor
	store    *state.Store
	analyzer *failure.Analyzer
	logger   log.Logger

	profile *sysinfo.Profile
	deep    *sysinfo.DeepProfile

	workers     int
	planTimeout time.Duration
	newID       func() string
	pid         int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithExecutor replaces the step executor.
func WithExecutor(x *executor.Executor) EngineOption {
	return func(e *Engine) { e.exec = x }
}

// WithWorkers overrides the parallel worker budget.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDeepProfile supplies the lazily probed capabilities.
func WithDeepProfile(d *sysinfo.DeepProfile) EngineOption {
	return func(e *Engine) { e.deep = d }
}

// WithIDGenerator replaces plan id generation. Tests pin ids with it.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

// WithPlanTimeout overrides the whole-plan deadline.
func WithPlanTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.planTimeout = d }
}

// New builds an Engine.
func New(reg *recipe.Registry, res *resolver.Resolver, store *state.Store, profile *sysinfo.Profile, opts ...EngineOption) *Engine {
	e := &Engine{
		reg:         reg,
		resolver:    res,
		store:       store,
		profile:     profile,
		logger:      log.Default(),
		workers:     config.GetWorkerBudget(),
		planTimeout: config.GetPlanTimeout(),
		newID:       uuid.NewString,
		pid:         os.Getpid(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.exec == nil {
		e.exec = executor.New(executor.WithLogger(e.logger), executor.WithSystemd(profile.HasSystemd))
	}
	e.analyzer = failure.NewAnalyzer(reg, e.logger)
	return e
}

// Result is the outcome of one plan execution.
type Result struct {
	PlanID  string
	Tool    string
	Status  state.PlanStatus
	Results map[string]*plan.StepResult

	// FirstFailure is the diagnosis for the earliest failed step, nil when
	// the plan succeeded or nothing matched the catalogs.
	FirstFailure *failure.Report

	// FailedStep is the earliest failed step in natural plan order.
	FailedStep *plan.Step

	// Restart is the restart requirement to surface after success.
	Restart recipe.Restart
}

// Ok reports whether every step succeeded.
func (r *Result) Ok() bool {
	return r.Status == state.PlanSucceeded
}

// InstallTool resolves and executes an install plan for one tool.
// Answers map choice ids to option ids; nil auto-answers.
func (e *Engine) InstallTool(ctx context.Context, tool string, answers map[string]string) (*Result, error) {
	pl, err := e.resolver.ResolveWithChoices(tool, e.profile, e.deep, answers)
	if err != nil {
		return nil, err
	}
	return e.ExecutePlan(ctx, pl)
}

// ExecutePlan runs a resolved plan. The plan id is assigned here, not at
// resolve time, so resolver output stays reproducible.
func (e *Engine) ExecutePlan(ctx context.Context, pl *plan.Plan) (*Result, error) {
	if pl.AlreadyInstalled || onlyNotifications(pl) {
		return e.runEphemeral(ctx, pl)
	}

	if pl.ID == "" {
		pl.ID = e.newID()
	}
	ps := &state.PlanState{
		PlanID:  pl.ID,
		Tool:    pl.Tool,
		Status:  state.PlanRunning,
		Plan:    pl,
		PID:     e.pid,
		Results: map[string]*plan.StepResult{},
	}
	if err := e.store.Save(ps); err != nil {
		return nil, err
	}
	return e.run(ctx, ps)
}

// ResumePlan continues an interrupted plan, skipping steps that already
// succeeded. Idempotent step types re-execute harmlessly when the record
// is stale.
func (e *Engine) ResumePlan(ctx context.Context, planID string) (*Result, error) {
	ps, err := e.store.Load(planID)
	if err != nil {
		return nil, err
	}
	if ps.Status == state.PlanSucceeded {
		return e.resultFor(ps), nil
	}
	if ps.Status == state.PlanRunning && ps.PID != e.pid && ps.PID > 0 {
		return nil, fmt.Errorf("plan %s is owned by running process %d", planID, ps.PID)
	}

	// Clear non-terminal outcomes so those steps run again.
	for id, r := range ps.Results {
		if r == nil || !r.Ok() {
			delete(ps.Results, id)
		}
	}
	ps.Status = state.PlanRunning
	ps.PID = e.pid
	if err := e.store.Save(ps); err != nil {
		return nil, err
	}
	e.logger.Info("resuming plan", "plan", planID, "tool", ps.Tool, "completed", ps.LastCompletedIndex)
	return e.run(ctx, ps)
}

// ListPending returns resumable plan records, newest first.
func (e *Engine) ListPending() ([]*state.PlanState, error) {
	return e.store.ListPending()
}

// run executes the remaining steps of ps and finalizes its status.
func (e *Engine) run(ctx context.Context, ps *state.PlanState) (*Result, error) {
	if e.planTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.planTimeout)
		defer cancel()
	}

	graph, err := plan.BuildGraph(ps.Plan)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", ps.PlanID, err)
	}

	e.runDAG(ctx, graph, ps)

	ps.PID = 0
	ps.AdvanceCursor()
	ps.Status = state.PlanSucceeded
	for _, step := range ps.Plan.Steps {
		if r := ps.Results[step.ID]; r == nil || !r.Ok() {
			ps.Status = state.PlanFailed
			break
		}
	}
	if ps.Status == state.PlanFailed && ctx.Err() != nil {
		// Cancellation (or the plan deadline) stopped the run; nothing
		// failed for good, so the record stays resumable as paused.
		ps.Status = state.PlanPaused
	}
	if err := e.store.Save(ps); err != nil {
		return nil, err
	}
	if ps.Status == state.PlanSucceeded {
		// A finished install needs no resume record.
		if err := e.store.Delete(ps.PlanID); err != nil {
			e.logger.Warn("could not remove finished plan record", "plan", ps.PlanID, "error", err.Error())
		}
	}
	return e.resultFor(ps), nil
}

// resultFor assembles the Result, diagnosing the earliest failure.
func (e *Engine) resultFor(ps *state.PlanState) *Result {
	res := &Result{
		PlanID:  ps.PlanID,
		Tool:    ps.Tool,
		Status:  ps.Status,
		Results: ps.Results,
		Restart: ps.Plan.Restart,
	}
	if ps.Status != state.PlanFailed {
		return res
	}
	for i := range ps.Plan.Steps {
		step := &ps.Plan.Steps[i]
		if r := ps.Results[step.ID]; r != nil && r.Status == plan.StatusFailed {
			res.FailedStep = step
			res.FirstFailure = e.analyzer.Analyze(step, r, e.profile)
			break
		}
	}
	return res
}

// runEphemeral executes a plan that needs no persistence (notifications,
// already-installed short circuits).
func (e *Engine) runEphemeral(ctx context.Context, pl *plan.Plan) (*Result, error) {
	if pl.ID == "" {
		pl.ID = e.newID()
	}
	res := &Result{
		PlanID:  pl.ID,
		Tool:    pl.Tool,
		Status:  state.PlanSucceeded,
		Results: map[string]*plan.StepResult{},
		Restart: pl.Restart,
	}
	for i := range pl.Steps {
		sr := e.exec.Run(ctx, &pl.Steps[i])
		res.Results[sr.StepID] = sr
		if !sr.Ok() {
			res.Status = state.PlanFailed
		}
	}
	return res, nil
}

func onlyNotifications(pl *plan.Plan) bool {
	for i := range pl.Steps {
		if pl.Steps[i].Type != plan.StepNotification {
			return false
		}
	}
	return len(pl.Steps) > 0
}
