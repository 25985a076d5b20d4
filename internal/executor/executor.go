// Package executor runs resolved plan steps on the host: package-manager
// and script commands through a process runner, plus native handlers for
// config writes, shell profile edits, service management, checksummed
// downloads, GitHub release installs, and source checkouts.
package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/secrets"
)

// Executor dispatches plan steps by type. Safe for concurrent use; the
// scheduler runs independent steps from multiple goroutines.
type Executor struct {
	logger     log.Logger
	runner     Runner
	sink       io.Writer
	passwords  secrets.PasswordProvider
	httpClient *http.Client
	github     *github.Client

	stepTimeout  time.Duration
	buildTimeout time.Duration

	homeDir    string
	hasSystemd bool
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l log.Logger) ExecOption {
	return func(e *Executor) { e.logger = l }
}

// WithRunner replaces the process runner. Tests script outcomes through it.
func WithRunner(r Runner) ExecOption {
	return func(e *Executor) { e.runner = r }
}

// WithSink sets the destination for streamed step output.
func WithSink(w io.Writer) ExecOption {
	return func(e *Executor) { e.sink = w }
}

// WithPasswords sets the sudo password provider.
func WithPasswords(p secrets.PasswordProvider) ExecOption {
	return func(e *Executor) { e.passwords = p }
}

// WithHTTPClient replaces the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) ExecOption {
	return func(e *Executor) { e.httpClient = c }
}

// WithGitHubClient replaces the GitHub API client.
func WithGitHubClient(c *github.Client) ExecOption {
	return func(e *Executor) { e.github = c }
}

// WithSystemd overrides init-system detection for service steps.
func WithSystemd(has bool) ExecOption {
	return func(e *Executor) { e.hasSystemd = has }
}

// WithHomeDir overrides the home directory used by shell_config steps.
func WithHomeDir(dir string) ExecOption {
	return func(e *Executor) { e.homeDir = dir }
}

// New builds an Executor with the environment-derived timeouts.
func New(opts ...ExecOption) *Executor {
	home, _ := os.UserHomeDir()
	e := &Executor{
		logger:       log.Default(),
		sink:         os.Stdout,
		httpClient:   newDownloadClient(),
		stepTimeout:  config.GetStepTimeout(),
		buildTimeout: config.GetBuildTimeout(),
		homeDir:      home,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = newExecRunner(e.logger, e.passwords, e.sink)
	}
	if e.github == nil {
		e.github = newGitHubClient()
	}
	return e
}

// Run executes one step and returns its result. The result is always
// non-nil; errors are folded into Status/Error so the scheduler has one
// uniform outcome shape to persist.
func (e *Executor) Run(ctx context.Context, step *plan.Step) *plan.StepResult {
	start := time.Now()
	res := &plan.StepResult{
		StepID:    step.ID,
		Status:    plan.StatusRunning,
		StartedAt: start,
	}
	e.logger.Info("step started", "step", step.ID, "type", string(step.Type), "label", step.Label)

	err := e.dispatch(ctx, step, res)

	res.EndedAt = time.Now()
	res.DurationMS = res.EndedAt.Sub(start).Milliseconds()
	if err != nil {
		res.Status = plan.StatusFailed
		res.Error = err.Error()
		e.logger.Warn("step failed", "step", step.ID, "exit_code", res.ExitCode, "error", err.Error())
	} else {
		res.Status = plan.StatusSucceeded
		e.logger.Info("step succeeded", "step", step.ID, "duration_ms", res.DurationMS)
	}
	return res
}

func (e *Executor) dispatch(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	switch step.Type {
	case plan.StepRepoSetup, plan.StepPackages, plan.StepTool,
		plan.StepPostInstall, plan.StepVerify, plan.StepBuild, plan.StepInstall:
		return e.runCommand(ctx, step, res)

	case plan.StepSource:
		return e.runSource(ctx, step, res)

	case plan.StepConfig:
		return e.runConfig(step, res)

	case plan.StepShellConfig:
		return e.runShellConfig(step, res)

	case plan.StepService:
		return e.runService(ctx, step, res)

	case plan.StepDownload:
		return e.runDownload(ctx, step, res)

	case plan.StepGitHubRelease:
		return e.runGitHubRelease(ctx, step, res)

	case plan.StepCleanup:
		return e.runCleanup(step, res)

	case plan.StepNotification:
		e.notify(step)
		return nil

	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

// runCommand handles every command-backed step type.
func (e *Executor) runCommand(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	if len(step.Command) == 0 {
		// Fragment-less steps (e.g. a choice option with env only) are no-ops.
		return nil
	}
	return e.exec(ctx, step, res, step.Command)
}

// runSource checks out the step's repository. An explicit command wins;
// otherwise a shallow git clone is constructed from the metadata.
func (e *Executor) runSource(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	argv := step.Command
	if len(argv) == 0 {
		if step.Metadata.GitURL == "" || step.Metadata.WorkTree == "" {
			return fmt.Errorf("source step %q has neither a command nor git metadata", step.ID)
		}
		argv = []string{"git", "clone", "--depth", "1"}
		if step.Metadata.Ref != "" {
			argv = append(argv, "--branch", step.Metadata.Ref)
		}
		argv = append(argv, step.Metadata.GitURL, step.Metadata.WorkTree)
	}
	return e.exec(ctx, step, res, argv)
}

func (e *Executor) exec(ctx context.Context, step *plan.Step, res *plan.StepResult, argv []string) error {
	out, err := e.runner.Run(ctx, CommandSpec{
		Argv:      argv,
		Env:       step.Env,
		Sudo:      step.NeedsSudo,
		Streaming: step.Streaming,
		Timeout:   e.timeoutFor(step),
		Label:     step.ID,
	})
	if out != nil {
		res.ExitCode = out.ExitCode
		res.StdoutTail = out.StdoutTail
		res.StderrTail = out.StderrTail
	}
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%q exited with code %d", argv[0], out.ExitCode)
	}
	return nil
}

// runService manages a unit through systemd or OpenRC.
func (e *Executor) runService(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	unit := step.Metadata.Unit
	if unit == "" {
		return fmt.Errorf("service step %q has no unit", step.ID)
	}
	action := step.Metadata.ServiceAction
	if action == "" {
		action = "enable_start"
	}

	var cmds [][]string
	if e.hasSystemd {
		switch action {
		case "enable":
			cmds = [][]string{{"systemctl", "enable", unit}}
		case "start":
			cmds = [][]string{{"systemctl", "start", unit}}
		default:
			cmds = [][]string{{"systemctl", "enable", "--now", unit}}
		}
	} else {
		switch action {
		case "enable":
			cmds = [][]string{{"rc-update", "add", unit, "default"}}
		case "start":
			cmds = [][]string{{"rc-service", unit, "start"}}
		default:
			cmds = [][]string{
				{"rc-update", "add", unit, "default"},
				{"rc-service", unit, "start"},
			}
		}
	}
	for _, argv := range cmds {
		if err := e.exec(ctx, step, res, argv); err != nil {
			return err
		}
	}
	return nil
}

// runCleanup removes the step's paths. Only paths under the user home or
// the system temp dir are eligible; anything else is a plan bug.
func (e *Executor) runCleanup(step *plan.Step, res *plan.StepResult) error {
	for _, p := range step.Metadata.Paths {
		if !e.cleanupAllowed(p) {
			return fmt.Errorf("refusing to remove %q: outside home and temp", p)
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing %q: %w", p, err)
		}
		res.StdoutTail = append(res.StdoutTail, "removed "+p)
	}
	return nil
}

func (e *Executor) cleanupAllowed(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, root := range []string{e.homeDir, os.TempDir()} {
		if root == "" {
			continue
		}
		if rel, err := filepath.Rel(root, abs); err == nil &&
			rel != ".." && !filepath.IsAbs(rel) && rel != "." &&
			(len(rel) < 3 || rel[:3] != "../") {
			return true
		}
	}
	return false
}

func (e *Executor) notify(step *plan.Step) {
	msg := step.Metadata.Message
	if msg == "" {
		msg = step.Label
	}
	e.logger.Info("notice", "step", step.ID, "message", msg)
	if e.sink != nil {
		fmt.Fprintln(e.sink, msg)
	}
}

func (e *Executor) timeoutFor(step *plan.Step) time.Duration {
	def := e.stepTimeout
	if step.Type == plan.StepBuild || step.Type == plan.StepSource {
		def = e.buildTimeout
	}
	return step.Timeout(def)
}

// newGitHubClient builds an API client, authenticated when GITHUB_TOKEN is
// set so release lookups are not throttled to the anonymous rate limit.
func newGitHubClient() *github.Client {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		return github.NewClient(oauth2.NewClient(context.Background(), src))
	}
	return github.NewClient(nil)
}
