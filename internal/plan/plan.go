// Package plan defines the executable plan document produced by the
// resolver: typed steps, step results, and the dependency graph the
// scheduler runs. Plans are immutable once resolved; step results are
// append-only and live in the persisted plan state.
package plan

import (
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// StepType is the closed set of step kinds the executor dispatches on.
type StepType string

const (
	StepRepoSetup     StepType = "repo_setup"
	StepPackages      StepType = "packages"
	StepTool          StepType = "tool"
	StepPostInstall   StepType = "post_install"
	StepVerify        StepType = "verify"
	StepConfig        StepType = "config"
	StepShellConfig   StepType = "shell_config"
	StepService       StepType = "service"
	StepDownload      StepType = "download"
	StepGitHubRelease StepType = "github_release"
	StepSource        StepType = "source"
	StepBuild         StepType = "build"
	StepInstall       StepType = "install"
	StepCleanup       StepType = "cleanup"
	StepNotification  StepType = "notification"
)

// KnownStepTypes lists every valid step type.
var KnownStepTypes = []StepType{
	StepRepoSetup, StepPackages, StepTool, StepPostInstall, StepVerify,
	StepConfig, StepShellConfig, StepService, StepDownload,
	StepGitHubRelease, StepSource, StepBuild, StepInstall, StepCleanup,
	StepNotification,
}

// IsKnownStepType reports whether t is a valid step type.
func IsKnownStepType(t StepType) bool {
	for _, k := range KnownStepTypes {
		if t == k {
			return true
		}
	}
	return false
}

// IdempotentTypes are step types safe to re-execute on resume with a stale
// cursor; their executors detect no-op cases.
var IdempotentTypes = map[StepType]bool{
	StepConfig:      true,
	StepShellConfig: true,
	StepService:     true,
	StepPackages:    true,
	StepVerify:      true,
}

// Metadata is the type-specific step payload. Only the fields relevant to
// the step's type are populated.
type Metadata struct {
	// Tool is the recipe id this step belongs to.
	Tool string `json:"tool,omitempty"`

	// Method is the install method that produced this step.
	Method recipe.Method `json:"method,omitempty"`

	// packages
	Family   recipe.Family `json:"family,omitempty"`
	Packages []string      `json:"packages,omitempty"`

	// config
	ConfigPath    string `json:"config_path,omitempty"`
	ConfigContent string `json:"config_content,omitempty"`
	FileMode      uint32 `json:"file_mode,omitempty"`

	// shell_config
	RCLine string `json:"rc_line,omitempty"`
	Marker string `json:"marker,omitempty"`

	// service
	Unit          string `json:"unit,omitempty"`
	ServiceAction string `json:"service_action,omitempty"` // enable|start|enable_start

	// download
	URL    string `json:"url,omitempty"`
	Dest   string `json:"dest,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	Size   int64  `json:"size,omitempty"`

	// github_release
	Repo         string `json:"repo,omitempty"` // owner/name
	Tag          string `json:"tag,omitempty"`  // empty means latest
	AssetPattern string `json:"asset_pattern,omitempty"`

	// source
	GitURL   string `json:"git_url,omitempty"`
	WorkTree string `json:"work_tree,omitempty"`
	Ref      string `json:"ref,omitempty"`

	// install
	InstallPrefix string   `json:"install_prefix,omitempty"`
	Artifacts     []string `json:"artifacts,omitempty"`

	// cleanup
	Paths []string `json:"paths,omitempty"`

	// notification
	Message string `json:"message,omitempty"`
}

// Step is one typed, schedulable unit of execution.
type Step struct {
	ID        string            `json:"id"`
	Type      StepType          `json:"type"`
	Label     string            `json:"label"`
	Command   []string          `json:"command,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	NeedsSudo bool              `json:"needs_sudo"`
	DependsOn []string          `json:"depends_on,omitempty"`
	TimeoutMS int64             `json:"timeout_ms,omitempty"`
	Batchable bool              `json:"batchable,omitempty"`
	Streaming bool              `json:"streaming,omitempty"`
	Metadata  Metadata          `json:"metadata,omitempty"`
}

// PMFamily returns the package-manager family this step operates on, or ""
// when it holds no PM lock. Used by the scheduler to add implicit lock
// edges.
func (s *Step) PMFamily() recipe.Family {
	if s.Type == StepPackages {
		return s.Metadata.Family
	}
	if fam, ok := recipe.FamilyForMethod[s.Metadata.Method]; ok {
		// Only native PMs hold exclusive locks; brew does not.
		for _, m := range recipe.NativeMethods {
			if s.Metadata.Method == m {
				return fam
			}
		}
	}
	return ""
}

// Timeout returns the step timeout as a duration, or def when unset.
func (s *Step) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMS <= 0 {
		return def
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Plan is an ordered executable step list plus metadata. Immutable once
// resolved; the engine assigns ID when execution begins so that resolver
// output stays byte-deterministic.
type Plan struct {
	ID               string          `json:"id,omitempty"`
	Tool             string          `json:"tool"`
	Label            string          `json:"label"`
	Method           recipe.Method   `json:"method,omitempty"`
	NeedsSudo        bool            `json:"needs_sudo"`
	AlreadyInstalled bool            `json:"already_installed,omitempty"`
	Risk             recipe.Risk     `json:"risk,omitempty"`
	Restart          recipe.Restart  `json:"restart,omitempty"`
	Steps            []Step          `json:"steps"`
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepStatus is the lifecycle state of one step execution.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
	StatusBlocked   StepStatus = "blocked"
)

// StepResult records the outcome of one step execution. Tails hold the
// last 200 lines of each stream, scrubbed of secrets before persistence.
type StepResult struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	ExitCode   int        `json:"exit_code"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	EndedAt    time.Time  `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	StdoutTail []string   `json:"stdout_tail,omitempty"`
	StderrTail []string   `json:"stderr_tail,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Ok reports whether the step completed successfully.
func (r *StepResult) Ok() bool {
	return r.Status == StatusSucceeded
}
