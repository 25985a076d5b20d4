// Package config resolves engine settings from the environment.
//
// All knobs have validated defaults; invalid values produce a warning on
// stderr and fall back to the default rather than failing startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const (
	// EnvHome overrides the default state root directory.
	EnvHome = "PROVISION_HOME"

	// EnvWorkers configures the DAG scheduler worker budget.
	EnvWorkers = "PROVISION_WORKERS"

	// EnvStepTimeout configures the default timeout for blocking steps.
	EnvStepTimeout = "PROVISION_STEP_TIMEOUT"

	// EnvBuildTimeout configures the default timeout for build steps.
	EnvBuildTimeout = "PROVISION_BUILD_TIMEOUT"

	// EnvPlanTimeout configures the whole-plan timeout.
	EnvPlanTimeout = "PROVISION_PLAN_TIMEOUT"

	// EnvProbeCacheTTL configures how long deep-tier probe results are reused.
	EnvProbeCacheTTL = "PROVISION_PROBE_CACHE_TTL"

	// DefaultStepTimeout is the hard cap for blocking step execution.
	DefaultStepTimeout = 120 * time.Second

	// DefaultBuildTimeout is the hard cap for build steps.
	DefaultBuildTimeout = 30 * time.Minute

	// DefaultPlanTimeout is the hard cap for an entire plan.
	DefaultPlanTimeout = 2 * time.Hour

	// DefaultProbeCacheTTL is how long deep-tier probes stay fresh.
	DefaultProbeCacheTTL = 1 * time.Hour
)

// Config holds resolved filesystem locations for engine state.
type Config struct {
	// HomeDir is the state root (default: ~/.provision, override PROVISION_HOME).
	HomeDir string

	// PlansDir holds persisted plan state records, one JSON file per plan.
	PlansDir string

	// ProbeCachePath is the deep-tier detection cache file.
	ProbeCachePath string
}

// DefaultConfig resolves the state root and derived paths.
// Directories are created on first use, not here.
func DefaultConfig() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		home = filepath.Join(userHome, ".provision")
	}

	return &Config{
		HomeDir:        home,
		PlansDir:       filepath.Join(home, "plans"),
		ProbeCachePath: filepath.Join(home, "tool_install_cache.json"),
	}, nil
}

// EnsureDirs creates the state directories if they do not exist.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.PlansDir, 0o755); err != nil {
		return fmt.Errorf("failed to create plans directory: %w", err)
	}
	return nil
}

// GetWorkerBudget returns the DAG scheduler worker budget from
// PROVISION_WORKERS. If not set or invalid, returns min(4, NumCPU).
func GetWorkerBudget() int {
	def := runtime.NumCPU()
	if def > 4 {
		def = 4
	}
	if def < 1 {
		def = 1
	}

	envValue := os.Getenv(EnvWorkers)
	if envValue == "" {
		return def
	}

	n, err := strconv.Atoi(envValue)
	if err != nil || n < 1 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n",
			EnvWorkers, envValue, def)
		return def
	}
	if n > 32 {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum 32\n",
			EnvWorkers, n)
		return 32
	}
	return n
}

// GetStepTimeout returns the default blocking-step timeout from
// PROVISION_STEP_TIMEOUT. Accepts duration strings like "90s", "2m".
func GetStepTimeout() time.Duration {
	return durationFromEnv(EnvStepTimeout, DefaultStepTimeout, 1*time.Second, 1*time.Hour)
}

// GetBuildTimeout returns the build-step timeout from PROVISION_BUILD_TIMEOUT.
func GetBuildTimeout() time.Duration {
	return durationFromEnv(EnvBuildTimeout, DefaultBuildTimeout, 1*time.Minute, 6*time.Hour)
}

// GetPlanTimeout returns the whole-plan timeout from PROVISION_PLAN_TIMEOUT.
func GetPlanTimeout() time.Duration {
	return durationFromEnv(EnvPlanTimeout, DefaultPlanTimeout, 1*time.Minute, 24*time.Hour)
}

// GetProbeCacheTTL returns the deep-tier probe cache TTL from
// PROVISION_PROBE_CACHE_TTL.
func GetProbeCacheTTL() time.Duration {
	return durationFromEnv(EnvProbeCacheTTL, DefaultProbeCacheTTL, 1*time.Minute, 7*24*time.Hour)
}

// durationFromEnv parses a duration env var, clamping to [min, max] with a
// stderr warning on invalid or out-of-range values.
func durationFromEnv(env string, def, min, max time.Duration) time.Duration {
	envValue := os.Getenv(env)
	if envValue == "" {
		return def
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			env, envValue, def)
		return def
	}

	if duration < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n",
			env, duration, min)
		return min
	}
	if duration > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n",
			env, duration, max)
		return max
	}

	return duration
}
