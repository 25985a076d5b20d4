package main

import (
	"errors"
	"os"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// Exit codes for different outcomes.
// These enable scripts to distinguish between failure modes.
const (
	// ExitSuccess indicates the plan completed
	ExitSuccess = 0

	// ExitGeneral indicates a general error
	ExitGeneral = 1

	// ExitStepFailed indicates a plan step failed with no remediation applied
	ExitStepFailed = 1

	// ExitPaused indicates the plan was cancelled and persisted for resume
	ExitPaused = 2

	// ExitUsage indicates invalid arguments or usage error
	ExitUsage = 64

	// ExitToolNotFound indicates the tool has no recipe in the registry
	ExitToolNotFound = 65
)

// exitWithCode exits with the specified exit code
func exitWithCode(code int) {
	os.Exit(code)
}

// resolveExitCode maps a resolution error to an exit code: an unknown tool
// gets its own code so scripts can tell a typo from a host with no usable
// install method.
func resolveExitCode(err error) int {
	if errors.Is(err, recipe.ErrToolNotFound) {
		return ExitToolNotFound
	}
	return ExitGeneral
}
