package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/engine"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/state"
)

// The numeric values are a contract with wrapping scripts.
func TestExitCodeContract(t *testing.T) {
	assert.Equal(t, 0, ExitSuccess)
	assert.Equal(t, 1, ExitStepFailed)
	assert.Equal(t, 2, ExitPaused)
	assert.Equal(t, 64, ExitUsage)
	assert.Equal(t, 65, ExitToolNotFound)
}

func TestResolveExitCode(t *testing.T) {
	wrapped := fmt.Errorf("resolving %q: %w", "nosuch", recipe.ErrToolNotFound)
	assert.Equal(t, ExitToolNotFound, resolveExitCode(wrapped))
	assert.Equal(t, ExitGeneral, resolveExitCode(errors.New("no usable method")))
}

func TestReportFailureExitCodes(t *testing.T) {
	paused := &engine.Result{PlanID: "p1", Status: state.PlanPaused}
	assert.Equal(t, ExitPaused, reportFailure(paused))

	failed := &engine.Result{
		PlanID:     "p2",
		Status:     state.PlanFailed,
		FailedStep: &plan.Step{ID: "tool:x", Label: "Install x"},
		Results: map[string]*plan.StepResult{
			"tool:x": {StepID: "tool:x", Status: plan.StatusFailed, Error: "exit 1"},
		},
	}
	assert.Equal(t, ExitStepFailed, reportFailure(failed))
}
