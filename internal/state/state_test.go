package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
)

func testPlan(tool string) *plan.Plan {
	return &plan.Plan{
		Tool:  tool,
		Label: "Install " + tool,
		Steps: []plan.Step{
			{ID: "tool:" + tool, Type: plan.StepTool, Command: []string{"true"}},
			{ID: "verify:" + tool, Type: plan.StepVerify, Command: []string{"true"},
				DependsOn: []string{"tool:" + tool}},
		},
	}
}

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithLogger(log.NewNoop())}, opts...)
	s, err := NewStore(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ps := &PlanState{
		PlanID: "abc-123",
		Tool:   "jq",
		Status: PlanRunning,
		Plan:   testPlan("jq"),
		PID:    os.Getpid(),
	}
	require.NoError(t, s.Save(ps))
	assert.False(t, ps.UpdatedAt.IsZero())
	assert.False(t, ps.CreatedAt.IsZero())

	got, err := s.Load("abc-123")
	require.NoError(t, err)
	assert.Equal(t, "jq", got.Tool)
	assert.Equal(t, PlanRunning, got.Status)
	require.NotNil(t, got.Plan)
	assert.Len(t, got.Plan.Steps, 2)
}

func TestLoadMissingPlan(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestLoadQuarantinesCorruptedRecord(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.Load("bad")
	var cerr *CorruptError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bad", cerr.PlanID)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "original file must be moved aside")
	_, statErr = os.Stat(path + ".corrupt")
	assert.NoError(t, statErr)

	// Missing after quarantine, not corrupt forever.
	_, err = s.Load("bad")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListSortsByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.Save(&PlanState{
			PlanID: id, Tool: id, Status: PlanPending, Plan: testPlan(id),
		}))
		time.Sleep(5 * time.Millisecond)
	}

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].PlanID)
	assert.Equal(t, "first", all[2].PlanID)
}

func TestListSkipsCorruptedRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&PlanState{
		PlanID: "good", Tool: "jq", Status: PlanPending, Plan: testPlan("jq"),
	}))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("junk"), 0o644))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].PlanID)
}

func TestListPendingReapsStaleRunningPlans(t *testing.T) {
	s := newTestStore(t, WithAliveCheck(func(pid int) bool { return pid == 111 }))

	require.NoError(t, s.Save(&PlanState{
		PlanID: "alive", Tool: "a", Status: PlanRunning, Plan: testPlan("a"), PID: 111,
	}))
	require.NoError(t, s.Save(&PlanState{
		PlanID: "dead", Tool: "b", Status: PlanRunning, Plan: testPlan("b"), PID: 222,
	}))
	require.NoError(t, s.Save(&PlanState{
		PlanID: "failed", Tool: "c", Status: PlanFailed, Plan: testPlan("c"),
	}))
	require.NoError(t, s.Save(&PlanState{
		PlanID: "done", Tool: "d", Status: PlanSucceeded, Plan: testPlan("d"),
	}))

	pending, err := s.ListPending()
	require.NoError(t, err)

	ids := make(map[string]PlanStatus)
	for _, ps := range pending {
		ids[ps.PlanID] = ps.Status
	}
	assert.Len(t, ids, 2)
	assert.Equal(t, PlanPaused, ids["dead"], "stale running plan is reaped to paused")
	assert.Contains(t, ids, "failed")
	assert.NotContains(t, ids, "alive", "plan with a live owner is untouched")
	assert.NotContains(t, ids, "done")

	reloaded, err := s.Load("dead")
	require.NoError(t, err)
	assert.Equal(t, PlanPaused, reloaded.Status)
	assert.Zero(t, reloaded.PID)
}

func TestListPendingIncludesPausedPlans(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&PlanState{
		PlanID: "paused", Tool: "a", Status: PlanPaused, Plan: testPlan("a"),
	}))

	pending, err := s.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, PlanPaused, pending[0].Status)
}

func TestAdvanceCursor(t *testing.T) {
	ps := &PlanState{
		Plan: &plan.Plan{Steps: []plan.Step{
			{ID: "a", Type: plan.StepTool},
			{ID: "b", Type: plan.StepTool},
			{ID: "c", Type: plan.StepTool},
		}},
		Results: map[string]*plan.StepResult{
			"a": {StepID: "a", Status: plan.StatusSucceeded},
			"c": {StepID: "c", Status: plan.StatusSucceeded},
		},
	}

	ps.AdvanceCursor()
	assert.Equal(t, 1, ps.LastCompletedIndex, "cursor stops at the first gap")

	ps.Results["b"] = &plan.StepResult{StepID: "b", Status: plan.StatusSucceeded}
	ps.AdvanceCursor()
	assert.Equal(t, 3, ps.LastCompletedIndex)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&PlanState{
		PlanID: "x", Tool: "x", Status: PlanPending, Plan: testPlan("x"),
	}))
	require.NoError(t, s.Delete("x"))
	require.NoError(t, s.Delete("x"))
	_, err := s.Load("x")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
