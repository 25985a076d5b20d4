package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

func step(id string, typ StepType, deps ...string) Step {
	return Step{ID: id, Type: typ, Label: id, DependsOn: deps}
}

func TestBuildGraphExplicitEdges(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{
		step("a", StepTool),
		step("b", StepTool, "a"),
		step("c", StepVerify, "a", "b"),
	}}
	g, err := BuildGraph(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Equal(t, []string{"b", "c"}, g.Successors("a"))
	assert.Equal(t, []string{"a", "b"}, g.Predecessors("c"))
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, g.InDegrees())
}

func TestBuildGraphRejectsUnknownDependency(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{step("a", StepTool, "ghost")}}
	_, err := BuildGraph(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildGraphRejectsDuplicateIDs(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{step("a", StepTool), step("a", StepVerify)}}
	_, err := BuildGraph(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuildGraphRejectsUnknownStepType(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{{ID: "a", Type: StepType("teleport")}}}
	_, err := BuildGraph(p)
	require.Error(t, err)
}

func TestBuildGraphRejectsSelfDependency(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{step("a", StepTool, "a")}}
	_, err := BuildGraph(p)
	require.Error(t, err)
}

func TestBuildGraphDetectsCycle(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{
		step("a", StepTool, "c"),
		step("b", StepTool, "a"),
		step("c", StepTool, "b"),
	}}
	_, err := BuildGraph(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestPMLockEdgesSerializeSameFamily(t *testing.T) {
	// Two independent apt-backed installs must not run concurrently, so an
	// implicit edge chains them in plan order.
	p := &Plan{Tool: "t", Steps: []Step{
		{ID: "pkg", Type: StepPackages, Metadata: Metadata{Family: recipe.FamilyDebian}},
		{ID: "jq", Type: StepTool, Metadata: Metadata{Method: recipe.MethodApt}},
		{ID: "ripgrep", Type: StepTool, Metadata: Metadata{Method: recipe.MethodApt}},
	}}
	g, err := BuildGraph(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"pkg"}, g.Predecessors("jq"))
	assert.Equal(t, []string{"jq"}, g.Predecessors("ripgrep"))
}

func TestPMLockSkipsNonNativeMethods(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{
		{ID: "a", Type: StepTool, Metadata: Metadata{Method: recipe.MethodPip}},
		{ID: "b", Type: StepTool, Metadata: Metadata{Method: recipe.MethodCargo}},
		{ID: "c", Type: StepTool, Metadata: Metadata{Method: recipe.MethodBrew}},
	}}
	g, err := BuildGraph(p)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		assert.Empty(t, g.Predecessors(id), "language and brew installs run in parallel")
	}
}

func TestServiceStepsSerializePerUnit(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{
		{ID: "svc1", Type: StepService, Metadata: Metadata{Unit: "docker"}},
		{ID: "svc2", Type: StepService, Metadata: Metadata{Unit: "docker"}},
		{ID: "other", Type: StepService, Metadata: Metadata{Unit: "containerd"}},
	}}
	g, err := BuildGraph(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"svc1"}, g.Predecessors("svc2"))
	assert.Empty(t, g.Predecessors("other"))
}

func TestDescendantsWalksTransitively(t *testing.T) {
	p := &Plan{Tool: "t", Steps: []Step{
		step("a", StepTool),
		step("b", StepTool, "a"),
		step("c", StepTool, "b"),
		step("d", StepTool),
	}}
	g, err := BuildGraph(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, g.Descendants("a"))
	assert.Empty(t, g.Descendants("d"))
}

func TestPMFamily(t *testing.T) {
	pkg := Step{Type: StepPackages, Metadata: Metadata{Family: recipe.FamilyRHEL}}
	assert.Equal(t, recipe.FamilyRHEL, pkg.PMFamily())

	apt := Step{Type: StepTool, Metadata: Metadata{Method: recipe.MethodApt}}
	assert.Equal(t, recipe.FamilyDebian, apt.PMFamily())

	pip := Step{Type: StepTool, Metadata: Metadata{Method: recipe.MethodPip}}
	assert.Empty(t, pip.PMFamily())
}

func TestStepTimeoutFallsBackToDefault(t *testing.T) {
	s := Step{}
	assert.Equal(t, 2*time.Minute, s.Timeout(2*time.Minute))

	s.TimeoutMS = 1500
	assert.Equal(t, "1.5s", s.Timeout(2*time.Minute).String())
}
