package plan

import (
	"fmt"
	"sort"
)

// Graph is the dependency DAG the scheduler executes. Edges come from
// three sources: explicit depends_on declarations, implicit package-manager
// lock serialization, and serialization of service steps touching the same
// unit. The PM locks are modeled as edges rather than runtime mutexes
// because two concurrent apt-get invocations would deadlock on dpkg's lock.
type Graph struct {
	order []string                   // natural plan order
	steps map[string]*Step           // id -> step
	preds map[string]map[string]bool // id -> predecessor set
	succs map[string][]string        // id -> successors (deterministic order)
}

// BuildGraph validates a plan and constructs its DAG.
// Returns an error for duplicate ids, unknown depends_on references,
// unknown step types, or cycles.
func BuildGraph(p *Plan) (*Graph, error) {
	g := &Graph{
		steps: make(map[string]*Step, len(p.Steps)),
		preds: make(map[string]map[string]bool, len(p.Steps)),
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if !IsKnownStepType(s.Type) {
			return nil, fmt.Errorf("step %q has unknown type %q", s.ID, s.Type)
		}
		if _, dup := g.steps[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		g.steps[s.ID] = s
		g.order = append(g.order, s.ID)
		g.preds[s.ID] = make(map[string]bool)
	}

	// Explicit depends_on edges.
	for _, id := range g.order {
		for _, dep := range g.steps[id].DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", id, dep)
			}
			if dep == id {
				return nil, fmt.Errorf("step %q depends on itself", id)
			}
			g.preds[id][dep] = true
		}
	}

	// Implicit PM-lock edges: steps sharing a native PM family execute in
	// natural plan order.
	lastByFamily := make(map[string]string)
	for _, id := range g.order {
		fam := g.steps[id].PMFamily()
		if fam == "" {
			continue
		}
		if prev, ok := lastByFamily[string(fam)]; ok {
			g.preds[id][prev] = true
		}
		lastByFamily[string(fam)] = id
	}

	// Implicit serialization of service steps touching the same unit.
	lastByUnit := make(map[string]string)
	for _, id := range g.order {
		s := g.steps[id]
		if s.Type != StepService || s.Metadata.Unit == "" {
			continue
		}
		if prev, ok := lastByUnit[s.Metadata.Unit]; ok {
			g.preds[id][prev] = true
		}
		lastByUnit[s.Metadata.Unit] = id
	}

	// Successor lists in deterministic order.
	succs := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for dep := range g.preds[id] {
			succs[dep] = append(succs[dep], id)
		}
	}
	for id := range succs {
		sort.Strings(succs[id])
	}
	g.succs = succs

	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("plan DAG contains a cycle: %v", cycle)
	}

	return g, nil
}

// Order returns step ids in natural plan order.
func (g *Graph) Order() []string {
	return g.order
}

// Step returns the step with the given id.
func (g *Graph) Step(id string) *Step {
	return g.steps[id]
}

// Predecessors returns the predecessor ids of a step, sorted.
func (g *Graph) Predecessors(id string) []string {
	out := make([]string, 0, len(g.preds[id]))
	for dep := range g.preds[id] {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Successors returns the successor ids of a step, sorted.
func (g *Graph) Successors(id string) []string {
	return g.succs[id]
}

// InDegrees returns a fresh map of unsatisfied predecessor counts,
// suitable for seeding a scheduler's ready queue.
func (g *Graph) InDegrees() map[string]int {
	in := make(map[string]int, len(g.order))
	for _, id := range g.order {
		in[id] = len(g.preds[id])
	}
	return in
}

// Descendants returns every step reachable from id (excluding id itself).
// Used to mark dependents blocked when a step fails.
func (g *Graph) Descendants(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, next := range g.succs[cur] {
			if !seen[next] {
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// findCycle runs Kahn's algorithm; any unprocessed remainder is a cycle.
func (g *Graph) findCycle() []string {
	in := g.InDegrees()
	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if in[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range g.succs[id] {
			in[next]--
			if in[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed == len(g.order) {
		return nil
	}
	var cycle []string
	for _, id := range g.order {
		if in[id] > 0 {
			cycle = append(cycle, id)
		}
	}
	return cycle
}
