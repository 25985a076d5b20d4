package resolver

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/sysinfo"
)

// depNode is one recipe in the install closure with its selected method.
type depNode struct {
	rec    *recipe.Recipe
	method recipe.Method

	// deps are direct dependency tool ids resolved into this plan
	// (binaries already on PATH produce no node and no edge).
	deps []string

	// inherited holds post_env entries contributed by dependency nodes;
	// all additionally includes this recipe's own post_env. Steps of this
	// node run with inherited; dependents and the verify step get all.
	inherited []envEntry
	all       []envEntry
}

// collector walks requires.binaries edges depth-first and accumulates the
// install closure leaf-first, the per-family OS package batch, and the
// provides set consulted by method gates.
type collector struct {
	r *Resolver
	p *sysinfo.Profile

	visited  map[string]bool
	nodes    map[string]*depNode
	order    []*depNode // leaf-first; the primary tool is last
	provides map[string]bool
	packages []string
	pkgSeen  map[string]bool
}

func newCollector(r *Resolver, p *sysinfo.Profile) *collector {
	return &collector{
		r:        r,
		p:        p,
		visited:  make(map[string]bool),
		nodes:    make(map[string]*depNode),
		provides: make(map[string]bool),
		pkgSeen:  make(map[string]bool),
	}
}

// collect builds the install closure rooted at the primary recipe. The
// registry rejects dependency cycles at load time, so the walk terminates.
func (c *collector) collect(primary *recipe.Recipe, forced recipe.Method) error {
	return c.visit(primary, forced)
}

func (c *collector) visit(rec *recipe.Recipe, forced recipe.Method) error {
	if c.visited[rec.Name] {
		return nil
	}
	c.visited[rec.Name] = true

	var depIDs []string
	var inherited []envEntry
	seenDep := make(map[string]bool)
	for _, entry := range rec.Requires.Binaries {
		bin, constraint := recipe.SplitConstraint(entry)
		if c.satisfiedOnPath(bin, constraint) || c.provides[bin] {
			continue
		}

		provider := c.r.reg.ProviderOf(bin)
		if provider == "" {
			// No recipe provides it; fall back to the OS package tables.
			if err := c.addMappedPackages(rec.Name, bin); err != nil {
				return err
			}
			continue
		}
		if seenDep[provider] {
			continue
		}
		seenDep[provider] = true

		depRec, err := c.r.reg.Get(provider)
		if err != nil {
			return err
		}
		if err := c.visit(depRec, ""); err != nil {
			return err
		}
		if node, ok := c.nodes[provider]; ok {
			depIDs = append(depIDs, provider)
			inherited = append(inherited, node.all...)
		}
	}

	if pkgs, ok := rec.Requires.Packages[c.p.DistroFamily]; ok {
		c.addPackages(pkgs)
	}

	method, err := c.r.selectMethod(rec, c.p, forced, c.provides)
	if err != nil {
		return err
	}

	node := &depNode{
		rec:       rec,
		method:    method,
		deps:      depIDs,
		inherited: inherited,
		all:       append(append([]envEntry{}, inherited...), parsePostEnv(rec.PostEnv)...),
	}
	c.nodes[rec.Name] = node
	c.order = append(c.order, node)

	for _, bin := range rec.ProvidedBinaries() {
		c.provides[bin] = true
	}
	return nil
}

// satisfiedOnPath reports whether a binary on PATH satisfies its version
// constraint. Without a version probe a present binary is trusted.
func (c *collector) satisfiedOnPath(bin, constraint string) bool {
	if !c.r.onPath(bin) {
		return false
	}
	if constraint == "" || c.r.versionOf == nil {
		return true
	}
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return true
	}
	ver, err := semver.NewVersion(c.r.versionOf(bin))
	if err != nil {
		// Unparseable probe output; reinstalling is safer than looping.
		return false
	}
	return cons.Check(ver)
}

// addMappedPackages resolves a recipe-less binary or library dependency
// through the built-in package tables for the profiled family.
func (c *collector) addMappedPackages(tool, bin string) error {
	table, ok := recipe.KnownPackages[bin]
	if !ok {
		table, ok = recipe.LibToPackageMap[bin]
	}
	if !ok {
		return fmt.Errorf("recipe %q requires %q, which has no recipe and no known package mapping", tool, bin)
	}
	pkgs, ok := table[c.p.DistroFamily]
	if !ok {
		return &UnsupportedFamilyError{Tool: bin, Family: c.p.DistroFamily}
	}
	c.addPackages(pkgs)
	return nil
}

// addPackages appends to the plan-wide batch, deduplicated, first-seen order.
func (c *collector) addPackages(pkgs []string) {
	for _, pkg := range pkgs {
		if c.pkgSeen[pkg] {
			continue
		}
		c.pkgSeen[pkg] = true
		c.packages = append(c.packages, pkg)
	}
}
