package recipe

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
)

//go:embed recipes/*.toml
var embeddedRecipes embed.FS

// ErrToolNotFound is returned when a tool id has no recipe in the registry.
var ErrToolNotFound = errors.New("tool not found in recipe registry")

// Registry holds the validated recipe set, loaded once at startup.
// Recipes are immutable after load.
type Registry struct {
	recipes   map[string]*Recipe
	providers map[string]string // binary name -> recipe id
	logger    log.Logger
}

// RegistryOption configures a Registry during load.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for load-time warnings.
func WithLogger(l log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// LoadEmbedded loads and validates the embedded recipe set.
func LoadEmbedded(opts ...RegistryOption) (*Registry, error) {
	return loadFS(embeddedRecipes, "recipes", opts...)
}

// LoadDir loads and validates a user-supplied recipe directory.
func LoadDir(dir string, opts ...RegistryOption) (*Registry, error) {
	return loadFS(os.DirFS(dir), ".", opts...)
}

func loadFS(fsys fs.FS, root string, opts ...RegistryOption) (*Registry, error) {
	reg := &Registry{
		recipes:   make(map[string]*Recipe),
		providers: make(map[string]string),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(reg)
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe directory: %w", err)
	}

	var allErrs []ValidationError
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := entry.Name()
		if root != "." {
			path = root + "/" + entry.Name()
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipe %s: %w", entry.Name(), err)
		}

		var r Recipe
		if err := toml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse recipe %s: %w", entry.Name(), err)
		}
		if r.Name == "" {
			r.Name = strings.TrimSuffix(entry.Name(), ".toml")
		}

		if errs := Validate(&r); len(errs) > 0 {
			allErrs = append(allErrs, errs...)
			continue
		}

		if _, dup := reg.recipes[r.Name]; dup {
			return nil, fmt.Errorf("duplicate recipe id %q (file %s)", r.Name, entry.Name())
		}
		reg.recipes[r.Name] = &r
	}

	if len(allErrs) > 0 {
		msgs := make([]string, len(allErrs))
		for i, e := range allErrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("recipe validation failed:\n  %s", strings.Join(msgs, "\n  "))
	}

	// Index provided binaries; earlier (lexicographic) recipes win ties so
	// the index is deterministic.
	for _, name := range reg.List() {
		for _, bin := range reg.recipes[name].ProvidedBinaries() {
			if _, taken := reg.providers[bin]; !taken {
				reg.providers[bin] = name
			}
		}
	}

	reg.warnUnknownBinaries()

	if cycle := reg.findCycle(); cycle != nil {
		return nil, &DependencyCycleError{Cycle: cycle}
	}

	return reg, nil
}

// Get returns the recipe for a tool id.
func (r *Registry) Get(name string) (*Recipe, error) {
	rec, ok := r.recipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return rec, nil
}

// Has reports whether a tool id has a recipe.
func (r *Registry) Has(name string) bool {
	_, ok := r.recipes[name]
	return ok
}

// List returns all recipe ids sorted lexicographically.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.recipes))
	for name := range r.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded recipes.
func (r *Registry) Count() int {
	return len(r.recipes)
}

// ProviderOf returns the recipe id providing the given binary name, falling
// back to a recipe with that exact id. Empty string if nothing provides it.
func (r *Registry) ProviderOf(binary string) string {
	if id, ok := r.providers[binary]; ok {
		return id
	}
	if r.Has(binary) {
		return binary
	}
	return ""
}

// warnUnknownBinaries logs a warning for every requires.binaries entry that
// is neither a recipe id nor covered by the KnownPackages catalog.
func (r *Registry) warnUnknownBinaries() {
	for _, name := range r.List() {
		rec := r.recipes[name]
		for _, bin := range rec.Requires.Binaries {
			id, _ := SplitConstraint(bin)
			if r.ProviderOf(id) != "" {
				continue
			}
			if _, ok := KnownPackages[id]; ok {
				continue
			}
			r.logger.Warn("requires.binaries entry has no recipe or known package",
				"recipe", name, "binary", id)
		}
	}
}

// DependencyCycleError reports a cycle in requires.binaries edges.
// Cycles are recipe bugs caught at load time.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle in recipes: %s", strings.Join(e.Cycle, " -> "))
}

// findCycle looks for a cycle in the requires.binaries graph.
// Returns the cycle path or nil.
func (r *Registry) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int)
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)

		rec := r.recipes[name]
		if rec != nil {
			for _, bin := range rec.Requires.Binaries {
				entry, _ := SplitConstraint(bin)
				dep := r.ProviderOf(entry)
				if dep == "" {
					continue
				}
				switch color[dep] {
				case gray:
					// Trim the stack to the cycle start.
					for i, n := range stack {
						if n == dep {
							return append(append([]string{}, stack[i:]...), dep)
						}
					}
				case white:
					if cycle := visit(dep); cycle != nil {
						return cycle
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range r.List() {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// SplitConstraint splits a requires.binaries entry into the recipe id and
// an optional semver constraint ("jq>=1.6" -> "jq", ">=1.6").
func SplitConstraint(entry string) (id, constraint string) {
	for i, r := range entry {
		if r == '>' || r == '<' || r == '=' || r == '^' || r == '~' {
			return strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i:])
		}
	}
	return strings.TrimSpace(entry), ""
}
