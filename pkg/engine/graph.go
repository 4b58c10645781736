package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Resolver orders a deployment's enabled modules so that every module is
// provisioned after all of its dependencies. Resolution is deterministic:
// when several modules are simultaneously ready, declaration order breaks
// the tie.
type Resolver struct {
	// modules maps module names to their declarations
	modules map[string]*Module

	// declIndex maps module names to their declaration position
	declIndex map[string]int

	// adjacency maps module names to their dependents
	adjacency map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int
}

// NewResolver creates a resolver over the given declarations. Disabled
// modules are excluded from the graph entirely.
func NewResolver() *Resolver {
	return &Resolver{
		modules:   make(map[string]*Module),
		declIndex: make(map[string]int),
		adjacency: make(map[string][]string),
		inDegree:  make(map[string]int),
	}
}

// Resolve validates the dependency graph and returns the enabled modules in
// provisioning order. The same declarations always yield the same order.
func (r *Resolver) Resolve(modules []Module) ([]*Module, error) {
	if err := r.initialize(modules); err != nil {
		return nil, err
	}

	if err := r.detectCycles(); err != nil {
		return nil, err
	}

	return r.topoSort()
}

// ReverseResolve returns the enabled modules in teardown order: the exact
// reverse of the provisioning order.
func (r *Resolver) ReverseResolve(modules []Module) ([]*Module, error) {
	ordered, err := r.Resolve(modules)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered, nil
}

// initialize indexes the declarations and builds adjacency lists.
func (r *Resolver) initialize(modules []Module) error {
	// First pass: index enabled modules by name
	names := make(map[string]bool, len(modules))
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			return NewConfigurationError("module has empty name", nil).
				WithCode(ErrCodeMissingInput)
		}
		if names[m.Name] {
			return NewConfigurationError(fmt.Sprintf("duplicate module name: %s", m.Name), nil).
				WithCode(ErrCodeDuplicate).WithModule(m.Name)
		}
		names[m.Name] = true
		if !m.Enabled {
			continue
		}

		r.modules[m.Name] = m
		r.declIndex[m.Name] = i
		r.adjacency[m.Name] = make([]string, 0)
		r.inDegree[m.Name] = 0
	}

	// Second pass: build edges and validate dependency targets
	for name, m := range r.modules {
		seen := make(map[string]bool)
		for _, dep := range m.DependsOn {
			if _, exists := r.modules[dep]; !exists {
				return NewConfigurationError(
					fmt.Sprintf("module %s depends on unknown or disabled module %s", name, dep),
					nil,
				).WithCode(ErrCodeUnknownModule).WithModule(name)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true

			// Edge from dependency to dependent: the dependency must be
			// provisioned first.
			r.adjacency[dep] = append(r.adjacency[dep], name)
			r.inDegree[name]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to find circular dependencies. The
// returned error names the full cycle path.
func (r *Resolver) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	// Iterate in declaration order so the reported cycle is stable.
	for _, name := range r.declarationOrder() {
		if !visited[name] {
			if cycle := r.findCycle(name, visited, recStack, nil); cycle != nil {
				// Wrapped so the error is both a configuration error and
				// inspectable as a CyclicDependencyError.
				return NewConfigurationError("invalid module graph",
					&CyclicDependencyError{Modules: cycle}).WithCode(ErrCodeCycle)
			}
		}
	}

	return nil
}

// findCycle performs DFS and returns the cycle path when one is found.
func (r *Resolver) findCycle(name string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dependent := range r.sortedDependents(name) {
		if !visited[dependent] {
			if cycle := r.findCycle(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, n := range path {
				if n == dependent {
					return append(path[i:], dependent)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

// topoSort runs Kahn's algorithm with a declaration-ordered ready queue.
func (r *Resolver) topoSort() ([]*Module, error) {
	inDegree := make(map[string]int, len(r.inDegree))
	for name, degree := range r.inDegree {
		inDegree[name] = degree
	}

	ready := make([]string, 0)
	for _, name := range r.declarationOrder() {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	ordered := make([]*Module, 0, len(r.modules))
	for len(ready) > 0 {
		// The ready queue is kept sorted by declaration index, so the head
		// is always the earliest-declared ready module.
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, r.modules[name])

		for _, dependent := range r.adjacency[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return r.declIndex[ready[i]] < r.declIndex[ready[j]]
		})
	}

	// Should never trip once detectCycles has passed.
	if len(ordered) != len(r.modules) {
		return nil, NewConfigurationError("failed to order all modules", nil).
			WithCode(ErrCodeInternal)
	}

	return ordered, nil
}

// declarationOrder returns all enabled module names sorted by declaration
// position.
func (r *Resolver) declarationOrder() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.declIndex[names[i]] < r.declIndex[names[j]]
	})
	return names
}

// sortedDependents returns a node's dependents sorted by declaration
// position, for deterministic traversal.
func (r *Resolver) sortedDependents(name string) []string {
	dependents := make([]string, len(r.adjacency[name]))
	copy(dependents, r.adjacency[name])
	sort.Slice(dependents, func(i, j int) bool {
		return r.declIndex[dependents[i]] < r.declIndex[dependents[j]]
	})
	return dependents
}

// ToDOT generates a DOT representation of the module graph for Graphviz.
func (r *Resolver) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ModuleGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, name := range r.declarationOrder() {
		sb.WriteString(fmt.Sprintf("  %q;\n", name))
	}
	sb.WriteString("\n")

	for _, name := range r.declarationOrder() {
		for _, dep := range r.modules[name].DependsOn {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
