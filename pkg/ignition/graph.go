package ignition

import (
	"reflect"
)

// node is an internal Graph vertex: a signal plus its resolved edges.
type node struct {
	signal       *Signal
	dependencies map[string]*node
	dependents   map[string]*node
}

// Graph is a DAG of signals with resolved dependencies, exposing query
// operations in topological order. Build it with GraphBuilder.
type Graph struct {
	nodes    map[string]*node
	topoSort []*Signal
}

// Signals returns every signal in topological (dependency-first) order.
func (g *Graph) Signals() []*Signal {
	out := make([]*Signal, len(g.topoSort))
	copy(out, g.topoSort)
	return out
}

// RootSignals returns signals with no dependencies.
func (g *Graph) RootSignals() []*Signal {
	var roots []*Signal
	for _, s := range g.topoSort {
		if len(g.nodes[s.Name].dependencies) == 0 {
			roots = append(roots, s)
		}
	}
	return roots
}

// LeafSignals returns signals with no dependents.
func (g *Graph) LeafSignals() []*Signal {
	var leaves []*Signal
	for _, s := range g.topoSort {
		if len(g.nodes[s.Name].dependents) == 0 {
			leaves = append(leaves, s)
		}
	}
	return leaves
}

// Dependencies returns the direct dependencies of s.
func (g *Graph) Dependencies(s *Signal) []*Signal {
	n, ok := g.nodes[s.Name]
	if !ok {
		return nil
	}
	out := make([]*Signal, 0, len(n.dependencies))
	for _, d := range n.dependencies {
		out = append(out, d.signal)
	}
	return out
}

// Dependents returns the direct dependents of s.
func (g *Graph) Dependents(s *Signal) []*Signal {
	n, ok := g.nodes[s.Name]
	if !ok {
		return nil
	}
	out := make([]*Signal, 0, len(n.dependents))
	for _, d := range n.dependents {
		out = append(out, d.signal)
	}
	return out
}

// transitiveDependents returns every signal reachable by following
// dependents edges from s, used for failure-cascade classification.
func (g *Graph) transitiveDependents(s *Signal) []*Signal {
	visited := map[string]bool{}
	var out []*Signal
	var walk func(n *node)
	walk = func(n *node) {
		for name, d := range n.dependents {
			if visited[name] {
				continue
			}
			visited[name] = true
			out = append(out, d.signal)
			walk(d)
		}
	}
	if n, ok := g.nodes[s.Name]; ok {
		walk(n)
	}
	return out
}

// GraphBuilder incrementally assembles a Graph.
type GraphBuilder struct {
	nodes map[string]*node
	order []string
	err   error
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{nodes: make(map[string]*node)}
}

// AddSignal registers a signal with the graph. Duplicate names are a
// configuration error, raised at Build time.
func (b *GraphBuilder) AddSignal(s *Signal) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if err := s.validate(); err != nil {
		b.err = err
		return b
	}
	if _, exists := b.nodes[s.Name]; exists {
		b.err = configErrorf("graph", "duplicate signal name %q", s.Name)
		return b
	}
	b.nodes[s.Name] = &node{signal: s, dependencies: map[string]*node{}, dependents: map[string]*node{}}
	b.order = append(b.order, s.Name)
	return b
}

// DependsOn declares that child depends on every signal in parents. Both
// child and parents must already be added.
func (b *GraphBuilder) DependsOn(child *Signal, parents ...*Signal) *GraphBuilder {
	if b.err != nil {
		return b
	}
	cn, ok := b.nodes[child.Name]
	if !ok {
		b.err = configErrorf("graph", "dependsOn: child %q was never added", child.Name)
		return b
	}
	for _, p := range parents {
		pn, ok := b.nodes[p.Name]
		if !ok {
			b.err = configErrorf("graph", "dependsOn: %q depends on unregistered signal %q", child.Name, p.Name)
			return b
		}
		cn.dependencies[p.Name] = pn
		pn.dependents[child.Name] = cn
	}
	return b
}

// ApplyAttributeDependencies resolves every signal's declarative
// dependency metadata (DependsOnName/DependsOnType) against the signals
// already added. Name resolution wins when both are declared for the
// same signal: its type declarations are then ignored. A declared name with no matching signal is a
// configuration error.
func (b *GraphBuilder) ApplyAttributeDependencies() *GraphBuilder {
	if b.err != nil {
		return b
	}
	for _, name := range b.order {
		n := b.nodes[name]
		s := n.signal
		for _, targetName := range s.dependencyNames {
			target, ok := b.nodes[targetName]
			if !ok {
				b.err = configErrorf("graph", "signal %q declares dependency on missing target %q", s.Name, targetName)
				return b
			}
			n.dependencies[targetName] = target
			target.dependents[s.Name] = n
		}
		if len(s.dependencyNames) > 0 {
			continue
		}
		for _, sample := range s.dependencyTypes {
			wantType := reflect.TypeOf(sample)
			matched := false
			for _, candidateName := range b.order {
				if candidateName == s.Name {
					continue
				}
				candidate := b.nodes[candidateName]
				if candidate.signal.typeTag != nil && reflect.TypeOf(candidate.signal.typeTag) == wantType {
					n.dependencies[candidateName] = candidate
					candidate.dependents[s.Name] = n
					matched = true
				}
			}
			if !matched {
				b.err = configErrorf("graph", "signal %q declares dependency on type %T with no matching signal", s.Name, sample)
				return b
			}
		}
	}
	return b
}

// Build performs a Kahn topological sort. Fewer emitted nodes than
// registered nodes means a cycle exists; the error names one signal on
// the cycle. Self-loops count as a cycle of length one.
func (b *GraphBuilder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	inDegree := make(map[string]int, len(b.nodes))
	for name, n := range b.nodes {
		inDegree[name] = len(n.dependencies)
	}

	var queue []string
	for _, name := range b.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	sorted := make([]*Signal, 0, len(b.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		n := b.nodes[name]
		sorted = append(sorted, n.signal)

		dependentNames := make([]string, 0, len(n.dependents))
		for depName := range n.dependents {
			dependentNames = append(dependentNames, depName)
		}
		for _, depName := range b.order {
			for _, d := range dependentNames {
				if d == depName {
					inDegree[depName]--
					if inDegree[depName] == 0 {
						queue = append(queue, depName)
					}
				}
			}
		}
	}

	if len(sorted) < len(b.nodes) {
		// Every unsorted node still has an unsorted dependency, so walking
		// those edges from any unsorted node must revisit a node, and the
		// first node revisited lies on a cycle.
		for _, name := range b.order {
			if inDegree[name] > 0 {
				seen := map[string]bool{}
				for !seen[name] {
					seen[name] = true
					for depName := range b.nodes[name].dependencies {
						if inDegree[depName] > 0 {
							name = depName
							break
						}
					}
				}
				return nil, configErrorf("graph", "cycle detected involving signal %q", name)
			}
		}
		return nil, configErrorf("graph", "cycle detected")
	}

	g := &Graph{nodes: b.nodes, topoSort: sorted}
	return g, nil
}
