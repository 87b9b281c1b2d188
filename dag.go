package pkgforge

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmengelbert/stack"
	"golang.org/x/exp/constraints"
	"k8s.io/apimachinery/pkg/util/sets"
)

// edge is one directed dependency edge, kept in a set so that the same
// (from, to, kind) triple is never inserted twice.
type edge struct {
	from PackageKey
	to   PackageKey
	kind DependencyKind
}

// triple is a deduplication key for a package's surviving, parsed
// dependencies before they are resolved against the Repository.
type triple struct {
	name       PackageName
	constraint PackageVersionConstraint
	kind       DependencyKind
}

// Dag is the resolved, condition-pruned dependency graph for a root
// package. Node weights are Package values cloned at construction time;
// edge weights are DependencyKind. A Dag is immutable once built.
type Dag struct {
	root    PackageKey
	nodes   map[PackageKey]Package
	order   []PackageKey
	edges   sets.Set[edge]
	ordered []PackageKey
}

// Root returns the package the Dag was built for.
func (g *Dag) Root() Package {
	return g.nodes[g.root]
}

// Get returns the node package for key, if present.
func (g *Dag) Get(key PackageKey) (Package, bool) {
	p, ok := g.nodes[key]
	return p, ok
}

// Nodes returns all packages in insertion order, which is the breadth-first
// discovery order of expansion starting at the root.
func (g *Dag) Nodes() []Package {
	out := make([]Package, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.nodes[key])
	}
	return out
}

// Edges returns every edge in the graph. Order is unspecified.
func (g *Dag) Edges() []edge {
	return g.edges.UnsortedList()
}

// TopologicalOrder returns the nodes in dependency order: every node
// appears after all the nodes it depends on.
func (g *Dag) TopologicalOrder() []Package {
	out := make([]Package, 0, len(g.ordered))
	for _, key := range g.ordered {
		out = append(out, g.nodes[key])
	}
	return out
}

func collectTriples(p Package, data ConditionData) ([]triple, error) {
	seen := sets.New[triple]()
	var out []triple
	for _, dep := range p.AllDependencies() {
		if !dep.ConditionOf().Evaluate(data) {
			continue
		}
		name, constraint, err := dep.ParseNameAndVersion()
		if err != nil {
			return nil, errors.Wrapf(err, "package %s", p.Name)
		}
		t := triple{name: name, constraint: constraint, kind: dep.Kind}
		if seen.Has(t) {
			continue
		}
		seen.Insert(t)
		out = append(out, t)
	}
	return out, nil
}

// ForRootPackage expands the transitive dependency graph rooted at root
// under the given Repository and ConditionData. It is synchronous and
// CPU-bound: no suspension occurs anywhere in expansion.
func ForRootPackage(root Package, repo *Repository, data ConditionData) (*Dag, error) {
	g := &Dag{
		root:  root.Key(),
		nodes: map[PackageKey]Package{root.Key(): root},
		order: []PackageKey{root.Key()},
		edges: sets.New[edge](),
	}

	// Expansion: breadth-first over not-yet-visited nodes, adding new
	// nodes as dependencies are resolved. No edges are recorded here.
	queue := []PackageKey{root.Key()}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		pkg := g.nodes[key]

		triples, err := collectTriples(pkg, data)
		if err != nil {
			return nil, err
		}

		for _, t := range triples {
			matches := repo.FindWithVersion(t.name, t.constraint)
			if len(matches) == 0 {
				return nil, NewUnsatisfiedDependency(pkg.Name, t.name, t.constraint)
			}
			matched := matches[0]
			mkey := matched.Key()
			if _, exists := g.nodes[mkey]; exists {
				continue
			}
			g.nodes[mkey] = matched
			g.order = append(g.order, mkey)
			queue = append(queue, mkey)
		}
	}

	// Edge insertion: re-enumerate every mapped node's dependencies and
	// connect an edge to every already-mapped match.
	for _, key := range g.order {
		pkg := g.nodes[key]
		triples, err := collectTriples(pkg, data)
		if err != nil {
			return nil, err
		}
		for _, t := range triples {
			matches := repo.FindWithVersion(t.name, t.constraint)
			for _, m := range matches {
				mkey := m.Key()
				if _, ok := g.nodes[mkey]; !ok {
					continue
				}
				g.edges.Insert(edge{from: key, to: mkey, kind: t.kind})
			}
		}
	}

	ordered, err := tarjanOrder(g.order, g.edges)
	if err != nil {
		return nil, err
	}
	g.ordered = ordered

	return g, nil
}

type vertex struct {
	key     PackageKey
	index   *int
	lowlink int
	onStack bool
}

// tarjanOrder runs Tarjan's strongly connected components algorithm over
// the edge set and returns nodes in topological (dependency-first) order.
// Any strongly connected component containing more than one vertex is a
// cycle and is rejected.
func tarjanOrder(nodeOrder []PackageKey, edges sets.Set[edge]) ([]PackageKey, error) {
	vertices := make([]*vertex, len(nodeOrder))
	byKey := make(map[PackageKey]*vertex, len(nodeOrder))
	for i, key := range nodeOrder {
		v := &vertex{key: key}
		vertices[i] = v
		byKey[key] = v
	}

	index := 0
	s := stack.New[*vertex]()
	var components [][]*vertex

	var strongConnect func(v *vertex)
	strongConnect = func(v *vertex) {
		v.index = new(int)
		*v.index = index
		v.lowlink = index
		index++

		s.Push(v)
		v.onStack = true

		for e := range edges {
			if e.from != v.key {
				continue
			}
			w := byKey[e.to]
			if w.index == nil {
				strongConnect(w)
				v.lowlink = minInt(v.lowlink, w.lowlink)
				continue
			}
			if w.onStack {
				v.lowlink = minInt(v.lowlink, *w.index)
			}
		}

		if v.lowlink == *v.index {
			var component []*vertex
			var w *vertex
			isSome := func(o stack.Option[*vertex]) bool {
				if o.IsSome() {
					w = o.Unwrap()
					return true
				}
				return false
			}
			for opt := s.Pop(); isSome(opt); opt = s.Pop() {
				w.onStack = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, v := range vertices {
		if v.index == nil {
			strongConnect(v)
		}
	}

	var ordered []PackageKey
	for _, component := range components {
		if len(component) > 1 {
			names := make([]PackageName, 0, len(component))
			for _, v := range component {
				names = append(names, v.key.Name)
			}
			return nil, errors.WithStack(&CyclicDependencyError{Path: names})
		}
		ordered = append(ordered, component[0].key)
	}

	// Tarjan emits a component only after every component reachable from
	// it, so with edges pointing from dependent to dependency the emission
	// order is already dependency-first.
	return ordered, nil
}

func minInt[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// PreOrder renders the graph as an indented tree starting at the root.
// Shared nodes are printed once per path they're reachable from. Edges are
// kept in an unordered set, so the order in which a node's children are
// printed is not defined.
func (g *Dag) PreOrder() string {
	adjacency := make(map[PackageKey][]PackageKey)
	for _, key := range g.order {
		for e := range g.edges {
			if e.from == key {
				adjacency[key] = append(adjacency[key], e.to)
			}
		}
	}

	var sb strings.Builder
	var walk func(key PackageKey, depth int, visited map[PackageKey]bool)
	walk = func(key PackageKey, depth int, visited map[PackageKey]bool) {
		pkg := g.nodes[key]
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(fmt.Sprintf("%s %s\n", pkg.Name, pkg.Version))
		if visited[key] {
			return
		}
		visited[key] = true
		for _, child := range adjacency[key] {
			walk(child, depth+1, visited)
		}
	}
	walk(g.root, 0, map[PackageKey]bool{})
	return sb.String()
}

// DOT renders the graph in Graphviz DOT form, coloring build edges blue
// and runtime edges black.
func (g *Dag) DOT() string {
	var sb strings.Builder
	sb.WriteString("digraph dag {\n")
	for _, key := range g.order {
		pkg := g.nodes[key]
		sb.WriteString(fmt.Sprintf("  %q;\n", fmt.Sprintf("%s-%s", pkg.Name, pkg.Version)))
	}
	for e := range g.edges {
		from := g.nodes[e.from]
		to := g.nodes[e.to]
		color := "black"
		if e.kind == KindBuild {
			color = "blue"
		}
		sb.WriteString(fmt.Sprintf("  %q -> %q [color=%s];\n",
			fmt.Sprintf("%s-%s", from.Name, from.Version),
			fmt.Sprintf("%s-%s", to.Name, to.Version),
			color))
	}
	sb.WriteString("}\n")
	return sb.String()
}
