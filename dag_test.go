package pkgforge

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func mustDep(t *testing.T, spec string) Dependency {
	t.Helper()
	return Dependency{Spec: spec}
}

func condDep(t *testing.T, spec string, c Condition) Dependency {
	t.Helper()
	return Dependency{Spec: spec, Condition: c}
}

func pkg(name, version string) Package {
	return Package{Name: PackageName(name), Version: PackageVersion(version)}
}

func TestDagTwoPackageDirectDependency(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "b=2")}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)

	assert.Equal(t, len(g.Nodes()), 2)
	edges := g.Edges()
	assert.Equal(t, len(edges), 1)
	assert.Equal(t, edges[0].from, a.Key())
	assert.Equal(t, edges[0].to, b.Key())
	assert.Equal(t, edges[0].kind, KindRuntime)
}

func TestDagDiamondViaSharedTransitive(t *testing.T) {
	p1 := pkg("p1", "1")
	p1.Dependencies.Runtime = []Dependency{mustDep(t, "p2=2"), mustDep(t, "p4=4")}
	p2 := pkg("p2", "2")
	p2.Dependencies.Runtime = []Dependency{mustDep(t, "p3=3")}
	p4 := pkg("p4", "4")
	p4.Dependencies.Runtime = []Dependency{mustDep(t, "p3=3")}
	p3 := pkg("p3", "3")

	repo, err := NewRepository([]Package{p1, p2, p4, p3})
	assert.NilError(t, err)

	g, err := ForRootPackage(p1, repo, ConditionData{})
	assert.NilError(t, err)

	assert.Equal(t, len(g.Nodes()), 4)
	count := 0
	for _, n := range g.Nodes() {
		if n.Key() == p3.Key() {
			count++
		}
	}
	assert.Equal(t, count, 1)
	assert.Equal(t, len(g.Edges()), 4)
}

func TestDagConditionalPrunedByMissingImage(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{condDep(t, "b=2", Condition{InImage: []string{"fooimage"}})}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)
	assert.Equal(t, len(g.Nodes()), 1)
	assert.Equal(t, len(g.Edges()), 0)
}

func TestDagConditionalPrunedByWrongImage(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{condDep(t, "b=2", Condition{InImage: []string{"fooimage"}})}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{ImageName: "barimage"})
	assert.NilError(t, err)
	assert.Equal(t, len(g.Nodes()), 1)
}

func TestDagConditionalIncludedUnderMatchingImage(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{condDep(t, "b=2", Condition{InImage: []string{"fooimage"}})}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{ImageName: "fooimage"})
	assert.NilError(t, err)
	assert.Equal(t, len(g.Nodes()), 2)
	assert.Equal(t, len(g.Edges()), 1)
	assert.Equal(t, g.Edges()[0].kind, KindRuntime)
}

func TestDagUnsatisfiedDependency(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "missing=1")}

	repo, err := NewRepository([]Package{a})
	assert.NilError(t, err)

	_, err = ForRootPackage(a, repo, ConditionData{})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestDagCyclicDependency(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "b=1")}
	b := pkg("b", "1")
	b.Dependencies.Runtime = []Dependency{mustDep(t, "a=1")}

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	_, err = ForRootPackage(a, repo, ConditionData{})
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestDagNodeUniqueness(t *testing.T) {
	p1 := pkg("p1", "1")
	p1.Dependencies.Build = []Dependency{mustDep(t, "p2=2")}
	p1.Dependencies.Runtime = []Dependency{mustDep(t, "p2=2")}
	p2 := pkg("p2", "2")

	repo, err := NewRepository([]Package{p1, p2})
	assert.NilError(t, err)

	g, err := ForRootPackage(p1, repo, ConditionData{})
	assert.NilError(t, err)

	assert.Equal(t, len(g.Nodes()), 2)
	assert.Equal(t, len(g.Edges()), 2)
}

func TestDagRootHasNoIncomingEdges(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "b=2")}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)

	for _, e := range g.Edges() {
		assert.Check(t, e.to != a.Key())
	}
}

func TestDagTopologicalOrder(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "b=2")}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)

	order := g.TopologicalOrder()
	assert.Equal(t, len(order), 2)
	assert.Equal(t, order[0].Key(), b.Key())
	assert.Equal(t, order[1].Key(), a.Key())
}

func TestDagDOTContainsEdgeColors(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Build = []Dependency{mustDep(t, "b=2")}
	b := pkg("b", "2")

	repo, err := NewRepository([]Package{a, b})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)

	dot := g.DOT()
	assert.Check(t, strings.Contains(dot, `"a-1" -> "b-2" [color=blue];`))
}

func TestDagPreOrderIndentsByDepth(t *testing.T) {
	a := pkg("a", "1")
	a.Dependencies.Runtime = []Dependency{mustDep(t, "b=2")}
	b := pkg("b", "2")
	b.Dependencies.Runtime = []Dependency{mustDep(t, "c=3")}
	c := pkg("c", "3")

	repo, err := NewRepository([]Package{a, b, c})
	assert.NilError(t, err)

	g, err := ForRootPackage(a, repo, ConditionData{})
	assert.NilError(t, err)

	assert.Equal(t, g.PreOrder(), "a 1\n  b 2\n    c 3\n")
}

func TestDagPreOrderPrintsSharedNodeOncePerPath(t *testing.T) {
	p1 := pkg("p1", "1")
	p1.Dependencies.Runtime = []Dependency{mustDep(t, "p2=2"), mustDep(t, "p4=4")}
	p2 := pkg("p2", "2")
	p2.Dependencies.Runtime = []Dependency{mustDep(t, "p3=3")}
	p4 := pkg("p4", "4")
	p4.Dependencies.Runtime = []Dependency{mustDep(t, "p3=3")}
	p3 := pkg("p3", "3")

	repo, err := NewRepository([]Package{p1, p2, p4, p3})
	assert.NilError(t, err)

	g, err := ForRootPackage(p1, repo, ConditionData{})
	assert.NilError(t, err)

	out := g.PreOrder()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, len(lines), 5)
	assert.Equal(t, strings.Count(out, "p3 3\n"), 2)
	assert.Equal(t, strings.Count(out, "p1 1\n"), 1)
	assert.Equal(t, strings.Count(out, "p2 2\n"), 1)
	assert.Equal(t, strings.Count(out, "p4 4\n"), 1)
}
