package pkgforge

import "fmt"

// Phase is a named build script. Package.Phases is keyed for lookup;
// Package.PhaseOrder lists the phase names sorted alphabetically. The
// declaration order in the definition files is not preserved.
type Phase struct {
	Name   string `toml:"-"`
	Script string `toml:"script"`
}

// PackageDependencies holds a package's build and runtime dependency
// lists as two ordered sequences, each element a Simple or Conditional
// Dependency.
type PackageDependencies struct {
	Build   []Dependency `toml:"build,omitempty"`
	Runtime []Dependency `toml:"runtime,omitempty"`
}

// Package is the parsed, immutable package record produced by the loader:
// metadata plus sources, dependencies, phases and environment. Once
// returned from the loader a Package is never mutated; the Dag clones it
// by value into each node.
type Package struct {
	Name         PackageName         `toml:"name"`
	Version      PackageVersion      `toml:"version"`
	Sources      map[string]Source   `toml:"sources,omitempty"`
	Dependencies PackageDependencies `toml:"dependencies,omitempty"`
	Environment  map[string]string   `toml:"environment,omitempty"`
	Phases       map[string]Phase    `toml:"phases,omitempty"`
	// PhaseOrder holds the phase names in alphabetical order, set by the
	// loader; the Phases map itself is unordered.
	PhaseOrder []string `toml:"-"`
}

// AllDependencies concatenates build and runtime dependencies, each tagged
// with its DependencyKind, in the order the DAG-Builder requires: build
// first, then runtime.
func (p Package) AllDependencies() []taggedDependency {
	out := make([]taggedDependency, 0, len(p.Dependencies.Build)+len(p.Dependencies.Runtime))
	for _, d := range p.Dependencies.Build {
		out = append(out, taggedDependency{Dependency: d, Kind: KindBuild})
	}
	for _, d := range p.Dependencies.Runtime {
		out = append(out, taggedDependency{Dependency: d, Kind: KindRuntime})
	}
	return out
}

type taggedDependency struct {
	Dependency
	Kind DependencyKind
}

// Key returns the (name, version) identity pair used for node uniqueness
// and repository indexing.
type PackageKey struct {
	Name    PackageName
	Version PackageVersion
}

func (p Package) Key() PackageKey {
	return PackageKey{Name: p.Name, Version: p.Version}
}

func (k PackageKey) String() string {
	return fmt.Sprintf("%s-%s", k.Name, k.Version)
}
