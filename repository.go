package pkgforge

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Repository is an ordered index from (name, version) to Package, built
// once by the loader and treated as immutable afterward.
type Repository struct {
	order []PackageKey
	byKey map[PackageKey]Package
}

// NewRepository builds a Repository from packages in insertion order.
// Duplicate (name, version) pairs are rejected with DuplicatePackageError.
func NewRepository(packages []Package) (*Repository, error) {
	r := &Repository{byKey: make(map[PackageKey]Package, len(packages))}
	for _, p := range packages {
		key := p.Key()
		if _, exists := r.byKey[key]; exists {
			return nil, &DuplicatePackageError{Name: p.Name, Version: p.Version}
		}
		r.byKey[key] = p
		r.order = append(r.order, key)
	}
	return r, nil
}

// Packages enumerates all packages in insertion order.
func (r *Repository) Packages() []Package {
	out := make([]Package, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Get looks up a package by exact (name, version).
func (r *Repository) Get(name PackageName, version PackageVersion) (Package, bool) {
	p, ok := r.byKey[PackageKey{Name: name, Version: version}]
	return p, ok
}

// FindWithVersion returns every package matching name whose version
// satisfies constraint, ascending by version. Ties are resolved by the
// caller taking the first match; FindWithVersion itself only logs a
// diagnostic when more than one match exists.
func (r *Repository) FindWithVersion(name PackageName, constraint PackageVersionConstraint) []Package {
	var matches []Package
	for _, key := range r.order {
		if key.Name != name {
			continue
		}
		p := r.byKey[key]
		if constraint.Matches(p.Version) {
			matches = append(matches, p)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Version.Compare(matches[j].Version) < 0
	})

	if len(matches) > 1 {
		logrus.WithFields(logrus.Fields{
			"name":       name,
			"constraint": constraint.String(),
			"matches":    len(matches),
		}).Debug("multiple packages satisfy dependency constraint, taking first match")
	}

	return matches
}
