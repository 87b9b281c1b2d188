package pkgforge

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// SelectionKind discriminates the ways a caller may narrow a set of
// packages down to the sources that verify_sources/download_sources act
// on: the full set, an exact name, a name plus version constraint, or a
// regular expression over the name.
type SelectionKind int

const (
	SelectAll SelectionKind = iota
	SelectByName
	SelectByNameConstraint
	SelectByRegex
)

// Selection narrows the packages a source-pass operates over. It is the
// core-side half of the CLI's --package/--regex selection flags; the CLI
// itself is out of scope for this package.
type Selection struct {
	Kind       SelectionKind
	Name       PackageName
	Constraint PackageVersionConstraint
	Regex      *regexp.Regexp
}

// SelectAllPackages returns a Selection matching every package.
func SelectAllPackages() Selection { return Selection{Kind: SelectAll} }

// SelectPackageByName returns a Selection matching every version of name.
func SelectPackageByName(name PackageName) Selection {
	return Selection{Kind: SelectByName, Name: name}
}

// SelectPackageByNameConstraint returns a Selection matching name at
// versions satisfying constraint.
func SelectPackageByNameConstraint(name PackageName, constraint PackageVersionConstraint) Selection {
	return Selection{Kind: SelectByNameConstraint, Name: name, Constraint: constraint}
}

// SelectPackageByRegex returns a Selection matching any package name
// accepted by re.
func SelectPackageByRegex(re *regexp.Regexp) Selection {
	return Selection{Kind: SelectByRegex, Regex: re}
}

// Matches reports whether p is selected.
func (s Selection) Matches(p Package) bool {
	switch s.Kind {
	case SelectAll:
		return true
	case SelectByName:
		return p.Name == s.Name
	case SelectByNameConstraint:
		return p.Name == s.Name && s.Constraint.Matches(p.Version)
	case SelectByRegex:
		return s.Regex != nil && s.Regex.MatchString(string(p.Name))
	default:
		return false
	}
}

// BuildDag is the core's entry point for resolving a build request: it
// looks the root up in repo (failing with ErrUnknownPackage if absent or
// ambiguous constraints match nothing) and expands its transitive
// dependency graph under data.
func BuildDag(repo *Repository, rootName PackageName, rootVersion *PackageVersionConstraint, data ConditionData) (*Dag, error) {
	var matches []Package
	if rootVersion != nil {
		matches = repo.FindWithVersion(rootName, *rootVersion)
	} else {
		for _, p := range repo.Packages() {
			if p.Name == rootName {
				matches = append(matches, p)
			}
		}
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Version.Compare(matches[j].Version) < 0
		})
	}

	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrUnknownPackage, "%s", rootName)
	}

	return ForRootPackage(matches[0], repo, data)
}

// entriesFor expands a Dag's nodes into the SourceEntry set matched by
// sel, using cache's canonical path layout.
func entriesFor(g *Dag, cache *SourceCache, sel Selection) []SourceEntry {
	var out []SourceEntry
	for _, pkg := range g.Nodes() {
		if !sel.Matches(pkg) {
			continue
		}
		out = append(out, cache.SourcesFor(pkg)...)
	}
	return out
}

// VerifySelection is the core's verify_sources(selection) entry point: it
// narrows g's nodes to sel, then verifies every resulting source entry
// with fanOut concurrency, reporting progress to sink.
func VerifySelection(ctx context.Context, g *Dag, cache *SourceCache, sel Selection, fanOut int, sink io.Writer) ([]EntryResult, error) {
	return VerifySources(ctx, cache, entriesFor(g, cache, sel), fanOut, sink)
}

// DownloadSelection is the core's download_sources(selection) entry point:
// it narrows g's nodes to sel, then downloads every resulting source entry
// (skipping those already present and verified, and those marked
// download_manually) with fanOut concurrency.
func DownloadSelection(ctx context.Context, g *Dag, cache *SourceCache, client *http.Client, sel Selection, fanOut int, timeout time.Duration, sink io.Writer) ([]EntryResult, error) {
	return DownloadSources(ctx, cache, client, entriesFor(g, cache, sel), fanOut, timeout, sink)
}
