package pkgforge

import (
	goerrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Concrete failures wrap one of these with
// github.com/pkg/errors so that callers can test with errors.Is while still
// getting a full cause chain for display.
var (
	ErrBadConstraint     = goerrors.New("bad version constraint")
	ErrBadDependencySpec = goerrors.New("bad dependency spec")
	ErrBadCondition      = goerrors.New("bad condition")
	ErrBadEnvPair        = goerrors.New("bad env pair")
	ErrBadSourceHash     = goerrors.New("bad source hash")
	ErrUnknownPackage    = goerrors.New("unknown package")
	ErrCyclicDependency  = goerrors.New("cyclic dependency")
	ErrDuplicatePackage  = goerrors.New("duplicate package")
	ErrNonUTF8Path       = goerrors.New("non-utf8 path component")
	ErrMissingSource     = goerrors.New("source missing")
	ErrHashMismatch      = goerrors.New("hash mismatch")
	ErrSourceIoError     = goerrors.New("source i/o error")
	ErrTimeout           = goerrors.New("timeout")
	ErrAtLeastOneFailed  = goerrors.New("at least one package failed source verification")
)

// UnsatisfiedDependencyError records a dependency that could not be
// resolved against the repository index while expanding a Dag.
type UnsatisfiedDependencyError struct {
	Dependent PackageName
	Wanted    PackageName
	Version   PackageVersionConstraint
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("dependency of %s not found: %s %s", e.Dependent, e.Wanted, e.Version)
}

func (e *UnsatisfiedDependencyError) Unwrap() error { return ErrUnknownPackage }

// NewUnsatisfiedDependency wraps an UnsatisfiedDependencyError with context.
func NewUnsatisfiedDependency(dependent, wanted PackageName, constraint PackageVersionConstraint) error {
	return errors.WithStack(&UnsatisfiedDependencyError{Dependent: dependent, Wanted: wanted, Version: constraint})
}

// CyclicDependencyError records the names participating in a dependency
// cycle discovered while building a Dag.
type CyclicDependencyError struct {
	Path []PackageName
}

func (e *CyclicDependencyError) Error() string {
	s := "{ "
	for i, n := range e.Path {
		if i > 0 {
			s += ", "
		}
		s += string(n)
	}
	return fmt.Sprintf("dependency cycle: %s }", s)
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// DuplicatePackageError records a (name, version) pair that the loader saw
// defined more than once across the repository.
type DuplicatePackageError struct {
	Name    PackageName
	Version PackageVersion
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("duplicate package %s %s", e.Name, e.Version)
}

func (e *DuplicatePackageError) Unwrap() error { return ErrDuplicatePackage }
