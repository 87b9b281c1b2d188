package pkgforge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// PackageName is a package identifier: a letter followed by letters,
// digits, or underscores. Ordering is lexicographic and equality is
// plain string equality.
type PackageName string

var packageNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidPackageName reports whether s satisfies the PackageName grammar.
func ValidPackageName(s string) bool {
	return packageNameRe.MatchString(s)
}

func (n PackageName) String() string { return string(n) }

// PackageVersion is a free-form version string. It is only parsed into
// comparable components when it needs to be matched against a
// PackageVersionConstraint.
type PackageVersion string

func (v PackageVersion) String() string { return string(v) }

// Compare orders two versions by semantic-version rules when both sides
// parse as semver (missing minor/patch parts count as zero). Otherwise it
// splits each side into runs of digits and non-digits and compares run by
// run: numerically when both runs are digits, lexicographically otherwise.
// It returns -1, 0, or 1.
func (v PackageVersion) Compare(other PackageVersion) int {
	if sv1, err1 := semver.NewVersion(string(v)); err1 == nil {
		if sv2, err2 := semver.NewVersion(string(other)); err2 == nil {
			return sv1.Compare(sv2)
		}
	}
	return compareComponents(string(v), string(other))
}

var versionComponentRe = regexp.MustCompile(`[0-9]+|[^0-9]+`)

func compareComponents(a, b string) int {
	ac := versionComponentRe.FindAllString(a, -1)
	bc := versionComponentRe.FindAllString(b, -1)
	for i := 0; i < len(ac) && i < len(bc); i++ {
		an, aerr := strconv.Atoi(ac[i])
		bn, berr := strconv.Atoi(bc[i])
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if ac[i] != bc[i] {
			return strings.Compare(ac[i], bc[i])
		}
	}
	switch {
	case len(ac) < len(bc):
		return -1
	case len(ac) > len(bc):
		return 1
	default:
		return 0
	}
}

// ConstraintOp is a version constraint operator. Only Eq is currently
// implemented; parsing any other recognized-but-unimplemented operator
// returns ErrBadConstraint rather than silently accepting it.
type ConstraintOp string

const (
	OpEq ConstraintOp = "="
)

// PackageVersionConstraint is a relational predicate over PackageVersion.
type PackageVersionConstraint struct {
	Op      ConstraintOp
	Version PackageVersion
}

var constraintOps = []ConstraintOp{OpEq}

// ParseConstraint parses a version constraint of the form "<op><version>",
// e.g. "=1.2.3". Unrecognized or unimplemented operators produce
// ErrBadConstraint.
func ParseConstraint(s string) (PackageVersionConstraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PackageVersionConstraint{}, errors.Wrap(ErrBadConstraint, "empty constraint")
	}

	for _, op := range constraintOps {
		if strings.HasPrefix(s, string(op)) {
			v := strings.TrimSpace(strings.TrimPrefix(s, string(op)))
			if !validVersionGrammar(v) {
				return PackageVersionConstraint{}, errors.Wrapf(ErrBadConstraint, "invalid version %q", v)
			}
			return PackageVersionConstraint{Op: op, Version: PackageVersion(v)}, nil
		}
	}

	return PackageVersionConstraint{}, errors.Wrapf(ErrBadConstraint, "unsupported operator in %q", s)
}

var versionGrammarRe = regexp.MustCompile(`^[0-9][0-9A-Za-z.\-_]*$`)

func validVersionGrammar(v string) bool {
	return versionGrammarRe.MatchString(v)
}

// Matches reports whether v satisfies the constraint.
func (c PackageVersionConstraint) Matches(v PackageVersion) bool {
	switch c.Op {
	case OpEq:
		return v.Compare(c.Version) == 0
	default:
		return false
	}
}

// String renders the constraint back to its canonical "<op><version>" form.
func (c PackageVersionConstraint) String() string {
	return fmt.Sprintf("%s%s", c.Op, c.Version)
}
