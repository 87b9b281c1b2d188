package pkgforge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DependencyKind distinguishes build-time from runtime dependencies when a
// Dag records edge weights.
type DependencyKind string

const (
	KindBuild   DependencyKind = "build"
	KindRuntime DependencyKind = "runtime"
)

// Dependency is either a bare dependency spec string or one paired with a
// Condition that gates whether it applies: the Simple/Conditional variant
// the TOML schema allows.
type Dependency struct {
	Spec      string
	Condition Condition
}

// UnmarshalTOML accepts either a bare string ("name =version") or a table
// of the form { name = "<spec>", condition = { ... } }.
func (d *Dependency) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		d.Spec = v
		d.Condition = Condition{}
		return nil
	case map[string]interface{}:
		name, ok := v["name"].(string)
		if !ok {
			return errors.Wrap(ErrBadDependencySpec, "conditional dependency table missing string \"name\"")
		}
		d.Spec = name
		if raw, ok := v["condition"]; ok {
			cond, err := decodeCondition(raw)
			if err != nil {
				return err
			}
			d.Condition = cond
		}
		return nil
	default:
		return errors.Wrapf(ErrBadDependencySpec, "unsupported dependency shape %T", data)
	}
}

func decodeCondition(raw interface{}) (Condition, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Condition{}, errors.Wrap(ErrBadCondition, "condition must be a table")
	}

	var c Condition
	if v, ok := m["has_env"]; ok {
		names, err := toStringList(v)
		if err != nil {
			return Condition{}, errors.Wrap(err, "has_env")
		}
		c.HasEnv = names
	}
	if v, ok := m["in_image"]; ok {
		names, err := toStringList(v)
		if err != nil {
			return Condition{}, errors.Wrap(err, "in_image")
		}
		c.InImage = names
	}
	if v, ok := m["env_eq"]; ok {
		list, ok := v.([]interface{})
		if !ok {
			return Condition{}, errors.Wrap(ErrBadCondition, "env_eq must be a list of tables")
		}
		for _, item := range list {
			pm, ok := item.(map[string]interface{})
			if !ok {
				return Condition{}, errors.Wrap(ErrBadCondition, "env_eq entry must be a table")
			}
			name, _ := pm["name"].(string)
			value, _ := pm["value"].(string)
			if name == "" {
				return Condition{}, errors.Wrap(ErrBadCondition, "env_eq entry missing name")
			}
			c.EnvEq = append(c.EnvEq, EnvPair{Name: name, Value: value})
		}
	}
	return c, nil
}

// toStringList normalizes either a single string or a list of strings into
// a []string, matching the "string or list" leniency in the TOML schema.
func toStringList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Errorf("expected string or list of strings, got %T", v)
	}
}

var dependencyNameRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s*([=])([0-9][0-9A-Za-z.\-_]*)$`)

// ParseDependencySpec parses "<name> <op><version>" into a PackageName and
// a PackageVersionConstraint. Whitespace between name and operator is
// optional. Any deviation from the grammar is ErrBadDependencySpec.
func ParseDependencySpec(spec string) (PackageName, PackageVersionConstraint, error) {
	m := dependencyNameRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return "", PackageVersionConstraint{}, errors.Wrapf(ErrBadDependencySpec, "%q does not match \"name op version\"", spec)
	}
	name := PackageName(m[1])
	constraint := PackageVersionConstraint{Op: ConstraintOp(m[2]), Version: PackageVersion(m[3])}
	return name, constraint, nil
}

// condition_of / parse_as_name_and_version equivalent: ConditionOf returns
// the Condition gating d, and ParseNameAndVersion parses its spec string.
func (d Dependency) ConditionOf() Condition { return d.Condition }

func (d Dependency) ParseNameAndVersion() (PackageName, PackageVersionConstraint, error) {
	return ParseDependencySpec(d.Spec)
}

// String returns the dependency spec exactly as written; it is not
// normalized to a canonical form.
func (d Dependency) String() string {
	return d.Spec
}

var (
	envPairKeyRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// ParseEnvPair parses a "KEY=VALUE" string used at the CLI boundary by the
// execution layer. KEY must start with a letter and continue with
// letters/digits/underscore; VALUE is a non-empty string, optionally
// wrapped in double quotes.
func ParseEnvPair(s string) (EnvPair, error) {
	idx := strings.IndexByte(s, '=')
	if idx <= 0 || idx == len(s)-1 {
		return EnvPair{}, errors.Wrapf(ErrBadEnvPair, "%q is not KEY=VALUE", s)
	}

	key := s[:idx]
	value := s[idx+1:]

	if !envPairKeyRe.MatchString(key) {
		return EnvPair{}, errors.Wrapf(ErrBadEnvPair, "invalid key %q", key)
	}

	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	if value == "" {
		return EnvPair{}, errors.Wrapf(ErrBadEnvPair, "empty value in %q", s)
	}

	return EnvPair{Name: key, Value: value}, nil
}

func (p EnvPair) String() string {
	return fmt.Sprintf("%s=%s", p.Name, p.Value)
}
