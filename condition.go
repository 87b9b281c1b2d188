package pkgforge

import "os"

// EnvPair is a single environment variable name/value binding.
type EnvPair struct {
	Name  string
	Value string
}

// Condition gates whether a conditional Dependency edge is active. Every
// unset field is vacuously true; a zero-value Condition always holds.
type Condition struct {
	HasEnv  []string  `toml:"has_env,omitempty"`
	EnvEq   []EnvPair `toml:"env_eq,omitempty"`
	InImage []string  `toml:"in_image,omitempty"`
}

// IsTrivial reports whether the condition has no constraints at all.
func (c Condition) IsTrivial() bool {
	return len(c.HasEnv) == 0 && len(c.EnvEq) == 0 && len(c.InImage) == 0
}

// ConditionData is the evaluation context for a Condition: the build image
// name (if any) and the environment bindings known to the build request.
type ConditionData struct {
	ImageName string
	Env       []EnvPair
}

func (d ConditionData) lookup(name string) (string, bool) {
	for _, p := range d.Env {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Evaluate decides whether c holds under d. has_env falls back to the
// process environment only when the key is absent from d.Env.
// Evaluation is total and side-effect free.
func (c Condition) Evaluate(d ConditionData) bool {
	for _, name := range c.HasEnv {
		if _, ok := d.lookup(name); ok {
			continue
		}
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		return false
	}

	for _, pair := range c.EnvEq {
		v, ok := d.lookup(pair.Name)
		if !ok || v != pair.Value {
			return false
		}
	}

	if len(c.InImage) > 0 {
		if d.ImageName == "" {
			return false
		}
		matched := false
		for _, name := range c.InImage {
			if name == d.ImageName {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}
