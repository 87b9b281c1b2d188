package loader

import (
	"bytes"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/pkgforge/pkgforge"
)

// LoadRepository walks root, collects every pkg.toml, and resolves each
// leaf package's effective definition as the deep-merge of its inheritance
// chain (root-to-leaf, later fragments winning on scalars and sequences;
// maps merge recursively). The resulting packages are handed to
// pkgforge.NewRepository, which rejects duplicate (name, version) pairs.
func LoadRepository(root string) (*pkgforge.Repository, error) {
	tree, err := Load(root)
	if err != nil {
		return nil, err
	}

	var packages []pkgforge.Package
	for _, rel := range tree.Files() {
		isLeaf, err := tree.IsLeafFile(rel)
		if err != nil {
			return nil, err
		}
		if !isLeaf {
			continue
		}

		pkg, err := loadLeaf(tree, rel)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", rel)
		}
		packages = append(packages, pkg)
	}

	return pkgforge.NewRepository(packages)
}

func loadLeaf(tree *FS, rel string) (pkgforge.Package, error) {
	fragments, err := tree.GetFilesFor(rel)
	if err != nil {
		return pkgforge.Package{}, err
	}

	merged := map[string]interface{}{}
	for _, frag := range fragments {
		var m map[string]interface{}
		if _, err := toml.Decode(frag, &m); err != nil {
			return pkgforge.Package{}, errors.Wrap(err, "decoding definition fragment")
		}
		merged = deepMerge(merged, m)
	}

	// Re-encode the merged generic map and decode it straight into the
	// Package struct, so the struct-level UnmarshalTOML hooks (Dependency's
	// Simple/Conditional variants) run exactly as they would for a single
	// un-merged file.
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(merged); err != nil {
		return pkgforge.Package{}, errors.Wrap(err, "re-encoding merged definition")
	}

	var pkg pkgforge.Package
	if _, err := toml.Decode(buf.String(), &pkg); err != nil {
		return pkgforge.Package{}, errors.Wrap(err, "decoding merged definition")
	}

	finalizePhases(&pkg)

	if !pkgforge.ValidPackageName(string(pkg.Name)) {
		return pkgforge.Package{}, errors.Errorf("invalid package name %q", pkg.Name)
	}

	if err := validateSourceHashes(pkg); err != nil {
		return pkgforge.Package{}, err
	}

	return pkg, nil
}

// finalizePhases stamps each Phase with its own map key (TOML decoding
// doesn't do this for us) and derives a deterministic PhaseOrder, since the
// table-of-tables decode itself does not preserve declaration order.
func finalizePhases(pkg *pkgforge.Package) {
	if len(pkg.Phases) == 0 {
		return
	}
	names := make([]string, 0, len(pkg.Phases))
	for name, ph := range pkg.Phases {
		ph.Name = name
		pkg.Phases[name] = ph
		names = append(names, name)
	}
	sort.Strings(names)
	pkg.PhaseOrder = names
}

// validateSourceHashes rejects a package whose declared source digests are
// malformed (wrong length, non-hex, empty) as soon as it is loaded, rather
// than letting a bad hash value flow unvalidated into the source cache's
// on-disk path and surface only as a verify-time mismatch. Sources are
// checked in name order so the reported error is deterministic.
func validateSourceHashes(pkg pkgforge.Package) error {
	names := make([]string, 0, len(pkg.Sources))
	for name := range pkg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := pkg.Sources[name].Hash.Digest(); err != nil {
			return errors.Wrapf(pkgforge.ErrBadSourceHash, "source %q: %s", name, err)
		}
	}
	return nil
}

// deepMerge recursively merges src into dst: nested tables (inline tables
// included, since both decode to maps) merge key by key, everything else
// (scalars, arrays) is replaced wholesale by the value from src. dst is
// mutated and returned.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			if existingMap, ok := existing.(map[string]interface{}); ok {
				if incomingMap, ok := v.(map[string]interface{}); ok {
					dst[k] = deepMerge(existingMap, incomingMap)
					continue
				}
			}
		}
		dst[k] = v
	}
	return dst
}
