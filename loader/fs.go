// Package loader implements the read-only filesystem view over a package
// repository tree and the deep-merge logic that turns a repository's
// pkg.toml files into fully merged package definitions.
package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DefinitionFileName is the canonical package-definition file name. Any
// file under the repository root with this base name is collected.
const DefinitionFileName = "pkg.toml"

var (
	// ErrNonUTF8Path mirrors the core's NonUtf8Path failure mode: a path
	// component that is not valid UTF-8 text.
	ErrNonUTF8Path = errors.New("non-utf8 path component")
)

// node is one entry in the in-memory repository tree: either a directory
// (children populated) or a pkg.toml file (content populated).
type node struct {
	isFile   bool
	content  string
	children map[string]*node
}

func newDirNode() *node {
	return &node{children: make(map[string]*node)}
}

// FS is a read-only in-memory view of a package repository tree, built by
// walking a root directory once. It does not follow symbolic links and
// does not cross filesystem boundaries.
type FS struct {
	root  string
	tree  *node
	files []string // relative paths of every pkg.toml discovered, in walk order
}

// Load walks root and builds an FS. Walking does not follow symlinks and
// refuses to descend into a mounted filesystem beneath root.
func Load(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving repository root %q", root)
	}

	rootDev, err := deviceOf(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "statting repository root %q", abs)
	}

	f := &FS{root: abs, tree: newDirNode()}

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walking %q", path)
		}
		if path == abs {
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			// Never follow symlinks, whether they point at files or dirs.
			return nil
		}

		if d.IsDir() {
			dev, err := deviceOf(path)
			if err != nil {
				return errors.Wrapf(err, "statting %q", path)
			}
			if dev != rootDev {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Name() != DefinitionFileName {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return errors.Wrapf(err, "relativizing %q", path)
		}
		if !utf8.ValidString(rel) {
			return errors.Wrapf(ErrNonUTF8Path, "%q", path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %q", path)
		}

		if err := f.insert(rel, string(content)); err != nil {
			return err
		}
		f.files = append(f.files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return f, nil
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, nil
	}
	return uint64(stat.Dev), nil
}

func splitRel(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}

func (f *FS) insert(rel, content string) error {
	components := splitRel(rel)
	cur := f.tree
	for i, comp := range components {
		last := i == len(components)-1
		child, ok := cur.children[comp]
		if !ok {
			child = newDirNode()
			cur.children[comp] = child
		}
		if last {
			child.isFile = true
			child.content = content
		}
		cur = child
	}
	return nil
}

func (f *FS) navigate(components []string) (*node, bool) {
	cur := f.tree
	for _, comp := range components {
		child, ok := cur.children[comp]
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, true
}

// Files returns every pkg.toml relative path discovered under the root,
// in the order the walk encountered them.
func (f *FS) Files() []string {
	out := make([]string, len(f.files))
	copy(out, f.files)
	return out
}

// IsLeafFile reports whether rel (a discovered pkg.toml path) defines a
// concrete package rather than a layering fragment: true iff no
// descendant directory of rel's parent contains any pkg.toml.
func (f *FS) IsLeafFile(rel string) (bool, error) {
	components := splitRel(rel)
	if len(components) == 0 || components[len(components)-1] != DefinitionFileName {
		return false, errors.Errorf("%q is not a %s path", rel, DefinitionFileName)
	}

	parent, ok := f.navigate(components[:len(components)-1])
	if !ok {
		return false, errors.Errorf("parent directory of %q not found", rel)
	}

	if len(parent.children) == 1 {
		return true, nil
	}

	for name, child := range parent.children {
		if name == DefinitionFileName {
			continue
		}
		if containsDefinitionBelow(child) {
			return false, nil
		}
	}
	return true, nil
}

func containsDefinitionBelow(n *node) bool {
	if n.isFile {
		return true
	}
	for name, child := range n.children {
		if name == DefinitionFileName {
			return true
		}
		if containsDefinitionBelow(child) {
			return true
		}
	}
	return false
}

// GetFilesFor returns, in root-to-leaf order, the text of every pkg.toml
// encountered along the path to rel: every ancestor directory's own
// pkg.toml fragment, followed by rel's own content if rel is itself a
// pkg.toml path. This sequence is the inheritance chain.
func (f *FS) GetFilesFor(rel string) ([]string, error) {
	components := splitRel(rel)

	var fragments []string
	cur := f.tree
	for i, comp := range components {
		last := i == len(components)-1

		if !(last && comp == DefinitionFileName) {
			if tomlNode, ok := cur.children[DefinitionFileName]; ok && tomlNode.isFile {
				fragments = append(fragments, tomlNode.content)
			}
		}

		next, ok := cur.children[comp]
		if !ok {
			return nil, errors.Errorf("path component %q not found in %q", comp, rel)
		}

		if last {
			if next.isFile {
				fragments = append(fragments, next.content)
			}
			break
		}
		cur = next
	}

	return fragments, nil
}
