// Command tsort loads a package repository tree and prints the build
// order for a requested root package: every dependency before anything
// that depends on it.
package main

import (
	"fmt"
	"os"

	"github.com/pkgforge/pkgforge"
	"github.com/pkgforge/pkgforge/loader"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: tsort <repo-root> <package-name>")
		os.Exit(2)
	}
	root := os.Args[1]
	name := os.Args[2]

	repo, err := loader.LoadRepository(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dag, err := pkgforge.BuildDag(repo, pkgforge.PackageName(name), nil, pkgforge.ConditionData{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, pkg := range dag.TopologicalOrder() {
		fmt.Println(pkg.Name)
	}
}
