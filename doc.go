// Package pkgforge implements the core of a Linux package build orchestrator:
// loading a repository of declarative package definitions, resolving a
// conditional dependency graph for a requested root package, and maintaining
// a content-addressed cache of the source artifacts that graph depends on.
//
// The package does not execute builds, talk to a container daemon, or
// persist anything to a database. It produces two things that a higher
// layer consumes: a resolved Dag and a verified set of SourceEntry files on
// disk.
package pkgforge
