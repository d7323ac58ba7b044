// SPDX-License-Identifier: MPL-2.0

// Package depgraph aggregates build inputs across a directed acyclic
// dependency graph. Each node owns the modules, artifacts, requirements
// and repositories it contributes directly; Collect walks the graph from
// a root and returns the transitive union, memoizing per-node results so
// shared subtrees are visited once.
package depgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// ErrCycle is the sentinel error wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle")

type (
	// NodeID identifies a node in the graph. IDs are caller-chosen
	// (target labels, directory paths) and must be unique.
	NodeID string

	// Node is one build target's direct contribution. Nodes are created
	// through Graph.Node and populated with the Add* methods.
	Node struct {
		ID           NodeID
		Modules      []manifest.ModuleEntry
		Artifacts    []manifest.PrebuiltArtifact
		Requirements []manifest.Requirement
		Repositories []manifest.RepositoryRef

		deps []NodeID
	}

	// Collection is the transitive union of a subtree's contributions.
	// Ordering is deterministic: dependencies first, then the node's own
	// entries, duplicates dropped on first-seen basis.
	Collection struct {
		Modules      []manifest.ModuleEntry
		Artifacts    []manifest.PrebuiltArtifact
		Requirements []manifest.Requirement
		Repositories []manifest.RepositoryRef
	}

	// Graph is the arena of nodes. The zero value is not usable; call New.
	Graph struct {
		arena map[NodeID]*Node
		order []NodeID
		memo  map[NodeID]*Collection
	}

	// CycleError indicates the graph is not acyclic. The chain lists the
	// node IDs along the cycle that was hit first.
	CycleError struct {
		Chain []NodeID
	}

	// UnknownNodeError is returned when an edge or a walk names a node
	// that was never added to the arena.
	UnknownNodeError struct {
		ID NodeID
	}
)

// Error implements the error interface for CycleError.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, id := range e.Chain {
		parts[i] = string(id)
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCycle }

// Error implements the error interface for UnknownNodeError.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown dependency graph node %q", e.ID)
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		arena: make(map[NodeID]*Node),
		memo:  make(map[NodeID]*Collection),
	}
}

// Node returns the node with the given ID, creating it on first use.
func (g *Graph) Node(id NodeID) *Node {
	if n, ok := g.arena[id]; ok {
		return n
	}
	n := &Node{ID: id}
	g.arena[id] = n
	g.order = append(g.order, id)
	return n
}

// AddDep records that from depends on to. Both nodes are implicitly
// added. Adding a dependency invalidates memoized collections.
func (g *Graph) AddDep(from, to NodeID) {
	f := g.Node(from)
	g.Node(to)
	f.deps = append(f.deps, to)
	g.memo = make(map[NodeID]*Collection)
}

// AddModule records a source file contributed directly by the node.
func (n *Node) AddModule(sourcePath, archivePath string) {
	n.Modules = append(n.Modules, manifest.ModuleEntry{SourcePath: sourcePath, ArchivePath: archivePath})
}

// AddArtifact records a prebuilt artifact contributed directly by the node.
func (n *Node) AddArtifact(localPath string, kind pydist.ArtifactKind) {
	n.Artifacts = append(n.Artifacts, manifest.PrebuiltArtifact{LocalPath: localPath, Kind: kind})
}

// AddRequirement records a bare requirement contributed directly by the node.
func (n *Node) AddRequirement(spec string) {
	n.Requirements = append(n.Requirements, manifest.Requirement(spec))
}

// AddRepository records a local artifact repository contributed by the node.
func (n *Node) AddRepository(dir string) {
	n.Repositories = append(n.Repositories, manifest.RepositoryRef(dir))
}

// Collect walks the graph from root and returns the transitive
// collection. Results are memoized per node, so collecting several roots
// that share subtrees does not re-walk them. Returns CycleError if the
// walk revisits a node already on the current path.
func (g *Graph) Collect(root NodeID) (*Collection, error) {
	if _, ok := g.arena[root]; !ok {
		return nil, &UnknownNodeError{ID: root}
	}
	w := &walker{graph: g, onPath: make(map[NodeID]bool)}
	return w.visit(root)
}

type walker struct {
	graph  *Graph
	onPath map[NodeID]bool
	path   []NodeID
}

func (w *walker) visit(id NodeID) (*Collection, error) {
	if c, done := w.graph.memo[id]; done {
		return c, nil
	}
	if w.onPath[id] {
		return nil, &CycleError{Chain: append(append([]NodeID{}, w.path...), id)}
	}

	node, ok := w.graph.arena[id]
	if !ok {
		return nil, &UnknownNodeError{ID: id}
	}

	w.onPath[id] = true
	w.path = append(w.path, id)
	defer func() {
		delete(w.onPath, id)
		w.path = w.path[:len(w.path)-1]
	}()

	acc := &accumulator{}
	for _, dep := range node.deps {
		sub, err := w.visit(dep)
		if err != nil {
			return nil, err
		}
		acc.merge(sub)
	}
	acc.mergeNode(node)

	c := acc.collection()
	w.graph.memo[id] = c
	return c, nil
}

// accumulator dedupes while preserving first-seen order.
type accumulator struct {
	modules       []manifest.ModuleEntry
	artifacts     []manifest.PrebuiltArtifact
	requirements  []manifest.Requirement
	repositories  []manifest.RepositoryRef
	seenModules   map[manifest.ModuleEntry]bool
	seenArtifacts map[manifest.PrebuiltArtifact]bool
	seenReqs      map[manifest.Requirement]bool
	seenRepos     map[manifest.RepositoryRef]bool
}

func (a *accumulator) init() {
	if a.seenModules == nil {
		a.seenModules = make(map[manifest.ModuleEntry]bool)
		a.seenArtifacts = make(map[manifest.PrebuiltArtifact]bool)
		a.seenReqs = make(map[manifest.Requirement]bool)
		a.seenRepos = make(map[manifest.RepositoryRef]bool)
	}
}

func (a *accumulator) merge(c *Collection) {
	a.init()
	for _, m := range c.Modules {
		if !a.seenModules[m] {
			a.seenModules[m] = true
			a.modules = append(a.modules, m)
		}
	}
	for _, art := range c.Artifacts {
		if !a.seenArtifacts[art] {
			a.seenArtifacts[art] = true
			a.artifacts = append(a.artifacts, art)
		}
	}
	for _, r := range c.Requirements {
		if !a.seenReqs[r] {
			a.seenReqs[r] = true
			a.requirements = append(a.requirements, r)
		}
	}
	for _, r := range c.Repositories {
		if !a.seenRepos[r] {
			a.seenRepos[r] = true
			a.repositories = append(a.repositories, r)
		}
	}
}

func (a *accumulator) mergeNode(n *Node) {
	a.merge(&Collection{
		Modules:      n.Modules,
		Artifacts:    n.Artifacts,
		Requirements: n.Requirements,
		Repositories: n.Repositories,
	})
}

func (a *accumulator) collection() *Collection {
	return &Collection{
		Modules:      a.modules,
		Artifacts:    a.artifacts,
		Requirements: a.requirements,
		Repositories: a.repositories,
	}
}

// Apply feeds the collection into a manifest builder in collection order.
func (c *Collection) Apply(b *manifest.Builder) {
	for _, m := range c.Modules {
		b.AddModule(m.SourcePath, m.ArchivePath)
	}
	for _, a := range c.Artifacts {
		b.AddArtifact(a.LocalPath, a.Kind)
	}
	for _, r := range c.Requirements {
		b.AddRequirement(string(r))
	}
	for _, r := range c.Repositories {
		b.AddRepository(string(r))
	}
}
