// Package plan orders the output tables for execution. The built-in graph
// is tiny and fixed: songplays joins against songs and artists, so those
// two must be built first; users and time depend only on the raw logs.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mking01/spark-data-lakes/pkg/star"
)

// Graph is a directed acyclic graph over table names.
type Graph struct {
	nodes   map[string]bool
	edges   map[string][]string // parent -> dependents
	parents map[string][]string // child -> dependencies
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]bool),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// Default returns the dependency graph of the five output tables.
func Default() *Graph {
	g := NewGraph()
	for _, t := range star.AllTables {
		g.AddNode(t)
	}
	// The fact table resolves song and artist keys against the catalog
	// dimensions.
	_ = g.AddEdge(star.TableSongs, star.TableSongplays)
	_ = g.AddEdge(star.TableArtists, star.TableSongplays)
	return g
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string) {
	if !g.nodes[id] {
		g.nodes[id] = true
		g.edges[id] = nil
		g.parents[id] = nil
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if !g.nodes[parentID] {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if !g.nodes[childID] {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// HasCycle returns true if the graph contains a cycle, along with the
// cycle path. Defensive: the built-in plan is acyclic.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for id := range g.nodes {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}
	return false, nil
}

// TopologicalSort returns node ids with dependencies before dependents.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, id)
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}

	return result, nil
}

// Downstream returns the given nodes plus all their transitive dependents.
func (g *Graph) Downstream(ids []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			mark(childID)
		}
	}

	for _, id := range ids {
		if g.nodes[id] {
			mark(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Order validates the selected table names and returns them in execution
// order. An empty selection means all tables. With downstream set, the
// selection expands to include transitive dependents.
func Order(selected []string, downstream bool) ([]string, error) {
	g := Default()

	if len(selected) == 0 {
		return g.TopologicalSort()
	}

	want := make(map[string]bool, len(selected))
	for _, name := range selected {
		name = strings.TrimSpace(name)
		if !star.IsTable(name) {
			return nil, fmt.Errorf("unknown table %q (tables: %s)", name, strings.Join(star.AllTables, ", "))
		}
		want[name] = true
	}

	if downstream {
		names := make([]string, 0, len(want))
		for name := range want {
			names = append(names, name)
		}
		for _, name := range g.Downstream(names) {
			want[name] = true
		}
	}

	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	var order []string
	for _, name := range sorted {
		if want[name] {
			order = append(order, name)
		}
	}
	return order, nil
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
