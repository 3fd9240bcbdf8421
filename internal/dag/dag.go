// Package dag provides the dependency graph of a pipeline.
// Raw sources feed curated entities, and entities feed publish aggregates.
// The graph answers which tables a change to a source reaches and in which
// order the layers are built.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Kind is the layer a node belongs to.
type Kind string

// Node kinds, one per layer.
const (
	KindSource    Kind = "source"
	KindEntity    Kind = "entity"
	KindAggregate Kind = "aggregate"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (source, entity or aggregate target name)
	ID   string
	Kind Kind
}

// Graph represents a directed acyclic graph.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing ID again updates its kind.
func (g *Graph) AddNode(id string, kind Kind) {
	if n, exists := g.nodes[id]; exists {
		n.Kind = kind
		return
	}
	g.nodes[id] = &Node{ID: id, Kind: kind}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child is built from parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Parents returns the parents (inputs) of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the children (dependents) of a node.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// NodesOf returns the IDs of every node of kind, sorted.
func (g *Graph) NodesOf(kind Kind) []string {
	var ids []string
	for id, n := range g.nodes {
		if n.Kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
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

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// Levels returns nodes grouped by build level.
// Level 0 holds the raw sources; every other node sits one level above its
// deepest input.
func (g *Graph) Levels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)
	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, parentID := range g.parents[id] {
			l = max(l, level(parentID)+1)
		}
		assigned[id] = l
		return l
	}

	maxLevel := -1
	for id := range g.nodes {
		maxLevel = max(maxLevel, level(id))
	}

	levels := make([][]string, maxLevel+1)
	for id, l := range assigned {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Downstream returns every node reachable from the given nodes, excluding
// the nodes themselves unless they are reachable from another one.
func (g *Graph) Downstream(ids ...string) []string {
	reached := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		for _, childID := range g.edges[id] {
			if !reached[childID] {
				reached[childID] = true
				mark(childID)
			}
		}
	}
	for _, id := range ids {
		mark(id)
	}
	return sortedKeys(reached)
}

// Upstream returns all nodes upstream of the given node (its inputs and their inputs).
func (g *Graph) Upstream(id string) []string {
	upstream := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				mark(parentID)
			}
		}
	}
	mark(id)
	return sortedKeys(upstream)
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
