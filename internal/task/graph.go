package task

import (
	"errors"
	"fmt"
)

// ErrCycle indicates a circular dependency in the subtask graph.
var ErrCycle = errors.New("circular dependency detected")

// Graph is a directed acyclic graph of subtask dependencies. Edges point
// from a subtask to the subtasks it depends on.
type Graph struct {
	nodes map[string]*Subtask
	edges map[string][]string
	order []string
	done  map[string]bool
}

// BuildGraph constructs the dependency graph for a task's subtasks.
// Returns an error when a dependency references an unknown subtask or the
// graph contains a cycle.
func BuildGraph(subtasks []*Subtask) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*Subtask),
		edges: make(map[string][]string),
		done:  make(map[string]bool),
	}

	for _, st := range subtasks {
		if _, dup := g.nodes[st.ID]; dup {
			return nil, fmt.Errorf("duplicate subtask id %s", st.ID)
		}
		g.nodes[st.ID] = st
		g.order = append(g.order, st.ID)
	}

	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, ok := g.nodes[depID]; !ok {
				return nil, fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if g.hasCycle() {
		return nil, ErrCycle
	}
	return g, nil
}

// hasCycle runs a depth-first search with coloring to find back edges.
func (g *Graph) hasCycle() bool {
	// 0 = unvisited, 1 = in progress, 2 = done
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Ready returns runnable subtasks in task order: not yet done, not in a
// terminal state, and with every dependency marked done. Dependents of a
// failed subtask never become ready.
func (g *Graph) Ready() []*Subtask {
	var ready []*Subtask
	for _, id := range g.order {
		if g.done[id] || g.nodes[id].Status.Terminal() {
			continue
		}
		blocked := false
		for _, depID := range g.edges[id] {
			if !g.done[depID] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, g.nodes[id])
		}
	}
	return ready
}

// MarkDone marks a subtask complete, unblocking its dependents.
func (g *Graph) MarkDone(id string) {
	g.done[id] = true
}

// Size returns the number of subtasks in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}
