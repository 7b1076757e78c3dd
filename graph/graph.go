// Package graph holds the dependency-graph logic for a dashboard's boxes and
// edges: cycle prevention at connection time and transitive resolution of the
// closest upstream box that has results.
package graph

import (
	"github.com/meikuraledutech/canvasql"
)

// MaxSourceDepth bounds the upward walk of FindSourceWithResults. A chain
// deeper than this resolves to nothing.
const MaxSourceDepth = 10

// adjacency maps source box ID → target box IDs, in edge-collection order.
func adjacency(edges []canvasql.Edge) map[string][]string {
	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.SourceBoxID] = append(adj[e.SourceBoxID], e.TargetBoxID)
	}
	return adj
}

// WouldCreateCycle reports whether adding the edge source→target to the edge
// set would close a cycle. The edge closes a cycle iff target can already
// reach source, so the search starts from target and looks for source.
// Self-loops are the caller's concern and must be rejected before this check.
func WouldCreateCycle(edges []canvasql.Edge, source, target string) bool {
	adj := adjacency(edges)

	// Iterative DFS from target.
	stack := []string{target}
	visited := make(map[string]bool, len(adj))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == source {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, adj[id]...)
	}
	return false
}

// ValidateConnection rejects self-loops and cycle-closing edges, in that
// order, so callers can surface distinct reasons.
func ValidateConnection(edges []canvasql.Edge, source, target string) error {
	if source == target {
		return canvasql.ErrSelfLoop
	}
	if WouldCreateCycle(edges, source, target) {
		return canvasql.ErrCycleDetected
	}
	return nil
}

// incomingSource returns the source box of the first edge (in collection
// order) targeting id. When a box has multiple incoming edges the first one
// wins; the connection flow keeps targets at one incoming edge, so ties only
// arise from data written by older clients.
func incomingSource(edges []canvasql.Edge, id string) (string, bool) {
	for _, e := range edges {
		if e.TargetBoxID == id {
			return e.SourceBoxID, true
		}
	}
	return "", false
}

// FindSourceWithResults walks the incoming edge chain upward from id, one
// parent per hop, skipping ancestors without stored results, and returns the
// first ancestor that has a non-empty result. The walk is bounded by
// MaxSourceDepth and carries a visited set so residual cycles in persisted
// data cannot loop it; nil is returned when the bound is hit or no ancestor
// has results.
func FindSourceWithResults(boxes []canvasql.Box, edges []canvasql.Edge, id string) *canvasql.Box {
	byID := make(map[string]*canvasql.Box, len(boxes))
	for i := range boxes {
		byID[boxes[i].ID] = &boxes[i]
	}

	visited := map[string]bool{id: true}
	current := id
	for depth := 0; depth < MaxSourceDepth; depth++ {
		parent, ok := incomingSource(edges, current)
		if !ok {
			return nil
		}
		if visited[parent] {
			return nil
		}
		visited[parent] = true

		if b, ok := byID[parent]; ok && b.HasResults() {
			return b
		}
		current = parent
	}
	return nil
}

// Roots returns the boxes with no incoming edges, in box-collection order.
// Useful for rendering pass ordering and for tests.
func Roots(boxes []canvasql.Box, edges []canvasql.Edge) []canvasql.Box {
	hasIncoming := make(map[string]bool, len(edges))
	for _, e := range edges {
		hasIncoming[e.TargetBoxID] = true
	}
	roots := []canvasql.Box{}
	for _, b := range boxes {
		if !hasIncoming[b.ID] {
			roots = append(roots, b)
		}
	}
	return roots
}
