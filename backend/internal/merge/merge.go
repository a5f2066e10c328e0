// Package merge reconciles proposed nodes and edges against an existing map graph.
// It performs no I/O.
package merge

import (
	"mindgraph/backend/internal/state"
)

// Result is the outcome of merging one proposal
type Result struct {
	Graph state.Graph
	// AddedNodeIDs lists surviving proposed nodes in emission order. The anchor is not included.
	AddedNodeIDs []string
	AddedEdgeIDs []string
	// AnchorCreated is true when the anchor node was synthesized by this merge
	AnchorCreated bool
	// DroppedNodeIDs and DroppedEdgeIDs are proposals discarded by id collision
	DroppedNodeIDs []string
	DroppedEdgeIDs []string
	// DanglingEdgeIDs are kept edges whose source or target is not in the merged node set
	DanglingEdgeIDs []string
}

// Changed reports whether the merged graph differs from the input graph
func (r Result) Changed() bool {
	return r.AnchorCreated || len(r.AddedNodeIDs) > 0 || len(r.AddedEdgeIDs) > 0
}

// AddedNodes returns the nodes added by this merge, anchor first when it was created
func (r Result) AddedNodes() []state.Node {
	added := make([]state.Node, 0, len(r.AddedNodeIDs)+1)
	if r.AnchorCreated {
		if n, ok := r.Graph.FindNode(state.AnchorNodeID); ok {
			added = append(added, n)
		}
	}
	want := toSet(r.AddedNodeIDs)
	for _, n := range r.Graph.Nodes {
		if _, ok := want[n.ID]; ok {
			added = append(added, n)
			delete(want, n.ID)
		}
	}
	return added
}

// AddedEdges returns the edges added by this merge in emission order
func (r Result) AddedEdges() []state.Edge {
	added := make([]state.Edge, 0, len(r.AddedEdgeIDs))
	want := toSet(r.AddedEdgeIDs)
	for _, e := range r.Graph.Edges {
		if _, ok := want[e.ID]; ok {
			added = append(added, e)
			delete(want, e.ID)
		}
	}
	return added
}

// AnchorNode builds the node that represents the user
func AnchorNode(displayName string) state.Node {
	label := displayName
	if label == "" {
		label = state.DefaultAnchorLabel
	}
	return state.Node{
		ID:       state.AnchorNodeID,
		Label:    label,
		Kind:     state.AnchorNodeKind,
		Position: state.Position{X: 0, Y: 0},
	}
}

// Merge applies proposed nodes and edges to current.
//
// The anchor node is synthesized first when missing. Proposals whose id already exists are
// dropped, so the first write wins and existing nodes are never overwritten. Survivors are
// appended in emission order. Edges pointing at unknown nodes are kept and reported.
// current is not modified.
func Merge(current state.Graph, nodes []state.Node, edges []state.Edge, ownerDisplayName string) Result {
	merged := current.Clone()
	res := Result{}

	nodeIDs := make(map[string]struct{}, len(merged.Nodes)+len(nodes)+1)
	for _, n := range merged.Nodes {
		nodeIDs[n.ID] = struct{}{}
	}

	// 1. Anchor guarantee
	if _, ok := nodeIDs[state.AnchorNodeID]; !ok {
		merged.Nodes = append(merged.Nodes, AnchorNode(ownerDisplayName))
		nodeIDs[state.AnchorNodeID] = struct{}{}
		res.AnchorCreated = true
	}

	// 2-3. Drop id collisions, append survivors
	for _, n := range nodes {
		if _, exists := nodeIDs[n.ID]; exists {
			res.DroppedNodeIDs = append(res.DroppedNodeIDs, n.ID)
			continue
		}
		if n.Kind == "" {
			n.Kind = state.DefaultNodeKind
		}
		merged.Nodes = append(merged.Nodes, n)
		nodeIDs[n.ID] = struct{}{}
		res.AddedNodeIDs = append(res.AddedNodeIDs, n.ID)
	}

	edgeIDs := make(map[string]struct{}, len(merged.Edges)+len(edges))
	for _, e := range merged.Edges {
		edgeIDs[e.ID] = struct{}{}
	}
	for _, e := range edges {
		if _, exists := edgeIDs[e.ID]; exists {
			res.DroppedEdgeIDs = append(res.DroppedEdgeIDs, e.ID)
			continue
		}
		merged.Edges = append(merged.Edges, e)
		edgeIDs[e.ID] = struct{}{}
		res.AddedEdgeIDs = append(res.AddedEdgeIDs, e.ID)
	}

	// 4. Dangling edges are tolerated, only reported
	for _, e := range merged.Edges {
		_, src := nodeIDs[e.Source]
		_, dst := nodeIDs[e.Target]
		if !src || !dst {
			res.DanglingEdgeIDs = append(res.DanglingEdgeIDs, e.ID)
		}
	}

	res.Graph = merged
	return res
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
