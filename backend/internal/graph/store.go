// Package graph persists mind maps. A map is stored as one record holding its whole
// node/edge graph and a revision counter used for optimistic concurrency.
package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"mindgraph/backend/internal/state"
)

// Store is the durable per-map graph store.
//
// Put replaces the whole graph of an existing map only when its current revision equals
// expectedRevision, and returns the new revision. A mismatch yields
// ErrConcurrentModification, an unknown map yields ErrMapNotFound.
type Store interface {
	Get(ctx context.Context, mapID string) (*state.MapRecord, error)
	Create(ctx context.Context, rec *state.MapRecord) error
	Put(ctx context.Context, mapID string, g state.Graph, expectedRevision int64) (int64, error)
	List(ctx context.Context, ownerID string) ([]state.MapSummary, error)
	Close() error
}

func encodeGraph(g state.Graph) (string, error) {
	// Persist empty slices, not null
	if g.Nodes == nil {
		g.Nodes = []state.Node{}
	}
	if g.Edges == nil {
		g.Edges = []state.Edge{}
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	return string(b), nil
}

func decodeGraph(data string) (state.Graph, error) {
	var g state.Graph
	if data == "" {
		return g, nil
	}
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return g, fmt.Errorf("decode graph: %w", err)
	}
	return g, nil
}
