// Package memory holds the semantic memory index: one vector per stored fact,
// searched by owner.
package memory

import (
	"context"

	"mindgraph/backend/internal/state"
)

// Index is a vector index of user memories.
//
// Search must only return points whose payload ownerId equals ownerID. Results are ordered
// most similar first and hold at most limit entries.
type Index interface {
	Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]state.ScoredPoint, error)
	Upsert(ctx context.Context, points []state.MemoryPoint) error
}

// Payload metadata keys shared by the index implementations
const (
	keyOwnerID = "ownerId"
	keyText    = "text"
	keyMapID   = "mapId"
	keyNodeID  = "nodeId"
)

func payloadToMap(p state.MemoryPayload) map[string]string {
	m := map[string]string{
		keyOwnerID: p.OwnerID,
		keyText:    p.Text,
		keyMapID:   p.MapID,
	}
	if p.NodeID != "" {
		m[keyNodeID] = p.NodeID
	}
	return m
}

func payloadFromMap(m map[string]string) state.MemoryPayload {
	return state.MemoryPayload{
		OwnerID: m[keyOwnerID],
		Text:    m[keyText],
		MapID:   m[keyMapID],
		NodeID:  m[keyNodeID],
	}
}
