package state

import (
	"encoding/json"
	"time"
)

// Anchor node constants
const (
	// AnchorNodeID is the reserved identifier of the node representing the user
	AnchorNodeID = "user-node"
	// AnchorNodeKind is the node kind given to a synthesized anchor
	AnchorNodeKind = "input"
	// DefaultAnchorLabel is used when the session carries no display name
	DefaultAnchorLabel = "Me"
	// DefaultNodeKind is used when a proposed node has no kind
	DefaultNodeKind = "default"
)

// Position is a node's canvas coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single concept in a mind map.
// Its JSON form is the canvas format: {id, type, data: {label}, position}.
type Node struct {
	ID       string
	Label    string
	Kind     string
	Position Position
}

type nodeData struct {
	Label string `json:"label"`
}

type nodeWire struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Data     nodeData `json:"data"`
	Position Position `json:"position"`
}

// MarshalJSON encodes the node in canvas format
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeWire{
		ID:       n.ID,
		Type:     n.Kind,
		Data:     nodeData{Label: n.Label},
		Position: n.Position,
	})
}

// UnmarshalJSON decodes the canvas format, defaulting the kind
func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	n.ID = w.ID
	n.Label = w.Data.Label
	n.Kind = w.Type
	if n.Kind == "" {
		n.Kind = DefaultNodeKind
	}
	n.Position = w.Position
	return nil
}

// Edge connects two nodes by id
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the full node/edge set of one map
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a copy that shares no slices with g
func (g Graph) Clone() Graph {
	var out Graph
	if g.Nodes != nil {
		out.Nodes = append(make([]Node, 0, len(g.Nodes)), g.Nodes...)
	}
	if g.Edges != nil {
		out.Edges = append(make([]Edge, 0, len(g.Edges)), g.Edges...)
	}
	return out
}

// HasNode reports whether a node with id exists
func (g Graph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// FindNode returns the node with id
func (g Graph) FindNode(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// MapRecord is the durable per-map record kept by the graph store
type MapRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Graph     Graph     `json:"graph"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MapSummary is a listing entry for a user's maps
type MapSummary struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	NodeCount int       `json:"node_count"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryPayload is the data stored alongside a memory vector
type MemoryPayload struct {
	OwnerID string `json:"ownerId"`
	Text    string `json:"text"`
	MapID   string `json:"mapId"`
	NodeID  string `json:"nodeId,omitempty"`
}

// MemoryPoint is one entry in the semantic memory index.
// PointID is never a node id.
type MemoryPoint struct {
	PointID string        `json:"pointId"`
	Vector  []float32     `json:"vector"`
	Payload MemoryPayload `json:"payload"`
}

// ScoredPoint is a search hit, most similar first
type ScoredPoint struct {
	PointID string        `json:"pointId"`
	Score   float32       `json:"score"`
	Payload MemoryPayload `json:"payload"`
}
