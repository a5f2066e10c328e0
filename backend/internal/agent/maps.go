package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// SaveRequest overwrites a map's graph from the canvas
type SaveRequest struct {
	OwnerID string `validate:"required,max=256"`
	MapID   string `validate:"required,max=128"`
	Graph   state.Graph
	// Concept, when set, is embedded as a memory point after the write
	Concept string `validate:"max=2000"`
	// Revision is the revision the client last saw
	Revision int64 `validate:"gte=0"`
}

// CreateMap creates an empty map owned by ownerID
func (o *Orchestrator) CreateMap(ctx context.Context, ownerID string) (*state.MapRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.NewValidation("owner", "required")
	}

	now := time.Now().UTC()
	rec := &state.MapRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Graph:     state.Graph{Nodes: []state.Node{}, Edges: []state.Edge{}},
		Revision:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	createCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	defer cancel()
	if err := o.store.Create(createCtx, rec); err != nil {
		if _, ok := apperrors.KindOf(err); ok {
			return nil, err
		}
		return nil, apperrors.NewPersistence(rec.ID, err)
	}
	return rec, nil
}

// ListMaps returns the owner's maps, most recently updated first
func (o *Orchestrator) ListMaps(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.NewValidation("owner", "required")
	}

	listCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	defer cancel()
	maps, err := o.store.List(listCtx, ownerID)
	if err != nil {
		return nil, apperrors.FromContext(DepGraphStore, o.opts.Timeouts.Store, err)
	}
	return maps, nil
}

// GetMap loads a map. Maps owned by someone else are reported as not found.
func (o *Orchestrator) GetMap(ctx context.Context, ownerID, mapID string) (*state.MapRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.NewValidation("owner", "required")
	}
	rec, err := o.loadMap(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, apperrors.NewMapNotFound(mapID)
	}
	return rec, nil
}

// SaveMap replaces the whole graph of a map when req.Revision is current and
// returns the new revision. A failed concept sync is logged, not returned.
func (o *Orchestrator) SaveMap(ctx context.Context, req SaveRequest) (int64, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.MapID = strings.TrimSpace(req.MapID)
	req.Concept = strings.TrimSpace(req.Concept)
	if err := validateStruct(req); err != nil {
		return 0, err
	}
	g, err := normalizeGraph(req.Graph)
	if err != nil {
		return 0, err
	}

	waitStart := time.Now()
	unlock, err := o.locks.Lock(ctx, req.MapID)
	if err != nil {
		return 0, apperrors.FromContext(DepMapLock, time.Since(waitStart).Round(time.Millisecond), err)
	}
	defer unlock()

	rec, err := o.GetMap(ctx, req.OwnerID, req.MapID)
	if err != nil {
		return 0, err
	}
	if rec.Revision != req.Revision {
		return 0, apperrors.NewConcurrentModification(req.MapID, req.Revision, rec.Revision)
	}

	revision, err := o.writeMap(ctx, req.MapID, g, req.Revision)
	if err != nil {
		return 0, err
	}

	if req.Concept != "" {
		if _, err := o.sync.Sync(ctx, SyncRequest{
			OwnerID: req.OwnerID,
			MapID:   req.MapID,
			Concept: req.Concept,
			Text:    req.Concept,
		}); err != nil {
			o.logger.Warn("Saved map without memory point",
				zap.String("map_id", req.MapID),
				zap.Error(err),
			)
		}
	}

	o.logger.Info("Map saved",
		zap.String("map_id", req.MapID),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int64("revision", revision),
	)
	return revision, nil
}

// normalizeGraph rejects empty or duplicate ids and fills default node kinds
func normalizeGraph(g state.Graph) (state.Graph, error) {
	out := g.Clone()
	if out.Nodes == nil {
		out.Nodes = []state.Node{}
	}
	if out.Edges == nil {
		out.Edges = []state.Edge{}
	}

	seen := make(map[string]struct{}, len(out.Nodes))
	for i, n := range out.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return state.Graph{}, apperrors.NewValidation("graph.nodes", fmt.Sprintf("node %d has no id", i))
		}
		if _, dup := seen[n.ID]; dup {
			return state.Graph{}, apperrors.NewValidation("graph.nodes", fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = struct{}{}
		if n.Kind == "" {
			out.Nodes[i].Kind = state.DefaultNodeKind
		}
	}

	seenEdges := make(map[string]struct{}, len(out.Edges))
	for i, e := range out.Edges {
		if strings.TrimSpace(e.ID) == "" {
			return state.Graph{}, apperrors.NewValidation("graph.edges", fmt.Sprintf("edge %d has no id", i))
		}
		if _, dup := seenEdges[e.ID]; dup {
			return state.Graph{}, apperrors.NewValidation("graph.edges", fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		seenEdges[e.ID] = struct{}{}
	}
	return out, nil
}
