package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindgraph/backend/internal/memory"
	"mindgraph/backend/internal/metrics"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

// SyncRequest describes one fact to embed into the memory index
type SyncRequest struct {
	OwnerID string
	MapID   string
	NodeID  string
	// Concept is what gets embedded
	Concept string
	// Text is stored in the payload and returned by retrieval
	Text string
}

// MemorySync writes memory points for stored facts
type MemorySync struct {
	embedder Embedder
	index    memory.Index
	timeouts Timeouts
	queue    *RetryQueue
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewMemorySync creates a memory sync. queue may be nil, which disables retries.
func NewMemorySync(embedder Embedder, index memory.Index, timeouts Timeouts, queue *RetryQueue, m *metrics.Collector) *MemorySync {
	return &MemorySync{
		embedder: embedder,
		index:    index,
		timeouts: timeouts,
		queue:    queue,
		metrics:  m,
		logger:   logger.Get(),
	}
}

// RepresentativeNodeID picks the node a memory point links to: the first node added
// this turn, or a fresh id when the merge added none.
func RepresentativeNodeID(addedNodeIDs []string) string {
	if len(addedNodeIDs) > 0 {
		return addedNodeIDs[0]
	}
	return uuid.NewString()
}

// Sync embeds the concept and upserts one point under a fresh point id.
// A failed attempt is handed to the retry queue when one is configured.
func (s *MemorySync) Sync(ctx context.Context, req SyncRequest) (string, error) {
	concept := strings.TrimSpace(req.Concept)
	if concept == "" {
		return "", apperrors.NewValidation("concept", "required")
	}

	point := state.MemoryPoint{
		PointID: uuid.NewString(),
		Payload: state.MemoryPayload{
			OwnerID: req.OwnerID,
			Text:    req.Text,
			MapID:   req.MapID,
			NodeID:  req.NodeID,
		},
	}

	embedCtx, cancel := withTimeout(ctx, s.timeouts.Embed)
	vector, err := s.embedder.Embed(embedCtx, concept)
	cancel()
	if err != nil {
		err = apperrors.FromContext(DepEmbedding, s.timeouts.Embed, err)
		s.fail(point, concept, err)
		return "", err
	}
	point.Vector = vector

	upsertCtx, cancel := withTimeout(ctx, s.timeouts.Index)
	err = s.index.Upsert(upsertCtx, []state.MemoryPoint{point})
	cancel()
	if err != nil {
		err = apperrors.FromContext(DepIndex, s.timeouts.Index, err)
		s.fail(point, concept, err)
		return "", err
	}

	s.logger.Debug("Memory point upserted",
		zap.String("point_id", point.PointID),
		zap.String("map_id", req.MapID),
		zap.String("node_id", req.NodeID),
	)
	return point.PointID, nil
}

func (s *MemorySync) fail(point state.MemoryPoint, concept string, err error) {
	s.metrics.RecordMemorySyncFailure()
	queued := s.queue != nil && s.queue.Enqueue(point, concept)
	s.logger.Warn("Memory sync failed",
		zap.String("map_id", point.Payload.MapID),
		zap.String("node_id", point.Payload.NodeID),
		zap.Bool("queued_for_retry", queued),
		zap.Error(err),
	)
}
