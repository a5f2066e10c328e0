package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mindgraph/backend/internal/memory"
	"mindgraph/backend/internal/metrics"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

// Retrieval is the grounding context assembled for one turn
type Retrieval struct {
	Snippets []string
	// Degraded is set when the embedding or index call failed
	Degraded bool
}

// Retriever builds grounding context from the owner's memory index.
// It never fails a turn: any error degrades to an empty context.
type Retriever struct {
	embedder Embedder
	index    memory.Index
	timeouts Timeouts
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewRetriever creates a retriever
func NewRetriever(embedder Embedder, index memory.Index, timeouts Timeouts, m *metrics.Collector) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		timeouts: timeouts,
		metrics:  m,
		logger:   logger.Get(),
	}
}

// Retrieve returns up to limit snippets owned by ownerID, most similar first
func (r *Retriever) Retrieve(ctx context.Context, queryText, ownerID string, limit int) Retrieval {
	if limit <= 0 || strings.TrimSpace(queryText) == "" {
		return Retrieval{}
	}

	embedCtx, cancel := withTimeout(ctx, r.timeouts.Embed)
	vector, err := r.embedder.Embed(embedCtx, queryText)
	cancel()
	if err != nil {
		return r.degrade(ownerID, apperrors.FromContext(DepEmbedding, r.timeouts.Embed, err))
	}

	searchCtx, cancel := withTimeout(ctx, r.timeouts.Index)
	hits, err := r.index.Search(searchCtx, ownerID, vector, limit)
	cancel()
	if err != nil {
		return r.degrade(ownerID, apperrors.FromContext(DepIndex, r.timeouts.Index, err))
	}

	snippets := make([]string, 0, len(hits))
	for _, h := range hits {
		// The index filters by owner; this guards against a misbehaving backend
		if h.Payload.OwnerID != ownerID {
			continue
		}
		if text := strings.TrimSpace(h.Payload.Text); text != "" {
			snippets = append(snippets, text)
		}
		if len(snippets) == limit {
			break
		}
	}

	r.logger.Debug("Context retrieved",
		zap.String("owner_id", ownerID),
		zap.Int("snippets", len(snippets)),
	)
	return Retrieval{Snippets: snippets}
}

func (r *Retriever) degrade(ownerID string, err error) Retrieval {
	kind, _ := apperrors.KindOf(err)
	r.logger.Warn("Retrieval failed, continuing without context",
		zap.String("owner_id", ownerID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	r.metrics.RecordRetrievalDegraded()
	return Retrieval{Degraded: true}
}
