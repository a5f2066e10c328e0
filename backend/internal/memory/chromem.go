package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	"mindgraph/backend/pkg/logger"
)

// ChromemIndex is an embedded index backed by chromem-go.
// Each owner gets their own collection.
type ChromemIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewChromemIndex creates an index. An empty path keeps everything in memory,
// otherwise documents are persisted under path.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	return &ChromemIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		logger:      logger.Get(),
	}, nil
}

func (c *ChromemIndex) collection(ownerID string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[ownerID]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[ownerID]; ok {
		return col, nil
	}

	// Vectors are always supplied by the caller, so no embedding func
	col, err := c.db.GetOrCreateCollection("owner_"+ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	c.collections[ownerID] = col
	return col, nil
}

// Upsert adds or replaces points
func (c *ChromemIndex) Upsert(ctx context.Context, points []state.MemoryPoint) error {
	for _, p := range points {
		if p.Payload.OwnerID == "" {
			return fmt.Errorf("memory point %s has no owner", p.PointID)
		}
		col, err := c.collection(p.Payload.OwnerID)
		if err != nil {
			return err
		}
		content := p.Payload.Text
		if content == "" {
			content = p.PointID
		}
		doc := chromem.Document{
			ID:        p.PointID,
			Content:   content,
			Embedding: p.Vector,
			Metadata:  payloadToMap(p.Payload),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document: %w", err)
		}
	}

	c.logger.Debug("Memory points upserted", zap.Int("count", len(points)))
	return nil
}

// Search returns the owner's nearest points
func (c *ChromemIndex) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]state.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	col, err := c.collection(ownerID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, map[string]string{keyOwnerID: ownerID}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]state.ScoredPoint, 0, len(results))
	for _, r := range results {
		payload := payloadFromMap(r.Metadata)
		if payload.OwnerID != ownerID {
			continue
		}
		out = append(out, state.ScoredPoint{
			PointID: r.ID,
			Score:   r.Similarity,
			Payload: payload,
		})
	}
	return out, nil
}
