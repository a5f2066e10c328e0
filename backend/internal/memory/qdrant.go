package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	"mindgraph/backend/pkg/logger"
)

// QdrantIndex talks to a Qdrant server over its REST API
type QdrantIndex struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  bool
	logger   *zap.Logger
}

// NewQdrantIndex returns an index for one collection
func NewQdrantIndex(endpoint, collection string) *QdrantIndex {
	return &QdrantIndex{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		Collection: collection,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Get(),
	}
}

type qdrantPoint struct {
	ID      string              `json:"id"`
	Vector  []float32           `json:"vector"`
	Payload state.MemoryPayload `json:"payload"`
}

type qdrantHit struct {
	ID      interface{}         `json:"id"`
	Score   float32             `json:"score"`
	Payload state.MemoryPayload `json:"payload"`
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.Endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return q.httpClient.Do(req)
}

// ensureCollection creates the collection on first write, sized to the first vector
func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}

	resp, err := q.do(ctx, http.MethodGet, "/collections/"+q.Collection, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		body := map[string]interface{}{
			"vectors": map[string]interface{}{"size": dim, "distance": "Cosine"},
		}
		resp, err := q.do(ctx, http.MethodPut, "/collections/"+q.Collection, body)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant: create collection status %s", resp.Status)
		}
		q.logger.Info("Qdrant collection created",
			zap.String("collection", q.Collection),
			zap.Int("dimensions", dim),
		)
	default:
		return fmt.Errorf("qdrant: get collection status %s", resp.Status)
	}

	q.ensured = true
	return nil
}

// Upsert writes points and waits for them to be indexed
func (q *QdrantIndex) Upsert(ctx context.Context, points []state.MemoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	wire := make([]qdrantPoint, 0, len(points))
	for _, p := range points {
		wire = append(wire, qdrantPoint{ID: p.PointID, Vector: p.Vector, Payload: p.Payload})
	}

	resp, err := q.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.Collection),
		map[string]interface{}{"points": wire},
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: upsert status %s", resp.Status)
	}
	return nil
}

// Search runs a filtered vector search for one owner
func (q *QdrantIndex) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]state.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": keyOwnerID, "match": map[string]interface{}{"value": ownerID}},
			},
		},
	}

	resp, err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.Collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Nothing has been stored yet
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant: search status %s", resp.Status)
	}

	var out struct {
		Result []qdrantHit `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qdrant: decode search: %w", err)
	}

	hits := make([]state.ScoredPoint, 0, len(out.Result))
	for _, r := range out.Result {
		if r.Payload.OwnerID != ownerID {
			continue
		}
		hits = append(hits, state.ScoredPoint{
			PointID: fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}
