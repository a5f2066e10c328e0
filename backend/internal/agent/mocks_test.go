package agent

import (
	"context"
	"errors"
	"sort"
	"sync"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// Mock implementations for testing

type mockStore struct {
	mu      sync.Mutex
	records map[string]*state.MapRecord
	getErr  error
	putErr  error
	puts    int
	// beforePut runs inside Put before the revision check
	beforePut func(mapID string)
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*state.MapRecord)}
}

func (m *mockStore) seed(rec state.MapRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = &rec
}

func (m *mockStore) graph(mapID string) state.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[mapID].Graph.Clone()
}

func (m *mockStore) Get(ctx context.Context, mapID string) (*state.MapRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[mapID]
	if !ok {
		return nil, apperrors.NewMapNotFound(mapID)
	}
	out := *rec
	out.Graph = rec.Graph.Clone()
	return &out, nil
}

func (m *mockStore) Create(ctx context.Context, rec *state.MapRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return errors.New("duplicate map id")
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockStore) Put(ctx context.Context, mapID string, g state.Graph, expected int64) (int64, error) {
	if m.beforePut != nil {
		m.beforePut(mapID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return 0, m.putErr
	}
	rec, ok := m.records[mapID]
	if !ok {
		return 0, apperrors.NewMapNotFound(mapID)
	}
	if rec.Revision != expected {
		return 0, apperrors.NewConcurrentModification(mapID, expected, rec.Revision)
	}
	rec.Graph = g.Clone()
	rec.Revision++
	m.puts++
	return rec.Revision, nil
}

func (m *mockStore) List(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []state.MapSummary{}
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			out = append(out, state.MapSummary{ID: rec.ID, OwnerID: rec.OwnerID, NodeCount: len(rec.Graph.Nodes), Revision: rec.Revision, UpdatedAt: rec.UpdatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *mockStore) Close() error { return nil }

type mockEmbedder struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type mockIndex struct {
	mu        sync.Mutex
	hits      []state.ScoredPoint
	searchErr error
	upsertErr error
	upserted  []state.MemoryPoint
	searches  int
	lastLimit int
}

func (m *mockIndex) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]state.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits, nil
}

func (m *mockIndex) Upsert(ctx context.Context, points []state.MemoryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, points...)
	return nil
}

func (m *mockIndex) points() []state.MemoryPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.MemoryPoint(nil), m.upserted...)
}

type mockReasoner struct {
	mu           sync.Mutex
	response     string
	err          error
	calls        int
	instructions []string
	contexts     []string
	generateFunc func(ctx context.Context, instruction, contextBlock string) (string, error)
}

func (m *mockReasoner) Generate(ctx context.Context, instruction, contextBlock string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.instructions = append(m.instructions, instruction)
	m.contexts = append(m.contexts, contextBlock)
	fn := m.generateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, instruction, contextBlock)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}
