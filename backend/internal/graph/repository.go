package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

// Repository stores maps as (:MindMap) nodes in Neo4j
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraint on map ids
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`CREATE CONSTRAINT mindmap_id IF NOT EXISTS FOR (m:MindMap) REQUIRE m.id IS UNIQUE`,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create constraint: %w", err)
	}
	return nil
}

// Get loads one map
func (r *Repository) Get(ctx context.Context, mapID string) (*state.MapRecord, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (m:MindMap {id: $mapID})
		RETURN
			m.id as id,
			m.owner_id as owner_id,
			m.map_data as map_data,
			m.revision as revision,
			m.created_at as created_at,
			m.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"mapID": mapID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, apperrors.NewMapNotFound(mapID)
	}

	record := result.Record()
	graph, err := decodeGraph(getString(record, "map_data", ""))
	if err != nil {
		return nil, err
	}

	return &state.MapRecord{
		ID:        getString(record, "id", mapID),
		OwnerID:   getString(record, "owner_id", ""),
		Graph:     graph,
		Revision:  getInt64(record, "revision"),
		CreatedAt: getTime(record, "created_at"),
		UpdatedAt: getTime(record, "updated_at"),
	}, nil
}

// Create inserts a new map. It fails if the id is taken.
func (r *Repository) Create(ctx context.Context, rec *state.MapRecord) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	data, err := encodeGraph(rec.Graph)
	if err != nil {
		return err
	}

	query := `
		CREATE (m:MindMap {
			id: $mapID,
			owner_id: $ownerID,
			map_data: $data,
			node_count: $nodeCount,
			revision: $revision,
			created_at: datetime($createdAt),
			updated_at: datetime($updatedAt)
		})
		RETURN m.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"mapID":     rec.ID,
		"ownerID":   rec.OwnerID,
		"data":      data,
		"nodeCount": len(rec.Graph.Nodes),
		"revision":  rec.Revision,
		"createdAt": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to create map: %w", err)
	}
	if _, err := result.Single(ctx); err != nil {
		return fmt.Errorf("failed to verify map creation: %w", err)
	}

	r.logger.Info("Map created",
		zap.String("map_id", rec.ID),
		zap.String("owner_id", rec.OwnerID),
	)
	return nil
}

// Put overwrites the map graph when the stored revision matches
func (r *Repository) Put(ctx context.Context, mapID string, g state.Graph, expectedRevision int64) (int64, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	data, err := encodeGraph(g)
	if err != nil {
		return 0, err
	}

	// The compare and the write run in one statement
	query := `
		MATCH (m:MindMap {id: $mapID})
		WITH m, m.revision AS current
		FOREACH (_ IN CASE WHEN current = $expected THEN [1] ELSE [] END |
			SET m.map_data = $data,
			    m.node_count = $nodeCount,
			    m.revision = current + 1,
			    m.updated_at = datetime()
		)
		RETURN current, m.revision as revision
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"mapID":     mapID,
		"expected":  expectedRevision,
		"data":      data,
		"nodeCount": len(g.Nodes),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write map: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return 0, fmt.Errorf("failed to fetch record: %w", err)
		}
		return 0, apperrors.NewMapNotFound(mapID)
	}

	record := result.Record()
	current := getInt64(record, "current")
	if current != expectedRevision {
		return 0, apperrors.NewConcurrentModification(mapID, expectedRevision, current)
	}

	revision := getInt64(record, "revision")
	r.logger.Debug("Map written",
		zap.String("map_id", mapID),
		zap.Int64("revision", revision),
		zap.Int("nodes", len(g.Nodes)),
	)
	return revision, nil
}

// List returns the owner's maps, most recently updated first
func (r *Repository) List(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (m:MindMap {owner_id: $ownerID})
		RETURN
			m.id as id,
			m.owner_id as owner_id,
			m.node_count as node_count,
			m.revision as revision,
			m.updated_at as updated_at
		ORDER BY m.updated_at DESC
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	summaries := []state.MapSummary{}
	for result.Next(ctx) {
		record := result.Record()
		summaries = append(summaries, state.MapSummary{
			ID:        getString(record, "id", ""),
			OwnerID:   getString(record, "owner_id", ""),
			NodeCount: int(getInt64(record, "node_count")),
			Revision:  getInt64(record, "revision"),
			UpdatedAt: getTime(record, "updated_at"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate maps: %w", err)
	}

	return summaries, nil
}

// Helper functions

func getString(record *neo4j.Record, key string, defaultValue string) string {
	val, ok := record.Get(key)
	if !ok {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getTime(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	// Neo4j datetime values come as time.Time
	if t, ok := val.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}

// getInt64 reads an integer property. Missing or null values read as 0.
func getInt64(record *neo4j.Record, key string) int64 {
	switch v, _ := record.Get(key); n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
