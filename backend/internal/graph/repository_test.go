package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// These tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.
func TestRepository_CreateGetPut(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	mapID := "test-map-" + time.Now().Format("20060102150405.000000")

	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (m:MindMap {id: $id}) DETACH DELETE m", map[string]interface{}{"id": mapID})
	}()

	now := time.Now()
	err = repo.Create(ctx, &state.MapRecord{ID: mapID, OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	g := state.Graph{
		Nodes: []state.Node{{ID: state.AnchorNodeID, Label: "Me", Kind: state.AnchorNodeKind}},
	}
	rev, err := repo.Put(ctx, mapID, g, 0)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rev != 1 {
		t.Errorf("Expected revision 1, got %d", rev)
	}

	rec, err := repo.Get(ctx, mapID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(rec.Graph.Nodes) != 1 || rec.Graph.Nodes[0].ID != state.AnchorNodeID {
		t.Errorf("Unexpected graph: %+v", rec.Graph)
	}

	if _, err := repo.Put(ctx, mapID, g, 0); !apperrors.IsErrorType(err, apperrors.ErrorTypeConcurrentModification) {
		t.Errorf("Expected concurrent modification, got %v", err)
	}
}

func TestRepository_GetNonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	_, err = repo.Get(ctx, "non-existent-map")
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, err
	}

	return driver, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
