package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/api"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

type fakeService struct {
	turns    []agent.TurnRequest
	released bool
}

func (f *fakeService) RunTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	f.turns = append(f.turns, req)
	return &agent.TurnResult{Intent: state.IntentQuestionAnswer, ResponseText: "Rex", NodesAdded: []state.Node{}, EdgesAdded: []state.Edge{}}, nil
}

func (f *fakeService) Generate(ctx context.Context, req agent.GenerateRequest) (state.Graph, error) {
	return state.Graph{Nodes: []state.Node{{ID: "g1", Label: req.Text}}, Edges: []state.Edge{}}, nil
}

func (f *fakeService) CreateMap(ctx context.Context, ownerID string) (*state.MapRecord, error) {
	return &state.MapRecord{ID: "map-new", OwnerID: ownerID}, nil
}

func (f *fakeService) ListMaps(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	return []state.MapSummary{{ID: "map-1", OwnerID: ownerID, NodeCount: 3, Revision: 2, UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}}, nil
}

func (f *fakeService) GetMap(ctx context.Context, ownerID, mapID string) (*state.MapRecord, error) {
	if mapID != "map-1" {
		return nil, apperrors.NewMapNotFound(mapID)
	}
	return &state.MapRecord{ID: mapID, OwnerID: ownerID, Graph: state.Graph{Nodes: []state.Node{}, Edges: []state.Edge{}}}, nil
}

func (f *fakeService) SaveMap(ctx context.Context, req agent.SaveRequest) (int64, error) {
	return req.Revision + 1, nil
}

func execute(t *testing.T, svc *fakeService, args ...string) (string, error) {
	t.Helper()
	open := func(ctx context.Context) (api.Service, func(), error) {
		return svc, func() { svc.released = true }, nil
	}
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMapsCreate(t *testing.T) {
	svc := &fakeService{}
	out, err := execute(t, svc, "--owner", "owner-1", "maps", "create")
	require.NoError(t, err)
	assert.Equal(t, "map-new\n", out)
	assert.True(t, svc.released)
}

func TestMapsList(t *testing.T) {
	out, err := execute(t, &fakeService{}, "--owner", "owner-1", "maps", "list")
	require.NoError(t, err)
	assert.Equal(t, "map-1\t3 nodes\trev 2\t2024-01-02T03:04:05Z\n", out)
}

func TestMapsShow(t *testing.T) {
	out, err := execute(t, &fakeService{}, "--owner", "owner-1", "maps", "show", "map-1")
	require.NoError(t, err)

	var rec state.MapRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "map-1", rec.ID)

	_, err = execute(t, &fakeService{}, "--owner", "owner-1", "maps", "show", "missing")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestChat(t *testing.T) {
	svc := &fakeService{}
	out, err := execute(t, svc, "--owner", "owner-1", "--name", "Ada", "chat", "map-1", "What", "is", "my", "dog's", "name?")
	require.NoError(t, err)

	require.Len(t, svc.turns, 1)
	assert.Equal(t, agent.TurnRequest{MapID: "map-1", OwnerID: "owner-1", OwnerDisplayName: "Ada", Text: "What is my dog's name?"}, svc.turns[0])
	assert.Contains(t, out, `"responseText": "Rex"`)
}

func TestGenerate(t *testing.T) {
	out, err := execute(t, &fakeService{}, "--owner", "owner-1", "generate", "Space")
	require.NoError(t, err)
	assert.Contains(t, out, `"label": "Space"`)
}

func TestOwnerRequired(t *testing.T) {
	t.Setenv("MINDCTL_OWNER", "")
	_, err := execute(t, &fakeService{}, "maps", "list")
	assert.EqualError(t, err, "--owner is required")
}

func TestOpenFailure(t *testing.T) {
	open := func(ctx context.Context) (api.Service, func(), error) {
		return nil, nil, errors.New("no config")
	}
	cmd := newRootCmd(open)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--owner", "o", "maps", "list"})
	assert.EqualError(t, cmd.Execute(), "no config")
}
