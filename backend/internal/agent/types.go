package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// TurnState is a step of the turn state machine
type TurnState string

const (
	StateRetrieving    TurnState = "RETRIEVING"
	StateClassifying   TurnState = "CLASSIFYING"
	StateMerging       TurnState = "MERGING"
	StateSyncingMemory TurnState = "SYNCING_MEMORY"
	StatePersisting    TurnState = "PERSISTING"
	StateDone          TurnState = "DONE"
	StateFailed        TurnState = "FAILED"
)

// Dependency names used in error classification and logs
const (
	DepEmbedding  = "embedding"
	DepIndex      = "memory_index"
	DepReasoner   = "reasoner"
	DepGraphStore = "graph_store"
	DepMapLock    = "map_lock"
	DepTurnSlot   = "turn_slot"
)

// Reasoner is the generative model behind classification and generation
type Reasoner interface {
	Generate(ctx context.Context, instruction, contextBlock string) (string, error)
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TurnRequest is one chat message against one map
type TurnRequest struct {
	MapID            string `validate:"required,max=128"`
	OwnerID          string `validate:"required,max=256"`
	OwnerDisplayName string `validate:"max=256"`
	Text             string `validate:"required,max=8000"`
}

// TurnResult is returned to the caller of a successful turn
type TurnResult struct {
	Intent       state.IntentKind `json:"intent"`
	ResponseText string           `json:"responseText"`
	CenterNodeID string           `json:"centerNodeId,omitempty"`
	NodesAdded   []state.Node     `json:"nodesAdded"`
	EdgesAdded   []state.Edge     `json:"edgesAdded"`
	Revision     int64            `json:"revision"`
	Trace        []TurnState      `json:"-"`
	Duration     time.Duration    `json:"-"`
}

// Timeouts bounds each external call of a turn. Zero disables the deadline.
type Timeouts struct {
	Embed    time.Duration
	Reasoner time.Duration
	Index    time.Duration
	Store    time.Duration
}

var validate = validator.New()

// validateStruct runs tag validation and converts the first failure to a validation error
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewValidation(strings.ToLower(fe.Field()), fe.Tag())
	}
	return apperrors.NewValidation("request", err.Error())
}

// withTimeout derives a deadline for one external call
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
