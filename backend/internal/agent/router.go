package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

// DefaultMindMapConfirmation is used when a MIND_MAP response carries no text
const DefaultMindMapConfirmation = "Mind map generated."

// rawLogLimit caps how much reasoner output is copied into errors and logs
const rawLogLimit = 2000

// IntentRouter drives the reasoner once per turn and decodes its answer
type IntentRouter struct {
	reasoner Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

// NewIntentRouter creates a router. A zero timeout disables the deadline.
func NewIntentRouter(reasoner Reasoner, timeout time.Duration) *IntentRouter {
	return &IntentRouter{
		reasoner: reasoner,
		timeout:  timeout,
		logger:   logger.Get(),
	}
}

// Classify asks the reasoner for the intent of userText. There are no retries;
// a malformed answer fails with an intent decode error.
func (r *IntentRouter) Classify(ctx context.Context, userText string, snippets []string, ownerDisplayName string) (state.Intent, error) {
	instruction := BuildRouterInstruction(ownerDisplayName)
	contextBlock := BuildContextBlock("Context from memories", snippets, userText)

	callCtx, cancel := withTimeout(ctx, r.timeout)
	raw, err := r.reasoner.Generate(callCtx, instruction, contextBlock)
	cancel()
	if err != nil {
		return nil, apperrors.FromContext(DepReasoner, r.timeout, err)
	}

	intent, err := DecodeIntent(raw)
	if err != nil {
		r.logger.Warn("Reasoner output rejected",
			zap.String("raw", truncate(raw, rawLogLimit)),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Debug("Intent classified",
		zap.String("intent", string(intent.Kind())),
		zap.Int("snippets", len(snippets)),
	)
	return intent, nil
}

type intentWire struct {
	Intent string      `json:"intent"`
	Data   *intentData `json:"data"`
}

type intentData struct {
	Nodes        []state.Node `json:"nodes"`
	Edges        []state.Edge `json:"edges"`
	ResponseText string       `json:"responseText"`
	CenterNodeID string       `json:"centerNodeId"`
	Concept      string       `json:"concept"`
}

type fragmentWire struct {
	Nodes []state.Node `json:"nodes"`
	Edges []state.Edge `json:"edges"`
}

// DecodeIntent parses reasoner output into one of the three intents.
// Anything that does not satisfy the contract of its tag is rejected whole.
func DecodeIntent(raw string) (state.Intent, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, apperrors.NewIntentDecode(err.Error(), truncate(raw, rawLogLimit), err)
	}

	var wire intentWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, apperrors.NewIntentDecode("malformed JSON", truncate(raw, rawLogLimit), err)
	}

	kind := state.IntentKind(strings.TrimSpace(wire.Intent))
	if kind == "" {
		return nil, decodeFailure("missing intent tag", raw)
	}
	if !kind.Valid() {
		return nil, decodeFailure(fmt.Sprintf("unknown intent %q", wire.Intent), raw)
	}
	if wire.Data == nil {
		return nil, decodeFailure("missing data", raw)
	}
	d := wire.Data

	if err := checkElements(d.Nodes, d.Edges); err != nil {
		return nil, decodeFailure(err.Error(), raw)
	}

	text := strings.TrimSpace(d.ResponseText)
	center := strings.TrimSpace(d.CenterNodeID)

	switch kind {
	case state.IntentStoreMemory:
		if len(d.Nodes) == 0 {
			return nil, decodeFailure("STORE_MEMORY requires at least one node", raw)
		}
		if !connectsProposal(d.Nodes, d.Edges) {
			return nil, decodeFailure("STORE_MEMORY must connect a proposed node toward the anchor", raw)
		}
		return state.StoreMemory{
			Nodes:        d.Nodes,
			Edges:        d.Edges,
			Concept:      strings.TrimSpace(d.Concept),
			Ack:          text,
			CenterNodeID: center,
		}, nil

	case state.IntentQuestionAnswer:
		if text == "" {
			return nil, decodeFailure("Q_AND_A requires responseText", raw)
		}
		return state.QuestionAnswer{
			Nodes:        d.Nodes,
			Edges:        d.Edges,
			Answer:       text,
			CenterNodeID: center,
		}, nil

	default:
		if len(d.Nodes) == 0 {
			return nil, decodeFailure("MIND_MAP requires at least one node", raw)
		}
		if text == "" {
			text = DefaultMindMapConfirmation
		}
		return state.MindMap{
			Nodes:        d.Nodes,
			Edges:        d.Edges,
			Confirmation: text,
			CenterNodeID: center,
		}, nil
	}
}

// DecodeFragment parses a bare {nodes, edges} object from the generator
func DecodeFragment(raw string) (state.Graph, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return state.Graph{}, apperrors.NewIntentDecode(err.Error(), truncate(raw, rawLogLimit), err)
	}

	var wire fragmentWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return state.Graph{}, apperrors.NewIntentDecode("malformed JSON", truncate(raw, rawLogLimit), err)
	}
	if len(wire.Nodes) == 0 {
		return state.Graph{}, decodeFailure("fragment requires at least one node", raw)
	}
	if err := checkElements(wire.Nodes, wire.Edges); err != nil {
		return state.Graph{}, decodeFailure(err.Error(), raw)
	}
	if wire.Edges == nil {
		wire.Edges = []state.Edge{}
	}
	return state.Graph{Nodes: wire.Nodes, Edges: wire.Edges}, nil
}

// extractJSON strips code fences and keeps the outermost object
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}

func checkElements(nodes []state.Node, edges []state.Edge) error {
	for i, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("node %d has no id", i)
		}
	}
	for i, e := range edges {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("edge %d has no id", i)
		}
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("edge %s needs source and target", e.ID)
		}
	}
	return nil
}

// connectsProposal reports whether some proposed node is reachable, over the proposed
// edges in either direction, from the anchor or from a node outside the proposal
func connectsProposal(nodes []state.Node, edges []state.Edge) bool {
	proposed := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		proposed[n.ID] = struct{}{}
	}

	adjacent := make(map[string][]string, len(edges)*2)
	var frontier []string
	seen := make(map[string]struct{})
	for _, e := range edges {
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
		adjacent[e.Target] = append(adjacent[e.Target], e.Source)
		for _, id := range []string{e.Source, e.Target} {
			if _, ok := proposed[id]; ok && id != state.AnchorNodeID {
				continue
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				frontier = append(frontier, id)
			}
		}
	}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, next := range adjacent[id] {
			if _, ok := seen[next]; ok {
				continue
			}
			if _, ok := proposed[next]; ok {
				return true
			}
			seen[next] = struct{}{}
			frontier = append(frontier, next)
		}
	}
	return false
}

func decodeFailure(reason, raw string) error {
	return apperrors.NewIntentDecode(reason, truncate(raw, rawLogLimit), nil)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
