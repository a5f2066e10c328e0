package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mindgraph/backend/internal/graph"
	"mindgraph/backend/internal/memory"
	"mindgraph/backend/internal/merge"
	"mindgraph/backend/internal/metrics"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

// Defaults applied when Options leave a field zero
const (
	DefaultChatContextLimit     = 5
	DefaultGenerateContextLimit = 3
	DefaultMaxConcurrentTurns   = 32
)

// Options configures an Orchestrator
type Options struct {
	Timeouts             Timeouts
	ChatContextLimit     int
	GenerateContextLimit int
	MaxConcurrentTurns   int64
	// DefaultDisplayName labels the anchor when a request carries no display name
	DefaultDisplayName string
	// RetryQueue, when set, retries failed memory upserts in the background
	RetryQueue *RetryQueue
	Metrics    *metrics.Collector
	Tracer     trace.Tracer
}

// Orchestrator runs chat turns and map operations against one graph store and one memory index
type Orchestrator struct {
	store     graph.Store
	retriever *Retriever
	router    *IntentRouter
	reasoner  Reasoner
	sync      *MemorySync
	locks     *mapLocks
	sem       *semaphore.Weighted
	opts      Options
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(store graph.Store, embedder Embedder, index memory.Index, reasoner Reasoner, opts Options) *Orchestrator {
	if opts.ChatContextLimit <= 0 {
		opts.ChatContextLimit = DefaultChatContextLimit
	}
	if opts.GenerateContextLimit <= 0 {
		opts.GenerateContextLimit = DefaultGenerateContextLimit
	}
	if opts.MaxConcurrentTurns <= 0 {
		opts.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	if opts.DefaultDisplayName == "" {
		opts.DefaultDisplayName = state.DefaultAnchorLabel
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("mindgraph/turn")
	}

	return &Orchestrator{
		store:     store,
		retriever: NewRetriever(embedder, index, opts.Timeouts, opts.Metrics),
		router:    NewIntentRouter(reasoner, opts.Timeouts.Reasoner),
		reasoner:  reasoner,
		sync:      NewMemorySync(embedder, index, opts.Timeouts, opts.RetryQueue, opts.Metrics),
		locks:     newMapLocks(),
		sem:       semaphore.NewWeighted(opts.MaxConcurrentTurns),
		opts:      opts,
		metrics:   opts.Metrics,
		tracer:    tracer,
		logger:    logger.Get(),
	}
}

// turn tracks the state machine of one RunTurn call
type turn struct {
	o       *Orchestrator
	span    trace.Span
	log     *zap.Logger
	trace   []TurnState
	current TurnState
	started time.Time
	intent  state.IntentKind
}

func (t *turn) enter(s TurnState) {
	t.leave()
	t.current = s
	t.started = time.Now()
	t.trace = append(t.trace, s)
	t.span.AddEvent(string(s))
}

func (t *turn) leave() {
	if t.current != "" && !t.started.IsZero() {
		t.o.metrics.ObserveStage(string(t.current), time.Since(t.started))
	}
}

// fail moves the turn to FAILED and returns the classified error
func (t *turn) fail(fallback apperrors.ErrorType, err error) error {
	t.leave()
	stage := t.current
	t.current = StateFailed
	t.started = time.Time{}
	t.trace = append(t.trace, StateFailed)

	tf := apperrors.NewTurnFailed(string(stage), fallback, err)
	t.log.Error("Turn failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(tf.Kind)),
		zap.Error(err),
	)
	t.o.metrics.RecordFailure(string(tf.Kind), string(stage))
	t.o.metrics.RecordTurn(string(t.intent), "failure")
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, string(tf.Kind))
	return tf
}

// RunTurn processes one chat message:
// RETRIEVING, CLASSIFYING, MERGING, SYNCING_MEMORY (STORE_MEMORY with a concept only),
// PERSISTING (only when the graph changed), DONE. Any hard failure ends in FAILED and
// returns a *errors.TurnFailed; nothing is written when classification fails.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.MapID = strings.TrimSpace(req.MapID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	release, err := o.acquire(ctx, req.MapID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "agent.RunTurn", trace.WithAttributes(
		attribute.String("map.id", req.MapID),
		attribute.String("owner.id", req.OwnerID),
	))
	defer span.End()

	start := time.Now()
	t := &turn{o: o, span: span, log: logger.ForTurn(req.MapID, req.OwnerID)}

	displayName := req.OwnerDisplayName
	if displayName == "" {
		displayName = o.opts.DefaultDisplayName
	}

	// RETRIEVING: load the map, then best-effort memory context
	t.enter(StateRetrieving)
	rec, err := o.loadMap(ctx, req.MapID)
	if err != nil {
		return nil, t.fail(apperrors.ErrorTypeDependencyUnavailable, err)
	}
	if rec.OwnerID != req.OwnerID {
		return nil, t.fail(apperrors.ErrorTypeNotFound, apperrors.NewMapNotFound(req.MapID))
	}
	retrieval := o.retriever.Retrieve(ctx, req.Text, req.OwnerID, o.opts.ChatContextLimit)
	span.SetAttributes(
		attribute.Int("retrieval.snippets", len(retrieval.Snippets)),
		attribute.Bool("retrieval.degraded", retrieval.Degraded),
	)

	// CLASSIFYING
	t.enter(StateClassifying)
	intent, err := o.router.Classify(ctx, req.Text, retrieval.Snippets, displayName)
	if err != nil {
		return nil, t.fail(apperrors.ErrorTypeIntentDecode, err)
	}
	t.intent = intent.Kind()
	span.SetAttributes(attribute.String("intent", string(t.intent)))

	// MERGING
	t.enter(StateMerging)
	nodes, edges := intent.Proposal()
	res := merge.Merge(rec.Graph, nodes, edges, displayName)
	o.metrics.RecordMerge(len(res.AddedNodeIDs), len(res.AddedEdgeIDs), len(res.DroppedNodeIDs), len(res.DroppedEdgeIDs))
	if len(res.DroppedNodeIDs) > 0 || len(res.DroppedEdgeIDs) > 0 {
		t.log.Info("Duplicate proposals dropped",
			zap.Strings("node_ids", res.DroppedNodeIDs),
			zap.Strings("edge_ids", res.DroppedEdgeIDs),
		)
	}
	if len(res.DanglingEdgeIDs) > 0 {
		t.log.Debug("Graph has dangling edges", zap.Strings("edge_ids", res.DanglingEdgeIDs))
	}

	// SYNCING_MEMORY: failures are logged and swallowed
	if sm, ok := intent.(state.StoreMemory); ok && sm.Concept != "" {
		t.enter(StateSyncingMemory)
		_, err := o.sync.Sync(ctx, SyncRequest{
			OwnerID: req.OwnerID,
			MapID:   req.MapID,
			NodeID:  RepresentativeNodeID(res.AddedNodeIDs),
			Concept: sm.Concept,
			Text:    req.Text,
		})
		if err != nil {
			t.log.Warn("Continuing turn without memory point", zap.Error(err))
		}
	}

	// PERSISTING
	revision := rec.Revision
	if res.Changed() {
		t.enter(StatePersisting)
		revision, err = o.writeMap(ctx, req.MapID, res.Graph, rec.Revision)
		if err != nil {
			return nil, t.fail(apperrors.ErrorTypePersistence, err)
		}
	}

	t.enter(StateDone)
	o.metrics.RecordTurn(string(t.intent), "success")

	result := &TurnResult{
		Intent:       intent.Kind(),
		ResponseText: intent.Reply(),
		CenterNodeID: state.CenterNodeID(intent),
		NodesAdded:   res.AddedNodes(),
		EdgesAdded:   res.AddedEdges(),
		Revision:     revision,
		Trace:        t.trace,
		Duration:     time.Since(start),
	}

	t.log.Info("Turn completed",
		zap.String("intent", string(result.Intent)),
		zap.Int("nodes_added", len(result.NodesAdded)),
		zap.Int("edges_added", len(result.EdgesAdded)),
		zap.Int64("revision", revision),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// acquire takes the map lock, when mapID is set, and then a turn slot. Waiting on a busy
// map does not hold a slot. Both waits end with ctx.
func (o *Orchestrator) acquire(ctx context.Context, mapID string) (func(), error) {
	start := time.Now()
	unlock := func() {}
	if mapID != "" {
		var err error
		if unlock, err = o.locks.Lock(ctx, mapID); err != nil {
			return nil, apperrors.FromContext(DepMapLock, time.Since(start).Round(time.Millisecond), err)
		}
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		unlock()
		return nil, apperrors.FromContext(DepTurnSlot, time.Since(start).Round(time.Millisecond), err)
	}
	return func() {
		o.sem.Release(1)
		unlock()
	}, nil
}

func (o *Orchestrator) loadMap(ctx context.Context, mapID string) (*state.MapRecord, error) {
	getCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	defer cancel()
	rec, err := o.store.Get(getCtx, mapID)
	if err != nil {
		return nil, apperrors.FromContext(DepGraphStore, o.opts.Timeouts.Store, err)
	}
	return rec, nil
}

// writeMap stores g when the map is still at expected. Unclassified write errors are
// persistence failures.
func (o *Orchestrator) writeMap(ctx context.Context, mapID string, g state.Graph, expected int64) (int64, error) {
	putCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Store)
	defer cancel()
	revision, err := o.store.Put(putCtx, mapID, g, expected)
	if err == nil {
		return revision, nil
	}
	if _, ok := apperrors.KindOf(err); ok {
		return 0, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, apperrors.NewDependencyTimeout(DepGraphStore, o.opts.Timeouts.Store, err)
	}
	return 0, apperrors.NewPersistence(mapID, err)
}
