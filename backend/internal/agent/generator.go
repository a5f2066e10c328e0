package agent

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// GenerateRequest asks for a standalone map fragment
type GenerateRequest struct {
	OwnerID string `validate:"required,max=256"`
	Text    string `validate:"required,max=8000"`
}

// Generate produces a node/edge fragment for a prompt, grounded in the owner's memories.
// Nothing is persisted; the caller merges and saves the fragment itself.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (state.Graph, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := validateStruct(req); err != nil {
		return state.Graph{}, err
	}

	release, err := o.acquire(ctx, "")
	if err != nil {
		return state.Graph{}, err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "agent.Generate", trace.WithAttributes(
		attribute.String("owner.id", req.OwnerID),
	))
	defer span.End()

	retrieval := o.retriever.Retrieve(ctx, req.Text, req.OwnerID, o.opts.GenerateContextLimit)
	contextBlock := BuildContextBlock("Context from previous maps", retrieval.Snippets, req.Text)

	callCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Reasoner)
	raw, err := o.reasoner.Generate(callCtx, BuildGeneratorInstruction(), contextBlock)
	cancel()
	if err != nil {
		err = apperrors.FromContext(DepReasoner, o.opts.Timeouts.Reasoner, err)
		span.RecordError(err)
		return state.Graph{}, err
	}

	fragment, err := DecodeFragment(raw)
	if err != nil {
		o.logger.Warn("Generator output rejected",
			zap.String("owner_id", req.OwnerID),
			zap.String("raw", truncate(raw, rawLogLimit)),
			zap.Error(err),
		)
		span.RecordError(err)
		return state.Graph{}, err
	}

	o.logger.Info("Map fragment generated",
		zap.String("owner_id", req.OwnerID),
		zap.Int("nodes", len(fragment.Nodes)),
		zap.Int("edges", len(fragment.Edges)),
		zap.Bool("retrieval_degraded", retrieval.Degraded),
	)
	return fragment, nil
}
