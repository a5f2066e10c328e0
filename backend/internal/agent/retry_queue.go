package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindgraph/backend/internal/memory"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

const maxRetryDelay = 30 * time.Second

type retryJob struct {
	point   state.MemoryPoint
	concept string
}

// RetryQueue retries failed memory upserts in the background with exponential backoff.
// Jobs are dropped when the queue is full or after maxAttempts failures.
type RetryQueue struct {
	embedder    Embedder
	index       memory.Index
	timeouts    Timeouts
	maxAttempts int
	baseDelay   time.Duration
	jobs        chan retryJob
	wg          sync.WaitGroup
	logger      *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewRetryQueue creates a queue holding at most capacity pending jobs
func NewRetryQueue(embedder Embedder, index memory.Index, timeouts Timeouts, maxAttempts, capacity int, baseDelay time.Duration) *RetryQueue {
	if capacity < 1 {
		capacity = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &RetryQueue{
		embedder:    embedder,
		index:       index,
		timeouts:    timeouts,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		jobs:        make(chan retryJob, capacity),
		logger:      logger.Get(),
	}
}

// Start launches the worker. It stops when ctx is done or Stop is called.
func (q *RetryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop cancels the worker and waits for it to exit. Pending jobs are dropped.
func (q *RetryQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Enqueue hands a failed point to the worker without blocking
func (q *RetryQueue) Enqueue(point state.MemoryPoint, concept string) bool {
	if q.maxAttempts <= 0 {
		return false
	}
	select {
	case q.jobs <- retryJob{point: point, concept: concept}:
		return true
	default:
		q.logger.Warn("Memory retry queue full, dropping point",
			zap.String("point_id", point.PointID),
		)
		return false
	}
}

// Pending returns the number of queued jobs
func (q *RetryQueue) Pending() int {
	return len(q.jobs)
}

func (q *RetryQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *RetryQueue) process(ctx context.Context, job retryJob) {
	var lastErr error
	for attempt := 0; attempt < q.maxAttempts; attempt++ {
		delay := q.baseDelay << attempt
		if delay > maxRetryDelay || delay <= 0 {
			delay = maxRetryDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if lastErr = q.attempt(ctx, &job); lastErr == nil {
			q.logger.Info("Memory point upserted on retry",
				zap.String("point_id", job.point.PointID),
				zap.Int("attempt", attempt+1),
			)
			return
		}
	}

	q.logger.Error("Memory point dropped after retries",
		zap.String("point_id", job.point.PointID),
		zap.String("map_id", job.point.Payload.MapID),
		zap.Int("attempts", q.maxAttempts),
		zap.Error(lastErr),
	)
}

func (q *RetryQueue) attempt(ctx context.Context, job *retryJob) error {
	if len(job.point.Vector) == 0 {
		embedCtx, cancel := withTimeout(ctx, q.timeouts.Embed)
		vector, err := q.embedder.Embed(embedCtx, job.concept)
		cancel()
		if err != nil {
			return apperrors.FromContext(DepEmbedding, q.timeouts.Embed, err)
		}
		job.point.Vector = vector
	}

	upsertCtx, cancel := withTimeout(ctx, q.timeouts.Index)
	defer cancel()
	return apperrors.FromContext(DepIndex, q.timeouts.Index, q.index.Upsert(upsertCtx, []state.MemoryPoint{job.point}))
}
