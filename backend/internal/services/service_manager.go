package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"mindgraph/backend/internal/adapter"
	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/api"
	"mindgraph/backend/internal/graph"
	"mindgraph/backend/internal/memory"
	"mindgraph/backend/internal/metrics"
	"mindgraph/backend/internal/tracing"
	"mindgraph/backend/pkg/config"
)

const retryQueueCapacity = 256

// ServiceManager builds the stores, adapters and orchestrator from configuration
// and owns their lifecycle
type ServiceManager struct {
	cfg    *config.Config
	logger *zap.Logger

	Store        graph.Store
	Index        memory.Index
	Embedder     *adapter.CachedEmbedder
	Reasoner     *adapter.LLMAdapter
	Metrics      *metrics.Collector
	Tracing      *tracing.TracerProvider
	RetryQueue   *agent.RetryQueue
	Orchestrator *agent.Orchestrator

	mu      sync.Mutex
	stopped bool
}

// NewServiceManager connects every dependency named by cfg. On error anything
// already opened is closed again.
func NewServiceManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *ServiceManager, err error) {
	sm := &ServiceManager{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			sm.StopAll()
		}
	}()

	if sm.Tracing, err = tracing.InitTracing("mindgraph", cfg.Env, cfg.OTLPEndpoint); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	sm.Metrics = metrics.NewCollector("mindgraph")

	if sm.Store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if sm.Index, err = openIndex(cfg); err != nil {
		return nil, err
	}

	base := adapter.NewOpenAIEmbedder(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel)
	if sm.Embedder, err = adapter.NewCachedEmbedder(base, cfg.EmbedCacheSize); err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	sm.Reasoner = adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID, cfg.LLMJSONMode)

	timeouts := agent.Timeouts{
		Embed:    cfg.EmbedTimeout,
		Reasoner: cfg.ReasonerTimeout,
		Index:    cfg.IndexTimeout,
		Store:    cfg.StoreTimeout,
	}
	if cfg.MemorySyncRetries > 0 {
		sm.RetryQueue = agent.NewRetryQueue(sm.Embedder, sm.Index, timeouts, cfg.MemorySyncRetries, retryQueueCapacity, time.Second)
	}

	sm.Orchestrator = agent.NewOrchestrator(sm.Store, sm.Embedder, sm.Index, sm.Reasoner, agent.Options{
		Timeouts:             timeouts,
		ChatContextLimit:     cfg.ChatContextLimit,
		GenerateContextLimit: cfg.GenerateContextLimit,
		MaxConcurrentTurns:   int64(cfg.MaxConcurrentTurns),
		DefaultDisplayName:   cfg.DefaultDisplayName,
		RetryQueue:           sm.RetryQueue,
		Metrics:              sm.Metrics,
		Tracer:               sm.Tracing.Tracer(),
	})

	logger.Info("Services initialized",
		zap.String("graph_store", cfg.GraphStore),
		zap.String("memory_index", cfg.MemoryIndex),
		zap.String("model", cfg.ModelID),
		zap.Bool("memory_sync_retries", sm.RetryQueue != nil),
		zap.Bool("tracing", cfg.OTLPEndpoint != ""),
	)
	return sm, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graph.Store, error) {
	switch cfg.GraphStore {
	case config.GraphStoreNeo4j:
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			return nil, fmt.Errorf("create neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
		}
		repo := graph.NewRepository(driver)
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ensure neo4j schema: %w", err)
		}
		logger.Info("Connected to Neo4j", zap.String("uri", cfg.Neo4jURI))
		return repo, nil

	default:
		store, err := graph.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("Opened SQLite store", zap.String("path", cfg.SQLitePath))
		return store, nil
	}
}

func openIndex(cfg *config.Config) (memory.Index, error) {
	switch cfg.MemoryIndex {
	case config.MemoryIndexQdrant:
		return memory.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantCollection), nil
	default:
		index, err := memory.NewChromemIndex(cfg.ChromemPath)
		if err != nil {
			return nil, fmt.Errorf("open chromem index: %w", err)
		}
		return index, nil
	}
}

// Identity returns the identity provider selected by AUTH_MODE
func (sm *ServiceManager) Identity() (api.IdentityProvider, error) {
	if sm.cfg.AuthMode == config.AuthModeJWT {
		return api.NewJWTIdentity(sm.cfg.JWTSecret)
	}
	return api.HeaderIdentity{}, nil
}

// StartAll starts background workers
func (sm *ServiceManager) StartAll(ctx context.Context) {
	if sm.RetryQueue != nil {
		sm.RetryQueue.Start(ctx)
		sm.logger.Info("Memory sync retry queue started",
			zap.Int("max_attempts", sm.cfg.MemorySyncRetries),
		)
	}
}

// StopAll stops workers and closes every dependency. Safe to call more than once.
func (sm *ServiceManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return
	}
	sm.stopped = true

	if sm.RetryQueue != nil {
		if pending := sm.RetryQueue.Pending(); pending > 0 {
			sm.logger.Warn("Dropping pending memory retries", zap.Int("pending", pending))
		}
		sm.RetryQueue.Stop()
	}
	if sm.Embedder != nil {
		sm.Embedder.Close()
	}
	if sm.Store != nil {
		if err := sm.Store.Close(); err != nil {
			sm.logger.Error("Failed to close graph store", zap.Error(err))
		}
	}
	if sm.Tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sm.Tracing.Shutdown(ctx); err != nil {
			sm.logger.Error("Failed to flush traces", zap.Error(err))
		}
	}

	sm.logger.Info("All services stopped")
}
