package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store and index backends
const (
	GraphStoreNeo4j  = "neo4j"
	GraphStoreSQLite = "sqlite"

	MemoryIndexChromem = "chromem"
	MemoryIndexQdrant  = "qdrant"

	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Graph store
	GraphStore    string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	SQLitePath    string

	// Semantic memory index
	MemoryIndex      string
	ChromemPath      string // Empty keeps the index in memory
	QdrantURL        string
	QdrantCollection string

	// AI
	LLMBaseURL     string
	LLMAPIKey      string
	ModelID        string
	EmbeddingModel string
	LLMJSONMode    bool

	// Per external call deadlines
	EmbedTimeout    time.Duration
	ReasonerTimeout time.Duration
	IndexTimeout    time.Duration
	StoreTimeout    time.Duration

	// Turn behaviour
	ChatContextLimit     int
	GenerateContextLimit int
	MaxConcurrentTurns   int
	EmbedCacheSize       int
	MemorySyncRetries    int
	DefaultDisplayName   string

	// Identity
	AuthMode  string
	JWTSecret string

	// Discord
	DiscordBotToken string
	DiscordPrefix   string

	// Tracing
	OTLPEndpoint string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		GraphStore:           getEnv("GRAPH_STORE", GraphStoreSQLite),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", "password"),
		SQLitePath:           getEnv("SQLITE_PATH", "mindgraph.db"),
		MemoryIndex:          getEnv("MEMORY_INDEX", MemoryIndexChromem),
		ChromemPath:          getEnv("CHROMEM_PATH", ""),
		QdrantURL:            getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:     getEnv("QDRANT_COLLECTION", "mindmaps"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://localhost:4000/v1"),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		ModelID:              getEnv("MODEL_ID", "gpt-4o-mini"),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMJSONMode:          getEnvBool("LLM_JSON_MODE", true),
		EmbedTimeout:         getEnvDuration("EMBED_TIMEOUT", 10*time.Second),
		ReasonerTimeout:      getEnvDuration("REASONER_TIMEOUT", 60*time.Second),
		IndexTimeout:         getEnvDuration("INDEX_TIMEOUT", 5*time.Second),
		StoreTimeout:         getEnvDuration("STORE_TIMEOUT", 10*time.Second),
		ChatContextLimit:     getEnvInt("CHAT_CONTEXT_LIMIT", 5),
		GenerateContextLimit: getEnvInt("GENERATE_CONTEXT_LIMIT", 3),
		MaxConcurrentTurns:   getEnvInt("MAX_CONCURRENT_TURNS", 32),
		EmbedCacheSize:       getEnvInt("EMBED_CACHE_SIZE", 10000),
		MemorySyncRetries:    getEnvInt("MEMORY_SYNC_RETRIES", 0),
		DefaultDisplayName:   getEnv("DEFAULT_DISPLAY_NAME", "Me"),
		AuthMode:             getEnv("AUTH_MODE", AuthModeHeader),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		DiscordBotToken:      getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordPrefix:        getEnv("DISCORD_PREFIX", "!mind"),
		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.GraphStore {
	case GraphStoreNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
	case GraphStoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("GRAPH_STORE must be %q or %q, got %q", GraphStoreNeo4j, GraphStoreSQLite, c.GraphStore)
	}

	switch c.MemoryIndex {
	case MemoryIndexChromem:
	case MemoryIndexQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required")
		}
	default:
		return fmt.Errorf("MEMORY_INDEX must be %q or %q, got %q", MemoryIndexChromem, MemoryIndexQdrant, c.MemoryIndex)
	}

	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("EMBEDDING_MODEL is required")
	}
	if c.ChatContextLimit < 1 || c.GenerateContextLimit < 1 {
		return fmt.Errorf("context limits must be positive")
	}
	if c.MaxConcurrentTurns < 1 {
		return fmt.Errorf("MAX_CONCURRENT_TURNS must be positive")
	}
	if c.AuthMode == AuthModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
	}
	if c.AuthMode != AuthModeJWT && c.AuthMode != AuthModeHeader {
		return fmt.Errorf("AUTH_MODE must be %q or %q", AuthModeHeader, AuthModeJWT)
	}
	// LLM API key and Discord token are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
