package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GRAPH_STORE", "")
	t.Setenv("MEMORY_INDEX", "")
	t.Setenv("CHAT_CONTEXT_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, GraphStoreSQLite, cfg.GraphStore)
	assert.Equal(t, MemoryIndexChromem, cfg.MemoryIndex)
	assert.Equal(t, 5, cfg.ChatContextLimit)
	assert.Equal(t, 3, cfg.GenerateContextLimit)
	assert.Equal(t, "mindmaps", cfg.QdrantCollection)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GRAPH_STORE", GraphStoreNeo4j)
	t.Setenv("REASONER_TIMEOUT", "15s")
	t.Setenv("LLM_JSON_MODE", "false")
	t.Setenv("MEMORY_SYNC_RETRIES", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, GraphStoreNeo4j, cfg.GraphStore)
	assert.Equal(t, 15*time.Second, cfg.ReasonerTimeout)
	assert.False(t, cfg.LLMJSONMode)
	assert.Equal(t, 4, cfg.MemorySyncRetries)
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			GraphStore:           GraphStoreSQLite,
			SQLitePath:           "x.db",
			MemoryIndex:          MemoryIndexChromem,
			LLMBaseURL:           "http://localhost:4000/v1",
			ModelID:              "m",
			EmbeddingModel:       "e",
			ChatContextLimit:     5,
			GenerateContextLimit: 3,
			MaxConcurrentTurns:   1,
			AuthMode:             AuthModeHeader,
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.GraphStore = "postgres" }},
		{"unknown index", func(c *Config) { c.MemoryIndex = "pinecone" }},
		{"qdrant without url", func(c *Config) { c.MemoryIndex = MemoryIndexQdrant; c.QdrantURL = "" }},
		{"jwt without secret", func(c *Config) { c.AuthMode = AuthModeJWT }},
		{"zero context limit", func(c *Config) { c.ChatContextLimit = 0 }},
		{"no model", func(c *Config) { c.ModelID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
