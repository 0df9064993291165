package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, 8, cfg.EmbedBatchSize)
	assert.Equal(t, 30000, cfg.EmbedMaxBytes)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.RAGTopK)
	assert.Equal(t, 3000, cfg.ChunkSize)
	assert.Equal(t, 300, cfg.ChunkOverlap)
	assert.InDelta(t, 0.28, cfg.MinSimilarity, 1e-9)
	assert.Equal(t, 6, cfg.WidenFactor)
	assert.Equal(t, 1, cfg.MinFiles)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("RAG_K", "8")
	t.Setenv("CHUNK_SIZE", "1000")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("MIN_SIMILARITY", "0.4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.RAGTopK)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.InDelta(t, 0.4, cfg.MinSimilarity, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing gemini key",
			mutate:  func(c *Config) { c.GeminiAPIKey = "" },
			wantErr: "GEMINI_API_KEY",
		},
		{
			name: "missing openai key",
			mutate: func(c *Config) {
				c.Provider = "openai"
				c.OpenAIAPIKey = ""
			},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "cohere" },
			wantErr: "unknown GENAI_PROVIDER",
		},
		{
			name: "overlap exceeds chunk size",
			mutate: func(c *Config) {
				c.ChunkSize = 100
				c.ChunkOverlap = 100
			},
			wantErr: "CHUNK_OVERLAP",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.EmbedBatchSize = 0 },
			wantErr: "EMBED_BATCH_SIZE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Provider:       "gemini",
				GeminiAPIKey:   "k",
				ChunkSize:      3000,
				ChunkOverlap:   300,
				EmbedBatchSize: 8,
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
