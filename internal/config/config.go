package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"data/uploads"`
	CacheDir        string `envconfig:"CACHE_DIR" default:"data/cache"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Provider selection and credentials
	Provider     string `envconfig:"GENAI_PROVIDER" default:"gemini"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	EmbedModel   string `envconfig:"EMBED_MODEL" default:"text-embedding-004"`
	ChatModel    string `envconfig:"CHAT_MODEL" default:"gemini-1.5-flash"`

	// Embedding boundary
	EmbedBatchSize int     `envconfig:"EMBED_BATCH_SIZE" default:"8"`
	EmbedMaxBytes  int     `envconfig:"EMBED_MAX_BYTES" default:"30000"`
	MaxRetries     int     `envconfig:"GENAI_MAX_RETRIES" default:"5"`
	BackoffBase    float64 `envconfig:"GENAI_BACKOFF" default:"1.0"`
	MaxQPS         float64 `envconfig:"GENAI_MAX_QPS" default:"0.8"`

	// Retrieval
	RAGTopK       int     `envconfig:"RAG_K" default:"5"`
	ChunkSize     int     `envconfig:"CHUNK_SIZE" default:"3000"`
	ChunkOverlap  int     `envconfig:"CHUNK_OVERLAP" default:"300"`
	MinSimilarity float64 `envconfig:"MIN_SIMILARITY" default:"0.28"`
	WidenFactor   int     `envconfig:"WIDEN_FACTOR" default:"6"`
	MMRLambda     float64 `envconfig:"MMR_LAMBDA" default:"0.6"`
	MinFiles      int     `envconfig:"MIN_FILES" default:"1"`

	// Ingestion queue
	NSQDHost            string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQLookupd          string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	EnableIndexerWorker bool   `envconfig:"ENABLE_INDEXER_WORKER" default:"true"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; a missing .env is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("unknown GENAI_PROVIDER %q", c.Provider)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive")
	}
	return nil
}
