// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`
	// DBURL is optional; when empty, assessments are kept in memory only.
	DBURL           string `env:"DB_URL"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ChatModel       string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingsModel string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`
	QdrantURL       string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	QdrantAPIKey    string `env:"QDRANT_API_KEY"`
	// QdrantCollection names the chunk collection queried by the retrieval engine.
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"policy_chunks"`
	// RedisURL is optional; when empty, generated answers are not cached.
	RedisURL       string        `env:"REDIS_URL"`
	AnswerCacheTTL time.Duration `env:"ANSWER_CACHE_TTL" envDefault:"15m"`
	// TikaURL specifies the base URL for the Apache Tika server used for text extraction.
	TikaURL         string `env:"TIKA_URL" envDefault:"http://tika:9998"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"msme-loan-scorer"`
	// WorkingDir holds the retrieval side files written at ingestion time
	// (ingestion_metadata.json and kv_store_doc_status.json).
	WorkingDir string `env:"WORKING_DIR" envDefault:"rag-pdf"`
	// BusinessPlanCharLimit caps the accepted business plan length.
	BusinessPlanCharLimit int    `env:"BUSINESS_PLAN_CHAR_LIMIT" envDefault:"2000"`
	EmbedCacheSize        int    `env:"EMBED_CACHE_SIZE" envDefault:"2048"`
	CORSAllowOrigins      string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	// DisablePositionalCitations turns off the round-robin last-resort
	// citation assignment; unresolved results then keep the generic default
	// metadata instead of a fabricated document attribution.
	DisablePositionalCitations bool          `env:"DISABLE_POSITIONAL_CITATIONS" envDefault:"false"`
	ServerShutdownTimeout      time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout            time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout           time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout            time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	// AI Backoff Configuration
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"90s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"2s"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"20s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"1.5"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate checks requirements that must hold before the service starts.
// A missing AI credential is fatal; everything else degrades at runtime.
func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("op=config.Validate: OPENAI_API_KEY is required")
	}
	return nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetAIBackoffConfig returns backoff configuration appropriate for the current
// environment. Test environments use much shorter timeouts.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 5 * time.Second, 100 * time.Millisecond, 1 * time.Second, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
