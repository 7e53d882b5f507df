package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`

	GithubToken string `envconfig:"GITHUB_TOKEN"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"burrow-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Ingestion engine.
	PoolCapacity    int64         `envconfig:"POOL_CAPACITY" default:"104857600"`
	Concurrency     int64         `envconfig:"CONCURRENCY" default:"10"`
	TaskTimeout     time.Duration `envconfig:"TASK_TIMEOUT" default:"120s"`
	TimeoutCooldown time.Duration `envconfig:"TIMEOUT_COOLDOWN" default:"10s"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`

	// Retrieval hit counter.
	CounterShards        int           `envconfig:"COUNTER_SHARDS" default:"16"`
	CounterFlushInterval time.Duration `envconfig:"COUNTER_FLUSH_INTERVAL" default:"30s"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	// Bootstrap: create initial tenant and API key on startup
	InitTenantName string `envconfig:"INIT_TENANT_NAME"`
	InitAPIKey     string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("BURROW", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGithub() bool {
	return c.GithubToken != ""
}
