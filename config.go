package mealprep

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type ModelConfig struct {
	ModelID         string  `env:"MODEL_ID,required"`
	MaxTokens       int32   `env:"MAX_TOKENS,default=1024"`
	Temperature     float32 `env:"TEMPERATURE,default=1.0"`
	PlanTemperature float32 `env:"PLAN_TEMPERATURE,default=0.7"`
	TopP            float32 `env:"TOP_P,default=0.9"`
}

type ServiceConfig struct {
	Provider           string        `env:"LLM_PROVIDER,default=bedrock"`
	DBPath             string        `env:"DB_PATH,default=data/mealprep.db"`
	BaseOllamaEndpoint string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	EmbedModelID       string        `env:"EMBED_MODEL_ID"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	MaxAttempts        int           `env:"MAX_ATTEMPTS,default=2"`
	RetryPause         time.Duration `env:"RETRY_PAUSE,default=1s"`
	RatePerMinute      int           `env:"LLM_RATE_PER_MINUTE,default=0"`
	CoordinationLogDir string        `env:"COORDINATION_LOG_DIR,default=./logs"`
}

type StorageConfig struct {
	RecipesPath string `env:"ARTIFACTS_RECIPES_PATH,default=artifacts/recipes.json"`
	S3Bucket    string `env:"ARTIFACTS_S3_BUCKET"`
	RecipesKey  string `env:"ARTIFACTS_RECIPES_S3_KEY"`
}

// UseS3 reports whether the recipe corpus should be read from S3.
func (c StorageConfig) UseS3() bool {
	return c.S3Bucket != "" && c.RecipesKey != ""
}

type SlackConfig struct {
	WebhookURL string `env:"SLACK_WEBHOOK_URL"`
	Channel    string `env:"SLACK_CHANNEL,default=#meals"`
}

// Config groups everything an entry point needs.
type Config struct {
	Model   ModelConfig
	Service ServiceConfig
	Storage StorageConfig
	Slack   SlackConfig
}

// LoadConfig reads an optional .env file and decodes the environment into Config.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if cfg.Service.Provider == "gemini" && cfg.Service.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", ErrConfiguration)
	}
	return cfg, nil
}
