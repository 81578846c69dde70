package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ragpipe/ragpipe/pkg/chunker"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Chunker  ChunkerConfig  `mapstructure:"chunker"`
	Embed    EmbedConfig    `mapstructure:"embedding"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Search   SearchConfig   `mapstructure:"search"`
}

type ProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	LLMModel       string        `mapstructure:"llm_model"`
	VisionModel    string        `mapstructure:"vision_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Index      string `mapstructure:"index"`
}

type ChunkerConfig struct {
	ChunkSize      int  `mapstructure:"chunk_size"`
	Overlap        int  `mapstructure:"overlap"`
	DetectChapters bool `mapstructure:"detect_chapters"`
}

type EmbedConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxAcceptableLoss float64       `mapstructure:"max_acceptable_loss"`
}

type IngestConfig struct {
	ExtractImages  bool   `mapstructure:"extract_images"`
	DescribeImages bool   `mapstructure:"describe_images"`
	Workers        int    `mapstructure:"workers"`
	OnReingest     string `mapstructure:"on_reingest"` // duplicate | fail | replace
}

type SearchConfig struct {
	Strategy    string  `mapstructure:"strategy"` // simple | selector | selector_metadata
	Limit       int     `mapstructure:"limit"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	viper.Reset()
	viper.SetConfigName("ragpipe")
	viper.SetConfigType("toml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ragpipe")
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("provider.base_url", "")
	viper.SetDefault("provider.embedding_model", "text-embedding-3-small")
	viper.SetDefault("provider.llm_model", "gpt-4o-mini")
	viper.SetDefault("provider.vision_model", "gpt-4o-mini")
	viper.SetDefault("provider.timeout", "60s")

	viper.SetDefault("qdrant.host", "localhost")
	viper.SetDefault("qdrant.port", 6334)
	viper.SetDefault("qdrant.database", "")
	viper.SetDefault("qdrant.collection", "ragpipe")
	viper.SetDefault("qdrant.index", "default")

	viper.SetDefault("chunker.chunk_size", 1000)
	viper.SetDefault("chunker.overlap", 100)
	viper.SetDefault("chunker.detect_chapters", true)

	viper.SetDefault("embedding.batch_size", 20)
	viper.SetDefault("embedding.max_retries", 5)
	viper.SetDefault("embedding.retry_delay", "15s")
	viper.SetDefault("embedding.max_acceptable_loss", 0.1)

	viper.SetDefault("ingest.extract_images", true)
	viper.SetDefault("ingest.describe_images", true)
	viper.SetDefault("ingest.workers", 0)
	viper.SetDefault("ingest.on_reingest", "duplicate")

	viper.SetDefault("search.strategy", "simple")
	viper.SetDefault("search.limit", 5)
	viper.SetDefault("search.max_tokens", 500)
	viper.SetDefault("search.temperature", 0.2)
}

func bindEnvVars() {
	viper.SetEnvPrefix("RAGPIPE")
	viper.AutomaticEnv()

	keys := map[string]string{
		"provider.api_key":         "RAGPIPE_API_KEY",
		"provider.base_url":        "RAGPIPE_BASE_URL",
		"provider.embedding_model": "RAGPIPE_EMBEDDING_MODEL",
		"provider.llm_model":       "RAGPIPE_LLM_MODEL",
		"provider.vision_model":    "RAGPIPE_VISION_MODEL",
		"qdrant.host":              "RAGPIPE_QDRANT_HOST",
		"qdrant.port":              "RAGPIPE_QDRANT_PORT",
		"qdrant.database":          "RAGPIPE_QDRANT_DATABASE",
		"qdrant.collection":        "RAGPIPE_QDRANT_COLLECTION",
		"qdrant.index":             "RAGPIPE_QDRANT_INDEX",
		"chunker.chunk_size":       "RAGPIPE_CHUNK_SIZE",
		"chunker.overlap":          "RAGPIPE_CHUNK_OVERLAP",
		"search.strategy":          "RAGPIPE_SEARCH_STRATEGY",
	}
	for key, env := range keys {
		_ = viper.BindEnv(key, env)
	}
}

func (c *Config) Validate() error {
	if c.Provider.EmbeddingModel == "" {
		return fmt.Errorf("embedding model cannot be empty")
	}
	if c.Provider.LLMModel == "" {
		return fmt.Errorf("llm model cannot be empty")
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant host cannot be empty")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	validIndexes := map[string]bool{"default": true, "ivf_flat": true, "hnsw": true, "ivf_sq8": true, "flat": true}
	if !validIndexes[c.Qdrant.Index] {
		return fmt.Errorf("invalid index kind: %s", c.Qdrant.Index)
	}

	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("overlap must be between 0 and chunk size: %d", c.Chunker.Overlap)
	}
	if c.Chunker.ChunkSize+c.Chunker.Overlap >= chunker.MaxChunkChars {
		return fmt.Errorf("chunk size plus overlap must stay below %d: %d",
			chunker.MaxChunkChars, c.Chunker.ChunkSize+c.Chunker.Overlap)
	}

	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive: %d", c.Embed.BatchSize)
	}
	if c.Embed.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative: %d", c.Embed.MaxRetries)
	}
	if c.Embed.MaxAcceptableLoss < 0 || c.Embed.MaxAcceptableLoss > 1 {
		return fmt.Errorf("max acceptable loss must be within [0, 1]: %f", c.Embed.MaxAcceptableLoss)
	}

	validPolicies := map[string]bool{"duplicate": true, "fail": true, "replace": true}
	if !validPolicies[c.Ingest.OnReingest] {
		return fmt.Errorf("invalid re-ingest policy: %s", c.Ingest.OnReingest)
	}

	validStrategies := map[string]bool{"simple": true, "selector": true, "selector_metadata": true}
	if !validStrategies[c.Search.Strategy] {
		return fmt.Errorf("invalid search strategy: %s", c.Search.Strategy)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search limit must be positive: %d", c.Search.Limit)
	}

	return nil
}
