// Package config loads the analyzer's configuration surface (spec §6.6): LLM
// provider settings, batching limits, merge/summary tuning, and output options.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LLMConfig holds the model-handle settings consumed by internal/llmclient (C5).
type LLMConfig struct {
	ModelName             string  `yaml:"model_name"`
	APIBaseURL            string  `yaml:"api_base_url"`
	APIKey                string  `yaml:"api_key"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	BackoffSeconds        int     `yaml:"backoff_seconds"`
}

// BatchConfig holds the message-batcher limits (C4).
type BatchConfig struct {
	MaxTokens   int `yaml:"max_tokens"`
	MaxMessages int `yaml:"max_messages"`
}

// MergeConfig holds the topic-merger tuning (C6).
type MergeConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// SummaryConfig holds the summarizer tuning (C7).
type SummaryConfig struct {
	ChunkMessages int `yaml:"chunk_messages"`
	ContextWindow int `yaml:"context_window"`
}

// DebugConfig controls the optional debug-artifact writer (C2).
type DebugConfig struct {
	Directory string `yaml:"directory"`
}

// OCRConfig controls the optional OCR cache collaborator (spec §6.2). An
// empty RedisAddr disables Redis and leaves OCR enrichment off unless the
// caller supplies its own in-memory cache.
type OCRConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// ReportConfig controls the rendered report (§6.4).
type ReportConfig struct {
	TopN int `yaml:"top_n"`
}

// Config is the full analyzer configuration.
type Config struct {
	LLM      LLMConfig     `yaml:"llm"`
	Batch    BatchConfig   `yaml:"batch"`
	Merge    MergeConfig   `yaml:"merge"`
	Summary  SummaryConfig `yaml:"summary"`
	Debug    DebugConfig   `yaml:"debug"`
	Report   ReportConfig  `yaml:"report"`
	OCR      OCRConfig     `yaml:"ocr"`
	LogLevel string        `yaml:"log_level"`
}

// Load reads the YAML config at path, overlays a .env file in the working
// directory if present (so credentials need not live in the YAML), and fills
// in defaults for any option the caller left at its zero value.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("model", cfg.LLM.ModelName).Msg("configuration loaded")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.RequestTimeoutSeconds == 0 {
		cfg.LLM.RequestTimeoutSeconds = 60
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.BackoffSeconds == 0 {
		cfg.LLM.BackoffSeconds = 2
	}
	if cfg.Batch.MaxTokens == 0 {
		cfg.Batch.MaxTokens = 6000
	}
	if cfg.Batch.MaxMessages == 0 {
		cfg.Batch.MaxMessages = 200
	}
	if cfg.Merge.Threshold == 0 {
		cfg.Merge.Threshold = 0.5
	}
	if cfg.Summary.ChunkMessages == 0 {
		cfg.Summary.ChunkMessages = 40
	}
	if cfg.Summary.ContextWindow == 0 {
		cfg.Summary.ContextWindow = 3
	}
	if cfg.Report.TopN == 0 {
		cfg.Report.TopN = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the required LLM credentials, per spec §7 "configuration
// error — fatal; aborts the run before any I/O".
func (c *Config) Validate() error {
	if c.LLM.ModelName == "" {
		return fmt.Errorf("config: llm.model_name is required")
	}
	if c.LLM.APIBaseURL == "" {
		return fmt.Errorf("config: llm.api_base_url is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required")
	}
	return nil
}

// RequestTimeout returns the per-call timeout as a time.Duration.
func (l LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutSeconds) * time.Second
}

// Backoff returns the sleep duration before retry attempt n (1-based),
// per spec §4.5.2: backoff_seconds * 2^(attempt-1).
func (l LLMConfig) Backoff(attempt int) time.Duration {
	d := l.BackoffSeconds
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return time.Duration(d) * time.Second
}
