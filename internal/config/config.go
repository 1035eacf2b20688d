package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port           int
	DBPath         string
	OllamaBaseURL  string
	EmbeddingModel string
	EmbeddingDim   int
	LogLevel       string
	APIKey         string
	// Detection and workflow tuning, optionally overridden by a YAML file.
	PolicyPath string
	Policy     Policy
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           envInt("PORT", 8742),
		DBPath:         envStr("MEMFOLD_DB_PATH", "/data/memfold.db"),
		OllamaBaseURL:  envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		EmbeddingModel: envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:   envInt("EMBEDDING_DIM", 768),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		APIKey:         envStr("MEMFOLD_API_KEY", ""),
		PolicyPath:     envStr("MEMFOLD_POLICY_PATH", ""),
		Policy:         DefaultPolicy(),
	}

	if cfg.PolicyPath != "" {
		if err := cfg.Policy.loadFile(cfg.PolicyPath); err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("MEMFOLD_DB_PATH must not be empty")
	}
	if c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	return c.Policy.validate()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
