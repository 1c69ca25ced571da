// Package config loads the service configuration from environment
// variables, with an optional YAML overlay pointed at by
// MEMORY_CONFIG_FILE. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the memory service.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Files   FilesConfig   `yaml:"files"`
}

// StorageConfig contains database and tenancy configuration.
type StorageConfig struct {
	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string `yaml:"databaseUrl"`

	// Project is the tenant all operations are scoped to.
	Project string `yaml:"project"`

	// DefaultIndex is used when a tool call names no index.
	DefaultIndex string `yaml:"defaultIndex"`

	// EmbeddingDimensions must match the embedding model's output width.
	EmbeddingDimensions int `yaml:"embeddingDimensions"`

	// AccessTrackingEnabled controls recall access-stat updates.
	AccessTrackingEnabled bool `yaml:"accessTrackingEnabled"`

	// AccessTrackingTopN caps how many results get tracked per recall.
	AccessTrackingTopN int `yaml:"accessTrackingTopN"`

	// SlowQueryMs is the threshold for slow-query warnings.
	SlowQueryMs int `yaml:"slowQueryMs"`
}

// LLMConfig contains the OpenAI-compatible endpoint configuration.
type LLMConfig struct {
	APIKey              string `yaml:"apiKey"`
	BaseURL             string `yaml:"baseUrl"`
	Model               string `yaml:"model"`
	AnalysisModel       string `yaml:"analysisModel"`
	EmbeddingModel      string `yaml:"embeddingModel"`
	EmbeddingDimensions int    `yaml:"embeddingDimensions"`
	TimeoutSeconds      int    `yaml:"timeoutSeconds"`
}

// AgentConfig tunes the agent loop budgets.
type AgentConfig struct {
	MaxToolIterations     int  `yaml:"maxToolIterations"`
	MaxSearchIterations   int  `yaml:"maxSearchIterations"`
	QueryExpansionEnabled bool `yaml:"queryExpansionEnabled"`
	QueryExpansionCount   int  `yaml:"queryExpansionCount"`
	RefineBudget          int  `yaml:"refineBudget"`
}

// FilesConfig controls file ingestion.
type FilesConfig struct {
	// ProjectRoot is the directory file paths resolve against.
	// Defaults to the working directory.
	ProjectRoot string `yaml:"projectRoot"`
}

// Load builds the configuration: defaults, then the optional YAML file
// named by MEMORY_CONFIG_FILE, then environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("MEMORY_CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if cfg.Storage.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL is required")
	}
	if cfg.LLM.EmbeddingDimensions == 0 {
		cfg.LLM.EmbeddingDimensions = cfg.Storage.EmbeddingDimensions
	}
	return cfg, nil
}

// SlowQueryThreshold returns the slow-query threshold as a duration.
func (c *StorageConfig) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// Timeout returns the LLM request timeout as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Project:               "default",
			DefaultIndex:          "default",
			EmbeddingDimensions:   1536,
			AccessTrackingEnabled: true,
			AccessTrackingTopN:    5,
			SlowQueryMs:           200,
		},
		LLM: LLMConfig{
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			QueryExpansionEnabled: true,
		},
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.DatabaseURL = getEnv("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Storage.Project = getEnv("MEMORY_ACTIVE_PROJECT", cfg.Storage.Project)
	cfg.Storage.DefaultIndex = getEnv("MEMORY_DEFAULT_INDEX", cfg.Storage.DefaultIndex)
	cfg.Storage.EmbeddingDimensions = getEnvInt("MEMORY_EMBEDDING_DIMENSIONS", cfg.Storage.EmbeddingDimensions)
	cfg.Storage.AccessTrackingEnabled = getEnvBool("MEMORY_ACCESS_TRACKING_ENABLED", cfg.Storage.AccessTrackingEnabled)
	cfg.Storage.AccessTrackingTopN = getEnvInt("MEMORY_ACCESS_TRACKING_TOP_N", cfg.Storage.AccessTrackingTopN)
	cfg.Storage.SlowQueryMs = getEnvInt("MEMORY_SLOW_QUERY_MS", cfg.Storage.SlowQueryMs)

	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("MEMORY_MODEL", cfg.LLM.Model)
	cfg.LLM.AnalysisModel = getEnv("MEMORY_ANALYSIS_MODEL", cfg.LLM.AnalysisModel)
	cfg.LLM.EmbeddingModel = getEnv("MEMORY_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.TimeoutSeconds = getEnvInt("MEMORY_LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Agent.MaxToolIterations = getEnvInt("MEMORY_MAX_TOOL_ITERATIONS", cfg.Agent.MaxToolIterations)
	cfg.Agent.MaxSearchIterations = getEnvInt("MEMORY_MAX_SEARCH_ITERATIONS", cfg.Agent.MaxSearchIterations)
	cfg.Agent.QueryExpansionEnabled = getEnvBool("MEMORY_QUERY_EXPANSION_ENABLED", cfg.Agent.QueryExpansionEnabled)
	cfg.Agent.QueryExpansionCount = getEnvInt("MEMORY_QUERY_EXPANSION_COUNT", cfg.Agent.QueryExpansionCount)
	cfg.Agent.RefineBudget = getEnvInt("MEMORY_REFINE_BUDGET", cfg.Agent.RefineBudget)

	cfg.Files.ProjectRoot = getEnv("MEMORY_PROJECT_ROOT", cfg.Files.ProjectRoot)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
		return true
	case "false", "0", "no", "False", "FALSE", "No", "NO":
		return false
	}
	return defaultValue
}
