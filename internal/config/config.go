package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the dataset explorer service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Remote  RemoteConfig  `yaml:"remote"`
	Search  SearchConfig  `yaml:"search"`
	LLM     LLMConfig     `yaml:"llm"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CatalogConfig controls which preset datasets are loaded at startup
type CatalogConfig struct {
	DataDir         string `yaml:"data_dir"`
	LoadConcurrency int    `yaml:"load_concurrency"`
}

// RemoteConfig points at the external query and analysis services. An empty
// URL disables that service and every call goes straight to the local engine.
type RemoteConfig struct {
	QueryURL    string        `yaml:"query_url"`
	AnalysisURL string        `yaml:"analysis_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	TopN           int `yaml:"top_n"`
	ContextResults int `yaml:"context_results"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	RewriteQueries bool          `yaml:"rewrite_queries"`
}

// FetcherConfig holds remote dataset download settings
type FetcherConfig struct {
	UserAgent           string        `yaml:"user_agent"`
	Timeout             time.Duration `yaml:"timeout"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
	EnableRobotsCheck   bool          `yaml:"enable_robots_check"`
	RobotsCacheDuration time.Duration `yaml:"robots_cache_duration"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			DataDir:         "./data",
			LoadConcurrency: 4,
		},
		Remote: RemoteConfig{
			Timeout: 5 * time.Second,
		},
		Search: SearchConfig{
			TopN:           5,
			ContextResults: 3,
		},
		LLM: LLMConfig{
			Model:   "qwen3:1.7b",
			Timeout: 60 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:           "DatasetExplorer/1.0",
			Timeout:             30 * time.Second,
			RequestsPerSecond:   1,
			EnableRobotsCheck:   true,
			RobotsCacheDuration: 24 * time.Hour,
			MaxBodyBytes:        64 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults. Environment variables still
// take precedence over values from the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Catalog.LoadConcurrency <= 0 {
		return fmt.Errorf("catalog.load_concurrency must be positive")
	}
	if c.Search.TopN < 0 || c.Search.ContextResults < 0 {
		return fmt.Errorf("search limits must not be negative")
	}
	if c.Fetcher.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher.requests_per_second must not be negative")
	}
	switch c.LLM.Provider {
	case "", "none", "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = GetIntEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.MaxUploadBytes = GetInt64Env("SERVER_MAX_UPLOAD_BYTES", cfg.Server.MaxUploadBytes)
	cfg.Server.ShutdownTimeout = GetDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Catalog.DataDir = GetStringEnv("CATALOG_DATA_DIR", cfg.Catalog.DataDir)
	cfg.Catalog.LoadConcurrency = GetIntEnv("CATALOG_LOAD_CONCURRENCY", cfg.Catalog.LoadConcurrency)

	cfg.Remote.QueryURL = GetStringEnv("REMOTE_QUERY_URL", cfg.Remote.QueryURL)
	cfg.Remote.AnalysisURL = GetStringEnv("REMOTE_ANALYSIS_URL", cfg.Remote.AnalysisURL)
	cfg.Remote.Timeout = GetDurationEnv("REMOTE_TIMEOUT", cfg.Remote.Timeout)

	cfg.Search.TopN = GetIntEnv("SEARCH_TOP_N", cfg.Search.TopN)
	cfg.Search.ContextResults = GetIntEnv("SEARCH_CONTEXT_RESULTS", cfg.Search.ContextResults)

	cfg.LLM.Provider = GetStringEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = GetStringEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = GetStringEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.APIKey = GetStringEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Timeout = GetDurationEnv("LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.RewriteQueries = GetBoolEnv("LLM_REWRITE_QUERIES", cfg.LLM.RewriteQueries)

	cfg.Fetcher.UserAgent = GetStringEnv("FETCHER_USER_AGENT", cfg.Fetcher.UserAgent)
	cfg.Fetcher.Timeout = GetDurationEnv("FETCHER_TIMEOUT", cfg.Fetcher.Timeout)
	cfg.Fetcher.RequestsPerSecond = GetFloatEnv("FETCHER_REQUESTS_PER_SECOND", cfg.Fetcher.RequestsPerSecond)
	cfg.Fetcher.EnableRobotsCheck = GetBoolEnv("FETCHER_ENABLE_ROBOTS_CHECK", cfg.Fetcher.EnableRobotsCheck)
	cfg.Fetcher.RobotsCacheDuration = GetDurationEnv("FETCHER_ROBOTS_CACHE_DURATION", cfg.Fetcher.RobotsCacheDuration)
	cfg.Fetcher.MaxBodyBytes = GetInt64Env("FETCHER_MAX_BODY_BYTES", cfg.Fetcher.MaxBodyBytes)

	cfg.Log.Level = GetStringEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = GetStringEnv("LOG_FORMAT", cfg.Log.Format)
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
