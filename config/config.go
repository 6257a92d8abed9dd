// Package config provides configuration loading and management for PlanForge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete PlanForge configuration
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Models      ModelsConfig      `yaml:"models"`
	NATS        NATSConfig        `yaml:"nats"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Search      SearchConfig      `yaml:"search"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Structuring StructuringConfig `yaml:"structuring"`
	TaskGen     TaskGenConfig     `yaml:"taskgen"`
	Quality     QualityConfig     `yaml:"quality"`
}

// StoreConfig configures the relational store
type StoreConfig struct {
	// Driver selects the database backend ("sqlite" or "postgres")
	Driver string `yaml:"driver"`
	// DSN is the connection string (file path for sqlite, URL for postgres)
	DSN string `yaml:"dsn"`
}

// ModelsConfig configures the model registry
type ModelsConfig struct {
	// RegistryPath is the model registry JSON file (empty = built-in defaults)
	RegistryPath string `yaml:"registry_path"`
	// Watch enables hot-reload of the registry file
	Watch bool `yaml:"watch"`
}

// NATSConfig configures the event publisher
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// Enabled turns event publishing on; off means events are dropped silently
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Listen is the address for the /metrics HTTP endpoint in serve mode
	Listen string `yaml:"listen"`
}

// SearchConfig configures the web search tool
type SearchConfig struct {
	// BaseURL is the search API endpoint
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxResults caps results per query
	MaxResults int `yaml:"max_results"`
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration `yaml:"timeout"`
}

// FetchConfig configures the document fetch tool
type FetchConfig struct {
	// AllowHosts are glob patterns for permitted hosts (empty = allow all)
	AllowHosts []string `yaml:"allow_hosts"`
	// DenyHosts are glob patterns for blocked hosts (checked before allow)
	DenyHosts []string `yaml:"deny_hosts"`
	// MaxBodyBytes is the maximum response body size in bytes
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// MaxMarkdownChars truncates converted markdown beyond this length
	MaxMarkdownChars int `yaml:"max_markdown_chars"`
	// Timeout is the per-fetch HTTP timeout
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent is the User-Agent header for HTTP requests
	UserAgent string `yaml:"user_agent"`
}

// JobsConfig configures the batch job orchestrator
type JobsConfig struct {
	// Workers is the worker pool size for batch units
	Workers int `yaml:"workers"`
	// TransientCooldown is the wait before retrying a network-classified failure
	TransientCooldown time.Duration `yaml:"transient_cooldown"`
	// FailureCooldown is the wait before retrying any other failure
	FailureCooldown time.Duration `yaml:"failure_cooldown"`
	// MaxAttempts caps attempts per unit of work
	MaxAttempts int `yaml:"max_attempts"`
	// HardTimeout aborts a batch that runs longer than this
	HardTimeout time.Duration `yaml:"hard_timeout"`
}

// StructuringConfig configures the function structuring workflow
type StructuringConfig struct {
	// MaxIterations bounds the coverage-improvement loop
	MaxIterations int `yaml:"max_iterations"`
	// MaxFocusAreas caps the extraction plan's partition count
	MaxFocusAreas int `yaml:"max_focus_areas"`
	// CoverageThreshold is the minimum acceptable coverage score
	CoverageThreshold float64 `yaml:"coverage_threshold"`
	// ConfidenceThreshold flags low-confidence extractions below it
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// AreaConcurrency bounds concurrent focus-area sub-pipelines
	AreaConcurrency int `yaml:"area_concurrency"`
}

// TaskGenConfig configures the task generation service
type TaskGenConfig struct {
	// BatchSize is the number of functions per generation call
	BatchSize int `yaml:"batch_size"`
}

// QualityConfig configures the quality evaluation loop
type QualityConfig struct {
	// MaxIterations bounds the evaluate-improve loop
	MaxIterations int `yaml:"max_iterations"`
	// MinScore is the minimum overall score for acceptance
	MinScore float64 `yaml:"min_score"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "planforge.db",
		},
		Models: ModelsConfig{
			RegistryPath: "", // Built-in defaults
			Watch:        false,
		},
		NATS: NATSConfig{
			URL:     "",
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Listen: ":9091",
		},
		Search: SearchConfig{
			BaseURL:    "https://api.tavily.com",
			APIKeyEnv:  "TAVILY_API_KEY",
			MaxResults: 3,
			Timeout:    10 * time.Second,
		},
		Fetch: FetchConfig{
			AllowHosts:       nil, // Allow all
			DenyHosts:        nil,
			MaxBodyBytes:     2 * 1024 * 1024, // 2MB
			MaxMarkdownChars: 50000,
			Timeout:          15 * time.Second,
			UserAgent:        "planforge-docfetch/1.0",
		},
		Jobs: JobsConfig{
			Workers:           4,
			TransientCooldown: 60 * time.Second,
			FailureCooldown:   10 * time.Second,
			MaxAttempts:       3,
			HardTimeout:       30 * time.Minute,
		},
		Structuring: StructuringConfig{
			MaxIterations:       3,
			MaxFocusAreas:       5,
			CoverageThreshold:   0.8,
			ConfidenceThreshold: 0.7,
			AreaConcurrency:     3,
		},
		TaskGen: TaskGenConfig{
			BatchSize: 5,
		},
		Quality: QualityConfig{
			MaxIterations: 3,
			MinScore:      0.7,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1")
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("jobs.max_attempts must be at least 1")
	}
	if c.Structuring.MaxIterations < 1 {
		return fmt.Errorf("structuring.max_iterations must be at least 1")
	}
	if c.Structuring.CoverageThreshold < 0 || c.Structuring.CoverageThreshold > 1 {
		return fmt.Errorf("structuring.coverage_threshold must be between 0 and 1")
	}
	if c.Structuring.ConfidenceThreshold < 0 || c.Structuring.ConfidenceThreshold > 1 {
		return fmt.Errorf("structuring.confidence_threshold must be between 0 and 1")
	}
	if c.Structuring.AreaConcurrency < 1 {
		return fmt.Errorf("structuring.area_concurrency must be at least 1")
	}
	if c.TaskGen.BatchSize < 1 {
		return fmt.Errorf("taskgen.batch_size must be at least 1")
	}
	if c.Quality.MaxIterations < 1 {
		return fmt.Errorf("quality.max_iterations must be at least 1")
	}
	if c.Quality.MinScore < 0 || c.Quality.MinScore > 1 {
		return fmt.Errorf("quality.min_score must be between 0 and 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
// Environment references (${VAR} and ${VAR:-default}) are expanded before
// parsing, so secrets can stay out of the file itself.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := ExpandEnvWithDefaults(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Store
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.DSN != "" {
		c.Store.DSN = other.Store.DSN
	}

	// Models
	if other.Models.RegistryPath != "" {
		c.Models.RegistryPath = other.Models.RegistryPath
		c.Models.Watch = other.Models.Watch
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Enabled = other.NATS.Enabled
	}

	// Metrics
	if other.Metrics.Listen != "" {
		c.Metrics.Listen = other.Metrics.Listen
	}

	// Search
	if other.Search.BaseURL != "" {
		c.Search.BaseURL = other.Search.BaseURL
	}
	if other.Search.APIKeyEnv != "" {
		c.Search.APIKeyEnv = other.Search.APIKeyEnv
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.Timeout != 0 {
		c.Search.Timeout = other.Search.Timeout
	}

	// Fetch
	if len(other.Fetch.AllowHosts) > 0 {
		c.Fetch.AllowHosts = other.Fetch.AllowHosts
	}
	if len(other.Fetch.DenyHosts) > 0 {
		c.Fetch.DenyHosts = other.Fetch.DenyHosts
	}
	if other.Fetch.MaxBodyBytes != 0 {
		c.Fetch.MaxBodyBytes = other.Fetch.MaxBodyBytes
	}
	if other.Fetch.MaxMarkdownChars != 0 {
		c.Fetch.MaxMarkdownChars = other.Fetch.MaxMarkdownChars
	}
	if other.Fetch.Timeout != 0 {
		c.Fetch.Timeout = other.Fetch.Timeout
	}
	if other.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = other.Fetch.UserAgent
	}

	// Jobs
	if other.Jobs.Workers != 0 {
		c.Jobs.Workers = other.Jobs.Workers
	}
	if other.Jobs.TransientCooldown != 0 {
		c.Jobs.TransientCooldown = other.Jobs.TransientCooldown
	}
	if other.Jobs.FailureCooldown != 0 {
		c.Jobs.FailureCooldown = other.Jobs.FailureCooldown
	}
	if other.Jobs.MaxAttempts != 0 {
		c.Jobs.MaxAttempts = other.Jobs.MaxAttempts
	}
	if other.Jobs.HardTimeout != 0 {
		c.Jobs.HardTimeout = other.Jobs.HardTimeout
	}

	// Structuring
	if other.Structuring.MaxIterations != 0 {
		c.Structuring.MaxIterations = other.Structuring.MaxIterations
	}
	if other.Structuring.MaxFocusAreas != 0 {
		c.Structuring.MaxFocusAreas = other.Structuring.MaxFocusAreas
	}
	if other.Structuring.CoverageThreshold != 0 {
		c.Structuring.CoverageThreshold = other.Structuring.CoverageThreshold
	}
	if other.Structuring.ConfidenceThreshold != 0 {
		c.Structuring.ConfidenceThreshold = other.Structuring.ConfidenceThreshold
	}
	if other.Structuring.AreaConcurrency != 0 {
		c.Structuring.AreaConcurrency = other.Structuring.AreaConcurrency
	}

	// TaskGen
	if other.TaskGen.BatchSize != 0 {
		c.TaskGen.BatchSize = other.TaskGen.BatchSize
	}

	// Quality
	if other.Quality.MaxIterations != 0 {
		c.Quality.MaxIterations = other.Quality.MaxIterations
	}
	if other.Quality.MinScore != 0 {
		c.Quality.MinScore = other.Quality.MinScore
	}
}
