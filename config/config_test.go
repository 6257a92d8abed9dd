package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.Store.Driver)
	}
	if cfg.Jobs.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.TransientCooldown != 60*time.Second {
		t.Errorf("expected 60s transient cooldown, got %v", cfg.Jobs.TransientCooldown)
	}
	if cfg.Jobs.FailureCooldown != 10*time.Second {
		t.Errorf("expected 10s failure cooldown, got %v", cfg.Jobs.FailureCooldown)
	}
	if cfg.Structuring.MaxIterations != 3 {
		t.Errorf("expected 3 structuring iterations, got %d", cfg.Structuring.MaxIterations)
	}
	if cfg.Structuring.CoverageThreshold != 0.8 {
		t.Errorf("expected coverage threshold 0.8, got %f", cfg.Structuring.CoverageThreshold)
	}
	if cfg.TaskGen.BatchSize != 5 {
		t.Errorf("expected batch size 5, got %d", cfg.TaskGen.BatchSize)
	}
	if cfg.Quality.MinScore != 0.7 {
		t.Errorf("expected min score 0.7, got %f", cfg.Quality.MinScore)
	}
	if cfg.NATS.Enabled {
		t.Error("expected NATS disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown store driver",
			modify:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: true,
		},
		{
			name:    "missing store dsn",
			modify:  func(c *Config) { c.Store.DSN = "" },
			wantErr: true,
		},
		{
			name:    "nats enabled without url",
			modify:  func(c *Config) { c.NATS.Enabled = true },
			wantErr: true,
		},
		{
			name: "nats enabled with url",
			modify: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URL = "nats://localhost:4222"
			},
			wantErr: false,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Jobs.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "coverage threshold too high",
			modify:  func(c *Config) { c.Structuring.CoverageThreshold = 1.1 },
			wantErr: true,
		},
		{
			name:    "confidence threshold negative",
			modify:  func(c *Config) { c.Structuring.ConfidenceThreshold = -0.1 },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			modify:  func(c *Config) { c.TaskGen.BatchSize = 0 },
			wantErr: true,
		},
		{
			name:    "min score too high",
			modify:  func(c *Config) { c.Quality.MinScore = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
store:
  driver: "postgres"
  dsn: "postgres://test:5432/planforge"
models:
  registry_path: "/etc/planforge/models.json"
  watch: true
nats:
  url: "nats://test:4222"
  enabled: true
jobs:
  workers: 8
  transient_cooldown: 30s
  hard_timeout: 45m
structuring:
  coverage_threshold: 0.9
quality:
  min_score: 0.75
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected driver postgres, got %s", cfg.Store.Driver)
	}
	if cfg.Models.RegistryPath != "/etc/planforge/models.json" {
		t.Errorf("unexpected registry path: %s", cfg.Models.RegistryPath)
	}
	if !cfg.Models.Watch {
		t.Error("expected watch enabled")
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Jobs.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.TransientCooldown != 30*time.Second {
		t.Errorf("expected 30s transient cooldown, got %v", cfg.Jobs.TransientCooldown)
	}
	if cfg.Jobs.HardTimeout != 45*time.Minute {
		t.Errorf("expected 45m hard timeout, got %v", cfg.Jobs.HardTimeout)
	}
	if cfg.Structuring.CoverageThreshold != 0.9 {
		t.Errorf("expected coverage threshold 0.9, got %f", cfg.Structuring.CoverageThreshold)
	}
	if cfg.Quality.MinScore != 0.75 {
		t.Errorf("expected min score 0.75, got %f", cfg.Quality.MinScore)
	}

	// Unset sections keep defaults
	if cfg.TaskGen.BatchSize != 5 {
		t.Errorf("expected default batch size 5, got %d", cfg.TaskGen.BatchSize)
	}
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("PLANFORGE_TEST_DSN", "postgres://secret@db:5432/pf")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
store:
  driver: "${PLANFORGE_TEST_DRIVER:-postgres}"
  dsn: "${PLANFORGE_TEST_DSN}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected default-expanded driver postgres, got %s", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "postgres://secret@db:5432/pf" {
		t.Errorf("expected env-expanded dsn, got %s", cfg.Store.DSN)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Store: StoreConfig{
			DSN: "/override/planforge.db",
		},
		Jobs: JobsConfig{
			Workers: 16,
		},
	}

	base.Merge(override)

	if base.Store.DSN != "/override/planforge.db" {
		t.Errorf("expected dsn /override/planforge.db, got %s", base.Store.DSN)
	}
	// Driver should remain from base since override didn't set it
	if base.Store.Driver != "sqlite" {
		t.Errorf("expected driver to remain default, got %s", base.Store.Driver)
	}
	if base.Jobs.Workers != 16 {
		t.Errorf("expected 16 workers, got %d", base.Jobs.Workers)
	}
	// Untouched jobs fields keep their defaults
	if base.Jobs.MaxAttempts != 3 {
		t.Errorf("expected max attempts to remain 3, got %d", base.Jobs.MaxAttempts)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Store.DSN = "/saved/planforge.db"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Store.DSN != "/saved/planforge.db" {
		t.Errorf("expected dsn /saved/planforge.db, got %s", loaded.Store.DSN)
	}
}
