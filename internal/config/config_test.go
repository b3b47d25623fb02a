package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Translation.Languages, []string{"en", "de"}) {
		t.Errorf("Languages = %v", cfg.Translation.Languages)
	}
	if cfg.Scheduling.Workers != 4 || cfg.Scheduling.BatchSize != 10 {
		t.Errorf("scheduling defaults = %+v", cfg.Scheduling)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[translation]
languages = ["ja", "fr"]
backend = "gemini"
context_size = 4

[scheduling]
workers = 8
batch_size = 20

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Translation.Languages, []string{"ja", "fr"}) {
		t.Errorf("Languages = %v", cfg.Translation.Languages)
	}
	if cfg.Translation.Backend != "gemini" || cfg.Translation.ContextSize != 4 {
		t.Errorf("translation = %+v", cfg.Translation)
	}
	if cfg.Scheduling.Workers != 8 || cfg.Scheduling.BatchSize != 20 {
		t.Errorf("scheduling = %+v", cfg.Scheduling)
	}
	// Untouched sections keep their defaults.
	if cfg.Scheduling.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", cfg.Scheduling.MaxAttempts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[scheduling]\nworkers = 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKER_COUNT", "6")
	t.Setenv("LANG_CODES", "ko, es")
	t.Setenv("MODEL_PRIORITY_INDEX", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduling.Workers != 6 {
		t.Errorf("Workers = %d, want env override 6", cfg.Scheduling.Workers)
	}
	if !reflect.DeepEqual(cfg.Translation.Languages, []string{"ko", "es"}) {
		t.Errorf("Languages = %v", cfg.Translation.Languages)
	}
	if cfg.Translation.ModelPriorityIndex != 3 {
		t.Errorf("ModelPriorityIndex = %d", cfg.Translation.ModelPriorityIndex)
	}
}

func TestLoad_BadEnvInteger(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for non-integer BATCH_SIZE")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[translation\nbroken"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no languages", func(c *Config) { c.Translation.Languages = nil }},
		{"unknown language", func(c *Config) { c.Translation.Languages = []string{"en", "xx"} }},
		{"bad backend", func(c *Config) { c.Translation.Backend = "openai" }},
		{"negative priority index", func(c *Config) { c.Translation.ModelPriorityIndex = -1 }},
		{"zero workers", func(c *Config) { c.Scheduling.Workers = 0 }},
		{"zero save interval", func(c *Config) { c.Scheduling.SaveInterval = 0 }},
		{"negative delay", func(c *Config) { c.Scheduling.RetryDelaySecs = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	s := Default().Scheduling
	if s.CallTimeout().Seconds() != 120 || s.RetryDelay().Seconds() != 2 {
		t.Errorf("duration conversion wrong: %v %v", s.CallTimeout(), s.RetryDelay())
	}
	if s.BatchPause().Milliseconds() != 100 {
		t.Errorf("BatchPause = %v", s.BatchPause())
	}
}
