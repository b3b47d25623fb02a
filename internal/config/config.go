// Package config loads settings from a TOML file, then applies environment
// overrides. Precedence: defaults < file < environment < CLI flags (flags
// are applied by the commands).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/language"
)

// Translation contains what to translate and which model to use.
type Translation struct {
	// Languages are the target language codes, e.g. ["en", "de"].
	Languages []string `toml:"languages"`
	// Backend selects the provider: "groq" or "gemini".
	Backend string `toml:"backend"`
	// Model overrides the priority list when set.
	Model string `toml:"model"`
	// ModelPriorityIndex picks from the provider's priority list.
	ModelPriorityIndex int `toml:"model_priority_index"`
	// ContextSize is how many neighbouring lines feed the prompt context.
	ContextSize int `toml:"context_size"`
	// GroqBaseURL overrides the Groq endpoint, for proxies.
	GroqBaseURL string `toml:"groq_base_url"`
}

// Scheduling contains the batch engine knobs. Durations are in seconds
// except the batch pause, which is in milliseconds.
type Scheduling struct {
	Workers           int `toml:"workers"`
	BatchSize         int `toml:"batch_size"`
	MaxAttempts       int `toml:"max_attempts"`
	SaveInterval      int `toml:"save_interval"`
	MaxRetryRounds    int `toml:"max_retry_rounds"`
	CallTimeoutSecs   int `toml:"call_timeout"`
	ResultTimeoutSecs int `toml:"result_timeout"`
	RetryDelaySecs    int `toml:"retry_delay"`
	RoundDelaySecs    int `toml:"round_delay"`
	BatchPauseMillis  int `toml:"batch_pause_ms"`
}

// Logging contains log output settings.
type Logging struct {
	Level string `toml:"level"`
	// File enables an additional JSONL log next to the console output.
	File string `toml:"file"`
}

// Config encapsulates all settings.
type Config struct {
	Translation Translation `toml:"translation"`
	Scheduling  Scheduling  `toml:"scheduling"`
	Logging     Logging     `toml:"logging"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Translation: Translation{
			Languages:   []string{"en", "de"},
			Backend:     "groq",
			ContextSize: 2,
		},
		Scheduling: Scheduling{
			Workers:           4,
			BatchSize:         10,
			MaxAttempts:       3,
			SaveInterval:      10,
			MaxRetryRounds:    2,
			CallTimeoutSecs:   120,
			ResultTimeoutSecs: 300,
			RetryDelaySecs:    2,
			RoundDelaySecs:    3,
			BatchPauseMillis:  100,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "polysub", "config.toml"), nil
}

// Load reads the configuration file (when it exists), applies environment
// overrides and validates the result. An empty path means the default
// location; a missing file is not an error, a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, apperrors.Config(err)
		}
		path = defaultPath
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		decoder := toml.NewDecoder(file)
		decodeErr := decoder.Decode(&cfg)
		file.Close()
		if decodeErr != nil {
			return nil, apperrors.Config(fmt.Errorf("failed to parse %s: %w", path, decodeErr))
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults plus environment are enough.
	default:
		return nil, apperrors.Config(fmt.Errorf("failed to open %s: %w", path, err))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv merges environment overrides. The variable names predate the
// config file and stay supported.
func (c *Config) applyEnv() error {
	if v := os.Getenv("LANG_CODES"); v != "" {
		var langs []string
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				langs = append(langs, code)
			}
		}
		c.Translation.Languages = langs
	}
	for _, override := range []struct {
		name string
		dst  *int
	}{
		{"MODEL_PRIORITY_INDEX", &c.Translation.ModelPriorityIndex},
		{"WORKER_COUNT", &c.Scheduling.Workers},
		{"BATCH_SIZE", &c.Scheduling.BatchSize},
		{"SAVE_INTERVAL", &c.Scheduling.SaveInterval},
	} {
		v := os.Getenv(override.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Config(fmt.Errorf("%s must be an integer, got %q", override.name, v))
		}
		*override.dst = n
	}
	return nil
}

// Validate ensures the configuration is usable. Config errors are fatal at
// startup; nothing is clamped.
func (c *Config) Validate() error {
	if len(c.Translation.Languages) == 0 {
		return apperrors.Config(fmt.Errorf("translation.languages must not be empty"))
	}
	if unknown := language.ValidateCodes(c.Translation.Languages); len(unknown) > 0 {
		return apperrors.Config(fmt.Errorf("unknown language codes: %s", strings.Join(unknown, ", ")))
	}
	switch c.Translation.Backend {
	case "groq", "gemini":
	default:
		return apperrors.Config(fmt.Errorf("translation.backend must be \"groq\" or \"gemini\", got %q", c.Translation.Backend))
	}
	if c.Translation.ModelPriorityIndex < 0 {
		return apperrors.Config(fmt.Errorf("translation.model_priority_index must not be negative"))
	}
	if c.Translation.ContextSize < 0 {
		return apperrors.Config(fmt.Errorf("translation.context_size must not be negative"))
	}

	s := c.Scheduling
	for _, check := range []struct {
		name  string
		value int
	}{
		{"scheduling.workers", s.Workers},
		{"scheduling.batch_size", s.BatchSize},
		{"scheduling.max_attempts", s.MaxAttempts},
		{"scheduling.save_interval", s.SaveInterval},
		{"scheduling.call_timeout", s.CallTimeoutSecs},
		{"scheduling.result_timeout", s.ResultTimeoutSecs},
	} {
		if check.value <= 0 {
			return apperrors.Config(fmt.Errorf("%s must be positive, got %d", check.name, check.value))
		}
	}
	if s.MaxRetryRounds < 0 {
		return apperrors.Config(fmt.Errorf("scheduling.max_retry_rounds must not be negative"))
	}
	if s.RetryDelaySecs < 0 || s.RoundDelaySecs < 0 || s.BatchPauseMillis < 0 {
		return apperrors.Config(fmt.Errorf("scheduling delays must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.Config(fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	return nil
}

// CallTimeout returns the per-call timeout as a duration.
func (s Scheduling) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSecs) * time.Second
}

// ResultTimeout returns the per-result collection timeout as a duration.
func (s Scheduling) ResultTimeout() time.Duration {
	return time.Duration(s.ResultTimeoutSecs) * time.Second
}

// RetryDelay returns the pause between retried items as a duration.
func (s Scheduling) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySecs) * time.Second
}

// RoundDelay returns the pause between retry rounds as a duration.
func (s Scheduling) RoundDelay() time.Duration {
	return time.Duration(s.RoundDelaySecs) * time.Second
}

// BatchPause returns the pause between batches as a duration.
func (s Scheduling) BatchPause() time.Duration {
	return time.Duration(s.BatchPauseMillis) * time.Millisecond
}
