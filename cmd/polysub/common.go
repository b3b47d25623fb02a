package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/oukeidos/polysub/internal/auth"
	"github.com/oukeidos/polysub/internal/backend"
	"github.com/oukeidos/polysub/internal/cleanup"
	"github.com/oukeidos/polysub/internal/config"
	"github.com/oukeidos/polysub/internal/files"
	"github.com/oukeidos/polysub/internal/logger"
	"github.com/oukeidos/polysub/internal/scheduler"
)

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	promptForKey = auth.PromptForAPIKey
)

// resolveAPIKey finds the API key for the chosen backend: keychain first,
// environment when allowed, then an interactive prompt as the last resort.
func resolveAPIKey(service string, allowEnv bool) (string, string, error) {
	if key, source := getKey(service, allowEnv); key != "" {
		return key, source, nil
	}

	if isTerminal(int(os.Stdin.Fd())) {
		svcName := "Groq"
		if service == "gemini" {
			svcName = "Gemini"
		}
		key, err := promptForKey(fmt.Sprintf("%s API Key: ", svcName))
		if err != nil {
			return "", "", fmt.Errorf("error reading API key: %w", err)
		}
		return strings.TrimSpace(key), "Terminal Prompt", nil
	}

	if allowEnv {
		return "", "", fmt.Errorf("API key for %s not found in keychain or environment", service)
	}
	return "", "", fmt.Errorf("API key for %s not found in keychain (environment disabled by default; use --allow-env)", service)
}

// initLogging configures the global logger from the config, optionally
// teeing JSONL output into a file.
func initLogging(cfg config.Logging, debug bool) error {
	level := logger.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}
	if debug {
		level = logger.LevelDebug
	}

	if cfg.File == "" {
		logger.Init(level, nil)
		return nil
	}
	if err := files.RejectSymlinkPath(cfg.File); err != nil {
		return err
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	cleanup.Register(f.Close)
	logger.Init(level, f)
	return nil
}

// buildClient constructs the backend client for the configured provider and
// returns it with the resolved model name.
func buildClient(ctx context.Context, t config.Translation, allowEnv bool) (backend.Client, string, error) {
	priority := backend.GroqModelPriority
	if t.Backend == "gemini" {
		priority = backend.GeminiModelPriority
	}
	model := t.Model
	if model == "" {
		picked, fallback := backend.PickModel(priority, t.ModelPriorityIndex)
		if fallback {
			logger.Warn("Model priority index out of range, using the first entry",
				"index", t.ModelPriorityIndex, "model", picked)
		}
		model = picked
	}

	key, source, err := resolveAPIKey(t.Backend, allowEnv)
	if err != nil {
		return nil, "", err
	}
	logger.Info("Using API key", "service", t.Backend, "source", source)

	if t.Backend == "gemini" {
		client, err := backend.NewGeminiClient(ctx, key, model)
		if err != nil {
			return nil, "", err
		}
		cleanup.Register(client.Close)
		return client, model, nil
	}

	client, err := backend.NewGroqClient(key, model, t.GroqBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, model, nil
}

// progressPaths derives the checkpoint and history file locations from the
// source subtitle path.
func progressPaths(sourcePath string) (string, string) {
	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(sourcePath, ext)
	return base + ".progress.json", base + ".progress.history.jsonl"
}

// schedulerConfig maps the loaded settings onto the scheduler knobs.
func schedulerConfig(cfg *config.Config) scheduler.Config {
	s := cfg.Scheduling
	return scheduler.Config{
		Workers:        s.Workers,
		BatchSize:      s.BatchSize,
		MaxAttempts:    s.MaxAttempts,
		SaveInterval:   s.SaveInterval,
		MaxRetryRounds: s.MaxRetryRounds,
		ContextSize:    cfg.Translation.ContextSize,
		CallTimeout:    s.CallTimeout(),
		ResultTimeout:  s.ResultTimeout(),
		RetryDelay:     s.RetryDelay(),
		RoundDelay:     s.RoundDelay(),
		BatchPause:     s.BatchPause(),
	}
}

// printStats writes the human-readable end-of-run summary to stdout.
func printStats(stats scheduler.Stats, model string, duration time.Duration) {
	fmt.Println("\n--- Run Summary ---")
	fmt.Printf("Time: %s\n", duration.Round(time.Second))
	fmt.Printf("Model: %s\n", model)
	fmt.Printf("Processed: %d/%d\n", stats.Processed, stats.Total)
	fmt.Printf("Succeeded: %d (initial %d, retry %d)\n",
		stats.Succeeded+stats.RetrySucceeded, stats.Succeeded, stats.RetrySucceeded)
	fmt.Printf("Failed: %d\n", stats.Failed)
	fmt.Printf("Success rate: %.1f%%\n", stats.SuccessRate()*100)
	fmt.Printf("Tokens: In=%d, Out=%d\n", stats.InputTokens, stats.OutputTokens)
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("Cancellation requested")
		cancel()
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
