package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oukeidos/polysub/internal/config"
	"github.com/oukeidos/polysub/internal/executor"
	"github.com/oukeidos/polysub/internal/logger"
	"github.com/oukeidos/polysub/internal/pipeline"
	"github.com/oukeidos/polysub/internal/progress"
	"github.com/oukeidos/polysub/internal/scheduler"
	"github.com/oukeidos/polysub/internal/store"
)

type recoverOptions struct {
	configPath string
	langs      []string
	backend    string
	model      string
	modelIndex int
	attempts   int
	allowEnv   bool
	logFile    string
	debug      bool
}

func newRecoverCmd() *cobra.Command {
	opts := recoverOptions{}
	cmd := &cobra.Command{
		Use:   "recover <input.srt>",
		Short: "Retry segments that are still missing a translation",
		Long: `Scans the per-language subtitle files next to the source and retries
every segment that lacks a translation in at least one target language.
Works after a crash or an interrupted run; already translated languages
are never touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd, args[0], &opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to the TOML config file")
	cmd.Flags().StringSliceVar(&opts.langs, "languages", nil, "Target language codes (e.g. en,de,ja)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend provider: groq or gemini")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides the priority list)")
	cmd.Flags().IntVar(&opts.modelIndex, "model-index", 0, "Index into the model priority list")
	cmd.Flags().IntVar(&opts.attempts, "attempts", 3, "Attempt budget per segment")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the API key from environment variables")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

func runRecover(cmd *cobra.Command, inputPath string, opts *recoverOptions) error {
	if opts.attempts <= 0 {
		return fmt.Errorf("--attempts must be positive, got %d", opts.attempts)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("languages") {
		cfg.Translation.Languages = opts.langs
	}
	if flags.Changed("backend") {
		cfg.Translation.Backend = opts.backend
	}
	if flags.Changed("model") {
		cfg.Translation.Model = opts.model
	}
	if flags.Changed("model-index") {
		cfg.Translation.ModelPriorityIndex = opts.modelIndex
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := initLogging(cfg.Logging, opts.debug); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	langs := cfg.Translation.Languages
	st, err := store.Open(inputPath, langs)
	if err != nil {
		return err
	}
	logger.Info("Scanning for missing translations",
		"path", inputPath, "segments", st.Count(),
		"languages", strings.Join(langs, ","))

	client, model, err := buildClient(ctx, cfg.Translation, opts.allowEnv)
	if err != nil {
		return err
	}
	client.SetSystemInstruction(executor.SystemPrompt(langs))

	exec, err := executor.New(client, cfg.Scheduling.CallTimeout())
	if err != nil {
		return err
	}
	chain, err := pipeline.New(exec, st, cfg.Scheduling.MaxAttempts)
	if err != nil {
		return err
	}

	checkpointPath, historyPath := progressPaths(inputPath)
	prog, err := progress.NewStore(checkpointPath, historyPath)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(schedulerConfig(cfg), chain, st, prog, langs, model)
	if err != nil {
		return err
	}

	startTime := time.Now()
	stats, runErr := sched.RetryMissing(ctx, opts.attempts)
	printStats(stats, model, time.Since(startTime))

	if runErr != nil {
		return fmt.Errorf("recovery interrupted: %w", runErr)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d segments still missing translations", stats.Failed)
	}
	return nil
}
