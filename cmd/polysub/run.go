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

type runOptions struct {
	configPath string
	langs      []string
	backend    string
	model      string
	modelIndex int
	workers    int
	batchSize  int
	saveEvery  int
	resume     bool
	allowEnv   bool
	logFile    string
	debug      bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <input.srt>",
		Short: "Translate a subtitle file into every target language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], &opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to the TOML config file")
	cmd.Flags().StringSliceVar(&opts.langs, "languages", nil, "Target language codes (e.g. en,de,ja)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend provider: groq or gemini")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides the priority list)")
	cmd.Flags().IntVar(&opts.modelIndex, "model-index", 0, "Index into the model priority list")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker pool size")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Segments per batch")
	cmd.Flags().IntVar(&opts.saveEvery, "save-interval", 0, "Processed segments between checkpoints")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume from the last checkpoint")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the API key from environment variables")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

// loadRunConfig loads the settings file and applies the flags the user
// actually set on top of it.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
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
	if flags.Changed("workers") {
		cfg.Scheduling.Workers = opts.workers
	}
	if flags.Changed("batch-size") {
		cfg.Scheduling.BatchSize = opts.batchSize
	}
	if flags.Changed("save-interval") {
		cfg.Scheduling.SaveInterval = opts.saveEvery
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, inputPath string, opts *runOptions) error {
	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
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
	logger.Info("Loaded source subtitles",
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

	startIndex := 1
	if opts.resume {
		rec, ok, err := prog.LoadCheckpoint()
		switch {
		case err != nil:
			logger.Warn("Could not read checkpoint, starting from the beginning", "error", err)
		case ok:
			startIndex = rec.LastIndex + 1
			logger.Info("Resuming from checkpoint",
				"last_index", rec.LastIndex, "updated_at", rec.UpdatedAt)
		default:
			logger.Info("No checkpoint found, starting from the beginning")
		}
	}

	startTime := time.Now()
	stats, runErr := sched.Run(ctx, startIndex)
	printStats(stats, model, time.Since(startTime))

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d segments failed; use \"polysub recover\" to retry them", stats.Failed)
	}
	return nil
}
