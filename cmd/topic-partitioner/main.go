package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

func main() {
	if err := cliutil.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := cliutil.NewLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := analysis.ReadAnnotated(cfg.InputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(docs) == 0 {
		fmt.Fprintln(os.Stderr, "no annotated documents in", cfg.InputPath)
		os.Exit(2)
	}

	partitioner, err := cfg.TopicFlags.NewPartitioner(cfg.APIKey, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	start := time.Now()
	summary := cfg.SummaryFlags.Options(cfg.InputPath)
	a, err := analysis.Analyze(ctx, partitioner, docs, analysis.AnalyzeOptions{
		MinTopicSize: cfg.MinTopicSize,
		Summary:      &summary,
		RunID:        cfg.RunID,
	})
	if err != nil {
		logger.Error("topic discovery failed", zap.Error(err))
		os.Exit(1)
	}
	if err := a.Write(cfg.OutputDir, cfg.Keep); err != nil {
		logger.Error("write outputs", zap.Error(err))
		os.Exit(1)
	}

	for _, lm := range a.Manifest.Labels {
		fmt.Fprintf(os.Stderr, "progress topic-partitioner: %s documents=%d topics=%d attempts=%v degenerate=%v\n",
			lm.Label, lm.Documents, lm.Topics, lm.Attempts, lm.Degenerate)
	}
	fmt.Fprintf(os.Stdout, "run_id=%s documents=%d labels=%d out_dir=%s elapsed=%s\n",
		a.Manifest.RunID, a.Manifest.Documents, len(a.Manifest.Labels), cfg.OutputDir, time.Since(start).Round(time.Millisecond))
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	configPath, err := cliutil.LoadConfig(args, &cfg)
	if err != nil {
		return Config{}, err
	}
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", configPath, "Optional YAML file with flag defaults (explicit flags win)")
	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Annotated JSONL file written by sentiment-classifier")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for Texts.csv, Summary.csv, <LABEL>.csv and run.json")
	fs.Var(&cliutil.StringList{Values: &cfg.Keep}, "keep", "Metadata column written to Texts.csv (repeatable or comma-separated)")
	fs.StringVar(&cfg.RunID, "run-id", cfg.RunID, "Run id recorded in run.json (random UUID when empty)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "OpenAI API key for -embedder openai (overrides OPENAI_API_KEY)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Emit JSON logs")
	cfg.TopicFlags.Register(fs)
	cfg.SummaryFlags.Register(fs)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/topic-partitioner -in reviews.annotated.jsonl -out report/reviews -min-topic-size 10 -keep stars -mean stars")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, nil
}
