package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
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
	if !cfg.Overwrite && fileutils.FileExists(cfg.OutputPath) {
		fmt.Fprintf(os.Stderr, "output exists: %s (pass -overwrite)\n", cfg.OutputPath)
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

	sep, _ := cliutil.ParseSeparator(cfg.CSVSep)
	docs, err := analysis.ReadRecords(cfg.InputPath, analysis.ReadOptions{
		TextColumn:      cfg.TextColumn,
		IDColumn:        cfg.IDColumn,
		Keep:            cfg.Keep,
		CSVSeparator:    sep,
		ConvertToString: cfg.ConvertToString,
		StripHTML:       cfg.StripHTML,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(docs) == 0 {
		fmt.Fprintln(os.Stderr, "no records found in", cfg.InputPath)
		os.Exit(2)
	}

	classifier, backend, err := cfg.ClassifierFlags.NewClassifier(ctx, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = backend.Close() }()

	start := time.Now()
	err = analysis.ClassifyDocuments(ctx, classifier, docs, analysis.ClassifyOptions{
		MinRowsToParallelize: cfg.MinRowsParallelize,
		Concurrency:          cfg.Concurrency,
		Progress:             progressPrinter(start),
	})
	if err != nil {
		logger.Error("classification failed", zap.Error(err))
		os.Exit(1)
	}

	if err := analysis.WriteAnnotated(cfg.OutputPath, docs); err != nil {
		logger.Error("write annotated records", zap.Error(err))
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "documents=%d %s out=%s elapsed=%s\n",
		len(docs), labelCounts(docs), cfg.OutputPath, time.Since(start).Round(time.Millisecond))
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	configPath, err := cliutil.LoadConfig(args, &cfg)
	if err != nil {
		return Config{}, err
	}
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", configPath, "Optional YAML file with flag defaults (explicit flags win)")
	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Record file (.csv/.tsv/.json/.jsonl, optionally .gz) or a directory of them")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Annotated JSONL output file")
	fs.StringVar(&cfg.TextColumn, "text-column", cfg.TextColumn, "Column holding the text to classify")
	fs.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "Optional column holding record ids (generated when empty)")
	fs.Var(&cliutil.StringList{Values: &cfg.Keep}, "keep", "Column to carry into the outputs (repeatable or comma-separated)")
	fs.StringVar(&cfg.CSVSep, "csv-sep", cfg.CSVSep, "Field separator of .csv inputs (\"tab\" for tabs)")
	fs.BoolVar(&cfg.StripHTML, "strip-html", cfg.StripHTML, "Strip HTML markup from texts before classifying")
	fs.BoolVar(&cfg.ConvertToString, "convert-to-string", cfg.ConvertToString, "Render non-string text values instead of failing")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Documents classified concurrently once -min-rows-parallelize is reached")
	fs.IntVar(&cfg.MinRowsParallelize, "min-rows-parallelize", cfg.MinRowsParallelize, "Record count from which documents are classified concurrently (0 = never)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite an existing -out file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Emit JSON logs")
	cfg.ClassifierFlags.Register(fs)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/sentiment-classifier -in reviews.csv -text-column review -keep stars -out reviews.annotated.jsonl")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}

func progressPrinter(start time.Time) func(done, total int) {
	return func(done, total int) {
		if done%100 != 0 && done != total {
			return
		}
		fmt.Fprintf(os.Stderr, "progress sentiment-classifier: %d/%d documents classified (elapsed=%s)\n",
			done, total, time.Since(start).Round(time.Second))
	}
}

func labelCounts(docs []*analysis.Document) string {
	counts := make(map[analysis.Label]int)
	ties := 0
	for _, d := range docs {
		counts[d.Sentiment.Label]++
		if d.Sentiment.Label.Composite() {
			ties++
		}
	}
	var parts []string
	for _, l := range analysis.Labels {
		if n := counts[l]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(l.String()), n))
		}
	}
	if ties > 0 {
		parts = append(parts, fmt.Sprintf("ties=%d", ties))
	}
	return strings.Join(parts, " ")
}
