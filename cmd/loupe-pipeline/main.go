package main

import (
	"context"
	"errors"
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
	"github.com/theimaginaryfoundation/loupe/analysis/store"
)

const annotatedFile = "annotated.jsonl"

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

	p := &pipeline{cfg: cfg, logger: logger, runDir: cfg.RunDir()}
	if err := p.run(ctx, selectStages(cfg)); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "run_id=%s documents=%d out_dir=%s\n", p.runID(), p.documents(), p.runDir)
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
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Base output directory; files go to <out>/<title>")
	fs.StringVar(&cfg.TextColumn, "text-column", cfg.TextColumn, "Column holding the text to analyze")
	fs.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "Optional column holding record ids")
	fs.Var(&cliutil.StringList{Values: &cfg.Keep}, "keep", "Column carried into Texts.csv (repeatable or comma-separated)")
	fs.StringVar(&cfg.CSVSep, "csv-sep", cfg.CSVSep, "Field separator of .csv inputs (\"tab\" for tabs)")
	fs.BoolVar(&cfg.StripHTML, "strip-html", cfg.StripHTML, "Strip HTML markup from texts")
	fs.BoolVar(&cfg.ConvertToString, "convert-to-string", cfg.ConvertToString, "Render non-string text values instead of failing")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Documents classified concurrently once -min-rows-parallelize is reached")
	fs.IntVar(&cfg.MinRowsParallelize, "min-rows-parallelize", cfg.MinRowsParallelize, "Record count from which documents are classified concurrently (0 = never)")
	fs.StringVar(&cfg.RunID, "run-id", cfg.RunID, "Run id (random UUID when empty)")
	fs.Var(&cliutil.StringList{Values: &cfg.CassandraHosts}, "cassandra-hosts", "Cassandra contact points for the store stage (repeatable or comma-separated)")
	fs.StringVar(&cfg.CassandraKeyspace, "cassandra-keyspace", cfg.CassandraKeyspace, "Existing Cassandra keyspace for the store stage")
	fs.StringVar(&cfg.FromStage, "from-stage", cfg.FromStage, "Start at stage: classify|topics|report|store")
	fs.StringVar(&cfg.OnlyStage, "only-stage", cfg.OnlyStage, "Run only one stage: classify|topics|report|store")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Redo stages whose outputs already exist")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Emit JSON logs")
	cfg.ClassifierFlags.Register(fs)
	cfg.TopicFlags.Register(fs)
	cfg.SummaryFlags.Register(fs)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/loupe-pipeline -in reviews.csv -text-column review -keep stars -mean stars -out reports")
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

func selectStages(cfg Config) []string {
	if cfg.OnlyStage != "" {
		return []string{cfg.OnlyStage}
	}
	if cfg.FromStage != "" {
		return stagesFrom(allStages, cfg.FromStage)
	}
	return allStages
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}

type pipeline struct {
	cfg    Config
	logger *zap.Logger
	runDir string

	docs     []*analysis.Document
	analysis *analysis.Analysis
}

func (p *pipeline) annotatedPath() string { return filepath.Join(p.runDir, annotatedFile) }
func (p *pipeline) analysisPath() string  { return filepath.Join(p.runDir, analysis.AnalysisFile) }

func (p *pipeline) runID() string {
	if p.analysis != nil {
		return p.analysis.Manifest.RunID
	}
	return p.cfg.RunID
}

func (p *pipeline) documents() int {
	if p.analysis != nil {
		return len(p.analysis.Result.All)
	}
	return len(p.docs)
}

func (p *pipeline) run(ctx context.Context, stages []string) error {
	if err := os.MkdirAll(p.runDir, 0o755); err != nil {
		return fmt.Errorf("mkdir run dir: %w", err)
	}
	for _, stage := range stages {
		start := time.Now()
		var err error
		switch stage {
		case "classify":
			err = p.classify(ctx)
		case "topics":
			err = p.topics(ctx)
		case "report":
			err = p.report()
		case "store":
			err = p.store(ctx)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		fmt.Fprintf(os.Stderr, "ok: stage %s (%s)\n", stage, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func (p *pipeline) classify(ctx context.Context) error {
	if !p.cfg.Overwrite && fileutils.FileExists(p.annotatedPath()) {
		fmt.Fprintln(os.Stderr, "skip classify: annotated records already exist")
		return nil
	}
	sep, err := cliutil.ParseSeparator(p.cfg.CSVSep)
	if err != nil {
		return err
	}
	docs, err := analysis.ReadRecords(p.cfg.InputPath, analysis.ReadOptions{
		TextColumn:      p.cfg.TextColumn,
		IDColumn:        p.cfg.IDColumn,
		Keep:            p.cfg.Keep,
		CSVSeparator:    sep,
		ConvertToString: p.cfg.ConvertToString,
		StripHTML:       p.cfg.StripHTML,
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no records found in %s", p.cfg.InputPath)
	}

	classifier, backend, err := p.cfg.ClassifierFlags.NewClassifier(ctx, p.logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	p.logger.Info("classifying texts into emotions", zap.Int("documents", len(docs)))
	start := time.Now()
	err = analysis.ClassifyDocuments(ctx, classifier, docs, analysis.ClassifyOptions{
		MinRowsToParallelize: p.cfg.MinRowsParallelize,
		Concurrency:          p.cfg.Concurrency,
		Progress: func(done, total int) {
			if done%100 == 0 || done == total {
				fmt.Fprintf(os.Stderr, "progress loupe-pipeline: %d/%d documents classified (elapsed=%s)\n",
					done, total, time.Since(start).Round(time.Second))
			}
		},
	})
	if err != nil {
		return err
	}
	p.docs = docs
	return analysis.WriteAnnotated(p.annotatedPath(), docs)
}

func (p *pipeline) topics(ctx context.Context) error {
	if !p.cfg.Overwrite && fileutils.FileExists(p.analysisPath()) {
		fmt.Fprintln(os.Stderr, "skip topics: analysis already exists")
		return nil
	}
	docs := p.docs
	if docs == nil {
		var err error
		if docs, err = analysis.ReadAnnotated(p.annotatedPath()); err != nil {
			return err
		}
	}

	apiKey := ""
	if strings.EqualFold(p.cfg.Classifier, "openai") {
		apiKey = p.cfg.ClassifierFlags.APIKey
	}
	partitioner, err := p.cfg.TopicFlags.NewPartitioner(apiKey, p.logger)
	if err != nil {
		return err
	}
	summary := p.cfg.SummaryFlags.Options(p.cfg.InputPath)
	a, err := analysis.Analyze(ctx, partitioner, docs, analysis.AnalyzeOptions{
		MinTopicSize: p.cfg.MinTopicSize,
		Summary:      &summary,
		RunID:        p.cfg.RunID,
	})
	if err != nil {
		return err
	}
	p.analysis = a
	return analysis.SaveAnalysis(p.analysisPath(), a)
}

func (p *pipeline) loadAnalysis() error {
	if p.analysis != nil {
		return nil
	}
	a, err := analysis.LoadAnalysis(p.analysisPath())
	if err != nil {
		return err
	}
	p.analysis = a
	return nil
}

func (p *pipeline) report() error {
	if err := p.loadAnalysis(); err != nil {
		return err
	}
	return p.analysis.Write(p.runDir, p.cfg.Keep)
}

func (p *pipeline) store(ctx context.Context) error {
	if len(p.cfg.CassandraHosts) == 0 {
		fmt.Fprintln(os.Stderr, "skip store: no -cassandra-hosts")
		return nil
	}
	if err := p.loadAnalysis(); err != nil {
		return err
	}
	sink, err := store.ConnectCassandra(store.CassandraConfig{
		Hosts:    p.cfg.CassandraHosts,
		Keyspace: p.cfg.CassandraKeyspace,
	})
	if err != nil {
		return err
	}
	defer sink.Close()
	sink.Logger = p.logger

	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := sink.WriteRun(ctx, p.analysis.Manifest, p.analysis.Result); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("cassandra: %w", err)
	}
	return nil
}
