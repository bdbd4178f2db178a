package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
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
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, backend, err := cfg.ClassifierFlags.NewClassifier(ctx, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = backend.Close() }()

	apiKey := ""
	if strings.EqualFold(cfg.Classifier, "openai") {
		apiKey = cfg.ClassifierFlags.APIKey
	}
	partitioner, err := cfg.TopicFlags.NewPartitioner(apiKey, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	s := &server{
		classifier:   classifier,
		partitioner:  partitioner,
		minTopicSize: cfg.MinTopicSize,
		summary:      cfg.SummaryFlags,
		maxTexts:     cfg.MaxTexts,
		logger:       logger,
	}

	if cfg.Schedule != "" {
		sep, _ := cliutil.ParseSeparator(cfg.CSVSep)
		job := &watchJob{
			ctx: ctx,
			s:   s,
			in:  cfg.WatchIn,
			out: cfg.OutDir,
			read: analysis.ReadOptions{
				TextColumn:      cfg.TextColumn,
				IDColumn:        cfg.IDColumn,
				Keep:            cfg.Keep,
				CSVSeparator:    sep,
				ConvertToString: cfg.ConvertToString,
				StripHTML:       cfg.StripHTML,
			},
			keep:   cfg.Keep,
			logger: logger,
		}
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := c.AddJob(cfg.Schedule, job); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		logger.Info("watch job scheduled", zap.String("schedule", cfg.Schedule), zap.String("in", cfg.WatchIn), zap.String("out", cfg.OutDir))
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: s.setupRouter()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", zap.String("addr", cfg.Addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
			os.Exit(1)
		}
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	configPath, err := cliutil.LoadConfig(args, &cfg)
	if err != nil {
		return Config{}, err
	}
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", configPath, "Optional YAML file with flag defaults (explicit flags win)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.IntVar(&cfg.MaxTexts, "max-texts", cfg.MaxTexts, "Maximum texts or documents per request")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron spec for analyzing new files in -watch-in (e.g. \"*/10 * * * *\")")
	fs.StringVar(&cfg.WatchIn, "watch-in", cfg.WatchIn, "Directory polled for record files")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Base output directory of the watch job; files go to <out>/<title>")
	fs.StringVar(&cfg.TextColumn, "text-column", cfg.TextColumn, "Column holding the text to analyze")
	fs.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "Optional column holding record ids")
	fs.Var(&cliutil.StringList{Values: &cfg.Keep}, "keep", "Column carried into Texts.csv (repeatable or comma-separated)")
	fs.StringVar(&cfg.CSVSep, "csv-sep", cfg.CSVSep, "Field separator of .csv inputs (\"tab\" for tabs)")
	fs.BoolVar(&cfg.StripHTML, "strip-html", cfg.StripHTML, "Strip HTML markup from texts")
	fs.BoolVar(&cfg.ConvertToString, "convert-to-string", cfg.ConvertToString, "Render non-string text values instead of failing")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Emit JSON logs")
	cfg.ClassifierFlags.Register(fs)
	cfg.TopicFlags.Register(fs)
	cfg.SummaryFlags.Register(fs)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/loupe-server -addr :8080 -classifier anthropic -schedule \"*/10 * * * *\" -watch-in inbox -out reports")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
