package main

import (
	"flag"
	"testing"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("topic-partitioner", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "out/reviews.jsonl",
		"-out", "report/reviews",
		"-min-topic-size", "6",
		"-language", "spanish",
		"-embedder", "openai",
		"-similarity", "0.45",
		"-top-terms", "5",
		"-topic-concurrency", "3",
		"-keep", "stars",
		"-count", "country",
		"-mean", "stars",
		"-sum", "helpful",
		"-title", "Reviews",
		"-run-id", "r1",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.MinTopicSize != 6 || cfg.Language != "spanish" || cfg.Embedder != "openai" {
		t.Fatalf("topic flags=%+v", cfg.TopicFlags)
	}
	if cfg.Similarity != 0.45 || cfg.TopTerms != 5 || cfg.TopicFlags.Concurrency != 3 {
		t.Fatalf("topic flags=%+v", cfg.TopicFlags)
	}
	if len(cfg.Count) != 1 || cfg.Count[0] != "country" {
		t.Fatalf("Count=%v, want the default replaced", cfg.Count)
	}
	opts := cfg.SummaryFlags.Options(cfg.InputPath)
	if opts.Title != "Reviews" || len(opts.GroupColumns) != 2 || opts.SumColumns[0] != "helpful" {
		t.Fatalf("summary=%+v", opts)
	}
	if cfg.RunID != "r1" || len(cfg.Keep) != 1 {
		t.Fatalf("RunID=%q Keep=%v", cfg.RunID, cfg.Keep)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
	cfg := defaultConfig()
	cfg.InputPath = "in.jsonl"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cfg.Language = "german"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected language error")
	}
}
