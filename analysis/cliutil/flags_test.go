package cliutil

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/theimaginaryfoundation/loupe/analysis/provider"
)

func TestClassifierFlagsValidate(t *testing.T) {
	t.Parallel()

	c := DefaultClassifierFlags()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	c.Classifier = provider.BackendONNX
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing model path error")
	}
	c.ModelPath, c.TokenizerPath = "model.onnx", "tokenizer.json"
	if err := c.Validate(); err != nil {
		t.Fatalf("onnx: %v", err)
	}
	c.Classifier = "vader"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown classifier error")
	}
}

func TestClassifierFlagsBackendConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	c := DefaultClassifierFlags()
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	c.Register(fs)
	if err := fs.Parse([]string{"-rate-limit", "2.5"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := c.BackendConfig(nil)
	if cfg.APIKey != "env-key" || cfg.Model != defaultOpenAIModel || cfg.RateLimit != 2.5 {
		t.Fatalf("cfg=%+v", cfg)
	}

	c.Classifier = "Anthropic"
	c.APIKey = "flag-key"
	cfg = c.BackendConfig(nil)
	if cfg.Kind != provider.BackendAnthropic || cfg.APIKey != "flag-key" || cfg.Model != "" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestTopicFlagsValidate(t *testing.T) {
	t.Parallel()

	tf := DefaultTopicFlags()
	if err := tf.Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	p, err := tf.NewPartitioner("", nil)
	if err != nil || p.Model == nil {
		t.Fatalf("NewPartitioner: p=%v err=%v", p, err)
	}

	for _, mut := range []func(*TopicFlags){
		func(t *TopicFlags) { t.MinTopicSize = 0 },
		func(t *TopicFlags) { t.Language = "klingon" },
		func(t *TopicFlags) { t.Embedder = "bert" },
		func(t *TopicFlags) { t.Similarity = 0 },
	} {
		bad := DefaultTopicFlags()
		mut(&bad)
		if err := bad.Validate(); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}

func TestSummaryFlagsAlwaysCountsEmotion(t *testing.T) {
	t.Parallel()

	s := SummaryFlags{Count: []string{"country"}, Mean: []string{"stars"}}
	opts := s.Options(filepath.FromSlash("data/amazon_reviews.csv.gz"))
	if opts.Title != "amazon_reviews" {
		t.Fatalf("Title=%q", opts.Title)
	}
	if len(opts.GroupColumns) != 2 || opts.GroupColumns[1] != "emotion" {
		t.Fatalf("GroupColumns=%v", opts.GroupColumns)
	}
	if len(s.Count) != 1 {
		t.Fatalf("Count mutated: %v", s.Count)
	}

	s = DefaultSummaryFlags()
	s.Title = "Q3"
	if opts := s.Options("x.csv"); opts.Title != "Q3" || len(opts.GroupColumns) != 1 {
		t.Fatalf("opts=%+v", opts)
	}
}
