package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// Backend names accepted by NewBackend.
const (
	BackendONNX      = "onnx"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGoogle    = "google"
)

// BackendConfig selects and configures a classifier backend.
type BackendConfig struct {
	Kind string

	// Model is the remote model name (openai, anthropic).
	Model  string
	APIKey string

	// ONNX model files; TokenizerPath is also used for token counting by remote backends.
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string
	MaxModelLength    int

	GoogleCredentials string

	// RedisAddr enables the verdict cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// RateLimit caps calls per second to the backend; 0 disables limiting.
	RateLimit float64
	Burst     int

	Logger *zap.Logger
}

// Backend is a ready-to-use classifier and the tokenizer that goes with it.
type Backend struct {
	Classifier analysis.Classifier
	Tokenizer  analysis.Tokenizer

	closers []func() error
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBackend builds the configured classifier, wrapping it with the rate limiter and the cache
// when those are configured.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))

	switch kind {
	case BackendONNX:
		c, err := NewONNXClassifier(ONNXConfig{
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			MaxLength:         cfg.MaxModelLength,
		})
		if err != nil {
			return nil, err
		}
		b.Classifier, b.Tokenizer = c, c.Tokenizer()
		b.closers = append(b.closers, c.Close)
	case BackendOpenAI:
		c, err := NewOpenAIClassifier(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		b.Classifier = c
	case BackendAnthropic:
		c, err := NewAnthropicClassifier(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		b.Classifier = c
	case BackendGoogle:
		c, err := NewLanguageClassifier(ctx, cfg.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		b.Classifier = c
		b.closers = append(b.closers, c.Close)
	default:
		return nil, fmt.Errorf("NewBackend: unknown classifier %q (want onnx, openai, anthropic or google)", cfg.Kind)
	}

	if b.Tokenizer == nil {
		if cfg.TokenizerPath != "" {
			tok, err := NewHFTokenizer(cfg.TokenizerPath)
			if err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("NewBackend: %w", err)
			}
			b.Tokenizer = tok
		} else {
			b.Tokenizer = ApproxTokenizer{}
		}
	}

	if cfg.RateLimit > 0 {
		b.Classifier = NewRateLimitedClassifier(b.Classifier, cfg.RateLimit, cfg.Burst)
	}

	if cfg.RedisAddr != "" {
		kv, err := NewRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("NewBackend: %w", err)
		}
		b.closers = append(b.closers, kv.Close)
		b.Classifier = &CachedClassifier{
			Next:      b.Classifier,
			Store:     kv,
			Namespace: kind + "/" + cfg.Model + "/" + cfg.ModelPath,
			TTL:       cfg.CacheTTL,
			Logger:    logger,
		}
	}

	logger.Info("classifier backend ready",
		zap.String("backend", kind),
		zap.String("model", cfg.Model),
		zap.Bool("cache", cfg.RedisAddr != ""),
		zap.Float64("rate_limit", cfg.RateLimit))
	return b, nil
}
