package cliutil

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/provider"
	"github.com/theimaginaryfoundation/loupe/analysis/topicmodel"
)

const defaultOpenAIModel = "gpt-5-mini"

// ClassifierFlags selects the sentiment backend and the chunking around it.
type ClassifierFlags struct {
	Classifier string `yaml:"classifier"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`

	ModelPath         string `yaml:"model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	SharedLibraryPath string `yaml:"onnxruntime_lib"`
	GoogleCredentials string `yaml:"google_credentials"`

	MaxModelLength   int `yaml:"max_model_length"`
	ChunkSize        int `yaml:"chunk_size"`
	ChunkConcurrency int `yaml:"chunk_concurrency"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

func DefaultClassifierFlags() ClassifierFlags {
	return ClassifierFlags{
		Classifier:       provider.BackendOpenAI,
		MaxModelLength:   analysis.DefaultMaxModelLength,
		ChunkSize:        512,
		ChunkConcurrency: 1,
		CacheTTL:         30 * 24 * time.Hour,
		Burst:            1,
	}
}

func (c *ClassifierFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.Classifier, "classifier", c.Classifier, "Sentiment backend: onnx|openai|anthropic|google")
	fs.StringVar(&c.Model, "model", c.Model, "Remote model name (openai defaults to "+defaultOpenAIModel+", anthropic to its sonnet model)")
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "API key (overrides OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	fs.StringVar(&c.ModelPath, "model-path", c.ModelPath, "ONNX sentiment model file (onnx backend)")
	fs.StringVar(&c.TokenizerPath, "tokenizer", c.TokenizerPath, "tokenizer.json used for token counting (required by onnx)")
	fs.StringVar(&c.SharedLibraryPath, "onnxruntime-lib", c.SharedLibraryPath, "Path to the onnxruntime shared library")
	fs.StringVar(&c.GoogleCredentials, "google-credentials", c.GoogleCredentials, "Service account JSON or base64 (overrides GOOGLE_LANGUAGE_CREDENTIALS)")
	fs.IntVar(&c.MaxModelLength, "max-model-length", c.MaxModelLength, "Token limit above which texts are split into chunks")
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "Chunk width in characters (0 disables chunking)")
	fs.IntVar(&c.ChunkConcurrency, "chunk-concurrency", c.ChunkConcurrency, "Concurrent chunk classifications per text")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the verdict cache (empty disables caching)")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "Verdict cache TTL (0 keeps entries forever)")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Max backend calls per second (0 = unlimited)")
	fs.IntVar(&c.Burst, "burst", c.Burst, "Rate limiter burst")
}

func (c ClassifierFlags) Validate() error {
	switch strings.ToLower(c.Classifier) {
	case provider.BackendOpenAI, provider.BackendAnthropic, provider.BackendGoogle:
	case provider.BackendONNX:
		if c.ModelPath == "" || c.TokenizerPath == "" {
			return errors.New("onnx classifier needs -model-path and -tokenizer")
		}
	default:
		return fmt.Errorf("unknown -classifier %q", c.Classifier)
	}
	if c.MaxModelLength <= 0 {
		return errors.New("max-model-length must be > 0")
	}
	if c.ChunkSize < 0 {
		return errors.New("chunk-size must be >= 0")
	}
	if c.ChunkConcurrency < 1 {
		return errors.New("chunk-concurrency must be >= 1")
	}
	if c.RateLimit < 0 || c.Burst < 0 || c.CacheTTL < 0 {
		return errors.New("rate-limit/burst/cache-ttl must be >= 0")
	}
	return nil
}

// BackendConfig resolves credentials from the environment.
func (c ClassifierFlags) BackendConfig(logger *zap.Logger) provider.BackendConfig {
	kind := strings.ToLower(c.Classifier)
	cfg := provider.BackendConfig{
		Kind:              kind,
		Model:             c.Model,
		APIKey:            c.APIKey,
		ModelPath:         c.ModelPath,
		TokenizerPath:     c.TokenizerPath,
		SharedLibraryPath: c.SharedLibraryPath,
		MaxModelLength:    c.MaxModelLength,
		GoogleCredentials: FirstNonEmpty(c.GoogleCredentials, os.Getenv("GOOGLE_LANGUAGE_CREDENTIALS")),
		RedisAddr:         c.RedisAddr,
		RedisPassword:     FirstNonEmpty(c.RedisPassword, os.Getenv("REDIS_PASSWORD")),
		RedisDB:           c.RedisDB,
		CacheTTL:          c.CacheTTL,
		RateLimit:         c.RateLimit,
		Burst:             c.Burst,
		Logger:            logger,
	}
	switch kind {
	case provider.BackendOpenAI:
		cfg.APIKey = FirstNonEmpty(c.APIKey, os.Getenv("OPENAI_API_KEY"))
		cfg.Model = FirstNonEmpty(c.Model, defaultOpenAIModel)
	case provider.BackendAnthropic:
		cfg.APIKey = FirstNonEmpty(c.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	}
	return cfg
}

// NewClassifier opens the backend and wraps it in a ChunkedClassifier. The caller closes the
// returned Backend.
func (c ClassifierFlags) NewClassifier(ctx context.Context, logger *zap.Logger) (*analysis.ChunkedClassifier, *provider.Backend, error) {
	backend, err := provider.NewBackend(ctx, c.BackendConfig(logger))
	if err != nil {
		return nil, nil, err
	}
	cc, err := analysis.NewChunkedClassifier(backend.Classifier, backend.Tokenizer, c.ChunkSize)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	cc.MaxModelLength = c.MaxModelLength
	cc.Concurrency = c.ChunkConcurrency
	cc.Logger = logger
	return cc, backend, nil
}

// Embedder names accepted by -embedder.
const (
	EmbedderTFIDF  = "tfidf"
	EmbedderOpenAI = "openai"
)

// TopicFlags configures topic discovery.
type TopicFlags struct {
	MinTopicSize   int     `yaml:"min_topic_size"`
	Language       string  `yaml:"language"`
	Embedder       string  `yaml:"embedder"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Similarity     float64 `yaml:"similarity"`
	TopTerms       int     `yaml:"top_terms"`
	Concurrency    int     `yaml:"topic_concurrency"`
}

func DefaultTopicFlags() TopicFlags {
	return TopicFlags{
		MinTopicSize: 10,
		Language:     "english",
		Embedder:     EmbedderTFIDF,
		Similarity:   topicmodel.DefaultSimilarity,
		TopTerms:     topicmodel.DefaultTopTerms,
		Concurrency:  1,
	}
}

func (t *TopicFlags) Register(fs *flag.FlagSet) {
	fs.IntVar(&t.MinTopicSize, "min-topic-size", t.MinTopicSize, "Minimum documents per topic; halved while no topics are found")
	fs.StringVar(&t.Language, "language", t.Language, "Document language: english|spanish|portuguese")
	fs.StringVar(&t.Embedder, "embedder", t.Embedder, "Document vectors: tfidf|openai")
	fs.StringVar(&t.EmbeddingModel, "embedding-model", t.EmbeddingModel, "OpenAI embedding model (openai embedder)")
	fs.Float64Var(&t.Similarity, "similarity", t.Similarity, "Cosine similarity for two documents to be neighbors")
	fs.IntVar(&t.TopTerms, "top-terms", t.TopTerms, "Representative terms kept per topic")
	fs.IntVar(&t.Concurrency, "topic-concurrency", t.Concurrency, "Labels modeled concurrently")
}

func (t TopicFlags) Validate() error {
	if t.MinTopicSize < 1 {
		return errors.New("min-topic-size must be > 0")
	}
	switch t.Language {
	case "english", "spanish", "portuguese":
	default:
		return fmt.Errorf("unsupported -language %q", t.Language)
	}
	if t.Embedder != EmbedderTFIDF && t.Embedder != EmbedderOpenAI {
		return fmt.Errorf("unknown -embedder %q", t.Embedder)
	}
	if t.Similarity <= 0 || t.Similarity > 1 {
		return errors.New("similarity must be in (0,1]")
	}
	if t.TopTerms <= 0 || t.Concurrency <= 0 {
		return errors.New("top-terms and topic-concurrency must be > 0")
	}
	return nil
}

// NewPartitioner builds the topic model and the partitioner around it. apiKey is used by the
// openai embedder and falls back to OPENAI_API_KEY.
func (t TopicFlags) NewPartitioner(apiKey string, logger *zap.Logger) (*analysis.Partitioner, error) {
	opts := topicmodel.Options{
		Language:   t.Language,
		Similarity: t.Similarity,
		TopTerms:   t.TopTerms,
		Logger:     logger,
	}
	if t.Embedder == EmbedderOpenAI {
		e, err := topicmodel.NewOpenAIEmbedder(FirstNonEmpty(apiKey, os.Getenv("OPENAI_API_KEY")), t.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		opts.Embedder = e
	}
	m, err := topicmodel.New(opts)
	if err != nil {
		return nil, err
	}
	return &analysis.Partitioner{Model: m, Concurrency: t.Concurrency, Logger: logger}, nil
}

// SummaryFlags selects the Summary.csv aggregates.
type SummaryFlags struct {
	Title string   `yaml:"title"`
	Count []string `yaml:"count"`
	Mean  []string `yaml:"mean"`
	Sum   []string `yaml:"sum"`
}

func DefaultSummaryFlags() SummaryFlags {
	return SummaryFlags{Count: []string{analysis.ColumnEmotion}}
}

func (s *SummaryFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&s.Title, "title", s.Title, "Report title (defaults to the input file name)")
	fs.Var(&StringList{Values: &s.Count}, "count", "Column whose distinct values are counted in Summary.csv (repeatable; emotion is always counted)")
	fs.Var(&StringList{Values: &s.Mean}, "mean", "Numeric column averaged in Summary.csv (repeatable)")
	fs.Var(&StringList{Values: &s.Sum}, "sum", "Numeric column summed into count_<col> of Summary.csv (repeatable)")
}

// Options returns the summary options, always counting the emotion column. An empty title
// becomes the base name of inputPath without extensions.
func (s SummaryFlags) Options(inputPath string) analysis.SummaryOptions {
	groups := append([]string(nil), s.Count...)
	if !slices.Contains(groups, analysis.ColumnEmotion) {
		groups = append(groups, analysis.ColumnEmotion)
	}
	return analysis.SummaryOptions{
		Title:        FirstNonEmpty(s.Title, DefaultTitle(inputPath)),
		GroupColumns: groups,
		MeanColumns:  s.Mean,
		SumColumns:   s.Sum,
	}
}

// DefaultTitle is the base name of path up to its first dot.
func DefaultTitle(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
