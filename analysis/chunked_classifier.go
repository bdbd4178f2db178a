package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxModelLength is the token limit above which texts are split into chunks.
const DefaultMaxModelLength = 512

var (
	// ErrClassification wraps any failure returned by a Classifier.
	ErrClassification = errors.New("classification failed")

	// ErrTokenization wraps any failure returned by a Tokenizer.
	ErrTokenization = errors.New("tokenization failed")
)

// Classifier maps a span of text to a single sentiment vote. Implementations must limit over-long
// input themselves instead of failing on length.
type Classifier interface {
	ClassifyOnce(ctx context.Context, text string) (ChunkVote, error)
}

// Tokenizer reports how many model tokens a span of text occupies.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// ChunkedClassifier classifies whole documents, splitting texts that exceed MaxModelLength tokens
// into fixed-width character windows and reducing the per-window votes.
type ChunkedClassifier struct {
	Classifier Classifier
	Tokenizer  Tokenizer

	// MaxModelLength is the token limit of the underlying model (defaults to 512).
	MaxModelLength int

	// ChunkSize is the window width in characters. Zero disables chunking: over-length texts are
	// then sent whole and the Classifier is expected to truncate.
	ChunkSize int

	// Concurrency bounds concurrent chunk classifications for one text (defaults to 1).
	Concurrency int

	Logger *zap.Logger
}

// NewChunkedClassifier validates the capabilities and fills defaults.
func NewChunkedClassifier(c Classifier, t Tokenizer, chunkSize int) (*ChunkedClassifier, error) {
	if c == nil {
		return nil, errors.New("NewChunkedClassifier: classifier is nil")
	}
	if t == nil {
		return nil, errors.New("NewChunkedClassifier: tokenizer is nil")
	}
	if chunkSize < 0 {
		return nil, fmt.Errorf("NewChunkedClassifier: chunk size must be > 0 (or 0 to disable), got %d", chunkSize)
	}
	return &ChunkedClassifier{
		Classifier:     c,
		Tokenizer:      t,
		MaxModelLength: DefaultMaxModelLength,
		ChunkSize:      chunkSize,
		Concurrency:    1,
		Logger:         zap.NewNop(),
	}, nil
}

// Classify returns exactly one SentimentResult for text.
func (c *ChunkedClassifier) Classify(ctx context.Context, text string) (SentimentResult, error) {
	maxLen := c.MaxModelLength
	if maxLen <= 0 {
		maxLen = DefaultMaxModelLength
	}
	tokens, err := c.Tokenizer.CountTokens(text)
	if err != nil {
		return SentimentResult{}, fmt.Errorf("%w: %w", ErrTokenization, err)
	}
	if tokens <= maxLen || c.ChunkSize <= 0 {
		return c.classifyWhole(ctx, text)
	}

	windows := ChunkWindows(text, c.ChunkSize)
	if len(windows) == 0 {
		// Every window touches the end of the text, so nothing was classifiable as a chunk.
		return c.classifyWhole(ctx, text)
	}
	if len(windows) > 1 {
		c.logger().Debug("text exceeds model length, classifying in chunks",
			zap.Int("tokens", tokens),
			zap.Int("chunk_size", c.ChunkSize),
			zap.Int("chunks", len(windows)))
	}

	votes, err := c.classifyChunks(ctx, windows)
	if err != nil {
		return SentimentResult{}, err
	}
	return ReduceVotes(votes), nil
}

func (c *ChunkedClassifier) classifyWhole(ctx context.Context, text string) (SentimentResult, error) {
	v, err := c.classifyOnce(ctx, text)
	if err != nil {
		return SentimentResult{}, err
	}
	return SentimentResult{Label: LabelOf(v.Kind), Scores: []float64{v.Confidence}}, nil
}

func (c *ChunkedClassifier) classifyOnce(ctx context.Context, text string) (ChunkVote, error) {
	v, err := c.Classifier.ClassifyOnce(ctx, text)
	if err != nil {
		return ChunkVote{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	if err := v.validate(); err != nil {
		return ChunkVote{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	return v, nil
}

func (c *ChunkedClassifier) classifyChunks(ctx context.Context, windows []string) ([]ChunkVote, error) {
	votes := make([]ChunkVote, len(windows))
	limit := c.Concurrency
	if limit <= 1 {
		for i, w := range windows {
			v, err := c.classifyOnce(ctx, w)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
			votes[i] = v
		}
		return votes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, w := range windows {
		g.Go(func() error {
			v, err := c.classifyOnce(gctx, w)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			votes[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return votes, nil
}

func (c *ChunkedClassifier) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// ChunkWindows splits text into non-overlapping windows of size characters. A window is kept only
// when start+size < len(text)-1, so the trailing under-full window (and a full window that reaches
// the last character) is dropped.
func ChunkWindows(text string, size int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		if i+size < len(runes)-1 {
			out = append(out, string(runes[i:i+size]))
		}
	}
	return out
}

// ReduceVotes folds chunk votes into one result: every kind with the maximum vote count is kept
// (priority order), each scored with the mean confidence of its votes. votes must be non-empty.
func ReduceVotes(votes []ChunkVote) SentimentResult {
	counts := make(map[Kind]int, len(Kinds))
	sums := make(map[Kind]float64, len(Kinds))
	for _, v := range votes {
		counts[v.Kind]++
		sums[v.Kind] += v.Confidence
	}

	maxVotes := 0
	for _, k := range Kinds {
		if counts[k] > maxVotes {
			maxVotes = counts[k]
		}
	}

	var res SentimentResult
	for _, k := range Kinds {
		if maxVotes == 0 || counts[k] != maxVotes {
			continue
		}
		res.Label |= Label(k)
		res.Scores = append(res.Scores, sums[k]/float64(counts[k]))
	}
	return res
}
