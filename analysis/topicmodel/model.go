// Package topicmodel is a small, deterministic topic model for short texts.
//
// Texts are stemmed and vectorized (sublinear tf-idf by default, or caller-supplied embeddings),
// clustered by cosine neighborhoods, and every topic is described by its c-TF-IDF terms. Clusters
// smaller than the requested minimum topic size are reported as outliers (topic -1).
package topicmodel

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

const (
	DefaultSimilarity  = 0.3
	DefaultTopTerms    = 10
	DefaultMaxFeatures = 5000
)

// ErrTooFewTopics is returned by Probe when there are not enough topics to lay out an
// intertopic distance map.
var ErrTooFewTopics = errors.New("not enough topics for an intertopic distance map")

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Options configures a Model.
type Options struct {
	// Language selects stopwords and the snowball stemmer (english, spanish, portuguese).
	// Languages without a stemmer are matched on lowercased surface forms.
	Language string

	// Similarity is the cosine similarity two documents need to count as neighbors.
	Similarity float64

	// TopTerms is how many representative terms are kept per topic.
	TopTerms int

	// MaxFeatures caps the tf-idf vocabulary (by document frequency).
	MaxFeatures int

	// Embedder replaces tf-idf vectors when set.
	Embedder Embedder

	Logger *zap.Logger
}

// Model implements analysis.TopicModel.
type Model struct {
	opts Options
}

// New validates opts and fills defaults.
func New(opts Options) (*Model, error) {
	if opts.Language == "" {
		opts.Language = "english"
	}
	if _, ok := stopwordLists[opts.Language]; !ok {
		return nil, fmt.Errorf("topicmodel.New: unsupported language %q", opts.Language)
	}
	if opts.Similarity == 0 {
		opts.Similarity = DefaultSimilarity
	}
	if opts.Similarity < 0 || opts.Similarity > 1 {
		return nil, fmt.Errorf("topicmodel.New: similarity must be in (0,1], got %v", opts.Similarity)
	}
	if opts.TopTerms <= 0 {
		opts.TopTerms = DefaultTopTerms
	}
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = DefaultMaxFeatures
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Model{opts: opts}, nil
}

var _ analysis.TopicModel = (*Model)(nil)

// Fit clusters texts. minTopicSize is the smallest number of documents a topic may have.
func (m *Model) Fit(ctx context.Context, texts []string, minTopicSize int) (analysis.TopicFit, error) {
	if minTopicSize <= 0 {
		return nil, fmt.Errorf("topicmodel.Fit: min topic size must be > 0, got %d", minTopicSize)
	}
	an := newAnalyzer(m.opts.Language)
	docs := make([][]string, len(texts))
	for i, t := range texts {
		docs[i] = an.terms(t)
	}

	var vecs []vector
	if m.opts.Embedder != nil {
		emb, err := m.opts.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("topicmodel.Fit: embed: %w", err)
		}
		if len(emb) != len(texts) {
			return nil, fmt.Errorf("topicmodel.Fit: embedder returned %d vectors for %d texts", len(emb), len(texts))
		}
		vecs = make([]vector, len(emb))
		for i, e := range emb {
			vecs[i] = denseVector(e)
		}
	} else {
		vecs = tfidfVectors(docs, vocabulary(docs, m.opts.MaxFeatures))
	}

	labels, err := cluster(ctx, vecs, minTopicSize, m.opts.Similarity)
	if err != nil {
		return nil, fmt.Errorf("topicmodel.Fit: cluster: %w", err)
	}

	topics := 0
	for _, l := range labels {
		if l+1 > topics {
			topics = l + 1
		}
	}
	cents := centroids(vecs, labels, topics)

	f := &Fit{
		assignments: make([]analysis.TopicAssignment, len(texts)),
		counts:      make(map[int]int),
		topics:      topics,
	}
	for i, l := range labels {
		f.counts[l]++
		a := analysis.TopicAssignment{TopicID: l}
		if l >= 0 {
			a.Probability = clamp01(dot(vecs[i], cents[l]))
		}
		f.assignments[i] = a
	}
	f.terms = classTFIDF(docs, labels, m.opts.TopTerms, an.display)

	m.opts.Logger.Debug("topic model fitted",
		zap.Int("documents", len(texts)),
		zap.Int("topics", topics),
		zap.Int("outliers", f.counts[analysis.OutlierTopic]),
		zap.Int("min_topic_size", minTopicSize))
	return f, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Fit is the result of one Model.Fit call. It is read-only.
type Fit struct {
	assignments []analysis.TopicAssignment
	counts      map[int]int
	terms       map[int][]analysis.TermScore
	topics      int
}

func (f *Fit) Assignments() []analysis.TopicAssignment {
	return append([]analysis.TopicAssignment(nil), f.assignments...)
}

func (f *Fit) Frequencies() []analysis.TopicCount {
	out := make([]analysis.TopicCount, 0, len(f.counts))
	for id, n := range f.counts {
		out = append(out, analysis.TopicCount{TopicID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TopicID < out[j].TopicID
	})
	return out
}

func (f *Fit) TopTerms(topicID int) []analysis.TermScore {
	return append([]analysis.TermScore(nil), f.terms[topicID]...)
}

// Probe fails when fewer than two topics were found or a topic has no describing terms.
func (f *Fit) Probe() error {
	if f.topics < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewTopics, f.topics)
	}
	for t := 0; t < f.topics; t++ {
		if len(f.terms[t]) == 0 {
			return fmt.Errorf("topic %d has no terms", t)
		}
	}
	return nil
}
