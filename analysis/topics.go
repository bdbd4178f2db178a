package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutlierTopic is the topic id a TopicModel uses for documents it could not place.
const OutlierTopic = -1

// minRetryTopicSize is the smallest min_topic_size a degenerate discovery is retried with.
const minRetryTopicSize = 2

// maxDiscoveryAttempts bounds the halving loop independently of the starting size.
const maxDiscoveryAttempts = 32

// ErrUnlabeledDocument is returned when a document without a valid label is partitioned.
var ErrUnlabeledDocument = errors.New("document has no sentiment label")

// TopicCount is one row of a fitted model's frequency report.
type TopicCount struct {
	TopicID int
	Count   int
}

// TermScore is one representative term of a topic with its c-TF-IDF weight.
type TermScore struct {
	Term  string
	Score float64
}

// TopicModel discovers topics in a batch of texts. Every Fit returns a fresh, independent handle.
type TopicModel interface {
	Fit(ctx context.Context, texts []string, minTopicSize int) (TopicFit, error)
}

// TopicFit is the outcome of one TopicModel.Fit call.
type TopicFit interface {
	// Assignments returns one assignment per fitted text, in input order.
	Assignments() []TopicAssignment
	// Frequencies returns the document count per topic, outliers included, largest first.
	Frequencies() []TopicCount
	// TopTerms returns the representative terms of a topic in the model's ranking order.
	TopTerms(topicID int) []TermScore
	// Probe returns an error when the fit cannot be visualized or is otherwise unusable.
	Probe() error
}

// TopicFrequency is a reportable topic: outliers are never included.
type TopicFrequency struct {
	TopicID    int    `json:"topic_id"`
	Count      int    `json:"count"`
	MainWords  string `json:"main_words"`
	TermScores string `json:"term_scores"`
}

// TopicResult is the accepted discovery outcome for one label.
type TopicResult struct {
	Label       Label            `json:"label"`
	Model       TopicFit         `json:"-"`
	Frequencies []TopicFrequency `json:"frequencies"`

	// MinTopicSize is the size the accepted attempt ran with.
	MinTopicSize int `json:"min_topic_size"`

	// Attempts lists every min_topic_size tried, in order.
	Attempts []int `json:"attempts"`

	// Degenerate is set when even the last attempt found no usable topics. It is a reportable
	// state, not an error.
	Degenerate bool `json:"degenerate"`

	// ProbeError holds the probe failure of the accepted attempt, if any.
	ProbeError string `json:"probe_error,omitempty"`
}

// DiscoverTopics fits model over docs, halving minTopicSize while the fit is degenerate and the
// halved size is still >= 2. The topic of every document is overwritten by each attempt, so
// after return the documents carry the assignments of the accepted attempt.
func DiscoverTopics(ctx context.Context, model TopicModel, docs []*Document, minTopicSize int, logger *zap.Logger) (*TopicResult, error) {
	if model == nil {
		return nil, errors.New("DiscoverTopics: model is nil")
	}
	if len(docs) == 0 {
		return nil, errors.New("DiscoverTopics: no documents")
	}
	if minTopicSize <= 0 {
		return nil, fmt.Errorf("DiscoverTopics: min topic size must be > 0, got %d", minTopicSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	size := minTopicSize
	var attempts []int
	for {
		attempts = append(attempts, size)
		fit, err := model.Fit(ctx, texts, size)
		if err != nil {
			return nil, fmt.Errorf("DiscoverTopics: fit (min_topic_size=%d): %w", size, err)
		}
		assignments := fit.Assignments()
		if len(assignments) != len(docs) {
			return nil, fmt.Errorf("DiscoverTopics: model returned %d assignments for %d documents", len(assignments), len(docs))
		}
		for i := range docs {
			a := assignments[i]
			docs[i].Topic = &a
		}

		freqs := reportableTopics(fit)
		probeErr := fit.Probe()
		degenerate := len(freqs) == 0 || probeErr != nil

		next := size / 2
		if degenerate && next >= minRetryTopicSize && len(attempts) < maxDiscoveryAttempts {
			logger.Warn("no topics identified, retrying with half the min topic size",
				zap.Int("min_topic_size", next),
				zap.Int("topics", len(freqs)),
				zap.NamedError("probe", probeErr))
			size = next
			continue
		}
		if degenerate {
			logger.Warn("could not find topics", zap.Ints("attempts", attempts))
		}

		res := &TopicResult{
			Model:        fit,
			Frequencies:  freqs,
			MinTopicSize: size,
			Attempts:     attempts,
			Degenerate:   degenerate,
		}
		if probeErr != nil {
			res.ProbeError = probeErr.Error()
		}
		return res, nil
	}
}

func reportableTopics(fit TopicFit) []TopicFrequency {
	counts := fit.Frequencies()
	out := make([]TopicFrequency, 0, len(counts))
	for _, c := range counts {
		if c.TopicID == OutlierTopic {
			continue
		}
		words, scores := joinTerms(fit.TopTerms(c.TopicID))
		out = append(out, TopicFrequency{
			TopicID:    c.TopicID,
			Count:      c.Count,
			MainWords:  words,
			TermScores: scores,
		})
	}
	return out
}

func joinTerms(terms []TermScore) (string, string) {
	words := make([]string, len(terms))
	scores := make([]string, len(terms))
	for i, t := range terms {
		words[i] = t.Term
		scores[i] = strconv.FormatFloat(t.Score, 'g', -1, 64)
	}
	return strings.Join(words, ","), strings.Join(scores, ",")
}

// Partitioner splits a classified collection by label and discovers topics per label.
type Partitioner struct {
	Model TopicModel

	// Concurrency bounds how many labels are modeled at once (defaults to 1).
	Concurrency int

	Logger *zap.Logger
}

// PartitionResult holds per-label outcomes. Labels without documents have no entry in either map.
type PartitionResult struct {
	Topics     map[Label]*TopicResult
	Partitions map[Label][]*Document

	// All is the union of every partition in label order.
	All []*Document
}

// Present returns the labels that have an entry, in partition order.
func (r *PartitionResult) Present() []Label {
	var out []Label
	for _, l := range Labels {
		if _, ok := r.Partitions[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Partition groups docs by exact label, keeping input order inside each group.
func Partition(docs []*Document) (map[Label][]*Document, error) {
	parts := make(map[Label][]*Document, len(Labels))
	for _, d := range docs {
		if !d.Sentiment.Label.Valid() {
			return nil, fmt.Errorf("Partition: %q: %w", d.ID, ErrUnlabeledDocument)
		}
		parts[d.Sentiment.Label] = append(parts[d.Sentiment.Label], d)
	}
	return parts, nil
}

// PartitionAndModel partitions docs by label and runs DiscoverTopics on every non-empty
// partition. Documents are updated in place with their topic assignment.
func (p *Partitioner) PartitionAndModel(ctx context.Context, docs []*Document, minTopicSize int) (*PartitionResult, error) {
	if p.Model == nil {
		return nil, errors.New("PartitionAndModel: model is nil")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	parts, err := Partition(docs)
	if err != nil {
		return nil, err
	}

	res := &PartitionResult{
		Topics:     make(map[Label]*TopicResult, len(parts)),
		Partitions: make(map[Label][]*Document, len(parts)),
	}
	var mu sync.Mutex

	limit := p.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, label := range Labels {
		members := parts[label]
		if len(members) == 0 {
			continue
		}
		g.Go(func() error {
			l := logger.With(zap.Stringer("label", label), zap.Int("documents", len(members)))
			l.Info("dividing texts into topics")
			tr, err := DiscoverTopics(gctx, p.Model, members, minTopicSize, l)
			if err != nil {
				return fmt.Errorf("PartitionAndModel: %s: %w", label, err)
			}
			tr.Label = label
			mu.Lock()
			res.Topics[label] = tr
			res.Partitions[label] = members
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, label := range Labels {
		res.All = append(res.All, res.Partitions[label]...)
	}
	return res, nil
}
