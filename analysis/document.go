package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Field is one caller-supplied metadata column of a record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TopicAssignment is the topic a document was placed in by one discovery run. TopicID -1 marks an
// outlier.
type TopicAssignment struct {
	TopicID     int     `json:"topic_id"`
	Probability float64 `json:"probability"`
}

// Document is one record of the collection. Text and Fields are fixed at ingestion; Sentiment is
// set once by classification; Topic is attached by the Partitioner.
type Document struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Fields    []Field          `json:"fields,omitempty"`
	Sentiment SentimentResult  `json:"sentiment"`
	Topic     *TopicAssignment `json:"topic,omitempty"`
}

// Field returns the named metadata value.
func (d *Document) Field(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// ClassifyOptions controls batch classification of a document collection.
type ClassifyOptions struct {
	// MinRowsToParallelize is the collection size from which documents are classified
	// concurrently. Smaller collections are classified one by one.
	MinRowsToParallelize int

	// Concurrency is the worker count used once MinRowsToParallelize is reached.
	Concurrency int

	// Progress, when set, is called after each document with the number done so far.
	Progress func(done, total int)
}

// ClassifyDocuments sets Sentiment on every document. The first classification failure aborts the
// whole batch.
func ClassifyDocuments(ctx context.Context, c *ChunkedClassifier, docs []*Document, opts ClassifyOptions) error {
	if c == nil {
		return errors.New("ClassifyDocuments: classifier is nil")
	}
	total := len(docs)
	var done int64
	step := func(ctx context.Context, i int) error {
		res, err := c.Classify(ctx, docs[i].Text)
		if err != nil {
			return fmt.Errorf("ClassifyDocuments: document %q: %w", docs[i].ID, err)
		}
		docs[i].Sentiment = res
		n := atomic.AddInt64(&done, 1)
		if opts.Progress != nil {
			opts.Progress(int(n), total)
		}
		return nil
	}

	parallel := opts.MinRowsToParallelize > 0 && total >= opts.MinRowsToParallelize && opts.Concurrency > 1
	if !parallel {
		for i := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := step(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	c.logger().Info("classifying documents in parallel",
		zap.Int("documents", total),
		zap.Int("workers", opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range docs {
		g.Go(func() error { return step(gctx, i) })
	}
	return g.Wait()
}
