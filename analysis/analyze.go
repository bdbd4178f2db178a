package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalyzeOptions configures Analyze.
type AnalyzeOptions struct {
	MinTopicSize int

	// Summary is computed over the partitioned documents when non-nil.
	Summary *SummaryOptions

	// RunID names the run; a random UUID is used when empty.
	RunID string
	Now   func() time.Time
}

// Analysis is one topic run over a classified collection.
type Analysis struct {
	Result   *PartitionResult
	Summary  []Field
	Manifest *RunManifest
}

// Analyze partitions docs by label, discovers topics per label and summarizes the outcome.
func Analyze(ctx context.Context, p *Partitioner, docs []*Document, opts AnalyzeOptions) (*Analysis, error) {
	if p == nil {
		return nil, fmt.Errorf("Analyze: partitioner is nil")
	}
	res, err := p.PartitionAndModel(ctx, docs, opts.MinTopicSize)
	if err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	a := &Analysis{Result: res}
	if opts.Summary != nil {
		a.Summary, err = Summarize(res.All, *opts.Summary)
		if err != nil {
			return nil, fmt.Errorf("Analyze: %w", err)
		}
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	a.Manifest = NewRunManifest(runID, res, now())
	return a, nil
}

// Write stores the analysis in dir, see WriteOutputs.
func (a *Analysis) Write(dir string, keep []string) error {
	return WriteOutputs(dir, a.Result, OutputOptions{Keep: keep, Summary: a.Summary, Manifest: a.Manifest})
}
