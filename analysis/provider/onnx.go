package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// ONNXConfig describes a sequence-classification model exported to ONNX.
type ONNXConfig struct {
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string

	// MaxLength is the model's position limit; longer inputs are truncated (defaults to 512).
	MaxLength int

	// InputNames defaults to input_ids and attention_mask. token_type_ids is fed as zeros when listed.
	InputNames []string
	OutputName string

	// LabelOrder maps logit index to kind (defaults to NEGATIVE, NEUTRAL, POSITIVE).
	LabelOrder []analysis.Kind

	// IntraOpThreads is passed to the runtime; 0 lets it use every core.
	IntraOpThreads int
}

func (c *ONNXConfig) setDefaults() {
	if c.MaxLength <= 0 {
		c.MaxLength = analysis.DefaultMaxModelLength
	}
	if len(c.InputNames) == 0 {
		c.InputNames = []string{"input_ids", "attention_mask"}
	}
	if c.OutputName == "" {
		c.OutputName = "logits"
	}
	if len(c.LabelOrder) == 0 {
		c.LabelOrder = []analysis.Kind{analysis.Negative, analysis.Neutral, analysis.Positive}
	}
}

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXClassifier runs a local transformer sentiment model (three-way roberta style) through ONNX
// Runtime. It truncates over-long input to MaxLength tokens.
type ONNXClassifier struct {
	cfg     ONNXConfig
	tok     *HFTokenizer
	session *ort.DynamicAdvancedSession
}

func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	cfg.setDefaults()
	if cfg.ModelPath == "" {
		return nil, errors.New("NewONNXClassifier: model path is empty")
	}
	tok, err := NewHFTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: %w", err)
	}
	if err := initRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: initialize runtime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: thread count: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("NewONNXClassifier: create session: %w", err)
	}
	return &ONNXClassifier{cfg: cfg, tok: tok, session: session}, nil
}

// Tokenizer returns the classifier's own tokenizer, for token counting.
func (c *ONNXClassifier) Tokenizer() *HFTokenizer { return c.tok }

var _ analysis.Classifier = (*ONNXClassifier)(nil)

func (c *ONNXClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	if err := ctx.Err(); err != nil {
		return analysis.ChunkVote{}, err
	}
	ids, err := c.tok.IDs(text)
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("ONNXClassifier: %w", err)
	}
	ids = truncateIDs(ids, c.cfg.MaxLength)
	n := int64(len(ids))
	shape := ort.NewShape(1, n)

	inputs := make([]ort.Value, 0, len(c.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range c.cfg.InputNames {
		data := make([]int64, n)
		switch name {
		case "input_ids":
			for i, id := range ids {
				data[i] = int64(id)
			}
		case "attention_mask":
			for i := range data {
				data[i] = 1
			}
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return analysis.ChunkVote{}, fmt.Errorf("ONNXClassifier: %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := c.session.Run(inputs, outputs); err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("ONNXClassifier: run: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return analysis.ChunkVote{}, fmt.Errorf("ONNXClassifier: unexpected output type %T", outputs[0])
	}
	return voteFromLogits(logits.GetData(), c.cfg.LabelOrder)
}

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Destroy()
}

// truncateIDs keeps the first max-1 ids and the final (end-of-sequence) id.
func truncateIDs(ids []int, max int) []int {
	if max <= 0 || len(ids) <= max {
		return ids
	}
	out := make([]int, max)
	copy(out, ids[:max-1])
	out[max-1] = ids[len(ids)-1]
	return out
}

func voteFromLogits(logits []float32, order []analysis.Kind) (analysis.ChunkVote, error) {
	if len(logits) != len(order) {
		return analysis.ChunkVote{}, fmt.Errorf("got %d logits for %d labels", len(logits), len(order))
	}
	probs := softmax(logits)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return analysis.ChunkVote{Kind: order[best], Confidence: probs[best]}, nil
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	m := float64(logits[0])
	for _, l := range logits {
		m = math.Max(m, float64(l))
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
