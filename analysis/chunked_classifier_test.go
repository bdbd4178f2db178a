package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
)

type scriptedClassifier struct {
	mu    sync.Mutex
	votes map[string]ChunkVote
	err   error
	seen  []string
}

func (s *scriptedClassifier) ClassifyOnce(_ context.Context, text string) (ChunkVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, text)
	if s.err != nil {
		return ChunkVote{}, s.err
	}
	v, ok := s.votes[text]
	if !ok {
		return ChunkVote{Kind: Neutral, Confidence: 0.5}, nil
	}
	return v, nil
}

type fixedTokenizer struct {
	n   int
	err error
}

func (f fixedTokenizer) CountTokens(string) (int, error) { return f.n, f.err }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestChunkWindows(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		size int
		want []string
	}{
		{text: strings.Repeat("a", 35), size: 10, want: []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 10)}},
		{text: "0123456789A", size: 10, want: nil},
		{text: "0123456789AB", size: 10, want: []string{"0123456789"}},
		{text: "short", size: 0, want: nil},
		{text: "ñandú ñandú", size: 3, want: []string{"ñan", "dú ", "ñan"}},
	}
	for _, tc := range cases {
		got := ChunkWindows(tc.text, tc.size)
		if len(got) != len(tc.want) {
			t.Fatalf("ChunkWindows(%q,%d)=%q want %q", tc.text, tc.size, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ChunkWindows(%q,%d)[%d]=%q want %q", tc.text, tc.size, i, got[i], tc.want[i])
			}
		}
	}
}

func TestReduceVotesMajority(t *testing.T) {
	t.Parallel()

	res := ReduceVotes([]ChunkVote{
		{Kind: Negative, Confidence: 0.9},
		{Kind: Negative, Confidence: 0.7},
		{Kind: Positive, Confidence: 0.6},
	})
	if res.Label.String() != "NEGATIVE" {
		t.Fatalf("label=%s", res.Label)
	}
	if len(res.Scores) != 1 || !almostEqual(res.Scores[0], 0.8) {
		t.Fatalf("scores=%v", res.Scores)
	}
}

func TestReduceVotesTieKeepsPriorityOrder(t *testing.T) {
	t.Parallel()

	res := ReduceVotes([]ChunkVote{
		{Kind: Positive, Confidence: 0.6},
		{Kind: Negative, Confidence: 0.9},
	})
	if res.Label.String() != "NEGATIVE-POSITIVE" {
		t.Fatalf("label=%s", res.Label)
	}
	if len(res.Scores) != 2 || !almostEqual(res.Scores[0], 0.9) || !almostEqual(res.Scores[1], 0.6) {
		t.Fatalf("scores=%v", res.Scores)
	}

	all := ReduceVotes([]ChunkVote{
		{Kind: Positive, Confidence: 0.5},
		{Kind: Neutral, Confidence: 0.4},
		{Kind: Negative, Confidence: 0.3},
	})
	if all.Label.String() != "NEGATIVE-NEUTRAL-POSITIVE" {
		t.Fatalf("label=%s", all.Label)
	}
}

func TestClassifyShortTextIsOneCall(t *testing.T) {
	t.Parallel()

	fake := &scriptedClassifier{votes: map[string]ChunkVote{"great product": {Kind: Positive, Confidence: 0.95}}}
	c, err := NewChunkedClassifier(fake, fixedTokenizer{n: 512}, 10)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	res, err := c.Classify(context.Background(), "great product")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != LabelOf(Positive) || len(res.Scores) != 1 || res.Scores[0] != 0.95 {
		t.Fatalf("res=%+v", res)
	}
	if len(fake.seen) != 1 {
		t.Fatalf("calls=%d", len(fake.seen))
	}
}

func TestClassifyLongTextVotesPerChunk(t *testing.T) {
	t.Parallel()

	a, b, c3 := strings.Repeat("a", 10), strings.Repeat("b", 10), strings.Repeat("c", 10)
	text := a + b + c3 + "tail!"
	fake := &scriptedClassifier{votes: map[string]ChunkVote{
		a:  {Kind: Negative, Confidence: 0.9},
		b:  {Kind: Negative, Confidence: 0.7},
		c3: {Kind: Positive, Confidence: 0.6},
	}}
	for _, workers := range []int{1, 3} {
		fake.seen = nil
		c, err := NewChunkedClassifier(fake, fixedTokenizer{n: 2000}, 10)
		if err != nil {
			t.Fatalf("NewChunkedClassifier: %v", err)
		}
		c.Concurrency = workers
		res, err := c.Classify(context.Background(), text)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if res.Label.String() != "NEGATIVE" || len(res.Scores) != 1 || !almostEqual(res.Scores[0], 0.8) {
			t.Fatalf("workers=%d res=%+v", workers, res)
		}
		if len(fake.seen) != 3 {
			t.Fatalf("workers=%d calls=%d", workers, len(fake.seen))
		}
	}
}

func TestClassifyNoClassifiableWindowFallsBackToWholeText(t *testing.T) {
	t.Parallel()

	fake := &scriptedClassifier{votes: map[string]ChunkVote{"0123456789A": {Kind: Negative, Confidence: 0.4}}}
	c, err := NewChunkedClassifier(fake, fixedTokenizer{n: 9999}, 10)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	res, err := c.Classify(context.Background(), "0123456789A")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != LabelOf(Negative) || len(fake.seen) != 1 || fake.seen[0] != "0123456789A" {
		t.Fatalf("res=%+v seen=%q", res, fake.seen)
	}
}

func TestClassifyChunkingDisabledSendsWholeText(t *testing.T) {
	t.Parallel()

	fake := &scriptedClassifier{}
	c, err := NewChunkedClassifier(fake, fixedTokenizer{n: 9999}, 0)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	text := strings.Repeat("x", 100)
	if _, err := c.Classify(context.Background(), text); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(fake.seen) != 1 || fake.seen[0] != text {
		t.Fatalf("seen=%d", len(fake.seen))
	}
}

func TestClassifyErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c, err := NewChunkedClassifier(&scriptedClassifier{err: boom}, fixedTokenizer{n: 1}, 10)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	_, err = c.Classify(context.Background(), "text")
	if !errors.Is(err, ErrClassification) || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	c, err = NewChunkedClassifier(&scriptedClassifier{}, fixedTokenizer{err: boom}, 10)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	if _, err := c.Classify(context.Background(), "text"); !errors.Is(err, ErrTokenization) {
		t.Fatalf("err=%v", err)
	}

	bad := &scriptedClassifier{votes: map[string]ChunkVote{"text": {Kind: Positive, Confidence: 1.5}}}
	c, err = NewChunkedClassifier(bad, fixedTokenizer{n: 1}, 10)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	if _, err := c.Classify(context.Background(), "text"); !errors.Is(err, ErrClassification) {
		t.Fatalf("err=%v", err)
	}

	if _, err := NewChunkedClassifier(nil, fixedTokenizer{}, 1); err == nil {
		t.Fatalf("expected error for nil classifier")
	}
	if _, err := NewChunkedClassifier(&scriptedClassifier{}, fixedTokenizer{}, -1); err == nil {
		t.Fatalf("expected error for negative chunk size")
	}
}

func TestClassifyDocumentsParallelThreshold(t *testing.T) {
	t.Parallel()

	fake := &scriptedClassifier{votes: map[string]ChunkVote{"good": {Kind: Positive, Confidence: 0.9}}}
	c, err := NewChunkedClassifier(fake, fixedTokenizer{n: 1}, 0)
	if err != nil {
		t.Fatalf("NewChunkedClassifier: %v", err)
	}
	docs := []*Document{{ID: "1", Text: "good"}, {ID: "2", Text: "meh"}, {ID: "3", Text: "good"}}

	var mu sync.Mutex
	var last int
	err = ClassifyDocuments(context.Background(), c, docs, ClassifyOptions{
		MinRowsToParallelize: 2,
		Concurrency:          4,
		Progress: func(done, total int) {
			mu.Lock()
			if done > last {
				last = done
			}
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("ClassifyDocuments: %v", err)
	}
	if last != 3 {
		t.Fatalf("progress last=%d", last)
	}
	if docs[0].Sentiment.Label != LabelOf(Positive) || docs[1].Sentiment.Label != LabelOf(Neutral) {
		t.Fatalf("labels=%s,%s", docs[0].Sentiment.Label, docs[1].Sentiment.Label)
	}

	fake.err = errors.New("down")
	if err := ClassifyDocuments(context.Background(), c, docs, ClassifyOptions{}); !errors.Is(err, ErrClassification) {
		t.Fatalf("err=%v", err)
	}
}
