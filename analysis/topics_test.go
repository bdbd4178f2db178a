package analysis

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

// sizeGatedModel finds one topic per document pair once minTopicSize drops to workingSize.
type sizeGatedModel struct {
	mu          sync.Mutex
	workingSize int
	probeErr    error
	calls       []int
	fitErr      error
}

func (m *sizeGatedModel) Fit(_ context.Context, texts []string, minTopicSize int) (TopicFit, error) {
	m.mu.Lock()
	m.calls = append(m.calls, minTopicSize)
	m.mu.Unlock()
	if m.fitErr != nil {
		return nil, m.fitErr
	}
	f := &fakeFit{assign: make([]TopicAssignment, len(texts)), probeErr: m.probeErr}
	for i := range texts {
		f.assign[i] = TopicAssignment{TopicID: OutlierTopic}
		if minTopicSize <= m.workingSize {
			f.assign[i] = TopicAssignment{TopicID: i / 2, Probability: 0.75}
		}
	}
	return f, nil
}

type fakeFit struct {
	assign   []TopicAssignment
	probeErr error
}

func (f *fakeFit) Assignments() []TopicAssignment { return f.assign }

func (f *fakeFit) Frequencies() []TopicCount {
	counts := map[int]int{}
	var order []int
	for _, a := range f.assign {
		if _, ok := counts[a.TopicID]; !ok {
			order = append(order, a.TopicID)
		}
		counts[a.TopicID]++
	}
	out := make([]TopicCount, 0, len(order))
	for _, id := range order {
		out = append(out, TopicCount{TopicID: id, Count: counts[id]})
	}
	return out
}

func (f *fakeFit) TopTerms(topicID int) []TermScore {
	return []TermScore{{Term: "alpha", Score: 0.5}, {Term: "beta", Score: 0.25}}
}

func (f *fakeFit) Probe() error { return f.probeErr }

func docsWithLabels(labels ...Label) []*Document {
	out := make([]*Document, len(labels))
	for i, l := range labels {
		out[i] = &Document{ID: string(rune('a' + i)), Text: "text", Sentiment: SentimentResult{Label: l, Scores: []float64{0.9}}}
	}
	return out
}

func TestDiscoverTopicsHalvingSequence(t *testing.T) {
	t.Parallel()

	m := &sizeGatedModel{workingSize: 0}
	docs := docsWithLabels(LabelOf(Positive), LabelOf(Positive), LabelOf(Positive))
	res, err := DiscoverTopics(context.Background(), m, docs, 10, nil)
	if err != nil {
		t.Fatalf("DiscoverTopics: %v", err)
	}
	want := []int{10, 5, 2}
	if len(m.calls) != len(want) {
		t.Fatalf("calls=%v", m.calls)
	}
	for i := range want {
		if m.calls[i] != want[i] || res.Attempts[i] != want[i] {
			t.Fatalf("calls=%v attempts=%v", m.calls, res.Attempts)
		}
	}
	if !res.Degenerate || len(res.Frequencies) != 0 || res.MinTopicSize != 2 {
		t.Fatalf("res=%+v", res)
	}
	for _, d := range docs {
		if d.Topic == nil || d.Topic.TopicID != OutlierTopic {
			t.Fatalf("doc %s topic=%+v", d.ID, d.Topic)
		}
	}
}

func TestDiscoverTopicsStopsAtFirstUsableFit(t *testing.T) {
	t.Parallel()

	m := &sizeGatedModel{workingSize: 5}
	docs := docsWithLabels(LabelOf(Neutral), LabelOf(Neutral), LabelOf(Neutral), LabelOf(Neutral))
	res, err := DiscoverTopics(context.Background(), m, docs, 20, nil)
	if err != nil {
		t.Fatalf("DiscoverTopics: %v", err)
	}
	if len(res.Attempts) != 3 || res.MinTopicSize != 5 || res.Degenerate {
		t.Fatalf("res=%+v", res)
	}
	if len(res.Frequencies) != 2 {
		t.Fatalf("frequencies=%+v", res.Frequencies)
	}
	f := res.Frequencies[0]
	if f.MainWords != "alpha,beta" || f.TermScores != "0.5,0.25" || f.Count != 2 {
		t.Fatalf("frequency=%+v", f)
	}
	if docs[3].Topic.TopicID != 1 || docs[3].Topic.Probability != 0.75 {
		t.Fatalf("doc topic=%+v", docs[3].Topic)
	}
}

func TestDiscoverTopicsStartingBelowFloorRunsOnce(t *testing.T) {
	t.Parallel()

	m := &sizeGatedModel{workingSize: 0}
	res, err := DiscoverTopics(context.Background(), m, docsWithLabels(LabelOf(Positive)), 3, nil)
	if err != nil {
		t.Fatalf("DiscoverTopics: %v", err)
	}
	if len(m.calls) != 1 || !res.Degenerate {
		t.Fatalf("calls=%v res=%+v", m.calls, res)
	}
}

func TestDiscoverTopicsProbeFailureRetries(t *testing.T) {
	t.Parallel()

	m := &sizeGatedModel{workingSize: 100, probeErr: errors.New("cannot lay out map")}
	res, err := DiscoverTopics(context.Background(), m, docsWithLabels(LabelOf(Positive), LabelOf(Positive)), 4, nil)
	if err != nil {
		t.Fatalf("DiscoverTopics: %v", err)
	}
	if len(m.calls) != 2 || !res.Degenerate || res.ProbeError == "" {
		t.Fatalf("calls=%v res=%+v", m.calls, res)
	}
	// The table of the last attempt is still reported.
	if len(res.Frequencies) != 1 {
		t.Fatalf("frequencies=%+v", res.Frequencies)
	}
}

func TestDiscoverTopicsFitErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := DiscoverTopics(context.Background(), &sizeGatedModel{fitErr: boom}, docsWithLabels(LabelOf(Positive)), 4, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, err := DiscoverTopics(context.Background(), &sizeGatedModel{}, nil, 4, nil); err == nil {
		t.Fatalf("expected error for empty docs")
	}
}

func TestPartitionAndModel(t *testing.T) {
	t.Parallel()

	docs := docsWithLabels(
		LabelOf(Negative),
		LabelOf(Positive),
		LabelOf(Negative, Positive),
		LabelOf(Positive),
		LabelOf(Negative),
	)
	p := &Partitioner{Model: &sizeGatedModel{workingSize: 2}, Concurrency: 3}
	res, err := p.PartitionAndModel(context.Background(), docs, 4)
	if err != nil {
		t.Fatalf("PartitionAndModel: %v", err)
	}

	present := res.Present()
	wantPresent := []Label{LabelOf(Positive), LabelOf(Negative), LabelOf(Negative, Positive)}
	if len(present) != len(wantPresent) {
		t.Fatalf("present=%v", present)
	}
	for i := range wantPresent {
		if present[i] != wantPresent[i] {
			t.Fatalf("present=%v", present)
		}
	}
	if _, ok := res.Topics[LabelOf(Neutral)]; ok {
		t.Fatalf("neutral has an entry")
	}
	if got := res.Topics[LabelOf(Negative, Positive)].Label; got != LabelOf(Negative, Positive) {
		t.Fatalf("label=%s", got)
	}

	// Partitions are disjoint and exhaustive, and keep input order.
	if len(res.All) != len(docs) {
		t.Fatalf("len(All)=%d", len(res.All))
	}
	seen := map[*Document]bool{}
	for _, d := range res.All {
		if seen[d] {
			t.Fatalf("doc %s in two partitions", d.ID)
		}
		seen[d] = true
	}
	pos := res.Partitions[LabelOf(Positive)]
	if len(pos) != 2 || pos[0].ID != "b" || pos[1].ID != "d" {
		t.Fatalf("positive partition=%v", pos)
	}
	if res.All[0].ID != "b" || res.All[len(res.All)-1].ID != "c" {
		t.Fatalf("All order: first=%s last=%s", res.All[0].ID, res.All[len(res.All)-1].ID)
	}
	for _, d := range res.All {
		if d.Topic == nil {
			t.Fatalf("doc %s has no topic", d.ID)
		}
	}
}

func TestPartitionRejectsUnlabeledDocuments(t *testing.T) {
	t.Parallel()

	docs := docsWithLabels(LabelOf(Positive), 0)
	if _, err := Partition(docs); !errors.Is(err, ErrUnlabeledDocument) {
		t.Fatalf("err=%v", err)
	}
	p := &Partitioner{Model: &sizeGatedModel{}}
	if _, err := p.PartitionAndModel(context.Background(), docs, 2); !errors.Is(err, ErrUnlabeledDocument) {
		t.Fatalf("err=%v", err)
	}
}

func TestPartitionAndModelIsRepeatable(t *testing.T) {
	t.Parallel()

	docs := docsWithLabels(LabelOf(Neutral), LabelOf(Neutral), LabelOf(Neutral))
	p := &Partitioner{Model: &sizeGatedModel{workingSize: 2}}
	first, err := p.PartitionAndModel(context.Background(), docs, 2)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	snapshot := make([]TopicAssignment, len(docs))
	for i, d := range docs {
		snapshot[i] = *d.Topic
	}
	second, err := p.PartitionAndModel(context.Background(), docs, 2)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for i, d := range docs {
		if *d.Topic != snapshot[i] {
			t.Fatalf("doc %d topic changed: %+v vs %+v", i, *d.Topic, snapshot[i])
		}
	}
	a, b := first.Topics[LabelOf(Neutral)], second.Topics[LabelOf(Neutral)]
	if len(a.Frequencies) == 0 || !reflect.DeepEqual(a.Frequencies, b.Frequencies) {
		t.Fatalf("frequencies differ: %+v vs %+v", a.Frequencies, b.Frequencies)
	}
	if !reflect.DeepEqual(a.Attempts, b.Attempts) {
		t.Fatalf("attempts differ: %v vs %v", a.Attempts, b.Attempts)
	}
}
