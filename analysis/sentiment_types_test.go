package analysis

import (
	"encoding/json"
	"testing"
)

func TestLabelStringFollowsPriorityOrder(t *testing.T) {
	t.Parallel()

	cases := map[Label]string{
		LabelOf(Positive):                    "POSITIVE",
		LabelOf(Positive, Negative):          "NEGATIVE-POSITIVE",
		LabelOf(Positive, Neutral):           "NEUTRAL-POSITIVE",
		LabelOf(Neutral, Negative):           "NEGATIVE-NEUTRAL",
		LabelOf(Positive, Neutral, Negative): "NEGATIVE-NEUTRAL-POSITIVE",
		0:                                    "",
	}
	for l, want := range cases {
		if got := l.String(); got != want {
			t.Fatalf("String(%d)=%q want %q", uint8(l), got, want)
		}
	}
}

func TestParseLabel(t *testing.T) {
	t.Parallel()

	l, err := ParseLabel("positive-NEGATIVE")
	if err != nil {
		t.Fatalf("ParseLabel: %v", err)
	}
	if l != LabelOf(Negative, Positive) || !l.Composite() {
		t.Fatalf("label=%s", l)
	}
	for _, bad := range []string{"", "HAPPY", "NEGATIVE-NEGATIVE"} {
		if _, err := ParseLabel(bad); err == nil {
			t.Fatalf("ParseLabel(%q) expected error", bad)
		}
	}
}

func TestLabelsCoverEveryValidLabelOnce(t *testing.T) {
	t.Parallel()

	if len(Labels) != 7 {
		t.Fatalf("len(Labels)=%d", len(Labels))
	}
	seen := map[Label]bool{}
	for _, l := range Labels {
		if !l.Valid() || seen[l] {
			t.Fatalf("bad label %d", uint8(l))
		}
		seen[l] = true
	}
	if Labels[0] != LabelOf(Positive) || Labels[2] != LabelOf(Negative) {
		t.Fatalf("unexpected order: %v", Labels)
	}
}

func TestSentimentResultJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(SentimentResult{Label: LabelOf(Negative, Positive), Scores: []float64{0.9, 0.6}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"label":"NEGATIVE-POSITIVE","scores":[0.9,0.6]}` {
		t.Fatalf("json=%s", b)
	}
}
