package analysis

import (
	"fmt"
	"strings"
)

// Kind is one of the three base sentiment kinds a Classifier can emit.
type Kind uint8

const (
	Negative Kind = 1 << iota
	Neutral
	Positive
)

// Kinds lists the base kinds in label priority order.
var Kinds = []Kind{Negative, Neutral, Positive}

func (k Kind) String() string {
	switch k {
	case Negative:
		return "NEGATIVE"
	case Neutral:
		return "NEUTRAL"
	case Positive:
		return "POSITIVE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is exactly one base kind.
func (k Kind) Valid() bool {
	return k == Negative || k == Neutral || k == Positive
}

// ParseKind parses NEGATIVE/NEUTRAL/POSITIVE (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NEGATIVE":
		return Negative, nil
	case "NEUTRAL":
		return Neutral, nil
	case "POSITIVE":
		return Positive, nil
	}
	return 0, fmt.Errorf("ParseKind: unknown sentiment kind %q", s)
}

// Label is a non-empty set of kinds. Single kinds are plain labels; more than one kind is a
// composite produced by a vote tie. The zero Label means "not classified".
type Label uint8

// Labels is the fixed partition order used by the Partitioner.
var Labels = []Label{
	LabelOf(Positive),
	LabelOf(Neutral),
	LabelOf(Negative),
	LabelOf(Negative, Positive),
	LabelOf(Negative, Neutral),
	LabelOf(Neutral, Positive),
	LabelOf(Negative, Neutral, Positive),
}

// LabelOf builds the label containing the given kinds.
func LabelOf(kinds ...Kind) Label {
	var l Label
	for _, k := range kinds {
		l |= Label(k)
	}
	return l
}

// Valid reports whether l is one of the seven labels.
func (l Label) Valid() bool {
	return l > 0 && l <= Label(Negative|Neutral|Positive)
}

// Has reports whether kind k is part of the label.
func (l Label) Has(k Kind) bool {
	return l&Label(k) != 0
}

// Kinds returns the kinds present in the label in priority order.
func (l Label) Kinds() []Kind {
	out := make([]Kind, 0, len(Kinds))
	for _, k := range Kinds {
		if l.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Composite reports whether the label is a tie of more than one kind.
func (l Label) Composite() bool {
	return len(l.Kinds()) > 1
}

func (l Label) String() string {
	if !l.Valid() {
		return ""
	}
	kinds := l.Kinds()
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k.String()
	}
	return strings.Join(parts, "-")
}

// ParseLabel parses hyphen-joined kinds, e.g. "NEGATIVE-POSITIVE". Kind order in the input is not
// significant; the canonical rendering always follows priority order.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("ParseLabel: empty label")
	}
	var l Label
	for _, part := range strings.Split(s, "-") {
		k, err := ParseKind(part)
		if err != nil {
			return 0, fmt.Errorf("ParseLabel: %q: %w", s, err)
		}
		if l.Has(k) {
			return 0, fmt.Errorf("ParseLabel: %q repeats %s", s, k)
		}
		l |= Label(k)
	}
	return l, nil
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return []byte{}, nil
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = 0
		return nil
	}
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ChunkVote is one Classifier verdict for one span of text.
type ChunkVote struct {
	Kind       Kind    `json:"kind"`
	Confidence float64 `json:"confidence"`
}

func (v ChunkVote) validate() error {
	if !v.Kind.Valid() {
		return fmt.Errorf("invalid kind %s", v.Kind)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	return nil
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("Kind.MarshalText: invalid kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SentimentResult is the final verdict for one document. Scores holds the mean confidence of
// every kind in Label, in the same order as Label.Kinds().
type SentimentResult struct {
	Label  Label     `json:"label"`
	Scores []float64 `json:"scores"`
}
