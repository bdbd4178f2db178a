package analysis

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

// Column names produced by the pipeline in addition to the caller's kept columns.
const (
	ColumnText             = "text"
	ColumnEmotion          = "emotion"
	ColumnEmotionScore     = "emotion_score"
	ColumnTopic            = "topic"
	ColumnTopicProbability = "probability_topic"
)

// OutputSeparator is the field separator of every CSV the pipeline writes.
const OutputSeparator = ';'

// SummaryOptions selects the aggregate columns of Summarize.
type SummaryOptions struct {
	Title string

	// GroupColumns are counted per distinct value (amount_of_<value>).
	GroupColumns []string

	// MeanColumns and SumColumns must hold numbers; empty cells are skipped.
	MeanColumns []string
	SumColumns  []string
}

// Summarize builds the one-row summary table of a classified collection.
func Summarize(docs []*Document, opts SummaryOptions) ([]Field, error) {
	out := []Field{{Name: "Title", Value: opts.Title}}

	for _, col := range opts.GroupColumns {
		counts := make(map[string]int)
		for _, d := range docs {
			v, err := columnValue(d, col)
			if err != nil {
				return nil, fmt.Errorf("Summarize: %w", err)
			}
			counts[v]++
		}
		values := make([]string, 0, len(counts))
		for v := range counts {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool {
			if counts[values[i]] != counts[values[j]] {
				return counts[values[i]] > counts[values[j]]
			}
			return values[i] < values[j]
		})
		for _, v := range values {
			out = append(out, Field{Name: "amount_of_" + v, Value: strconv.Itoa(counts[v])})
		}
	}

	for _, col := range opts.MeanColumns {
		sum, n, err := numericColumn(docs, col)
		if err != nil {
			return nil, fmt.Errorf("Summarize: %w", err)
		}
		v := ""
		if n > 0 {
			v = formatFloat(sum / float64(n))
		}
		out = append(out, Field{Name: "average_" + col, Value: v})
	}
	for _, col := range opts.SumColumns {
		sum, _, err := numericColumn(docs, col)
		if err != nil {
			return nil, fmt.Errorf("Summarize: %w", err)
		}
		out = append(out, Field{Name: "count_" + col, Value: formatFloat(sum)})
	}

	out = append(out, Field{Name: "Number of texts", Value: strconv.Itoa(len(docs))})
	return out, nil
}

func columnValue(d *Document, col string) (string, error) {
	switch col {
	case ColumnText:
		return d.Text, nil
	case ColumnEmotion:
		return d.Sentiment.Label.String(), nil
	}
	v, ok := d.Field(col)
	if !ok {
		return "", fmt.Errorf("document %q has no column %q", d.ID, col)
	}
	return v, nil
}

func numericColumn(docs []*Document, col string) (float64, int, error) {
	var sum float64
	var n int
	for _, d := range docs {
		raw, err := columnValue(d, col)
		if err != nil {
			return 0, 0, err
		}
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("column %q: document %q: %w", col, d.ID, err)
		}
		sum += f
		n++
	}
	return sum, n, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func formatScores(scores []float64) string {
	b, err := json.Marshal(scores)
	if err != nil {
		return ""
	}
	return string(b)
}

// TopicColumn renders a document's topic as LABEL_topicid.
func TopicColumn(d *Document) string {
	if d.Topic == nil {
		return ""
	}
	return d.Sentiment.Label.String() + "_" + strconv.Itoa(d.Topic.TopicID)
}

// RunManifest describes one pipeline run.
type RunManifest struct {
	RunID     string           `json:"run_id"`
	CreatedAt string           `json:"created_at"`
	Documents int              `json:"documents"`
	Labels    []*LabelManifest `json:"labels"`
}

// LabelManifest is the discovery outcome of one label in a RunManifest.
type LabelManifest struct {
	Label        Label  `json:"label"`
	Documents    int    `json:"documents"`
	Topics       int    `json:"topics"`
	MinTopicSize int    `json:"min_topic_size"`
	Attempts     []int  `json:"attempts"`
	Degenerate   bool   `json:"degenerate"`
	ProbeError   string `json:"probe_error,omitempty"`
}

// NewRunManifest summarizes res for run.json.
func NewRunManifest(runID string, res *PartitionResult, now time.Time) *RunManifest {
	m := &RunManifest{RunID: runID, CreatedAt: now.UTC().Format(time.RFC3339), Documents: len(res.All)}
	for _, l := range res.Present() {
		tr := res.Topics[l]
		m.Labels = append(m.Labels, &LabelManifest{
			Label:        l,
			Documents:    len(res.Partitions[l]),
			Topics:       len(tr.Frequencies),
			MinTopicSize: tr.MinTopicSize,
			Attempts:     tr.Attempts,
			Degenerate:   tr.Degenerate,
			ProbeError:   tr.ProbeError,
		})
	}
	return m
}

// OutputOptions configures WriteOutputs.
type OutputOptions struct {
	// Keep lists the metadata columns written to Texts.csv, after the sentiment columns.
	Keep []string

	// Summary is written to Summary.csv when non-nil.
	Summary []Field

	Manifest *RunManifest
}

// Output file names inside the output directory.
const (
	TextsFile    = "Texts.csv"
	SummaryFile  = "Summary.csv"
	ManifestFile = "run.json"
)

// WriteOutputs writes Texts.csv, Summary.csv, one <LABEL>.csv topic table per present label and
// run.json into dir. Every file is replaced atomically.
func WriteOutputs(dir string, res *PartitionResult, opts OutputOptions) error {
	if res == nil {
		return errors.New("WriteOutputs: result is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteOutputs: mkdir: %w", err)
	}

	header := []string{ColumnText, ColumnEmotion, ColumnEmotionScore}
	header = append(header, opts.Keep...)
	header = append(header, ColumnTopic, ColumnTopicProbability)
	rows := [][]string{header}
	for _, d := range res.All {
		row := []string{d.Text, d.Sentiment.Label.String(), formatScores(d.Sentiment.Scores)}
		for _, k := range opts.Keep {
			v, _ := d.Field(k)
			row = append(row, v)
		}
		prob := ""
		if d.Topic != nil {
			prob = formatFloat(d.Topic.Probability)
		}
		row = append(row, TopicColumn(d), prob)
		rows = append(rows, row)
	}
	if err := writeCSV(filepath.Join(dir, TextsFile), rows); err != nil {
		return fmt.Errorf("WriteOutputs: %s: %w", TextsFile, err)
	}

	if opts.Summary != nil {
		names := make([]string, len(opts.Summary))
		values := make([]string, len(opts.Summary))
		for i, f := range opts.Summary {
			names[i], values[i] = f.Name, f.Value
		}
		if err := writeCSV(filepath.Join(dir, SummaryFile), [][]string{names, values}); err != nil {
			return fmt.Errorf("WriteOutputs: %s: %w", SummaryFile, err)
		}
	}

	for _, l := range res.Present() {
		tr := res.Topics[l]
		rows := [][]string{{"Topic", "Count", "Main Words", "c-TF-IDF score"}}
		for _, f := range tr.Frequencies {
			rows = append(rows, []string{strconv.Itoa(f.TopicID), strconv.Itoa(f.Count), f.MainWords, f.TermScores})
		}
		if len(tr.Frequencies) == 0 {
			rows = append(rows, []string{"Could not find topics for " + l.String(), "", "", ""})
		}
		name := l.String() + ".csv"
		if err := writeCSV(filepath.Join(dir, name), rows); err != nil {
			return fmt.Errorf("WriteOutputs: %s: %w", name, err)
		}
	}

	if opts.Manifest != nil {
		if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, ManifestFile), opts.Manifest, true); err != nil {
			return fmt.Errorf("WriteOutputs: %s: %w", ManifestFile, err)
		}
	}
	return nil
}

func writeCSV(path string, rows [][]string) error {
	return fileutils.WriteAtomic(path, 0o644, func(out io.Writer) error {
		w := csv.NewWriter(out)
		w.Comma = OutputSeparator
		return w.WriteAll(rows)
	})
}
