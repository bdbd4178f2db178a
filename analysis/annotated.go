package analysis

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

// WriteAnnotated stores classified documents as JSON lines, one Document per line.
func WriteAnnotated(path string, docs []*Document) error {
	err := fileutils.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("%q: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("WriteAnnotated: %w", err)
	}
	return nil
}

// ReadAnnotated loads documents written by WriteAnnotated.
func ReadAnnotated(path string) ([]*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadAnnotated: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var docs []*Document
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("ReadAnnotated: line %d: %w", line, err)
		}
		docs = append(docs, &d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ReadAnnotated: %w", err)
	}
	return docs, nil
}

// AnalysisFile is the name SaveAnalysis output conventionally gets inside a run directory.
const AnalysisFile = "analysis.json"

type savedAnalysis struct {
	Manifest  *RunManifest   `json:"manifest"`
	Summary   []Field        `json:"summary,omitempty"`
	Topics    []*TopicResult `json:"topics"`
	Documents []*Document    `json:"documents"`
}

// SaveAnalysis stores a so that a later stage can write reports or persist it without refitting.
// Fitted models are not saved.
func SaveAnalysis(path string, a *Analysis) error {
	if a == nil || a.Result == nil || a.Manifest == nil {
		return fmt.Errorf("SaveAnalysis: incomplete analysis")
	}
	s := savedAnalysis{Manifest: a.Manifest, Summary: a.Summary, Documents: a.Result.All}
	for _, l := range a.Result.Present() {
		s.Topics = append(s.Topics, a.Result.Topics[l])
	}
	if err := fileutils.WriteJSONFileAtomic(path, s, false); err != nil {
		return fmt.Errorf("SaveAnalysis: %w", err)
	}
	return nil
}

// LoadAnalysis reads a file written by SaveAnalysis.
func LoadAnalysis(path string) (*Analysis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadAnalysis: %w", err)
	}
	var s savedAnalysis
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("LoadAnalysis: %w", err)
	}
	if s.Manifest == nil {
		return nil, fmt.Errorf("LoadAnalysis: %s has no manifest", path)
	}
	parts, err := Partition(s.Documents)
	if err != nil {
		return nil, fmt.Errorf("LoadAnalysis: %w", err)
	}
	res := &PartitionResult{
		Topics:     make(map[Label]*TopicResult, len(s.Topics)),
		Partitions: parts,
	}
	for _, tr := range s.Topics {
		if _, ok := parts[tr.Label]; !ok {
			return nil, fmt.Errorf("LoadAnalysis: topics for %s without documents", tr.Label)
		}
		res.Topics[tr.Label] = tr
	}
	for _, l := range Labels {
		if _, ok := parts[l]; !ok {
			continue
		}
		if _, ok := res.Topics[l]; !ok {
			return nil, fmt.Errorf("LoadAnalysis: no topics for %s", l)
		}
		res.All = append(res.All, parts[l]...)
	}
	return &Analysis{Result: res, Summary: s.Summary, Manifest: s.Manifest}, nil
}
