package fileutils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "run.json")
	if err := WriteJSONFileAtomic(path, map[string]int{"documents": 3}, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "{\"documents\":3}\n" {
		t.Fatalf("content=%q", string(b))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriteAtomicKeepsOldFileOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "Texts.csv")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	err := WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "old\n" {
		t.Fatalf("content=%q", string(b))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  hello  ", 10); got != "hello" {
		t.Fatalf("Truncate=%q", got)
	}
	if got := Truncate("hello world", 5); got != "hello…" {
		t.Fatalf("Truncate=%q", got)
	}
	// "é" is two bytes; cutting at 2 must not split it.
	if got := Truncate("aé", 2); got != "a…" {
		t.Fatalf("Truncate=%q", got)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := DecodeModelJSON("```json\n{\"label\":\"NEGATIVE\",\"confidence\":0.8}\n```", &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Label != "NEGATIVE" || out.Confidence != 0.8 {
		t.Fatalf("out=%+v", out)
	}
	if err := DecodeModelJSON("   ", &out); err == nil {
		t.Fatalf("expected error for empty output")
	}
	if err := DecodeModelJSON("no json here", &out); !errors.Is(err, ErrNoJSON) || !strings.Contains(err.Error(), "no JSON object") {
		t.Fatalf("err=%v", err)
	}
	if err := DecodeModelJSON(`Sure: {"label":"POSITIVE {x}","confidence":0.6} and {"label":"NEUTRAL"}`, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Label != "POSITIVE {x}" || out.Confidence != 0.6 {
		t.Fatalf("out=%+v", out)
	}
	if err := DecodeModelJSON(`{"label":"unterminated`, &out); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	type cfg struct {
		Model     string   `yaml:"model"`
		ChunkSize int      `yaml:"chunk_size"`
		Keep      []string `yaml:"keep"`
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("model: onnx\nchunk_size: 256\nkeep: [stars, product]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := cfg{Model: "default"}
	if err := LoadYAML(path, &c); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if c.Model != "onnx" || c.ChunkSize != 256 || len(c.Keep) != 2 {
		t.Fatalf("cfg=%+v", c)
	}

	if err := os.WriteFile(path, []byte("modle: typo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadYAML(path, &c); err == nil {
		t.Fatalf("expected unknown field error")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadYAML(empty, &c); err != nil {
		t.Fatalf("empty: %v", err)
	}
}
