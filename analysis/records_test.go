package analysis

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadRecordsCSVWithSeparatorAndKeep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reviews.csv")
	writeFile(t, path, "id;review;stars\n1;\"Loved it; would buy\";5\n2;Broke after a day;1\n")

	docs, err := ReadRecords(path, ReadOptions{TextColumn: "review", IDColumn: "id", Keep: []string{"stars"}, CSVSeparator: ';'})
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs)=%d", len(docs))
	}
	if docs[0].ID != "1" || docs[0].Text != "Loved it; would buy" {
		t.Fatalf("doc0=%+v", docs[0])
	}
	if v, ok := docs[1].Field("stars"); !ok || v != "1" {
		t.Fatalf("stars=%q ok=%v", v, ok)
	}
}

func TestReadRecordsJSONAndJSONLGzip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "a.json")
	writeFile(t, jsonPath, `[{"body":"fine","n":3},{"body":"great","n":4.5}]`)

	docs, err := ReadRecords(jsonPath, ReadOptions{TextColumn: "body", Keep: []string{"n"}})
	if err != nil {
		t.Fatalf("ReadRecords json: %v", err)
	}
	if len(docs) != 2 || docs[1].Text != "great" || docs[0].ID == "" {
		t.Fatalf("docs=%+v", docs)
	}
	if v, _ := docs[1].Field("n"); v != "4.5" {
		t.Fatalf("n=%q", v)
	}

	gzPath := filepath.Join(dir, "b.jsonl.gz")
	f, err := os.Create(gzPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte("{\"body\":\"<p>so <b>good</b></p>\"}\n\n{\"body\":\"meh\"}\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	docs, err = ReadRecords(gzPath, ReadOptions{TextColumn: "body", StripHTML: true})
	if err != nil {
		t.Fatalf("ReadRecords jsonl.gz: %v", err)
	}
	if len(docs) != 2 || docs[0].Text != "so good" {
		t.Fatalf("docs=%+v", docs)
	}

	// Directory input reads every record file in name order.
	all, err := ReadRecords(dir, ReadOptions{TextColumn: "body"})
	if err != nil {
		t.Fatalf("ReadRecords dir: %v", err)
	}
	if len(all) != 4 || all[0].Text != "fine" {
		t.Fatalf("all=%d first=%q", len(all), all[0].Text)
	}
}

func TestReadRecordsNonStringText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "n.jsonl")
	writeFile(t, path, "{\"body\":42}\n{\"body\":null}\n")

	if _, err := ReadRecords(path, ReadOptions{TextColumn: "body"}); !errors.Is(err, ErrNonStringText) {
		t.Fatalf("err=%v", err)
	}
	docs, err := ReadRecords(path, ReadOptions{TextColumn: "body", ConvertToString: true})
	if err != nil {
		t.Fatalf("ReadRecords convert: %v", err)
	}
	if docs[0].Text != "42" || docs[1].Text != "" {
		t.Fatalf("texts=%q,%q", docs[0].Text, docs[1].Text)
	}
}

func TestReadRecordsErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xlsx := filepath.Join(dir, "book.xlsx")
	writeFile(t, xlsx, "x")
	if _, err := ReadRecords(xlsx, ReadOptions{TextColumn: "t"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}

	csvPath := filepath.Join(dir, "r.tsv")
	writeFile(t, csvPath, "a\tb\nx\ty\n")
	if _, err := ReadRecords(csvPath, ReadOptions{TextColumn: "missing"}); err == nil {
		t.Fatalf("expected missing text column error")
	}
	if _, err := ReadRecords(csvPath, ReadOptions{TextColumn: "a", Keep: []string{"zzz"}}); err == nil {
		t.Fatalf("expected missing keep column error")
	}
	if _, err := ReadRecords(csvPath, ReadOptions{}); err == nil {
		t.Fatalf("expected empty text column error")
	}
}

func TestReadRecordsRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dupes.csv")
	writeFile(t, path, "id,text\n7,great phone\n7,awful battery\n")
	if _, err := ReadRecords(path, ReadOptions{TextColumn: "text", IDColumn: "id"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err=%v", err)
	}

	// Ids must be unique across the files of a directory too.
	both := t.TempDir()
	writeFile(t, filepath.Join(both, "a.csv"), "id,text\n1,fine\n")
	writeFile(t, filepath.Join(both, "b.jsonl"), `{"id":1,"text":"also fine"}`+"\n")
	if _, err := ReadRecords(both, ReadOptions{TextColumn: "text", IDColumn: "id"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("dir err=%v", err)
	}

	// Blank ids are generated and never collide.
	blank := filepath.Join(dir, "blank.csv")
	writeFile(t, blank, "id,text\n,one\n,two\n")
	docs, err := ReadRecords(blank, ReadOptions{TextColumn: "text", IDColumn: "id"})
	if err != nil || len(docs) != 2 || docs[0].ID == docs[1].ID {
		t.Fatalf("docs=%+v err=%v", docs, err)
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want Format
	}{
		{"a.csv", FormatCSV},
		{"A.TSV", FormatTSV},
		{"x/y.json.gz", FormatJSON},
		{"z.ndjson", FormatJSONL},
		{"reviews.jsonl", FormatJSONL},
	}
	for _, tc := range cases {
		got, _, err := DetectFormat(tc.path)
		if err != nil || got != tc.want {
			t.Fatalf("DetectFormat(%q)=%q,%v want %q", tc.path, got, err, tc.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"<div>Hello <i>there</i></div>", "Hello there"},
		{"fish &amp; chips", "fish & chips"},
		{"<style>p{}</style><p>ok</p><script>x</script>", "ok"},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Fatalf("StripHTML(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
