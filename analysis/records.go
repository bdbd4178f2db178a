package analysis

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned for input files whose suffix is not a known record format.
var ErrUnsupportedFormat = errors.New("unsupported input format (want csv, tsv, json, jsonl, optionally .gz)")

// ErrNonStringText is returned when a record's text is not a string and conversion was not requested.
var ErrNonStringText = errors.New("record text is not a string")

// ErrDuplicateID is returned when two documents share an id. Ids key stored results, so a
// duplicate would silently overwrite an earlier document.
var ErrDuplicateID = errors.New("duplicate document id")

// Format is a record file layout.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// DetectFormat infers the format from path's suffixes; a trailing .gz marks gzip compression.
func DetectFormat(path string) (Format, bool, error) {
	name := strings.ToLower(filepath.Base(path))
	gz := false
	if strings.HasSuffix(name, ".gz") {
		gz = true
		name = strings.TrimSuffix(name, ".gz")
	}
	switch filepath.Ext(name) {
	case ".csv":
		return FormatCSV, gz, nil
	case ".tsv":
		return FormatTSV, gz, nil
	case ".json":
		return FormatJSON, gz, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, gz, nil
	}
	return "", false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadOptions controls record ingestion.
type ReadOptions struct {
	TextColumn string

	// IDColumn names a column holding document ids. Without it ids are generated.
	IDColumn string

	// Keep lists metadata columns carried on every Document. Missing columns are an error.
	Keep []string

	// CSVSeparator is the field separator of .csv files (defaults to ',').
	CSVSeparator rune

	// ConvertToString renders non-string text values instead of failing.
	ConvertToString bool

	StripHTML bool
}

// CollectInputFiles returns path itself when it is a file, or the sorted record files directly
// inside it when it is a directory.
func CollectInputFiles(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("CollectInputFiles: stat: %w", err)
	}
	if !fi.IsDir() {
		if _, _, err := DetectFormat(path); err != nil {
			return nil, fmt.Errorf("CollectInputFiles: %w", err)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("CollectInputFiles: read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, _, err := DetectFormat(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("CollectInputFiles: entry info %s: %w", e.Name(), err)
		}
		if info.Mode()&fs.ModeType != 0 {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("CollectInputFiles: no record files in %s", path)
	}
	return files, nil
}

// ReadRecords loads documents from a record file or a directory of record files.
func ReadRecords(path string, opts ReadOptions) ([]*Document, error) {
	if strings.TrimSpace(opts.TextColumn) == "" {
		return nil, errors.New("ReadRecords: text column is empty")
	}
	files, err := CollectInputFiles(path)
	if err != nil {
		return nil, err
	}
	var docs []*Document
	for _, f := range files {
		d, err := readRecordFile(f, opts)
		if err != nil {
			return nil, fmt.Errorf("ReadRecords: %s: %w", f, err)
		}
		docs = append(docs, d...)
	}
	if err := CheckUniqueIDs(docs); err != nil {
		return nil, fmt.Errorf("ReadRecords: %w", err)
	}
	return docs, nil
}

// CheckUniqueIDs fails with ErrDuplicateID on the first id seen twice.
func CheckUniqueIDs(docs []*Document) error {
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		if first, ok := seen[d.ID]; ok {
			return fmt.Errorf("%w: %q (documents %d and %d)", ErrDuplicateID, d.ID, first, i)
		}
		seen[d.ID] = i
	}
	return nil
}

func readRecordFile(path string, opts ReadOptions) ([]*Document, error) {
	format, gz, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if gz {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	switch format {
	case FormatCSV:
		sep := opts.CSVSeparator
		if sep == 0 {
			sep = ','
		}
		return readDelimited(r, sep, opts)
	case FormatTSV:
		return readDelimited(r, '\t', opts)
	case FormatJSON:
		var rows []map[string]any
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		return docsFromObjects(rows, opts)
	default:
		return readJSONLines(r, opts)
	}
}

func readDelimited(r io.Reader, sep rune, opts ReadOptions) ([]*Document, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	textIdx, ok := col[opts.TextColumn]
	if !ok {
		return nil, fmt.Errorf("text column %q not found", opts.TextColumn)
	}
	for _, k := range opts.Keep {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("column %q not found", k)
		}
	}
	if opts.IDColumn != "" {
		if _, ok := col[opts.IDColumn]; !ok {
			return nil, fmt.Errorf("id column %q not found", opts.IDColumn)
		}
	}

	cell := func(rec []string, name string) string {
		i := col[name]
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var docs []*Document
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		var text string
		if textIdx < len(rec) {
			text = rec[textIdx]
		}
		// An empty cell is a missing value, not a string.
		if text == "" && !opts.ConvertToString {
			return nil, fmt.Errorf("row %d: %w", row, ErrNonStringText)
		}
		d := &Document{Text: text}
		if opts.IDColumn != "" {
			d.ID = cell(rec, opts.IDColumn)
		}
		for _, k := range opts.Keep {
			d.Fields = append(d.Fields, Field{Name: k, Value: cell(rec, k)})
		}
		docs = append(docs, finishDocument(d, opts))
	}
	return docs, nil
}

func readJSONLines(r io.Reader, opts ReadOptions) ([]*Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var rows []map[string]any
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var m map[string]any
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docsFromObjects(rows, opts)
}

func docsFromObjects(rows []map[string]any, opts ReadOptions) ([]*Document, error) {
	docs := make([]*Document, 0, len(rows))
	for i, row := range rows {
		raw, ok := row[opts.TextColumn]
		if !ok {
			return nil, fmt.Errorf("record %d: text column %q not found", i, opts.TextColumn)
		}
		text, isString := raw.(string)
		if !isString {
			if !opts.ConvertToString {
				return nil, fmt.Errorf("record %d: %w (got %T)", i, ErrNonStringText, raw)
			}
			text = renderValue(raw)
		}
		d := &Document{Text: text}
		if opts.IDColumn != "" {
			d.ID = renderValue(row[opts.IDColumn])
		}
		for _, k := range opts.Keep {
			v, ok := row[k]
			if !ok {
				return nil, fmt.Errorf("record %d: column %q not found", i, k)
			}
			d.Fields = append(d.Fields, Field{Name: k, Value: renderValue(v)})
		}
		docs = append(docs, finishDocument(d, opts))
	}
	return docs, nil
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func finishDocument(d *Document, opts ReadOptions) *Document {
	if opts.StripHTML {
		d.Text = StripHTML(d.Text)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return d
}
