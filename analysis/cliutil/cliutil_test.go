package cliutil

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestStringListReplacesDefaultsThenAppends(t *testing.T) {
	t.Parallel()

	vals := []string{"emotion"}
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	fs.Var(&StringList{Values: &vals}, "count", "")
	if err := fs.Parse([]string{"-count", "stars", "-count", "country, city"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(vals) != 3 || vals[0] != "stars" || vals[2] != "city" {
		t.Fatalf("vals=%v", vals)
	}

	untouched := []string{"emotion"}
	fs = flag.NewFlagSet("y", flag.ContinueOnError)
	fs.Var(&StringList{Values: &untouched}, "count", "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(untouched) != 1 {
		t.Fatalf("untouched=%v", untouched)
	}
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args []string
		want string
	}{
		{[]string{"-in", "x.csv", "-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config=b.yaml"}, "b.yaml"},
		{[]string{"-config"}, ""},
		{[]string{"--", "-config", "c.yaml"}, ""},
		{[]string{"-in", "x.csv"}, ""},
	}
	for _, tc := range cases {
		if got := ConfigPath(tc.args); got != tc.want {
			t.Fatalf("ConfigPath(%v)=%q, want %q", tc.args, got, tc.want)
		}
	}
}

type testConfig struct {
	Model string   `yaml:"model"`
	Keep  []string `yaml:"keep"`
}

func TestLoadConfigOverlay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "loupe.yaml")
	if err := os.WriteFile(p, []byte("model: gpt-5-mini\nkeep: [stars]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := testConfig{Model: "default"}
	got, err := LoadConfig([]string{"-config", p}, &cfg)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != p || cfg.Model != "gpt-5-mini" || len(cfg.Keep) != 1 {
		t.Fatalf("path=%q cfg=%+v", got, cfg)
	}

	if err := os.WriteFile(p, []byte("modle: typo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig([]string{"-config", p}, &cfg); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("debug", true); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, err := NewLogger("loud", false); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	if got := FirstNonEmpty("", "env", "other"); got != "env" {
		t.Fatalf("got=%q", got)
	}
}

func TestParseSeparator(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want rune
		ok   bool
	}{
		{"", ',', true},
		{";", ';', true},
		{"tab", '\t', true},
		{`\t`, '\t', true},
		{"|", '|', true},
		{";;", 0, false},
		{`"`, 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSeparator(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseSeparator(%q)=%q err=%v", tc.in, got, err)
		}
	}
}
