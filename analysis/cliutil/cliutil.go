// Package cliutil holds the flag, config and logger plumbing shared by the loupe commands.
package cliutil

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

// StringList is a repeatable string flag. The first Set of a parse replaces the default values,
// later ones append.
type StringList struct {
	Values  *[]string
	touched bool
}

func (s *StringList) String() string {
	if s == nil || s.Values == nil {
		return ""
	}
	return strings.Join(*s.Values, ",")
}

func (s *StringList) Set(v string) error {
	if !s.touched {
		*s.Values = nil
		s.touched = true
	}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s.Values = append(*s.Values, part)
		}
	}
	return nil
}

// ConfigPath returns the value of -config (or --config) in args without parsing anything else.
func ConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if len(a)-len(name) < 1 || len(a)-len(name) > 2 {
			continue
		}
		switch {
		case name == "config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(name, "config="):
			return strings.TrimPrefix(name, "config=")
		}
	}
	return ""
}

// LoadConfig overlays the YAML file named by -config in args onto cfg. Flags registered
// afterwards with cfg's fields as defaults then win over the file.
func LoadConfig(args []string, cfg any) (string, error) {
	path := ConfigPath(args)
	if path == "" {
		return "", nil
	}
	if err := fileutils.LoadYAML(path, cfg); err != nil {
		return path, fmt.Errorf("load -config: %w", err)
	}
	return path, nil
}

// LoadDotEnv loads .env style files into the environment. Missing files are skipped and
// variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if !fileutils.FileExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewLogger builds a console logger at level, or a JSON production logger when jsonOut is set.
// Logs go to stderr.
func NewLogger(level string, jsonOut bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}
	var cfg zap.Config
	if jsonOut {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// FirstNonEmpty returns the first non-empty value, typically a flag followed by env vars.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseSeparator parses a single-character field separator; "tab" and `\t` mean a tab.
func ParseSeparator(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) || r == '"' || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("invalid separator %q", s)
	}
	return r, nil
}
