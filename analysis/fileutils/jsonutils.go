package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoJSON is returned when a model reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model reply")

// DecodeModelJSON unmarshals the first JSON object of a model reply into v. Code fences and prose
// around the object are ignored.
func DecodeModelJSON(reply string, v any) error {
	body := strings.TrimSpace(reply)
	if body == "" {
		return io.ErrUnexpectedEOF
	}
	obj, ok := firstObject(body)
	if !ok {
		return fmt.Errorf("DecodeModelJSON: %w: %q", ErrNoJSON, Truncate(body, 80))
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("DecodeModelJSON: object of %d bytes: %w", len(obj), err)
	}
	return nil
}

// firstObject returns the first balanced {...} span of s. Braces inside JSON strings do not count.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
