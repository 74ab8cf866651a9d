package corpus

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrLineCountMismatch = errors.New("annotation files have different line counts")
	ErrMalformedLine     = errors.New("malformed transcript line")
)

// Header - leading "<id> <start> <end>" of a timed transcript line.
type Header struct {
	ID      string
	Start   float64
	End     float64
	Payload string
}

// ParseHeader splits "<id> <start> <end> <payload>" on single spaces. The
// payload is everything after the third separator and may be empty.
func ParseHeader(line string) (Header, error) {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) != 4 {
		return Header{}, fmt.Errorf("%q: want <id> <start> <end> <text>: %w", line, ErrMalformedLine)
	}

	start, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Header{}, fmt.Errorf("%q: start: %w", line, ErrMalformedLine)
	}
	end, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Header{}, fmt.Errorf("%q: end: %w", line, ErrMalformedLine)
	}

	return Header{ID: parts[0], Start: start, End: end, Payload: parts[3]}, nil
}

// readLines returns the file split on "\n". One trailing newline does not
// produce an extra empty line; "\r" line endings are stripped.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}

// normalizeText trims and optionally folds to NFKC, which maps full-width
// latin and half-width kana to their canonical forms.
func normalizeText(s string, nfkc bool) string {
	s = strings.TrimSpace(s)
	if nfkc {
		s = norm.NFKC.String(s)
	}
	return s
}
