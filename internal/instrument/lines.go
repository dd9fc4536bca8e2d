package instrument

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrNoSourcePath: sites need names but no source file was configured.
	ErrNoSourcePath = errors.New("no source path configured")
	// ErrSourceUnavailable wraps the OS error from opening the source file.
	ErrSourceUnavailable = errors.New("source file unavailable")
)

// TruncatedSourceError reports debug lines past the end of the source file.
type TruncatedSourceError struct {
	Path    string
	Lines   uint32 // lines actually present
	Missing []uint32
}

func (e *TruncatedSourceError) Error() string {
	return fmt.Sprintf("%s has %d lines, debug info refers to line %d", e.Path, e.Lines, e.Missing[len(e.Missing)-1])
}

// LineSet is the set of 1-based source lines the pass needs.
type LineSet map[uint32]struct{}

func (s LineSet) Add(line uint32) {
	if line != 0 {
		s[line] = struct{}{}
	}
}

// Sorted returns the lines in ascending order.
func (s LineSet) Sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SourceLines holds the text of the requested lines, without terminators.
type SourceLines struct {
	lines map[uint32]string
}

// Lookup returns the text of a 1-based line.
func (s SourceLines) Lookup(line uint32) (string, bool) {
	text, ok := s.lines[line]
	return text, ok
}

func (s SourceLines) Len() int { return len(s.lines) }

// IndexLines reads path once and keeps only the lines in required.
// An empty required set never touches the filesystem.
func IndexLines(path string, required LineSet) (_ SourceLines, err error) {
	if len(required) == 0 {
		return SourceLines{}, nil
	}
	if strings.TrimSpace(path) == "" {
		return SourceLines{}, fmt.Errorf("%w: %d call sites need source lines", ErrNoSourcePath, len(required))
	}
	f, err := os.Open(path)
	if err != nil {
		return SourceLines{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, closeErr)
		}
	}()

	lines, total, err := collectLines(f, required)
	if err != nil {
		return SourceLines{}, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, path, err)
	}
	if len(lines) < len(required) {
		missing := make([]uint32, 0, len(required)-len(lines))
		for _, l := range required.Sorted() {
			if _, ok := lines[l]; !ok {
				missing = append(missing, l)
			}
		}
		return SourceLines{}, &TruncatedSourceError{Path: path, Lines: total, Missing: missing}
	}
	return SourceLines{lines: lines}, nil
}

// collectLines streams r and returns the wanted lines plus the line count
// seen. It stops early once every wanted line has been found.
func collectLines(r io.Reader, required LineSet) (map[uint32]string, uint32, error) {
	var maxLine uint32
	for l := range required {
		if l > maxLine {
			maxLine = l
		}
	}
	out := make(map[uint32]string, len(required))
	// BOM от редакторов под Windows не должен попасть в первую строку;
	// без BOM байты идут как есть
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	var n uint32
	for n < maxLine {
		text, err := br.ReadString('\n')
		if text == "" && errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, n, err
		}
		n++
		if _, ok := required[n]; ok {
			text = strings.TrimSuffix(text, "\n")
			out[n] = strings.TrimSuffix(text, "\r")
		}
		if err != nil {
			break
		}
	}
	return out, n, nil
}
