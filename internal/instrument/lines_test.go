package instrument

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.c")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func lineSet(lines ...uint32) LineSet {
	s := make(LineSet)
	for _, l := range lines {
		s.Add(l)
	}
	return s
}

func TestIndexLinesEmptySetSkipsFilesystem(t *testing.T) {
	lines, err := IndexLines("/definitely/not/here.c", nil)
	require.NoError(t, err)
	require.Equal(t, 0, lines.Len())

	lines, err = IndexLines("", lineSet())
	require.NoError(t, err)
	require.Equal(t, 0, lines.Len())
}

func TestIndexLinesKeepsOnlyRequired(t *testing.T) {
	path := writeSource(t, "one\r\ntwo\nthree\nfour")
	lines, err := IndexLines(path, lineSet(1, 4))
	require.NoError(t, err)
	require.Equal(t, 2, lines.Len())

	text, ok := lines.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "one", text)
	text, ok = lines.Lookup(4)
	require.True(t, ok)
	require.Equal(t, "four", text)
	_, ok = lines.Lookup(2)
	require.False(t, ok)
}

func TestIndexLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 200_000)
	path := writeSource(t, long+"\nint v = __VERIFIER_nondet_int();\n")
	lines, err := IndexLines(path, lineSet(2))
	require.NoError(t, err)
	text, _ := lines.Lookup(2)
	require.Equal(t, "int v = __VERIFIER_nondet_int();", text)
}

func TestIndexLinesErrors(t *testing.T) {
	_, err := IndexLines("  ", lineSet(3))
	require.ErrorIs(t, err, ErrNoSourcePath)

	_, err = IndexLines(filepath.Join(t.TempDir(), "missing.c"), lineSet(3))
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.ErrorIs(t, err, os.ErrNotExist)

	path := writeSource(t, "a\nb\n")
	_, err = IndexLines(path, lineSet(2, 7, 5))
	var trunc *TruncatedSourceError
	require.True(t, errors.As(err, &trunc))
	require.Equal(t, uint32(2), trunc.Lines)
	require.Equal(t, []uint32{5, 7}, trunc.Missing)
	require.Contains(t, err.Error(), "line 7")
}

func TestIndexLinesStripsBOM(t *testing.T) {
	path := writeSource(t, "\xef\xbb\xbfint x = __VERIFIER_nondet_int();\n\xe9t\xe9\n")
	lines, err := IndexLines(path, lineSet(1, 2))
	require.NoError(t, err)
	text, _ := lines.Lookup(1)
	require.Equal(t, "int x = __VERIFIER_nondet_int();", text)
	// Latin-1 без BOM не перекодируется
	text, _ = lines.Lookup(2)
	require.Equal(t, "\xe9t\xe9", text)
}
