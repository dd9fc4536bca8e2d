package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"nondetify/internal/diag"
	"nondetify/internal/instrument"
)

func withoutColor(t *testing.T) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
}

func TestSiteTableAlignsWideNames(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	printSiteRecords(&buf, []instrument.SiteRecord{
		{ID: 1, Kind: "producer", Name: "main:счётчик:4", Callee: "__VERIFIER_nondet_int", Global: ".nondet.name.1"},
		{ID: 12, Kind: "allocator", Name: "main:dynalloc:6", Callee: "malloc", Global: ".dynalloc.name.12"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	// CALLEE column starts at the same display column on every row
	col := func(line, cell string) int {
		idx := strings.Index(line, cell)
		if idx < 0 {
			t.Fatalf("%q not in %q", cell, line)
		}
		return len([]rune(line[:idx]))
	}
	want := col(lines[0], "CALLEE")
	if got := col(lines[1], "__VERIFIER_nondet_int"); got != want {
		t.Errorf("row 1 callee at %d, want %d", got, want)
	}
	if got := col(lines[2], "malloc"); got != want {
		t.Errorf("row 2 callee at %d, want %d", got, want)
	}
}

func TestTableTruncatesLongCells(t *testing.T) {
	withoutColor(t)
	tb := &table{header: []string{"A", "B"}}
	tb.add(strings.Repeat("x", 100), "y")
	if w := len([]rune(tb.rows[0][0])); w != maxCell {
		t.Fatalf("cell width = %d, want %d", w, maxCell)
	}
}

func TestPrintDiagnosticsQuietDropsInfo(t *testing.T) {
	withoutColor(t)
	bag := diag.NewBag(8)
	bag.Add(diag.Diagnostic{Severity: diag.SevInfo, Code: diag.NameNoDebugLoc, Message: "no dbg", Primary: diag.Location{Func: "f"}})
	bag.Add(diag.Diagnostic{Severity: diag.SevWarning, Code: diag.SiteVoidProducer, Message: "void", Primary: diag.Location{Func: "f", Line: 3}})

	var buf bytes.Buffer
	printDiagnostics(&buf, bag, true)
	if got := buf.String(); got != "@f:3: warning[NDT2001]: void\n" {
		t.Fatalf("quiet output = %q", got)
	}
}
