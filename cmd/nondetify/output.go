package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"nondetify/internal/diag"
	"nondetify/internal/driver"
	"nondetify/internal/instrument"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.Bold)
	okColor      = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

// maxCell caps table cells; recovered names come from arbitrary source text.
const maxCell = 48

func severityLabel(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return errorColor.Sprint(sev.String())
	case diag.SevWarning:
		return warningColor.Sprint(sev.String())
	default:
		return infoColor.Sprint(sev.String())
	}
}

func printDiagnostics(out io.Writer, bag *diag.Bag, quiet bool) {
	if bag == nil {
		return
	}
	bag.Sort()
	for _, d := range bag.Items() {
		if quiet && d.Severity < diag.SevWarning {
			continue
		}
		fmt.Fprintf(out, "%s: %s[%s]: %s\n", d.Primary, severityLabel(d.Severity), d.Code.ID(), d.Message)
	}
}

type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	for i, c := range cells {
		if runewidth.StringWidth(c) > maxCell {
			cells[i] = runewidth.Truncate(c, maxCell, "…")
		}
	}
	t.rows = append(t.rows, cells)
}

func (t *table) render(out io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if w := runewidth.StringWidth(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	line := func(cells []string, paint func(a ...interface{}) string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				parts[i] = c
				continue
			}
			parts[i] = runewidth.FillRight(c, widths[i])
		}
		text := strings.Join(parts, "  ")
		if paint != nil {
			text = paint(text)
		}
		fmt.Fprintln(out, text)
	}
	line(t.header, headerColor.Sprint)
	for _, row := range t.rows {
		line(row, nil)
	}
}

func printSiteRecords(out io.Writer, sites []instrument.SiteRecord) {
	if len(sites) == 0 {
		return
	}
	t := &table{header: []string{"ID", "KIND", "NAME", "CALLEE", "GLOBAL"}}
	for _, s := range sites {
		t.add(strconv.FormatUint(uint64(s.ID), 10), s.Kind, s.Name, s.Callee, "@"+s.Global)
	}
	t.render(out)
}

func printDiscovery(out io.Writer, d *instrument.Discovery) {
	if d == nil || d.Empty() {
		return
	}
	t := &table{header: []string{"KIND", "FUNC", "LINE", "CALLEE"}}
	for _, group := range [][]instrument.CallSite{d.Producers, d.Allocators} {
		for _, s := range group {
			line := "?"
			if s.Line != 0 {
				line = strconv.FormatUint(uint64(s.Line), 10)
			}
			t.add(s.Category.String(), s.Func.Name(), line, s.Callee.Name())
		}
	}
	t.render(out)
}

func printOutcomeHeader(out io.Writer, o *driver.Outcome) {
	switch {
	case o.Err != nil:
		fmt.Fprintf(out, "%s %s\n", errorColor.Sprint("failed"), o.Unit.IR)
	case o.Result != nil && o.Result.Changed:
		fmt.Fprintf(out, "%s %s → %s\n", okColor.Sprint("instrumented"), o.Unit.IR, o.Unit.Output)
	case o.Result != nil:
		fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("unchanged"), o.Unit.IR)
	default:
		fmt.Fprintf(out, "%s %s\n", headerColor.Sprint("scanned"), o.Unit.IR)
	}
}

func printSummary(out io.Writer, t driver.Totals) {
	msg := fmt.Sprintf("%d module(s), %d changed, %d producer site(s), %d allocator site(s)", t.Units, t.Changed, t.Producers, t.Allocators)
	if t.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", t.Skipped)
	}
	if t.Failed > 0 {
		fmt.Fprintln(out, errorColor.Sprint(msg+fmt.Sprintf(", %d failed", t.Failed)))
		return
	}
	fmt.Fprintln(out, okColor.Sprint(msg))
}

func printTimings(out io.Writer, outcomes []driver.Outcome) {
	for _, o := range outcomes {
		if len(o.Timing.Phases) == 0 {
			continue
		}
		parts := make([]string, 0, len(o.Timing.Phases))
		for _, p := range o.Timing.Phases {
			parts = append(parts, fmt.Sprintf("%s %.1f ms", p.Name, p.DurationMS))
		}
		fmt.Fprintf(out, "%s: %s (total %.1f ms)\n", o.Unit.IR, strings.Join(parts, ", "), o.Timing.TotalMS)
	}
}
