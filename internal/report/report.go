// Package report persists what an instrumentation run did: one entry per
// unit with its call sites, diagnostics and phase timings.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"nondetify/internal/diag"
	"nondetify/internal/instrument"
	"nondetify/internal/observ"
)

// SchemaVersion is bumped whenever Report changes shape.
const SchemaVersion uint16 = 1

// Format selects the on-disk encoding.
type Format uint8

const (
	FormatJSON Format = iota
	FormatMsgpack
)

func (f Format) String() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "json"
}

// FormatForPath picks msgpack for .mp/.msgpack files and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp", ".msgpack":
		return FormatMsgpack
	}
	return FormatJSON
}

type Report struct {
	Schema  uint16 `json:"schema" msgpack:"schema"`
	Version string `json:"version,omitempty" msgpack:"version,omitempty"`
	Units   []Unit `json:"units" msgpack:"units"`
}

// Unit is the outcome for one IR module.
type Unit struct {
	IR          string                  `json:"ir" msgpack:"ir"`
	Source      string                  `json:"source,omitempty" msgpack:"source,omitempty"`
	Output      string                  `json:"output,omitempty" msgpack:"output,omitempty"`
	Changed     bool                    `json:"changed" msgpack:"changed"`
	Skipped     int                     `json:"skipped,omitempty" msgpack:"skipped,omitempty"`
	Sites       []instrument.SiteRecord `json:"sites" msgpack:"sites"`
	Diagnostics []Diagnostic            `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
	Timing      *observ.Report          `json:"timing,omitempty" msgpack:"timing,omitempty"`
	Error       string                  `json:"error,omitempty" msgpack:"error,omitempty"`
}

type Diagnostic struct {
	Severity string `json:"severity" msgpack:"severity"`
	Code     string `json:"code" msgpack:"code"`
	Func     string `json:"func,omitempty" msgpack:"func,omitempty"`
	Line     uint32 `json:"line,omitempty" msgpack:"line,omitempty"`
	Message  string `json:"message" msgpack:"message"`
}

// Diagnostics flattens diagnostics for serialization.
func Diagnostics(items []diag.Diagnostic) []Diagnostic {
	if len(items) == 0 {
		return nil
	}
	out := make([]Diagnostic, 0, len(items))
	for _, d := range items {
		out = append(out, Diagnostic{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Func:     d.Primary.Func,
			Line:     d.Primary.Line,
			Message:  d.Message,
		})
	}
	return out
}

// Encode writes r to w.
func Encode(w io.Writer, r *Report, format Format) error {
	if r.Schema == 0 {
		r.Schema = SchemaVersion
	}
	switch format {
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(r)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}

// Decode reads a report and rejects unknown schema versions.
func Decode(rd io.Reader, format Format) (*Report, error) {
	var r Report
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.NewDecoder(rd).Decode(&r)
	default:
		err = json.NewDecoder(rd).Decode(&r)
	}
	if err != nil {
		return nil, err
	}
	if r.Schema != SchemaVersion {
		return nil, fmt.Errorf("report schema %d, want %d", r.Schema, SchemaVersion)
	}
	return &r, nil
}

// Write atomically replaces path with r, encoded per FormatForPath.
func Write(path string, r *Report) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			// временный файл больше не нужен
			err = errors.Join(err, removeIfExists(f.Name()))
		}
	}()
	if err = Encode(f, r, FormatForPath(path)); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), path)
}

// Read loads a report written by Write.
func Read(path string) (_ *Report, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return Decode(f, FormatForPath(path))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
