package driver

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StdoutPath as an output sends the module to Options.Stdout.
const StdoutPath = "-"

// Unit is one IR module plus the C source it was compiled from.
type Unit struct {
	IR     string
	Source string // empty: fall back to the module's source_filename
	Output string // empty: DefaultOutput(IR)
}

// DefaultOutput maps prog.ll to prog.nondet.ll next to the input.
func DefaultOutput(ir string) string {
	if ir == StdoutPath {
		return StdoutPath
	}
	ext := filepath.Ext(ir)
	if ext == ".ll" {
		return strings.TrimSuffix(ir, ext) + ".nondet.ll"
	}
	return ir + ".nondet.ll"
}

// normalize fills defaults and rejects units that would clobber each other.
func normalize(units []Unit) ([]Unit, error) {
	out := make([]Unit, len(units))
	seen := make(map[string]string, len(units))
	for i, u := range units {
		if strings.TrimSpace(u.IR) == "" {
			return nil, fmt.Errorf("unit %d: no IR path", i)
		}
		if u.Output == "" {
			u.Output = DefaultOutput(u.IR)
		}
		if u.Output != StdoutPath {
			key := filepath.Clean(u.Output)
			if prev, dup := seen[key]; dup {
				return nil, fmt.Errorf("units %s and %s both write %s", prev, u.IR, u.Output)
			}
			seen[key] = u.IR
		}
		out[i] = u
	}
	return out, nil
}

// resolveSource picks the C file for a unit: the explicit path, else the
// module's source_filename, taken relative to the IR file's directory.
func resolveSource(u Unit, sourceFilename string) string {
	if u.Source != "" || sourceFilename == "" {
		return u.Source
	}
	if filepath.IsAbs(sourceFilename) {
		return sourceFilename
	}
	return filepath.Join(filepath.Dir(u.IR), sourceFilename)
}
