package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nondetify/internal/driver"
	"nondetify/internal/instrument"
)

const manifestName = "nondetify.toml"

type manifest struct {
	Path   string
	Root   string
	Config manifestConfig
}

type manifestConfig struct {
	Pass  passConfig   `toml:"pass"`
	Units []unitConfig `toml:"unit"`
}

type passConfig struct {
	Entry string `toml:"entry"`
	// ReplaceDefaults drops the built-in patterns instead of extending them.
	ReplaceDefaults bool            `toml:"replace_defaults"`
	Patterns        []patternConfig `toml:"pattern"`
}

type patternConfig struct {
	Prefix string `toml:"prefix"`
	Kind   string `toml:"kind"`
	Size   string `toml:"size"`
}

type unitConfig struct {
	IR     string `toml:"ir"`
	Source string `toml:"source"`
	Output string `toml:"output"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadManifest reads an explicit path, or searches upward from startDir
// when path is empty. A missing manifest is not an error.
func loadManifest(path, startDir string) (*manifest, bool, error) {
	if path == "" {
		found, ok, err := findManifest(startDir)
		if err != nil || !ok {
			return nil, ok, err
		}
		path = found
	}
	cfg, err := loadManifestConfig(path)
	if err != nil {
		return nil, true, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, true, err
	}
	return &manifest{Path: abs, Root: filepath.Dir(abs), Config: cfg}, true, nil
}

func loadManifestConfig(path string) (manifestConfig, error) {
	var cfg manifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return manifestConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return manifestConfig{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for i, p := range cfg.Pass.Patterns {
		if strings.TrimSpace(p.Prefix) == "" {
			return manifestConfig{}, fmt.Errorf("%s: [[pass.pattern]] #%d: missing prefix", path, i+1)
		}
		if strings.TrimSpace(p.Kind) == "" {
			return manifestConfig{}, fmt.Errorf("%s: [[pass.pattern]] %q: missing kind", path, p.Prefix)
		}
	}
	if cfg.Pass.ReplaceDefaults && len(cfg.Pass.Patterns) == 0 {
		return manifestConfig{}, fmt.Errorf("%s: [pass].replace_defaults needs at least one [[pass.pattern]]", path)
	}
	for i, u := range cfg.Units {
		if strings.TrimSpace(u.IR) == "" {
			return manifestConfig{}, fmt.Errorf("%s: [[unit]] #%d: missing ir", path, i+1)
		}
	}
	return cfg, nil
}

// registry builds the pattern registry: built-ins first, then manifest
// patterns, which may override a built-in prefix.
func (m *manifest) registry() (*instrument.Registry, error) {
	if m == nil {
		return instrument.DefaultRegistry(), nil
	}
	byPrefix := make(map[string]instrument.Pattern)
	var order []string
	add := func(p instrument.Pattern) {
		if _, ok := byPrefix[p.Prefix]; !ok {
			order = append(order, p.Prefix)
		}
		byPrefix[p.Prefix] = p
	}
	if !m.Config.Pass.ReplaceDefaults {
		for _, p := range instrument.DefaultPatterns() {
			add(p)
		}
	}
	for _, pc := range m.Config.Pass.Patterns {
		handler, err := instrument.ParseHandler(pc.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: pattern %q: %w", m.Path, pc.Prefix, err)
		}
		size, err := instrument.ParseSizeRule(pc.Size)
		if err != nil {
			return nil, fmt.Errorf("%s: pattern %q: %w", m.Path, pc.Prefix, err)
		}
		add(instrument.Pattern{Prefix: pc.Prefix, Handler: handler, Size: size})
	}
	patterns := make([]instrument.Pattern, 0, len(order))
	for _, prefix := range order {
		patterns = append(patterns, byPrefix[prefix])
	}
	reg, err := instrument.NewRegistry(patterns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	return reg, nil
}

// units resolves [[unit]] paths against the manifest directory.
func (m *manifest) units() []driver.Unit {
	if m == nil {
		return nil
	}
	out := make([]driver.Unit, 0, len(m.Config.Units))
	for _, u := range m.Config.Units {
		out = append(out, driver.Unit{
			IR:     m.resolve(u.IR),
			Source: m.resolve(u.Source),
			Output: m.resolve(u.Output),
		})
	}
	return out
}

func (m *manifest) resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == driver.StdoutPath || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}
