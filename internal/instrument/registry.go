package instrument

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultProducerPrefix names the verifier convention for nondeterministic
// value producers.
const DefaultProducerPrefix = "__VERIFIER_nondet_"

// Handler selects how a matched call site is instrumented.
type Handler uint8

const (
	RewriteProducer Handler = iota + 1
	AugmentAllocator
)

func (h Handler) String() string {
	switch h {
	case RewriteProducer:
		return "producer"
	case AugmentAllocator:
		return "allocator"
	default:
		return fmt.Sprintf("Handler(%d)", h)
	}
}

// ParseHandler accepts the names used by the manifest.
func ParseHandler(s string) (Handler, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "producer", "nondet":
		return RewriteProducer, nil
	case "allocator", "alloc":
		return AugmentAllocator, nil
	}
	return 0, fmt.Errorf("unknown pattern kind %q (want producer or allocator)", s)
}

// SizeRule tells an allocator handler where the byte count comes from.
type SizeRule uint8

const (
	SizeNone SizeRule = iota
	// SizeFirstArg: the first argument is the byte count (malloc).
	SizeFirstArg
	// SizeArgProduct: count * size from the first two arguments (calloc).
	SizeArgProduct
)

func (r SizeRule) String() string {
	switch r {
	case SizeNone:
		return "none"
	case SizeFirstArg:
		return "first-arg"
	case SizeArgProduct:
		return "arg-product"
	default:
		return fmt.Sprintf("SizeRule(%d)", r)
	}
}

// ParseSizeRule accepts the names used by the manifest.
func ParseSizeRule(s string) (SizeRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SizeNone, nil
	case "first-arg", "first_arg", "arg0":
		return SizeFirstArg, nil
	case "arg-product", "arg_product", "product":
		return SizeArgProduct, nil
	}
	return 0, fmt.Errorf("unknown size rule %q (want first-arg or arg-product)", s)
}

// minArgs is the number of call arguments the rule reads.
func (r SizeRule) minArgs() int {
	switch r {
	case SizeFirstArg:
		return 1
	case SizeArgProduct:
		return 2
	}
	return 0
}

// Pattern maps declarations whose name starts with Prefix to a handler.
type Pattern struct {
	Prefix  string
	Handler Handler
	Size    SizeRule
}

func (p Pattern) matches(name string) bool {
	return strings.HasPrefix(name, p.Prefix)
}

// Registry is an ordered set of patterns. Lookup prefers the longest prefix.
type Registry struct {
	patterns []Pattern
}

// DefaultPatterns is what the pass recognizes without configuration.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Prefix: DefaultProducerPrefix, Handler: RewriteProducer},
		{Prefix: "malloc", Handler: AugmentAllocator, Size: SizeFirstArg},
		{Prefix: "calloc", Handler: AugmentAllocator, Size: SizeArgProduct},
	}
}

// DefaultRegistry returns a registry built from DefaultPatterns.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultPatterns()...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry validates patterns and sorts them for lookup.
func NewRegistry(patterns ...Pattern) (*Registry, error) {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]Pattern, 0, len(patterns))
	for i, p := range patterns {
		if p.Prefix == "" {
			return nil, fmt.Errorf("pattern %d: empty prefix", i)
		}
		if _, dup := seen[p.Prefix]; dup {
			return nil, fmt.Errorf("pattern %d: duplicate prefix %q", i, p.Prefix)
		}
		seen[p.Prefix] = struct{}{}
		switch p.Handler {
		case RewriteProducer:
			if p.Size != SizeNone {
				return nil, fmt.Errorf("pattern %q: producers take no size rule", p.Prefix)
			}
		case AugmentAllocator:
			if p.Size == SizeNone {
				return nil, fmt.Errorf("pattern %q: allocator needs a size rule", p.Prefix)
			}
		default:
			return nil, fmt.Errorf("pattern %q: unknown handler %d", p.Prefix, p.Handler)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Prefix) > len(out[j].Prefix)
	})
	return &Registry{patterns: out}, nil
}

// Lookup returns the pattern that claims name.
func (r *Registry) Lookup(name string) (Pattern, bool) {
	if r == nil {
		return Pattern{}, false
	}
	for _, p := range r.patterns {
		if p.matches(name) {
			return p, true
		}
	}
	return Pattern{}, false
}

// ProducerPrefixes lists the prefixes of producer patterns, longest first.
func (r *Registry) ProducerPrefixes() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, p := range r.patterns {
		if p.Handler == RewriteProducer {
			out = append(out, p.Prefix)
		}
	}
	return out
}

// Patterns returns a copy of the registered patterns in lookup order.
func (r *Registry) Patterns() []Pattern {
	if r == nil {
		return nil
	}
	return append([]Pattern(nil), r.patterns...)
}
