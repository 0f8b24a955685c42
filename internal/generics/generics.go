// Package generics merges the generic (parameter) overlays that apply to one
// test instance into the flat mapping handed to the simulator.
//
// Keys may carry a design-hierarchy prefix ("block/sub/param"). Only the
// segment after the last separator reaches the simulator, so flattening
// happens once, after every overlay has been applied.
package generics

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"simmatrix/internal/simerr"
)

// SeedKey is the generic that carries the run seed.
const SeedKey = "seed"

// Separator splits a hierarchical key into its path segments.
const Separator = "/"

// MaxSeed is the largest seed DrawSeed returns.
const MaxSeed = 1<<31 - 1

// Entry is one key/value pair of a Set.
type Entry struct {
	Key   string
	Value any
}

// Set is an ordered list of generics as written in a config or test list.
// Order matters only when two keys of the same Set collapse to one name.
type Set []Entry

// FromMap builds a Set from m with keys in sorted order.
func FromMap(m map[string]any) Set {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := make(Set, 0, len(keys))
	for _, k := range keys {
		s = append(s, Entry{Key: k, Value: m[k]})
	}
	return s
}

// Get returns the value of the last entry named key.
func (s Set) Get(key string) (any, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Key == key {
			return s[i].Value, true
		}
	}
	return nil, false
}

// UnmarshalYAML decodes a mapping, keeping document order.
func (s *Set) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		*s = nil
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: generics must be a mapping", n.Line)
	}
	out := make(Set, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: generic name must be a scalar", keyNode.Line)
		}
		var v any
		if err := valNode.Decode(&v); err != nil {
			return fmt.Errorf("line %d: generic %q: %w", valNode.Line, keyNode.Value, err)
		}
		out = append(out, Entry{Key: keyNode.Value, Value: v})
	}
	*s = out
	return nil
}

// MarshalYAML writes the set as a mapping in its own order.
func (s Set) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s {
		var v yaml.Node
		if err := v.Encode(e.Value); err != nil {
			return nil, fmt.Errorf("generic %q: %w", e.Key, err)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key}, &v)
	}
	return n, nil
}

// Params is the flattened generic mapping of one test instance.
type Params map[string]any

// Leaf strips every hierarchy prefix from key.
//
//	"block/sub/param" → "param"
//	"param"           → "param"
func Leaf(key string) string {
	if i := strings.LastIndex(key, Separator); i >= 0 {
		return key[i+len(Separator):]
	}
	return key
}

// QualifiedName is the run-wide unique name of a test instance.
func QualifiedName(target, test string) string {
	return target + "." + test
}

// DrawSeed returns a seed in [0, MaxSeed]. A nil r uses the global source.
func DrawSeed(r *rand.Rand) int64 {
	if r == nil {
		return rand.Int64N(MaxSeed + 1)
	}
	return r.Int64N(MaxSeed + 1)
}

// Input gathers everything Merge needs for one test instance.
type Input struct {
	Seed        int64
	TestNameKey string
	TestName    string
	Target      Set
	Test        Set
	// Strict rejects two distinct hierarchical keys that collapse to the
	// same name instead of letting the later one win.
	Strict bool
}

// Merge applies, lowest precedence first: the seed, the test name under
// TestNameKey, the target generics and the test generics. Keys are then
// flattened to their leaf; on a clash the later overlay wins, and within one
// overlay the later entry wins.
func Merge(in Input) (Params, error) {
	steps := []Set{
		{{Key: SeedKey, Value: in.Seed}},
		{{Key: in.TestNameKey, Value: in.TestName}},
		in.Target,
		in.Test,
	}

	out := make(Params)
	// hierarchical remembers, per leaf, the first prefixed key that set it.
	hierarchical := make(map[string]string)
	for _, step := range steps {
		for _, e := range step {
			leaf := Leaf(e.Key)
			if in.Strict && e.Key != leaf {
				prev, ok := hierarchical[leaf]
				if !ok {
					hierarchical[leaf] = e.Key
				} else if prev != e.Key {
					return nil, simerr.New(simerr.ErrGenericCollision, leaf,
						"%q and %q collapse to the same generic", prev, e.Key)
				}
			}
			out[leaf] = e.Value
		}
	}
	return out, nil
}
