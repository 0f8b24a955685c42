package simconfig

// hcl.go: HCL rendition of the simulation config.
//
//	seed              = 42
//	test_name_generic = "test_name"
//
//	target "unit.core" {
//	  top_entity        = "core_lib.tb_core"
//	  source_list_files = ["sim/core.yml"]
//	  test_list_file    = "sim/core_tests.yml"
//	  generics          = { "block/param" = 1 }
//	}
//
// Targets keep block order and generics keep the order they are written in.

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"simmatrix/internal/generics"
)

type hclRoot struct {
	Seed            *int64       `hcl:"seed,optional"`
	TestNameGeneric string       `hcl:"test_name_generic"`
	Targets         []*hclTarget `hcl:"target,block"`
}

type hclTarget struct {
	Name            string         `hcl:"name,label"`
	TopEntity       string         `hcl:"top_entity"`
	SourceListFiles []string       `hcl:"source_list_files,optional"`
	TestListFile    string         `hcl:"test_list_file"`
	Generics        hcl.Expression `hcl:"generics,optional"`
}

func parseHCL(filename string, data []byte) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse HCL: %w", diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode HCL: %w", diags)
	}

	cfg := &Config{Seed: root.Seed, TestNameGeneric: root.TestNameGeneric}
	for _, ht := range root.Targets {
		set, err := decodeGenerics(ht.Generics)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", ht.Name, err)
		}
		cfg.Targets = append(cfg.Targets, &Target{
			Name:            ht.Name,
			TopEntity:       ht.TopEntity,
			SourceListFiles: ht.SourceListFiles,
			TestListFile:    ht.TestListFile,
			Generics:        set,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeGenerics turns a generics object expression into a Set in source
// order.
func decodeGenerics(expr hcl.Expression) (generics.Set, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("generics: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("generics: %w", diags)
	}
	set := make(generics.Set, 0, len(pairs))
	for _, pair := range pairs {
		key, diags := pair.Key.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("generics key: %w", diags)
		}
		if key.Type() != cty.String || key.IsNull() {
			return nil, fmt.Errorf("generics: key at %s must be a string", pair.Key.Range())
		}
		v, diags := pair.Value.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("generic %q: %w", key.AsString(), diags)
		}
		native, err := ctyToNative(v)
		if err != nil {
			return nil, fmt.Errorf("generic %q: %w", key.AsString(), err)
		}
		set = append(set, generics.Entry{Key: key.AsString(), Value: native})
	}
	return set, nil
}

// ctyToNative converts v to the Go value the YAML decoder would have
// produced for the same literal: whole numbers become int.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			n, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			n, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = n
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
