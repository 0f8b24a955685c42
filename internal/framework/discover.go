package framework

// discover.go: finds design units declared in registered source files.

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	vhdlEntityRe    = regexp.MustCompile(`(?im)^\s*entity\s+([a-z][a-z0-9_]*)\s+is\b`)
	verilogModuleRe = regexp.MustCompile(`(?m)^\s*(?:macro)?module\s+(?:automatic\s+|static\s+)?([A-Za-z_][A-Za-z0-9_$]*)`)
)

type language int

const (
	langUnknown language = iota
	langVHDL
	langVerilog
)

func languageOf(path string) language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vhd", ".vhdl":
		return langVHDL
	case ".v", ".vh", ".sv", ".svh":
		return langVerilog
	default:
		return langUnknown
	}
}

// declaredUnits returns the entity and module names declared in src. VHDL
// names are lower-cased because VHDL identifiers are case-insensitive.
func declaredUnits(lang language, src []byte) []string {
	var names []string
	if lang == langVHDL || lang == langUnknown {
		for _, m := range vhdlEntityRe.FindAllSubmatch(src, -1) {
			names = append(names, strings.ToLower(string(m[1])))
		}
	}
	if lang == langVerilog || lang == langUnknown {
		for _, m := range verilogModuleRe.FindAllSubmatch(src, -1) {
			names = append(names, string(m[1]))
		}
	}
	return names
}

// unitMatches reports whether a declared unit name refers to entity.
func unitMatches(lang language, declared, entity string) bool {
	if lang == langVerilog {
		return declared == entity
	}
	return strings.EqualFold(declared, entity)
}

// scanFile reads path and returns the units it declares.
func scanFile(path string) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return declaredUnits(languageOf(path), src), nil
}
