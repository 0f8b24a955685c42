package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"simmatrix/internal/toolopts"
)

// Unit is one compile unit: an absolute source path and its compile flags.
type Unit struct {
	Path    string
	Options toolopts.Options
}

// Library is a named compile library and its units in registration order.
type Library struct {
	Name  string
	Units []Unit
	index map[string]int
}

// Has reports whether path is already a unit of l.
func (l *Library) Has(path string) bool {
	_, ok := l.index[path]
	return ok
}

// Paths returns the unit paths in registration order.
func (l *Library) Paths() []string {
	paths := make([]string, len(l.Units))
	for i, u := range l.Units {
		paths[i] = u.Path
	}
	return paths
}

// Set is the resolved source set of a target: libraries in the order they
// were first registered.
type Set struct {
	Libraries []*Library
	byName    map[string]*Library
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Library)}
}

// Library returns the named library, creating it if needed. Registering the
// same library twice returns the existing one.
func (s *Set) Library(name string) *Library {
	if lib, ok := s.byName[name]; ok {
		return lib
	}
	lib := &Library{Name: name, index: make(map[string]int)}
	s.byName[name] = lib
	s.Libraries = append(s.Libraries, lib)
	return lib
}

// Lookup returns the named library if it has been registered.
func (s *Set) Lookup(name string) (*Library, bool) {
	lib, ok := s.byName[name]
	return lib, ok
}

// Add registers path as a unit of library. It reports false, and changes
// nothing, when the library already holds path.
func (s *Set) Add(library, path string, opts toolopts.Options) bool {
	lib := s.Library(library)
	if lib.Has(path) {
		return false
	}
	lib.index[path] = len(lib.Units)
	lib.Units = append(lib.Units, Unit{Path: path, Options: opts})
	return true
}

// Len returns the total number of compile units.
func (s *Set) Len() int {
	n := 0
	for _, lib := range s.Libraries {
		n += len(lib.Units)
	}
	return n
}

// Fingerprint hashes the (library, path) pairs of s independent of
// registration order. Two sets with the same fingerprint compile the same
// files into the same libraries.
func (s *Set) Fingerprint() string {
	var pairs []string
	for _, lib := range s.Libraries {
		for _, u := range lib.Units {
			pairs = append(pairs, lib.Name+"\x00"+u.Path)
		}
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
