// Package sources resolves a target's source-list references into the set
// of compile units per library.
//
// A reference is either a path to a source-list manifest (relative to the
// repository root, with ${VAR} placeholders expanded) or, when no such file
// exists, the name of another target whose complete source set is pulled in.
// Indirections may nest; a chain that comes back to a target already being
// resolved is reported as a cycle.
package sources

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"simmatrix/internal/manifest"
	"simmatrix/internal/simconfig"
	"simmatrix/internal/simerr"
	"simmatrix/internal/toolopts"
)

// Resolver resolves source lists against one loaded config.
type Resolver struct {
	cfg    *simconfig.Config
	root   string
	logger *zap.Logger

	// LookupEnv expands placeholders; defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewResolver returns a Resolver anchored at root. A nil logger discards
// output.
func NewResolver(cfg *simconfig.Config, root string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, root: root, logger: logger, LookupEnv: os.LookupEnv}
}

// Resolve returns the full source set of target.
func (r *Resolver) Resolve(target *simconfig.Target) (*Set, error) {
	set := NewSet()
	if err := r.ResolveInto(set, target); err != nil {
		return nil, err
	}
	return set, nil
}

// ResolveInto adds the source set of target to set.
func (r *Resolver) ResolveInto(set *Set, target *simconfig.Target) error {
	return r.resolve(set, target, nil)
}

// ExpandPath expands ${VAR} placeholders in p. Unset variables are left in
// place so the failure names the placeholder.
func (r *Resolver) ExpandPath(p string) string {
	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return os.Expand(p, func(name string) string {
		if v, ok := lookup(name); ok {
			return v
		}
		return "${" + name + "}"
	})
}

// resolve walks target's references. chain holds the targets currently
// being resolved, outermost first.
func (r *Resolver) resolve(set *Set, target *simconfig.Target, chain []string) error {
	for i, name := range chain {
		if name == target.Name {
			cycle := append(append([]string(nil), chain[i:]...), target.Name)
			return &simerr.Error{Kind: simerr.ErrCycle, Subject: strings.Join(cycle, " → ")}
		}
	}
	chain = append(chain, target.Name)

	for _, ref := range target.SourceListFiles {
		expanded := r.ExpandPath(ref)
		path := expanded
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.root, path)
		}

		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			if err := r.loadManifest(set, path); err != nil {
				return err
			}
			continue
		}

		dep, ok := r.cfg.Target(expanded)
		if !ok {
			return simerr.New(simerr.ErrReference, target.Name,
				"source list %q is neither a file at %s nor a known target", ref, path)
		}
		r.logger.Info("loading source list from dependent target",
			zap.String("target", target.Name),
			zap.String("dependency", dep.Name))
		if err := r.resolve(set, dep, chain); err != nil {
			return err
		}
	}
	return nil
}

// loadManifest registers every file of the manifest at path. File paths are
// relative to the manifest's own directory.
func (r *Resolver) loadManifest(set *Set, path string) error {
	r.logger.Info("loading source list file", zap.String("path", path))

	m, err := manifest.LoadSourceManifest(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	set.Library(m.Library)
	for _, f := range m.Files {
		p := f.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return simerr.Wrap(simerr.ErrManifestFormat, path, err)
		}
		if !set.Add(m.Library, abs, toolopts.CompileOptions(f.Options)) {
			r.logger.Debug("skipping duplicate source file",
				zap.String("library", m.Library),
				zap.String("file", abs))
		}
	}
	return nil
}
