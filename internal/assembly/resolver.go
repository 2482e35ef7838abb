package assembly

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadFunc reads one assembly image from disk into a resolved *Assembly.
// The resolver depends on this rather than calling internal/cilbin directly
// so that this package never imports the binary-format reader — cilbin
// already imports assembly for its data model, and Go forbids the cycle.
// cmd/cli2cpp wires cilbin.Load in as the concrete LoadFunc.
type LoadFunc func(path string) (*Assembly, error)

// Resolver implements the core specification's Assembly Resolver (§4.1):
// add_search_directory, register, resolve, try_resolve, dispose. Modeled on
// tinyrange-rtg's ResolveModule (frontend.go) — a worklist over import names
// backed by an on-disk search path — generalized from "Go import path" to
// "assembly simple name" and from "parse .go files" to "decode a PE image".
type Resolver struct {
	load       LoadFunc
	searchDirs []string
	cache      map[string]*Assembly
}

// NewResolver constructs an empty Resolver. load is the image decoder (see
// LoadFunc); in production this is internal/cilbin.Load.
func NewResolver(load LoadFunc) *Resolver {
	return &Resolver{load: load, cache: make(map[string]*Assembly)}
}

// AddSearchDirectory appends a directory to the resolver's search path.
// Directories are searched in the order added, matching the teacher's own
// "embedded std first, then disk" precedence in ResolveModule.
func (r *Resolver) AddSearchDirectory(dir string) {
	r.searchDirs = append(r.searchDirs, dir)
}

// Register pre-seeds the resolver's cache with an already-loaded assembly —
// used for the entry assembly, which is loaded directly from the command
// line rather than discovered by name.
func (r *Resolver) Register(a *Assembly) {
	r.cache[a.Name] = a
}

// Resolve returns the named assembly, loading it from the search path on
// first reference. A Resolution-kind failure names every directory searched,
// per §7's diagnostic contract.
func (r *Resolver) Resolve(name string) (*Assembly, error) {
	a, ok := r.TryResolve(name)
	if !ok {
		return nil, &ResolutionError{Name: name, SearchDirs: append([]string(nil), r.searchDirs...)}
	}
	return a, nil
}

// TryResolve is Resolve without an error return, for call sites that handle
// a missing assembly as a soft failure (e.g. probing whether the BCL ships a
// given library before falling back to a stub).
func (r *Resolver) TryResolve(name string) (*Assembly, bool) {
	if a, ok := r.cache[name]; ok {
		return a, true
	}
	for _, dir := range r.searchDirs {
		for _, ext := range []string{".dll", ".exe"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			a, err := r.load(path)
			if err != nil {
				continue
			}
			r.cache[name] = a
			return a, true
		}
	}
	return nil, false
}

// Dispose releases the resolver's cache. cilbin.Load unmaps its image file
// as soon as the metadata graph is built, so there is no file handle left to
// close here — Dispose exists to match the spec's named operation and to
// free the cache for a resolver that outlives a single compile.
func (r *Resolver) Dispose() {
	r.cache = make(map[string]*Assembly)
}

// ResolutionError is the Resolution-kind diagnostic named in §7: it must
// name the assembly searched for and every directory searched.
type ResolutionError struct {
	Name       string
	SearchDirs []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve assembly %q (searched: %v)", e.Name, e.SearchDirs)
}
