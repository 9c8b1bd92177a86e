// Package loader discovers Iris plugin modules compiled as Go shared
// objects and exposes them as versioned factory Descriptors.
//
// Go's plugin package only supports Linux, requires the plugin and host
// to share an exact toolchain version, and never unloads a library once
// opened — the same limitations the dynamic half of the teacher's plugin
// discovery documents. A plugin exports a single symbol:
//
//	func NewModule() (name string, version uint32, mk loader.MakeFunc, destroy loader.DestroyFunc)
//
// Multiple shared objects reporting the same name are merged into one
// Descriptor, keyed by their declared version; the highest version seen
// becomes "latest" (version 0 at Create time).
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iris-run/iris/internal/module"
)

// ErrUnknownType is the sentinel a caller can errors.Is-match against when
// a declared module type matches no registered Descriptor, built-in or
// dynamically loaded.
var ErrUnknownType = errors.New("loader: unknown module type")

// MakeFunc constructs a new Module instance for one version of a plugin
// type. DestroyFunc releases it (most Go modules need no explicit
// release, but the symbol is kept for parity with the plugin ABI and for
// plugin types that hold non-GC resources).
type MakeFunc func() module.Module
type DestroyFunc func(module.Module)

type versionEntry struct {
	make    MakeFunc
	destroy DestroyFunc
}

// Descriptor is the versioned factory table for one plugin type name.
type Descriptor struct {
	Name     string
	versions map[uint32]versionEntry
	latest   uint32
}

// Create returns a new Module for the given version, or nil if the
// version (or the type itself) is unknown. version 0 selects latest.
func (d *Descriptor) Create(version uint32) module.Module {
	if d == nil {
		return nil
	}
	if version == 0 {
		version = d.latest
	}
	entry, ok := d.versions[version]
	if !ok {
		return nil
	}
	return entry.make()
}

// Destroy releases m, which must have been created by this Descriptor at
// the given version (0 = latest). If the version is unknown the instance
// is still released through the latest version's destructor to avoid a
// leak.
func (d *Descriptor) Destroy(m module.Module, version uint32) {
	if d == nil || m == nil {
		return
	}
	if version == 0 {
		version = d.latest
	}
	entry, ok := d.versions[version]
	if !ok {
		entry, ok = d.versions[d.latest]
		if !ok {
			return
		}
	}
	entry.destroy(m)
}

// Loader enumerates a directory of Go plugin shared objects and produces
// Descriptors keyed by the type name each reports.
type Loader struct {
	log zerolog.Logger

	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

func New(log zerolog.Logger) *Loader {
	return &Loader{log: log, descriptors: make(map[string]*Descriptor)}
}

// Register adds a built-in module version directly, without opening a
// shared library — for module types compiled straight into the host
// binary. It follows the same merge-by-name, highest-version-wins rule
// as Initialize, so a built-in type and a dynamically loaded one can
// share a name and be selected between by version.
func (l *Loader) Register(name string, version uint32, mk MakeFunc, destroy DestroyFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	desc, ok := l.descriptors[name]
	if !ok {
		desc = &Descriptor{Name: name, versions: make(map[uint32]versionEntry)}
		l.descriptors[name] = desc
	}
	desc.versions[version] = versionEntry{make: mk, destroy: destroy}
	if version >= desc.latest {
		desc.latest = version
	}
	l.log.Info().Str("type", name).Uint32("version", version).Msg("loader: registered built-in module")
}

// NewModuleFunc is the symbol every plugin shared object must export.
type NewModuleFunc func() (name string, version uint32, mk MakeFunc, destroy DestroyFunc)

// Initialize walks path recursively, opening every regular file whose
// name ends in a platform dynamic-library suffix and resolving its
// NewModule symbol. A file that fails to open, or is missing the symbol,
// or exports it with the wrong signature, is logged at Warning and
// skipped — never fatal.
func (l *Loader) Initialize(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !isLibrarySuffix(d.Name()) {
			return nil
		}
		l.loadOne(p)
		return nil
	})
}

func isLibrarySuffix(name string) bool {
	return strings.HasSuffix(name, ".so") ||
		strings.HasSuffix(name, ".dll") ||
		strings.HasSuffix(name, ".dylib")
}

func (l *Loader) loadOne(path string) {
	p, err := plugin.Open(path)
	if err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("loader: failed to open shared library")
		return
	}
	sym, err := p.Lookup("NewModule")
	if err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("loader: missing NewModule symbol")
		return
	}
	newModule, ok := sym.(func() (string, uint32, MakeFunc, DestroyFunc))
	if !ok {
		l.log.Warn().Str("path", path).Msg("loader: NewModule has the wrong signature")
		return
	}

	name, version, mk, destroy := newModule()

	l.mu.Lock()
	defer l.mu.Unlock()
	desc, ok := l.descriptors[name]
	if !ok {
		desc = &Descriptor{Name: name, versions: make(map[uint32]versionEntry)}
		l.descriptors[name] = desc
	}
	desc.versions[version] = versionEntry{make: mk, destroy: destroy}
	if version >= desc.latest {
		desc.latest = version
	}
	l.log.Info().Str("type", name).Uint32("version", version).Str("path", path).Msg("loader: registered plugin")
}

// Descriptor returns the descriptor registered for type, or nil if no
// plugin reported that name. Create on a nil Descriptor returns nil.
func (l *Loader) Descriptor(typ string) *Descriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.descriptors[typ]
}

// Resolve is Descriptor with an ErrUnknownType-wrapped error instead of a
// nil return, for callers that want to propagate or log a discriminable
// error rather than test the pointer themselves.
func (l *Loader) Resolve(typ string) (*Descriptor, error) {
	desc := l.Descriptor(typ)
	if desc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return desc, nil
}

// Snapshot returns, for every registered type, the sorted list of versions
// known for it — a read-only copy safe to hand to a remote mirror (§11.2)
// without holding the Loader's lock while doing network I/O.
func (l *Loader) Snapshot() map[string][]uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]uint32, len(l.descriptors))
	for name, desc := range l.descriptors {
		versions := make([]uint32, 0, len(desc.versions))
		for v := range desc.versions {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
		out[name] = versions
	}
	return out
}

// Reset drops every descriptor. Callers must ensure every Module created
// from this Loader has already been destroyed — closing the underlying
// shared libraries while an instance from them is alive is undefined on
// most platforms, and Go's plugin package offers no close primitive
// regardless, so Reset only forgets the Loader's own bookkeeping.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.descriptors = make(map[string]*Descriptor)
}
