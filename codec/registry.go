// SPDX-License-Identifier: EPL-2.0

package codec

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/ik5/voxframe/audio"
)

// initMu serializes native library initialization across all libraries
// and registries.
var initMu sync.Mutex

type libEntry struct {
	lib  Library
	once sync.Once
	err  error
}

// init runs lib.Init at most once. A failure is kept and returned to every
// later caller.
func (e *libEntry) init() error {
	e.once.Do(func() {
		initMu.Lock()
		defer initMu.Unlock()

		if err := e.lib.Init(); err != nil {
			e.err = fmt.Errorf("%w: %s init: %w", ErrUnsupportedConfig, e.lib.Name(), err)
		}
	})
	return e.err
}

// Registry maps codecs to the libraries serving them.
type Registry struct {
	mtx   sync.RWMutex
	libs  map[audio.Codec]*libEntry
	order []*libEntry
}

func NewRegistry() *Registry {
	return &Registry{libs: make(map[audio.Codec]*libEntry)}
}

// Register makes lib serve every codec it lists, replacing earlier
// registrations for those codecs. Registering the same library again keeps
// its init state.
func (r *Registry) Register(lib Library) {
	if lib == nil {
		panic("codec: Register of nil library")
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	i := slices.IndexFunc(r.order, func(e *libEntry) bool { return sameLibrary(e.lib, lib) })
	var e *libEntry
	if i >= 0 {
		e = r.order[i]
	} else {
		e = &libEntry{lib: lib}
		r.order = append(r.order, e)
	}
	for _, c := range lib.Codecs() {
		r.libs[c] = e
	}
}

// sameLibrary reports whether a and b are the same value. Libraries of
// uncomparable types never match.
func sameLibrary(a, b Library) bool {
	t := reflect.TypeOf(a)
	return t == reflect.TypeOf(b) && t.Comparable() && a == b
}

func (r *Registry) entry(c audio.Codec) (*libEntry, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	e, ok := r.libs[c]
	return e, ok
}

func (r *Registry) Lookup(c audio.Codec) (Library, bool) {
	e, ok := r.entry(c)
	if !ok {
		return nil, false
	}
	return e.lib, true
}

// Libraries lists the registered libraries that still serve a codec, in
// registration order.
func (r *Registry) Libraries() []Library {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var out []Library
	for _, e := range r.order {
		if slices.ContainsFunc(e.lib.Codecs(), func(c audio.Codec) bool { return r.libs[c] == e }) {
			out = append(out, e.lib)
		}
	}
	return out
}

func (r *Registry) transform(cfg Config) (Config, Transform, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return cfg, nil, err
	}

	e, ok := r.entry(cfg.Codec)
	if !ok {
		return cfg, nil, fmt.Errorf("%w: no library for %s", ErrUnsupportedConfig, cfg.Codec)
	}
	if err := e.init(); err != nil {
		return cfg, nil, err
	}

	tr, err := e.lib.NewTransform(cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedConfig, e.lib.Name(), err)
	}
	if tr == nil {
		return cfg, nil, fmt.Errorf("%w: %s returned no transform", ErrUnsupportedConfig, e.lib.Name())
	}
	return cfg, tr, nil
}

var defaultRegistry = NewRegistry()

// Default is the process-wide registry the built-in libraries register
// with.
func Default() *Registry { return defaultRegistry }

// Register adds lib to the process-wide registry.
func Register(lib Library) { defaultRegistry.Register(lib) }

// Open creates a decoder from the process-wide registry.
func Open(cfg Config) (*Decoder, error) { return defaultRegistry.Open(cfg) }

// OpenEncoder creates an encoder from the process-wide registry.
func OpenEncoder(cfg Config) (*Encoder, error) { return defaultRegistry.OpenEncoder(cfg) }
