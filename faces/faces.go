package faces

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an Analyzer for the given options
type Factory func(opts Options) (Analyzer, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// Register makes a backend available by name. Backends call it from init().
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if f == nil {
		panic("faces: Register factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("faces: Register called twice for backend " + name)
	}
	backends[name] = f
}

// Backends returns the sorted names of registered backends
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the analyzer selected by opts.Backend
func Open(opts Options) (Analyzer, error) {
	backendsMu.RLock()
	f, ok := backends[opts.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, opts.Backend, Backends())
	}
	a, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", opts.Backend, err)
	}
	return a, nil
}
