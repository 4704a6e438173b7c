// Package suite runs registered UI test cases inside the desktop environment.
package suite

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func is the body of a test case.
type Func func(c *Context) error

// Registry holds test cases by name.
type Registry struct {
	mu    sync.RWMutex
	tests map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tests: make(map[string]Func)}
}

// Add registers a test. Names use "::" as a path separator and must be
// unique; registering a name twice panics.
func (r *Registry) Add(name string, fn Func) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		panic("suite: test needs a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tests[name]; dup {
		panic(fmt.Sprintf("suite: duplicate test name %q", name))
	}
	r.tests[name] = fn
}

// Names returns all registered test names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tests))
	for name := range r.tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tests[name]
	return ok
}

// Match returns the sorted names containing filter. An empty filter
// matches every test.
func (r *Registry) Match(filter string) []string {
	var out []string
	for _, name := range r.Names() {
		if filter == "" || strings.Contains(name, filter) {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) get(name string) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tests[name]
}
