package macro

import (
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/opencomply/remedygen/pkg/errors"
)

// Format identifies the target language of a macro's output.
type Format string

const (
	// FormatShell marks macros emitting imperative shell fragments.
	FormatShell Format = "shell"
	// FormatAutomation marks macros emitting declarative YAML task lists.
	FormatAutomation Format = "automation"
)

// Func is the signature every macro implements.
type Func func(Params) (string, error)

// ParamSpec documents one keyword parameter of a macro.
type ParamSpec struct {
	Name     string
	Required bool
	Enum     []string
	Usage    string
}

// Macro is one registry entry: a named, parameterized text generator.
type Macro struct {
	Name   string
	Format Format
	Params []ParamSpec
	Fn     Func
}

// Registry is the closed set of macros available to templates.
type Registry struct {
	mu     sync.RWMutex
	macros map[string]Macro
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{macros: map[string]Macro{}}
}

// Register adds or replaces a macro entry.
func (r *Registry) Register(m Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[m.Name] = m
}

// Lookup retrieves a macro by name. Unknown names fail with an error that
// names the macro and suggests the closest registered name.
func (r *Registry) Lookup(name string) (Macro, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.macros[name]
	if !ok {
		if suggestion := r.nearestLocked(name); suggestion != "" {
			return Macro{}, errors.Newf(errors.ErrCodeInvalidRequest,
				"unknown macro %q (did you mean %q?)", name, suggestion)
		}
		return Macro{}, errors.Newf(errors.ErrCodeInvalidRequest, "unknown macro %q", name)
	}
	return m, nil
}

// Render invokes the named macro with the given parameters.
func (r *Registry) Render(name string, p Params) (string, error) {
	m, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return m.Fn(p)
}

// Names returns all registered macro names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.macros))
	for n := range r.macros {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns all registered macros keyed by name.
func (r *Registry) All() map[string]Macro {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Macro, len(r.macros))
	for n, m := range r.macros {
		out[n] = m
	}
	return out
}

// nearestLocked finds the registered name with the smallest edit distance
// to name, or "" when nothing is close enough to be a plausible typo.
func (r *Registry) nearestLocked(name string) string {
	const maxDistance = 5
	best, bestDist := "", maxDistance+1
	for n := range r.macros {
		if d := levenshtein.ComputeDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	if bestDist > maxDistance {
		return ""
	}
	return best
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry holding the full macro library.
// The library is fixed at build time, so it is parsed into a registry once
// and shared for the lifetime of the process.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		registerShellMacros(r)
		registerAutomationMacros(r)
		defaultRegistry = r
	})
	return defaultRegistry
}
