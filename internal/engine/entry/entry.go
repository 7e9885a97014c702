// # internal/engine/entry/entry.go
package entry

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"fmt"
	"strings"
	"sync"
)

// Entry is a named root of the module graph.
type Entry struct {
	Name       string
	Specifiers []string
	Context    string
	Roots      []graph.ModuleID

	// DependOn names entries whose chunks are loaded before this one.
	// Modules they already provide are not duplicated into this entry.
	DependOn []string
}

// Set holds the entries of one build pass in definition order.
type Set struct {
	mu      sync.RWMutex
	g       *graph.Graph
	entries []*Entry
	byName  map[string]*Entry
}

func NewSet(g *graph.Graph) *Set {
	return &Set{g: g, byName: make(map[string]*Entry)}
}

// Define registers an entry and resolves its root specifiers into the graph.
// A duplicate name fails before any resolution happens.
func (s *Set) Define(name string, specifiers []string, context string, dependOn ...string) (*Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.CodeValidationError, "entry name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return nil, &errors.DuplicateEntryError{Name: name}
	}
	if len(specifiers) == 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, "entry needs at least one root specifier"),
			errors.CtxEntry, name,
		)
	}

	e := &Entry{
		Name:       name,
		Specifiers: append([]string(nil), specifiers...),
		Context:    context,
		DependOn:   append([]string(nil), dependOn...),
	}
	if s.g != nil {
		for _, spec := range specifiers {
			mod, err := s.g.AddRoot(spec, context)
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxEntry, name)
			}
			e.Roots = append(e.Roots, mod.ID)
		}
	}

	s.entries = append(s.entries, e)
	s.byName[name] = e
	return e, nil
}

// All returns the entries in definition order.
func (s *Set) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Entry(nil), s.entries...)
}

func (s *Set) Get(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[name]
	return e, ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Roots returns every entry root in definition order.
func (s *Set) Roots() []graph.ModuleID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roots []graph.ModuleID
	for _, e := range s.entries {
		roots = append(roots, e.Roots...)
	}
	return roots
}

// Validate checks that DependOn names exist and do not form a cycle.
func (s *Set) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		for _, dep := range e.DependOn {
			if dep == e.Name {
				return errors.AddContext(
					errors.New(errors.CodeValidationError, "entry cannot depend on itself"),
					errors.CtxEntry, e.Name,
				)
			}
			if _, ok := s.byName[dep]; !ok {
				return errors.AddContext(
					errors.New(errors.CodeValidationError, fmt.Sprintf("dependOn names unknown entry %q", dep)),
					errors.CtxEntry, e.Name,
				)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.entries))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return errors.New(errors.CodeValidationError,
				fmt.Sprintf("dependOn cycle: %s", strings.Join(append(path, name), " -> ")))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range s.byName[name].DependOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, e := range s.entries {
		if err := visit(e.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
