// # internal/engine/chunk/chunk.go
package chunk

import (
	"bundlegraph/internal/data/records"
	"bundlegraph/internal/engine/graph"
)

type Kind uint8

const (
	KindEntry Kind = iota
	KindInitial
	KindNormal
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindInitial:
		return "initial"
	default:
		return "normal"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "entry":
		return KindEntry, true
	case "initial":
		return KindInitial, true
	case "normal":
		return KindNormal, true
	}
	return KindNormal, false
}

// Dependency names a chunk that must be available before the owner runs.
// Lazy dependencies are fetched asynchronously and awaited.
type Dependency struct {
	Chunk string
	Lazy  bool
}

// Chunk is one output bundle unit. Modules are referenced by ID; the graph
// owns them.
type Chunk struct {
	Name  string
	Kind  Kind
	Root  graph.ModuleID // split point root, graph.NoModule otherwise
	Entry string         // owning entry for entry chunks

	Modules  []graph.ModuleID
	Requires []Dependency
	Children []string // split chunks this chunk loads on demand
	Parents  []string // chunks that load this one on demand

	Runtime bool
	ID      string
	Hash    string

	members map[graph.ModuleID]bool
}

func newChunk(name string, kind Kind) *Chunk {
	return &Chunk{
		Name:    name,
		Kind:    kind,
		Root:    graph.NoModule,
		members: make(map[graph.ModuleID]bool),
	}
}

func (c *Chunk) Has(id graph.ModuleID) bool {
	return c.members[id]
}

func (c *Chunk) add(id graph.ModuleID) {
	if !c.members[id] {
		c.members[id] = true
		c.Modules = append(c.Modules, id)
	}
}

// removeAll drops every module in drop, keeping the order of the rest.
func (c *Chunk) removeAll(drop map[graph.ModuleID]bool) int {
	kept := c.Modules[:0]
	removed := 0
	for _, id := range c.Modules {
		if drop[id] {
			delete(c.members, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.Modules = kept
	return removed
}

func (c *Chunk) require(name string, lazy bool) {
	if name == c.Name {
		return
	}
	for i, d := range c.Requires {
		if d.Chunk == name {
			// A sync requirement wins over a lazy one.
			if !lazy {
				c.Requires[i].Lazy = false
			}
			return
		}
	}
	c.Requires = append(c.Requires, Dependency{Chunk: name, Lazy: lazy})
}

func (c *Chunk) syncRequires() []string {
	var out []string
	for _, d := range c.Requires {
		if !d.Lazy {
			out = append(out, d.Chunk)
		}
	}
	return out
}

func appendUnique(list []string, name string) []string {
	for _, s := range list {
		if s == name {
			return list
		}
	}
	return append(list, name)
}

// ModuleRecord is the frozen view of a module the manifest needs.
type ModuleRecord struct {
	ID       string
	Identity graph.Identity
	Size     int64
	Hash     string
}

// Result is the frozen chunk set of one partition pass.
type Result struct {
	Chunks  []*Chunk
	Modules map[graph.ModuleID]ModuleRecord

	// Seeds maps each seeded chunk (entry or split) to its root modules.
	Seeds map[string][]graph.ModuleID

	records *records.Records
	byName  map[string]*Chunk
}

func (r *Result) Chunk(name string) (*Chunk, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ChunksOf returns the chunks containing module id, in chunk order.
func (r *Result) ChunksOf(id graph.ModuleID) []*Chunk {
	var out []*Chunk
	for _, c := range r.Chunks {
		if c.Has(id) {
			out = append(out, c)
		}
	}
	return out
}

// Records returns the id assignments to persist for the next build.
func (r *Result) Records() *records.Records {
	return r.records.Clone()
}

// Closure returns the chunks loaded with name: its requirements, followed
// transitively. Children are included when withChildren is set.
func (r *Result) Closure(name string, withChildren bool) []string {
	seen := map[string]bool{name: true}
	order := []string{name}
	for i := 0; i < len(order); i++ {
		c, ok := r.byName[order[i]]
		if !ok {
			continue
		}
		next := make([]string, 0, len(c.Requires)+len(c.Children))
		for _, d := range c.Requires {
			next = append(next, d.Chunk)
		}
		if withChildren {
			next = append(next, c.Children...)
		}
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}
	return order
}
