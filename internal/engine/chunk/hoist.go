// # internal/engine/chunk/hoist.go
package chunk

import (
	"bundlegraph/internal/engine/graph"
	"log/slog"
)

func (p *partition) hoist() {
	switch p.opts.Hoist {
	case HoistParent:
		p.hoistIntoParents()
	case HoistAsync:
		p.hoistIntoShared()
	}
}

// available is what a chunk guarantees to be loaded once it has run: its own
// modules and those of its sync requirements. Only direct requirements
// count; hoisting does not look further up the chain.
func (p *partition) available(name string) map[graph.ModuleID]bool {
	c, ok := p.byName[name]
	if !ok {
		return nil
	}
	out := make(map[graph.ModuleID]bool, len(c.Modules))
	for _, id := range c.Modules {
		out[id] = true
	}
	for _, dep := range c.syncRequires() {
		if d, ok := p.byName[dep]; ok {
			for _, id := range d.Modules {
				out[id] = true
			}
		}
	}
	return out
}

// hoistIntoParents drops from every split chunk the modules each of its
// parents already provides.
func (p *partition) hoistIntoParents() {
	for _, c := range p.chunks {
		if len(c.Parents) == 0 || len(c.Modules) == 0 {
			continue
		}
		var common map[graph.ModuleID]bool
		for i, parent := range c.Parents {
			avail := p.available(parent)
			if i == 0 {
				common = avail
				continue
			}
			for id := range common {
				if !avail[id] {
					delete(common, id)
				}
			}
		}

		drop := make(map[graph.ModuleID]bool)
		for _, id := range c.Modules {
			if common[id] {
				drop[id] = true
			}
		}
		if n := c.removeAll(drop); n > 0 {
			slog.Debug("hoisted modules into parents", "chunk", c.Name, "parents", c.Parents, "modules", n)
		}
	}
}

// hoistIntoShared moves the modules a parent and its child both hold into a
// lazy chunk named "parent~child" that both await.
func (p *partition) hoistIntoShared() {
	snapshot := append([]*Chunk(nil), p.chunks...)
	for _, c := range snapshot {
		for _, parentName := range c.Parents {
			parent := p.byName[parentName]
			var shared []graph.ModuleID
			for _, id := range c.Modules {
				if parent.Has(id) {
					shared = append(shared, id)
				}
			}
			if len(shared) == 0 {
				continue
			}

			x := newChunk(p.uniqueName(parent.Name+"~"+c.Name), KindNormal)
			drop := make(map[graph.ModuleID]bool, len(shared))
			for _, id := range shared {
				x.add(id)
				drop[id] = true
			}
			// uniqueName guarantees addChunk succeeds.
			_ = p.addChunk(x)
			parent.removeAll(drop)
			c.removeAll(drop)
			parent.require(x.Name, true)
			c.require(x.Name, true)
			slog.Debug("hoisted shared modules", "chunk", x.Name, "modules", len(shared))
		}
	}
}
