// # internal/engine/chunk/runtime.go
package chunk

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/entry"
	"fmt"
	"sort"
)

// placeRuntime marks the chunks carrying the module-loading runtime so that
// every load group has exactly one. Entries with DependOn share the runtime
// of what they depend on.
func (p *partition) placeRuntime(order []*entry.Entry) error {
	owner := make(map[string]string, len(order))
	for _, en := range order {
		if len(en.DependOn) == 0 {
			owner[en.Name] = en.Name
			continue
		}
		owners := make(map[string]bool)
		for _, dep := range en.DependOn {
			owners[owner[dep]] = true
		}
		if len(owners) > 1 && p.opts.Runtime != RuntimeSingle {
			names := make([]string, 0, len(owners))
			for n := range owners {
				names = append(names, n)
			}
			sort.Strings(names)
			return errors.AddContext(
				errors.New(errors.CodeValidationError,
					fmt.Sprintf("dependOn targets carry different runtimes %v; use the single runtime mode", names)),
				errors.CtxEntry, en.Name,
			)
		}
		owner[en.Name] = owner[en.DependOn[0]]
	}

	switch p.opts.Runtime {
	case RuntimeEmbedded:
		for _, en := range p.entries {
			if owner[en.Name] == en.Name {
				p.byName[en.Name].Runtime = true
			}
		}
	case RuntimeSingle:
		rt := newChunk(RuntimeChunkName, KindInitial)
		rt.Runtime = true
		if err := p.addChunk(rt); err != nil {
			return err
		}
		for _, en := range p.entries {
			requireFirst(p.byName[en.Name], rt.Name)
		}
	case RuntimePerEntry:
		for _, en := range p.entries {
			if owner[en.Name] != en.Name {
				continue
			}
			rt := newChunk(runtimeChunkPrefix+en.Name, KindInitial)
			rt.Runtime = true
			if err := p.addChunk(rt); err != nil {
				return err
			}
		}
		for _, en := range p.entries {
			requireFirst(p.byName[en.Name], runtimeChunkPrefix+owner[en.Name])
		}
	}
	return nil
}

// requireFirst adds a sync requirement ahead of the existing ones; the
// runtime has to load before anything else in the group.
func requireFirst(c *Chunk, name string) {
	for _, d := range c.Requires {
		if d.Chunk == name {
			return
		}
	}
	c.Requires = append([]Dependency{{Chunk: name}}, c.Requires...)
}
