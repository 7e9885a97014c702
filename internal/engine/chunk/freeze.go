// # internal/engine/chunk/freeze.go
package chunk

import (
	"bundlegraph/internal/data/records"
	"bundlegraph/internal/engine/graph"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// freeze computes content hashes and ids and packages the chunk set.
// Module order follows chunk order then member order, never ModuleID order,
// which depends on discovery scheduling.
func (p *partition) freeze(prev *records.Records) *Result {
	res := &Result{
		Chunks:  p.chunks,
		Modules: make(map[graph.ModuleID]ModuleRecord),
		Seeds:   p.seeds,
		byName:  p.byName,
	}

	var order []graph.ModuleID
	for _, c := range p.chunks {
		for _, id := range c.Modules {
			if _, seen := res.Modules[id]; seen {
				continue
			}
			mod, ok := p.g.Module(id)
			if !ok {
				continue
			}
			res.Modules[id] = ModuleRecord{Identity: mod.Identity, Size: mod.Size, Hash: mod.Hash}
			order = append(order, id)
		}
	}

	for _, c := range p.chunks {
		c.Hash = p.contentHash(c, res.Modules)
	}

	switch p.opts.IDs {
	case IDHash:
		n := p.opts.HashLength
		full := make([]string, len(order))
		for i, id := range order {
			full[i] = fullHash(res.Modules[id].Identity.String())
		}
		for i, short := range uniquePrefixes(full, n) {
			rec := res.Modules[order[i]]
			rec.ID = short
			res.Modules[order[i]] = rec
		}
		hashes := make([]string, len(p.chunks))
		for i, c := range p.chunks {
			hashes[i] = c.Hash
		}
		for i, short := range uniquePrefixes(hashes, n) {
			p.chunks[i].ID = short
		}
		res.records = prev.Clone()
	default:
		next := prev.Successor()
		for _, c := range p.chunks {
			c.ID = strconv.Itoa(next.AssignChunk(prev, c.Name))
		}
		for _, id := range order {
			rec := res.Modules[id]
			rec.ID = strconv.Itoa(next.AssignModule(prev, rec.Identity.String()))
			res.Modules[id] = rec
		}
		res.records = next
	}
	return res
}

// contentHash covers the chunk name, kind, runtime flag, and the sorted
// identities and content hashes of its members.
func (p *partition) contentHash(c *Chunk, mods map[graph.ModuleID]ModuleRecord) string {
	members := make([]string, 0, len(c.Modules))
	for _, id := range c.Modules {
		rec := mods[id]
		members = append(members, rec.Identity.String()+"\x00"+rec.Hash)
	}
	sort.Strings(members)

	h := sha256.New()
	h.Write([]byte(c.Name))
	h.Write([]byte{0})
	h.Write([]byte(c.Kind.String()))
	if c.Runtime {
		h.Write([]byte("\x00runtime"))
	}
	for _, m := range members {
		h.Write([]byte{0})
		h.Write([]byte(m))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fullHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func prefix(h string, n int) string {
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}

// uniquePrefixes shortens each hash to n characters. Hashes that collide at
// n are lengthened together until the colliding group is unique, so an id
// depends only on the hashes sharing its prefix, never on input order.
// The hashes themselves must be distinct.
func uniquePrefixes(hashes []string, n int) []string {
	out := make([]string, len(hashes))
	groups := make(map[string][]int, len(hashes))
	for i, h := range hashes {
		p := prefix(h, n)
		groups[p] = append(groups[p], i)
	}
	for p, idx := range groups {
		if len(idx) == 1 {
			out[idx[0]] = p
			continue
		}
		for l := len(p) + 1; ; l++ {
			seen := make(map[string]bool, len(idx))
			unique := true
			for _, i := range idx {
				q := prefix(hashes[i], l)
				if seen[q] {
					unique = false
					break
				}
				seen[q] = true
			}
			if unique || l >= len(hashes[idx[0]]) {
				for _, i := range idx {
					out[i] = prefix(hashes[i], l)
				}
				break
			}
		}
	}
	return out
}
