// # internal/engine/chunk/apply.go
package chunk

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"fmt"
	"log/slog"
	"strings"
)

// applyRules runs the extraction rules in configured order. Each rule sees
// the chunk set the previous rules left behind.
func (p *partition) applyRules() error {
	for i := range p.opts.Rules {
		if err := p.applyRule(i, &p.opts.Rules[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *partition) applyRule(index int, r *Rule) error {
	if existing, ok := p.byName[r.Name]; ok && !p.ruleTargets[r.Name] {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("rule target collides with %s chunk %q", existing.Kind, existing.Name)),
			errors.CtxRule, r.Name,
		)
	}

	// Earlier rule targets are never sources: what a rule took stays taken.
	var sources []*Chunk
	for _, c := range p.chunks {
		if p.ruleTargets[c.Name] {
			continue
		}
		if r.selects(c) {
			sources = append(sources, c)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	// Candidates in chunk order then member order.
	counts := make(map[graph.ModuleID]int)
	names := make(map[graph.ModuleID][]string)
	var order []graph.ModuleID
	for _, src := range sources {
		for _, id := range src.Modules {
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
			names[id] = append(names[id], src.Name)
		}
	}
	if len(order) == 0 {
		return nil
	}

	infos := make([]ModuleInfo, len(order))
	fp := newFingerprinter()
	fp.add(r.Name, r.MinChunks, r.Match.Kind)
	for i, id := range order {
		mod, _ := p.g.Module(id)
		infos[i] = ModuleInfo{
			Identity:   mod.Identity,
			Size:       mod.Size,
			Chunks:     counts[id],
			ChunkNames: names[id],
		}
		fp.add(int(id), mod.Identity.String(), mod.Size, strings.Join(names[id], ","))
	}

	key := fmt.Sprintf("%d:%s", index, r.Name)
	fingerprint := fp.sum()
	matched, ok := p.memo.rule(key, fingerprint)
	if !ok {
		matched = matched[:0]
		for i, id := range order {
			hit, err := r.evaluate(infos[i])
			if err != nil {
				return err
			}
			if hit {
				matched = append(matched, id)
			}
		}
		p.memo.storeRule(key, fingerprint, matched)
	}
	if len(matched) == 0 {
		return nil
	}

	var total int64
	for _, id := range matched {
		if mod, ok := p.g.Module(id); ok {
			total += mod.Size
		}
	}
	if total < r.MinSize {
		slog.Debug("rule below minimum size", "rule", r.Name, "bytes", total, "min_size", r.MinSize)
		return nil
	}

	target, ok := p.byName[r.Name]
	if !ok {
		target = newChunk(r.Name, KindNormal)
		if err := p.addChunk(target); err != nil {
			return err
		}
		p.ruleTargets[r.Name] = true
	}

	drop := make(map[graph.ModuleID]bool, len(matched))
	for _, id := range matched {
		drop[id] = true
	}
	initial := false
	for _, src := range sources {
		if src.removeAll(drop) == 0 {
			continue
		}
		src.require(target.Name, false)
		if src.Kind != KindNormal {
			initial = true
		}
	}
	for _, id := range matched {
		target.add(id)
	}
	if initial {
		target.Kind = KindInitial
	}

	slog.Debug("rule applied", "rule", r.Name, "modules", len(matched), "bytes", total)
	return nil
}
