// # internal/engine/chunk/engine.go
package chunk

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/data/records"
	"bundlegraph/internal/engine/entry"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/shared/observability"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

type HoistMode string

const (
	HoistNone   HoistMode = "none"
	HoistParent HoistMode = "parent"
	HoistAsync  HoistMode = "async"
)

type IDMode string

const (
	IDNumeric IDMode = "numeric"
	IDHash    IDMode = "hash"
)

type RuntimeMode string

const (
	RuntimeEmbedded RuntimeMode = "embedded"
	RuntimeSingle   RuntimeMode = "single"
	RuntimePerEntry RuntimeMode = "per-entry"
)

const (
	RuntimeChunkName   = "runtime"
	defaultHashLength  = 8
	runtimeChunkPrefix = "runtime~"
)

type Options struct {
	Rules      []Rule
	Hoist      HoistMode
	IDs        IDMode
	Runtime    RuntimeMode
	HashLength int
}

// Engine partitions a module graph into chunks. It holds no per-pass state
// and may be reused.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Hoist == "" {
		opts.Hoist = HoistNone
	}
	if opts.IDs == "" {
		opts.IDs = IDNumeric
	}
	if opts.Runtime == "" {
		opts.Runtime = RuntimeEmbedded
	}
	if opts.HashLength <= 0 {
		opts.HashLength = defaultHashLength
	}

	switch opts.Hoist {
	case HoistNone, HoistParent, HoistAsync:
	default:
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown hoist mode %q", opts.Hoist))
	}
	switch opts.IDs {
	case IDNumeric, IDHash:
	default:
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown id mode %q", opts.IDs))
	}
	switch opts.Runtime {
	case RuntimeEmbedded, RuntimeSingle, RuntimePerEntry:
	default:
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown runtime mode %q", opts.Runtime))
	}
	if opts.HashLength > 64 {
		opts.HashLength = 64
	}

	rules := make([]Rule, len(opts.Rules))
	copy(rules, opts.Rules)
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			return nil, err
		}
	}
	opts.Rules = rules
	return &Engine{opts: opts}, nil
}

func (e *Engine) Options() Options {
	return e.opts
}

type partition struct {
	g    *graph.Graph
	opts *Options
	memo *Memo

	entries     []*entry.Entry
	chunks      []*Chunk
	byName      map[string]*Chunk
	splitByRoot map[graph.ModuleID]*Chunk
	ruleTargets map[string]bool
	seeds       map[string][]graph.ModuleID
	pending     []splitRequest
}

type splitRequest struct {
	parent string // empty for orphan split points
	root   graph.ModuleID
}

// Partition runs seeding, split-point extraction, extraction rules, hoisting,
// runtime placement, and id assignment over a graph that discovery has
// finished with. prev carries the ids of the previous build; memo may be nil.
func (e *Engine) Partition(g *graph.Graph, entries []*entry.Entry, prev *records.Records, memo *Memo) (*Result, error) {
	start := time.Now()
	if len(entries) == 0 {
		return nil, errors.New(errors.CodeValidationError, "at least one entry is required")
	}

	p := &partition{
		g:           g,
		opts:        &e.opts,
		memo:        memo,
		entries:     entries,
		byName:      make(map[string]*Chunk),
		splitByRoot: make(map[graph.ModuleID]*Chunk),
		ruleTargets: make(map[string]bool),
		seeds:       make(map[string][]graph.ModuleID),
	}

	order, err := dependencyOrder(entries)
	if err != nil {
		return nil, err
	}
	if err := p.seedEntries(order); err != nil {
		return nil, err
	}
	p.extractSplitPoints()
	if err := p.applyRules(); err != nil {
		return nil, err
	}
	p.hoist()
	if err := p.placeRuntime(order); err != nil {
		return nil, err
	}

	if err := prev.Validate(); err != nil {
		slog.Warn("ignoring invalid records", "error", err)
		prev = nil
	}
	res := p.freeze(prev)

	observability.Chunks.Set(float64(len(res.Chunks)))
	slog.Debug("partition complete",
		"chunks", len(res.Chunks),
		"modules", len(res.Modules),
		"duration", time.Since(start))
	return res, nil
}

func (p *partition) addChunk(c *Chunk) error {
	if _, exists := p.byName[c.Name]; exists {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, "chunk name is already taken"),
			errors.CtxChunk, c.Name,
		)
	}
	p.chunks = append(p.chunks, c)
	p.byName[c.Name] = c
	return nil
}

// dependencyOrder places every DependOn target ahead of its dependents and
// rejects unknown names and cycles.
func dependencyOrder(entries []*entry.Entry) ([]*entry.Entry, error) {
	byName := make(map[string]*entry.Entry, len(entries))
	for _, en := range entries {
		if _, dup := byName[en.Name]; dup {
			return nil, &errors.DuplicateEntryError{Name: en.Name}
		}
		byName[en.Name] = en
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(entries))
	out := make([]*entry.Entry, 0, len(entries))
	var visit func(en *entry.Entry) error
	visit = func(en *entry.Entry) error {
		switch state[en.Name] {
		case visiting:
			return errors.AddContext(errors.New(errors.CodeValidationError, "dependOn cycle"), errors.CtxEntry, en.Name)
		case done:
			return nil
		}
		state[en.Name] = visiting
		for _, dep := range en.DependOn {
			d, ok := byName[dep]
			if !ok {
				return errors.AddContext(
					errors.New(errors.CodeValidationError, fmt.Sprintf("dependOn names unknown entry %q", dep)),
					errors.CtxEntry, en.Name,
				)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		state[en.Name] = done
		out = append(out, en)
		return nil
	}
	for _, en := range entries {
		if err := visit(en); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// seedEntries creates one entry chunk per entry holding its static closure,
// then removes what DependOn targets already provide.
func (p *partition) seedEntries(order []*entry.Entry) error {
	splits := make(map[string][]graph.ModuleID, len(p.entries))
	for _, en := range p.entries {
		if len(en.Roots) == 0 {
			return errors.AddContext(
				errors.New(errors.CodeValidationError, "entry has no resolved roots"),
				errors.CtxEntry, en.Name,
			)
		}
		c := newChunk(en.Name, KindEntry)
		c.Entry = en.Name
		members, sp := p.memo.seed(p.g, en.Roots)
		for _, id := range members {
			c.add(id)
		}
		if err := p.addChunk(c); err != nil {
			return err
		}
		p.seeds[c.Name] = append([]graph.ModuleID(nil), en.Roots...)
		splits[c.Name] = sp
	}

	provided := make(map[string]map[graph.ModuleID]bool, len(order))
	for _, en := range order {
		c := p.byName[en.Name]
		prov := make(map[graph.ModuleID]bool)
		for _, dep := range en.DependOn {
			for id := range provided[dep] {
				prov[id] = true
			}
			c.require(dep, false)
		}
		if len(prov) > 0 {
			drop := make(map[graph.ModuleID]bool)
			for _, id := range c.Modules {
				if prov[id] {
					drop[id] = true
				}
			}
			if n := c.removeAll(drop); n > 0 {
				slog.Debug("dependOn removed provided modules", "entry", en.Name, "modules", n)
			}
		}
		for _, id := range c.Modules {
			prov[id] = true
		}
		provided[en.Name] = prov
	}

	for _, en := range p.entries {
		for _, root := range splits[en.Name] {
			p.pending = append(p.pending, splitRequest{parent: en.Name, root: root})
		}
	}
	return nil
}

// extractSplitPoints turns every dynamic import target into one normal
// chunk, shared by all importers, then seeds pinned modules no chunk holds
// and sweeps the graph for dynamic edges the entries never reached.
func (p *partition) extractSplitPoints() {
	p.drainSplits()

	held := make(map[graph.ModuleID]bool)
	for _, c := range p.chunks {
		for _, id := range c.Modules {
			held[id] = true
		}
	}
	for _, id := range p.g.Pinned() {
		if held[id] || p.splitByRoot[id] != nil {
			continue
		}
		p.pending = append(p.pending, splitRequest{root: id})
		p.drainSplits()
		if c := p.splitByRoot[id]; c != nil {
			slog.Debug("pinned module seeded", "chunk", c.Name)
			for _, m := range c.Modules {
				held[m] = true
			}
		}
	}

	mods := p.g.Modules()
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Identity.String() < mods[j].Identity.String()
	})
	for _, mod := range mods {
		for _, e := range p.g.Edges(mod.ID) {
			if e.Kind != graph.EdgeDynamic || p.splitByRoot[e.Target] != nil {
				continue
			}
			slog.Debug("orphan split point", "importer", mod.Identity.String())
			p.pending = append(p.pending, splitRequest{root: e.Target})
			p.drainSplits()
		}
	}
}

func (p *partition) drainSplits() {
	for len(p.pending) > 0 {
		req := p.pending[0]
		p.pending = p.pending[1:]

		c, ok := p.splitByRoot[req.root]
		if !ok {
			mod, exists := p.g.Module(req.root)
			if !exists {
				continue
			}
			c = newChunk(p.uniqueName(splitName(mod.Identity)), KindNormal)
			c.Root = req.root
			members, sp := p.memo.seed(p.g, []graph.ModuleID{req.root})
			for _, id := range members {
				c.add(id)
			}
			// uniqueName guarantees addChunk succeeds.
			_ = p.addChunk(c)
			p.splitByRoot[req.root] = c
			p.seeds[c.Name] = []graph.ModuleID{req.root}
			for _, root := range sp {
				p.pending = append(p.pending, splitRequest{parent: c.Name, root: root})
			}
		}

		if req.parent != "" && req.parent != c.Name {
			parent := p.byName[req.parent]
			parent.Children = appendUnique(parent.Children, c.Name)
			c.Parents = appendUnique(c.Parents, parent.Name)
		}
	}
}

// splitName derives a chunk name from the split root, e.g.
// "src/pages/about.js" -> "src_pages_about_js".
func splitName(id graph.Identity) string {
	var b strings.Builder
	for _, r := range id.String() {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func (p *partition) uniqueName(base string) string {
	if base == "" {
		base = "chunk"
	}
	name := base
	for i := 2; p.byName[name] != nil; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name
}
