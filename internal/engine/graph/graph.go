// # internal/engine/graph/graph.go
package graph

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/shared/observability"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// ModuleID indexes a module inside the graph arena. IDs are never reused
// within one graph, so a removed module's ID stays dangling rather than
// pointing at a newer module.
type ModuleID int

const NoModule ModuleID = -1

type EdgeKind uint8

const (
	EdgeStatic EdgeKind = iota
	EdgeDynamic
)

func (k EdgeKind) String() string {
	if k == EdgeDynamic {
		return "dynamic"
	}
	return "static"
}

// Identity is the canonical name of a module: its project-relative resolved
// path plus an optional "?query" variant discriminator.
type Identity struct {
	Path  string
	Query string
}

func (i Identity) String() string {
	return i.Path + i.Query
}

// ParseIdentity splits "path?query" into an Identity.
func ParseIdentity(s string) Identity {
	if idx := strings.IndexByte(s, '?'); idx >= 0 {
		return Identity{Path: s[:idx], Query: s[idx:]}
	}
	return Identity{Path: s}
}

type Edge struct {
	Specifier string
	Target    ModuleID
	Kind      EdgeKind
}

type Module struct {
	ID       ModuleID
	Identity Identity
	Size     int64
	Hash     string
	Edges    []Edge
}

// Context is the directory specifiers inside this module resolve against.
func (m *Module) Context() string {
	return path.Dir(m.Identity.Path)
}

// Resolver maps a specifier requested from a context directory to a
// canonical identity.
type Resolver interface {
	Resolve(specifier, fromContext string) (Identity, error)
}

type ledgerKey struct {
	context   string
	specifier string
}

// Graph is the module arena owned by one build pass. All mutation goes
// through the graph lock, which makes identity dedupe linearizable across
// concurrent discovery workers.
type Graph struct {
	mu sync.RWMutex

	resolver Resolver

	modules []*Module // arena; nil slots are removed modules
	index   map[Identity]ModuleID

	// Reverse edges: target -> importer -> number of edges.
	importedBy map[ModuleID]map[ModuleID]int

	pinned map[ModuleID]bool
	ledger map[ledgerKey]Identity

	edgeCount int
	version   uint64
}

func New(resolver Resolver) *Graph {
	return &Graph{
		resolver:   resolver,
		index:      make(map[Identity]ModuleID),
		importedBy: make(map[ModuleID]map[ModuleID]int),
		pinned:     make(map[ModuleID]bool),
		ledger:     make(map[ledgerKey]Identity),
	}
}

// AddModule returns the module for identity, creating it if absent. The
// boolean reports whether the module was created by this call.
func (g *Graph) AddModule(identity Identity) (*Module, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addModuleLocked(identity)
}

func (g *Graph) addModuleLocked(identity Identity) (*Module, bool) {
	if id, ok := g.index[identity]; ok {
		return g.modules[id], false
	}
	mod := &Module{ID: ModuleID(len(g.modules)), Identity: identity}
	g.modules = append(g.modules, mod)
	g.index[identity] = mod.ID
	g.version++
	g.publishLocked()
	return mod, true
}

// AddRoot resolves specifier from context and adds the resulting module.
func (g *Graph) AddRoot(specifier, context string) (*Module, error) {
	identity, err := g.resolve(specifier, context, "")
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recordLocked(context, specifier, identity); err != nil {
		return nil, err
	}
	mod, _ := g.addModuleLocked(identity)
	return mod, nil
}

// AddEdge resolves specifier relative to the importing module, creates the
// target module if it is not yet known and records the edge.
func (g *Graph) AddEdge(from ModuleID, specifier string, kind EdgeKind) (*Module, error) {
	g.mu.RLock()
	src := g.moduleLocked(from)
	g.mu.RUnlock()
	if src == nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("module %d is not in the graph", from))
	}

	context := src.Context()
	identity, err := g.resolve(specifier, context, src.Identity.String())
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.moduleLocked(from) == nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("module %d was removed during discovery", from))
	}
	if err := g.recordLocked(context, specifier, identity); err != nil {
		return nil, err
	}

	target, _ := g.addModuleLocked(identity)
	src.Edges = append(src.Edges, Edge{Specifier: specifier, Target: target.ID, Kind: kind})
	if g.importedBy[target.ID] == nil {
		g.importedBy[target.ID] = make(map[ModuleID]int)
	}
	g.importedBy[target.ID][from]++
	g.edgeCount++
	g.version++
	g.publishLocked()
	return target, nil
}

func (g *Graph) resolve(specifier, context, importer string) (Identity, error) {
	g.mu.RLock()
	r := g.resolver
	g.mu.RUnlock()
	if r == nil {
		return Identity{}, &errors.ResolutionError{Specifier: specifier, Context: context, Importer: importer, Reason: "no resolver configured"}
	}

	identity, err := r.Resolve(specifier, context)
	if err != nil {
		var re *errors.ResolutionError
		if stderrors.As(err, &re) {
			cp := *re
			cp.Importer = importer
			return Identity{}, &cp
		}
		return Identity{}, err
	}
	return identity, nil
}

func (g *Graph) recordLocked(context, specifier string, identity Identity) error {
	key := ledgerKey{context: context, specifier: specifier}
	if prev, ok := g.ledger[key]; ok && prev != identity {
		return &errors.InconsistentResolutionError{
			Specifier: specifier,
			Context:   context,
			First:     prev.String(),
			Second:    identity.String(),
		}
	}
	g.ledger[key] = identity
	return nil
}

// ResetLedger forgets the resolutions recorded so far. A build pass calls it
// before rediscovering modules after a resolver configuration change.
func (g *Graph) ResetLedger() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ledger = make(map[ledgerKey]Identity)
}

// ClearEdges drops every outgoing edge of id ahead of rediscovery.
func (g *Graph) ClearEdges(id ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	mod := g.moduleLocked(id)
	if mod == nil || len(mod.Edges) == 0 {
		return
	}
	for _, e := range mod.Edges {
		g.dropReverseLocked(e.Target, id)
	}
	g.edgeCount -= len(mod.Edges)
	mod.Edges = nil
	g.version++
	g.publishLocked()
}

func (g *Graph) dropReverseLocked(target, importer ModuleID) {
	importers := g.importedBy[target]
	if importers == nil {
		return
	}
	importers[importer]--
	if importers[importer] <= 0 {
		delete(importers, importer)
	}
	if len(importers) == 0 {
		delete(g.importedBy, target)
	}
}

// SetContent records the size and content hash of a module and reports
// whether either changed.
func (g *Graph) SetContent(id ModuleID, size int64, hash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	mod := g.moduleLocked(id)
	if mod == nil || (mod.Size == size && mod.Hash == hash) {
		return false
	}
	mod.Size = size
	mod.Hash = hash
	g.version++
	return true
}

// Pin keeps id alive through RemoveUnreachable even when no root reaches it.
func (g *Graph) Pin(id ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.moduleLocked(id) != nil {
		g.pinned[id] = true
	}
}

func (g *Graph) Unpin(id ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pinned, id)
}

// Pinned returns the pinned modules ordered by identity.
func (g *Graph) Pinned() []ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ModuleID, 0, len(g.pinned))
	for id := range g.pinned {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return g.modules[out[i]].Identity.String() < g.modules[out[j]].Identity.String()
	})
	return out
}

// ReachableFrom walks the graph breadth-first from roots, following the
// edges accepted by follow (all edges when follow is nil). The order is
// roots first, then edges in recorded order, so it is stable across runs.
func (g *Graph) ReachableFrom(roots []ModuleID, follow func(Edge) bool) []ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(roots, follow)
}

func (g *Graph) reachableLocked(roots []ModuleID, follow func(Edge) bool) []ModuleID {
	seen := make(map[ModuleID]bool, len(roots))
	order := make([]ModuleID, 0, len(roots))
	queue := make([]ModuleID, 0, len(roots))
	for _, r := range roots {
		if g.moduleLocked(r) == nil || seen[r] {
			continue
		}
		seen[r] = true
		queue = append(queue, r)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, e := range g.modules[id].Edges {
			if follow != nil && !follow(e) {
				continue
			}
			if seen[e.Target] || g.moduleLocked(e.Target) == nil {
				continue
			}
			seen[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return order
}

// ReachableStatic returns the static closure of roots. Dynamic edges stop
// the traversal; their targets are returned as split roots in discovery
// order without duplicates.
func (g *Graph) ReachableStatic(roots []ModuleID) (members, splitRoots []ModuleID) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seenSplit := make(map[ModuleID]bool)
	members = g.reachableLocked(roots, func(e Edge) bool {
		return e.Kind == EdgeStatic
	})
	for _, id := range members {
		for _, e := range g.modules[id].Edges {
			if e.Kind != EdgeDynamic || seenSplit[e.Target] || g.moduleLocked(e.Target) == nil {
				continue
			}
			seenSplit[e.Target] = true
			splitRoots = append(splitRoots, e.Target)
		}
	}
	return members, splitRoots
}

// RemoveUnreachable deletes every module that neither roots nor pinned
// modules reach over any edge kind. It returns the removed IDs in order.
func (g *Graph) RemoveUnreachable(roots []ModuleID) []ModuleID {
	g.mu.Lock()
	defer g.mu.Unlock()

	all := append([]ModuleID(nil), roots...)
	pinned := make([]ModuleID, 0, len(g.pinned))
	for id := range g.pinned {
		pinned = append(pinned, id)
	}
	sort.Slice(pinned, func(i, j int) bool { return pinned[i] < pinned[j] })
	all = append(all, pinned...)

	live := make(map[ModuleID]bool)
	for _, id := range g.reachableLocked(all, nil) {
		live[id] = true
	}

	var removed []ModuleID
	for id, mod := range g.modules {
		if mod == nil || live[ModuleID(id)] {
			continue
		}
		for _, e := range mod.Edges {
			g.dropReverseLocked(e.Target, mod.ID)
		}
		g.edgeCount -= len(mod.Edges)
		delete(g.importedBy, mod.ID)
		delete(g.index, mod.Identity)
		delete(g.pinned, mod.ID)
		g.modules[id] = nil
		removed = append(removed, mod.ID)
	}

	if len(removed) > 0 {
		g.version++
		g.publishLocked()
	}
	return removed
}

// Importers returns the modules with at least one edge into id.
func (g *Graph) Importers(id ModuleID) []ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	importers := make([]ModuleID, 0, len(g.importedBy[id]))
	for from := range g.importedBy[id] {
		importers = append(importers, from)
	}
	sort.Slice(importers, func(i, j int) bool { return importers[i] < importers[j] })
	return importers
}

func (g *Graph) Module(id ModuleID) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mod := g.moduleLocked(id)
	return mod, mod != nil
}

func (g *Graph) Lookup(identity Identity) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.index[identity]
	if !ok {
		return nil, false
	}
	return g.modules[id], true
}

// Edges returns a copy of id's outgoing edges.
func (g *Graph) Edges(id ModuleID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mod := g.moduleLocked(id)
	if mod == nil {
		return nil
	}
	return append([]Edge(nil), mod.Edges...)
}

// Modules returns the live modules in ID order.
func (g *Graph) Modules() []*Module {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Module, 0, len(g.index))
	for _, mod := range g.modules {
		if mod != nil {
			out = append(out, mod)
		}
	}
	return out
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeCount
}

// Version increases on every mutation.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Clone copies the arena so a pass can mutate it and be thrown away on
// cancellation. Module pointers in the clone are distinct from the source.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := &Graph{
		resolver:   g.resolver,
		modules:    make([]*Module, len(g.modules)),
		index:      make(map[Identity]ModuleID, len(g.index)),
		importedBy: make(map[ModuleID]map[ModuleID]int, len(g.importedBy)),
		pinned:     make(map[ModuleID]bool, len(g.pinned)),
		ledger:     make(map[ledgerKey]Identity, len(g.ledger)),
		edgeCount:  g.edgeCount,
		version:    g.version,
	}
	for i, mod := range g.modules {
		if mod == nil {
			continue
		}
		cp := *mod
		cp.Edges = append([]Edge(nil), mod.Edges...)
		c.modules[i] = &cp
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for target, importers := range g.importedBy {
		m := make(map[ModuleID]int, len(importers))
		for k, v := range importers {
			m[k] = v
		}
		c.importedBy[target] = m
	}
	for k, v := range g.pinned {
		c.pinned[k] = v
	}
	for k, v := range g.ledger {
		c.ledger[k] = v
	}
	return c
}

func (g *Graph) moduleLocked(id ModuleID) *Module {
	if id < 0 || int(id) >= len(g.modules) {
		return nil
	}
	return g.modules[id]
}

func (g *Graph) publishLocked() {
	observability.GraphNodes.Set(float64(len(g.index)))
	observability.GraphEdges.Set(float64(g.edgeCount))
}
