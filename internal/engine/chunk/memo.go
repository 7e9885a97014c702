// # internal/engine/chunk/memo.go
package chunk

import (
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/shared/observability"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"sync"
)

type seedResult struct {
	roots   []graph.ModuleID
	members []graph.ModuleID
	splits  []graph.ModuleID
}

type ruleResult struct {
	fingerprint string
	matched     []graph.ModuleID
}

// Memo keeps seed closures and rule outcomes between partition passes over
// the same graph lineage. Module IDs in it are only meaningful for that
// lineage.
type Memo struct {
	mu    sync.Mutex
	seeds map[string]seedResult
	rules map[string]ruleResult

	seedHits int
	ruleHits int
}

func NewMemo() *Memo {
	return &Memo{
		seeds: make(map[string]seedResult),
		rules: make(map[string]ruleResult),
	}
}

type MemoStats struct {
	Seeds    int
	Rules    int
	SeedHits int
	RuleHits int
}

func (m *Memo) Stats() MemoStats {
	if m == nil {
		return MemoStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoStats{Seeds: len(m.seeds), Rules: len(m.rules), SeedHits: m.seedHits, RuleHits: m.ruleHits}
}

// Reset drops everything.
func (m *Memo) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds = make(map[string]seedResult)
	m.rules = make(map[string]ruleResult)
}

// InvalidateRoots drops every seed closure rooted at a module in affected.
// A closure can only change when one of its roots reaches a changed module,
// so callers pass the transitive importers of the changed set.
func (m *Memo) InvalidateRoots(affected map[graph.ModuleID]bool) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, s := range m.seeds {
		for _, r := range s.roots {
			if affected[r] {
				delete(m.seeds, key)
				dropped++
				break
			}
		}
	}
	return dropped
}

func seedKey(roots []graph.ModuleID) string {
	parts := make([]string, len(roots))
	for i, r := range roots {
		parts[i] = fmt.Sprint(int(r))
	}
	return strings.Join(parts, ",")
}

func (m *Memo) seed(g *graph.Graph, roots []graph.ModuleID) (members, splits []graph.ModuleID) {
	if m == nil {
		return g.ReachableStatic(roots)
	}
	key := seedKey(roots)

	m.mu.Lock()
	if s, ok := m.seeds[key]; ok {
		m.seedHits++
		m.mu.Unlock()
		observability.MemoReuseTotal.WithLabelValues("seed").Inc()
		return s.members, s.splits
	}
	m.mu.Unlock()

	members, splits = g.ReachableStatic(roots)
	m.mu.Lock()
	m.seeds[key] = seedResult{
		roots:   append([]graph.ModuleID(nil), roots...),
		members: members,
		splits:  splits,
	}
	m.mu.Unlock()
	return members, splits
}

// rule returns the matched modules stored for rule key when fingerprint is
// unchanged.
func (m *Memo) rule(key, fingerprint string) ([]graph.ModuleID, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[key]
	if !ok || r.fingerprint != fingerprint {
		return nil, false
	}
	m.ruleHits++
	observability.MemoReuseTotal.WithLabelValues("rule").Inc()
	return r.matched, true
}

func (m *Memo) storeRule(key, fingerprint string, matched []graph.ModuleID) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[key] = ruleResult{fingerprint: fingerprint, matched: append([]graph.ModuleID(nil), matched...)}
}

// fingerprinter hashes the inputs a rule sees.
type fingerprinter struct {
	h hash.Hash
}

func newFingerprinter() *fingerprinter {
	return &fingerprinter{h: sha256.New()}
}

func (f *fingerprinter) add(parts ...any) {
	for _, p := range parts {
		fmt.Fprint(f.h, p)
		f.h.Write([]byte{0})
	}
}

func (f *fingerprinter) sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
