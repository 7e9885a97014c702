// # internal/engine/manifest/manifest.go
package manifest

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/shared/util"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FormatVersion is bumped whenever the JSON layout changes incompatibly.
const FormatVersion = 1

// ChunkRecord describes one chunk to the loader. All references are chunk
// ids, never names.
type ChunkRecord struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Modules []string `json:"modules"`
	// Requires must be loaded and run before this chunk.
	Requires []string `json:"requires,omitempty"`
	// Awaits are fetched in parallel and awaited before this chunk runs.
	Awaits []string `json:"awaits,omitempty"`
	// Async are loaded on demand from code inside this chunk.
	Async   []string `json:"async,omitempty"`
	Runtime bool     `json:"runtime,omitempty"`
	Hash    string   `json:"hash"`
}

type ModuleRecord struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"`
}

// EntryRecord maps an entry name to its chunk and full load group.
type EntryRecord struct {
	Name  string   `json:"name"`
	Chunk string   `json:"chunk"`
	Group []string `json:"group"`
}

type Manifest struct {
	Version int            `json:"version"`
	Hash    string         `json:"hash"`
	Entries []EntryRecord  `json:"entries"`
	Chunks  []ChunkRecord  `json:"chunks"`
	Modules []ModuleRecord `json:"modules"`

	byID map[string]int
}

// Build turns a frozen chunk set into the loader manifest and checks the
// invariants the loader depends on. Every error it returns is an engine
// defect, never a configuration problem.
func Build(res *chunk.Result) (*Manifest, error) {
	if res == nil {
		return nil, &errors.ManifestConsistencyError{Reason: "no chunk set"}
	}

	idOf := make(map[string]string, len(res.Chunks))
	for _, c := range res.Chunks {
		idOf[c.Name] = c.ID
	}
	ref := func(owner, name string) (string, error) {
		id, ok := idOf[name]
		if !ok {
			return "", &errors.ManifestConsistencyError{
				Chunks: []string{owner, name},
				Reason: "dangling chunk reference",
			}
		}
		return id, nil
	}

	m := &Manifest{Version: FormatVersion}
	seenModule := make(map[graph.ModuleID]bool)
	for _, c := range res.Chunks {
		rec := ChunkRecord{
			ID:      c.ID,
			Name:    c.Name,
			Kind:    c.Kind.String(),
			Modules: make([]string, 0, len(c.Modules)),
			Runtime: c.Runtime,
			Hash:    c.Hash,
		}
		for _, id := range c.Modules {
			mod, ok := res.Modules[id]
			if !ok {
				return nil, &errors.ManifestConsistencyError{
					Chunks: []string{c.Name},
					Reason: fmt.Sprintf("module %d has no record", id),
				}
			}
			rec.Modules = append(rec.Modules, mod.ID)
			if !seenModule[id] {
				seenModule[id] = true
				m.Modules = append(m.Modules, ModuleRecord{
					ID:       mod.ID,
					Identity: mod.Identity.String(),
					Size:     mod.Size,
					Hash:     mod.Hash,
				})
			}
		}
		for _, d := range c.Requires {
			id, err := ref(c.Name, d.Chunk)
			if err != nil {
				return nil, err
			}
			if d.Lazy {
				rec.Awaits = append(rec.Awaits, id)
			} else {
				rec.Requires = append(rec.Requires, id)
			}
		}
		for _, child := range c.Children {
			id, err := ref(c.Name, child)
			if err != nil {
				return nil, err
			}
			rec.Async = append(rec.Async, id)
		}
		m.Chunks = append(m.Chunks, rec)
	}

	for _, c := range res.Chunks {
		if c.Kind != chunk.KindEntry {
			continue
		}
		group := res.Closure(c.Name, true)
		ids := make([]string, len(group))
		for i, name := range group {
			id, err := ref(c.Name, name)
			if err != nil {
				return nil, err
			}
			ids[i] = id
		}
		m.Entries = append(m.Entries, EntryRecord{Name: c.Entry, Chunk: c.ID, Group: ids})
	}

	m.Hash = hashChunks(m.Chunks)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the loader invariants on the id-level view: unique ids,
// resolvable references, and exactly one runtime carrier per load group.
func (m *Manifest) Validate() error {
	if m.Version > FormatVersion {
		return errors.New(errors.CodeValidationError,
			fmt.Sprintf("manifest version %d is newer than supported version %d", m.Version, FormatVersion))
	}
	m.index()
	if len(m.byID) != len(m.Chunks) {
		return &errors.ManifestConsistencyError{Reason: "duplicate chunk id", Chunks: duplicateIDs(m.Chunks)}
	}

	modules := make(map[string]bool, len(m.Modules))
	for _, mod := range m.Modules {
		if modules[mod.ID] {
			return &errors.ManifestConsistencyError{Reason: fmt.Sprintf("duplicate module id %q", mod.ID)}
		}
		modules[mod.ID] = true
	}
	for _, c := range m.Chunks {
		if _, ok := chunk.ParseKind(c.Kind); !ok {
			return &errors.ManifestConsistencyError{Chunks: []string{c.Name}, Reason: fmt.Sprintf("unknown chunk kind %q", c.Kind)}
		}
		for _, list := range [][]string{c.Requires, c.Awaits, c.Async} {
			for _, id := range list {
				if _, ok := m.byID[id]; !ok {
					return &errors.ManifestConsistencyError{Chunks: []string{c.Name, id}, Reason: "dangling chunk reference"}
				}
			}
		}
		for _, id := range c.Modules {
			if !modules[id] {
				return &errors.ManifestConsistencyError{Chunks: []string{c.Name}, Reason: fmt.Sprintf("unknown module id %q", id)}
			}
		}
	}

	for _, c := range m.Chunks {
		if c.Kind != chunk.KindEntry.String() {
			continue
		}
		var carriers []string
		for _, id := range m.group(c.ID) {
			if rec := m.Chunks[m.byID[id]]; rec.Runtime {
				carriers = append(carriers, rec.Name)
			}
		}
		if len(carriers) != 1 {
			return &errors.ManifestConsistencyError{
				Group:  c.Name,
				Chunks: carriers,
				Reason: fmt.Sprintf("load group must carry exactly one runtime, found %d", len(carriers)),
			}
		}
	}
	return nil
}

func (m *Manifest) index() {
	m.byID = make(map[string]int, len(m.Chunks))
	for i, c := range m.Chunks {
		m.byID[c.ID] = i
	}
}

// group is the closure of id over requirements, awaits, and on-demand
// children.
func (m *Manifest) group(id string) []string {
	seen := map[string]bool{id: true}
	order := []string{id}
	for i := 0; i < len(order); i++ {
		idx, ok := m.byID[order[i]]
		if !ok {
			continue
		}
		c := m.Chunks[idx]
		for _, list := range [][]string{c.Requires, c.Awaits, c.Async} {
			for _, next := range list {
				if !seen[next] {
					seen[next] = true
					order = append(order, next)
				}
			}
		}
	}
	return order
}

// Chunk looks up a chunk record by id.
func (m *Manifest) Chunk(id string) (ChunkRecord, bool) {
	if m.byID == nil {
		m.index()
	}
	idx, ok := m.byID[id]
	if !ok {
		return ChunkRecord{}, false
	}
	return m.Chunks[idx], true
}

// ChunkByName looks up a chunk record by name.
func (m *Manifest) ChunkByName(name string) (ChunkRecord, bool) {
	for _, c := range m.Chunks {
		if c.Name == name {
			return c, true
		}
	}
	return ChunkRecord{}, false
}

// Matches reports whether m was built from res. A manifest paired with a
// different chunk set must not be emitted.
func (m *Manifest) Matches(res *chunk.Result) bool {
	if m == nil || res == nil || len(m.Chunks) != len(res.Chunks) {
		return false
	}
	recs := make([]ChunkRecord, len(res.Chunks))
	for i, c := range res.Chunks {
		recs[i] = ChunkRecord{ID: c.ID, Name: c.Name, Hash: c.Hash}
	}
	return hashChunks(recs) == m.Hash
}

func hashChunks(chunks []ChunkRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d", FormatVersion)
	for _, c := range chunks {
		fmt.Fprintf(h, "\x00%s\x00%s\x00%s", c.ID, c.Name, c.Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func duplicateIDs(chunks []ChunkRecord) []string {
	counts := make(map[string]int)
	for _, c := range chunks {
		counts[c.ID]++
	}
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}
	return &m, nil
}
