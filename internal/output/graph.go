// # internal/output/graph.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"fmt"
	"sort"
	"strings"
)

type edgeKind uint8

const (
	edgeRequires edgeKind = iota
	edgeAwaits
	edgeAsync
)

type chunkEdge struct {
	from, to string
	kind     edgeKind
}

// chunkView is the renderer-neutral projection of a manifest: chunk
// records in manifest order, their byte sizes, and every edge between
// them.
type chunkView struct {
	chunks []manifest.ChunkRecord
	bytes  map[string]int64
	edges  []chunkEdge
	entry  map[string]string // chunk id -> entry name
}

func newChunkView(m *manifest.Manifest) (*chunkView, error) {
	if m == nil {
		return nil, fmt.Errorf("no manifest to render")
	}

	sizes := make(map[string]int64, len(m.Modules))
	for _, mod := range m.Modules {
		sizes[mod.ID] = mod.Size
	}

	v := &chunkView{
		chunks: m.Chunks,
		bytes:  make(map[string]int64, len(m.Chunks)),
		entry:  make(map[string]string, len(m.Entries)),
	}
	known := make(map[string]bool, len(m.Chunks))
	for _, c := range m.Chunks {
		known[c.ID] = true
		var total int64
		for _, id := range c.Modules {
			total += sizes[id]
		}
		v.bytes[c.ID] = total
	}
	for _, e := range m.Entries {
		v.entry[e.Chunk] = e.Name
	}

	for _, c := range m.Chunks {
		for _, list := range []struct {
			ids  []string
			kind edgeKind
		}{
			{c.Requires, edgeRequires},
			{c.Awaits, edgeAwaits},
			{c.Async, edgeAsync},
		} {
			for _, to := range list.ids {
				if !known[to] {
					return nil, fmt.Errorf("chunk %s references unknown chunk %s", c.ID, to)
				}
				v.edges = append(v.edges, chunkEdge{from: c.ID, to: to, kind: list.kind})
			}
		}
	}
	return v, nil
}

func (v *chunkView) label(c manifest.ChunkRecord) string {
	parts := []string{c.Name}
	if name, ok := v.entry[c.ID]; ok && name != c.Name {
		parts[0] = fmt.Sprintf("%s (%s)", c.Name, name)
	}
	parts = append(parts, fmt.Sprintf("#%s, %d modules, %s", c.ID, len(c.Modules), formatBytes(v.bytes[c.ID])))
	if c.Runtime {
		parts = append(parts, "runtime")
	}
	return strings.Join(parts, "\n")
}

// idsByKind groups chunk ids under their kind, each group in manifest
// order, kinds sorted.
func (v *chunkView) idsByKind() (map[string][]string, []string) {
	groups := make(map[string][]string)
	for _, c := range v.chunks {
		groups[c.Kind] = append(groups[c.Kind], c.ID)
	}
	kinds := make([]string, 0, len(groups))
	for k := range groups {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return groups, kinds
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
