// # internal/output/tsv.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"fmt"
	"strings"
)

type TSVGenerator struct {
	manifest *manifest.Manifest
}

func NewTSVGenerator(m *manifest.Manifest) *TSVGenerator {
	return &TSVGenerator{manifest: m}
}

// Generate writes one row of statistics per chunk in manifest order.
func (t *TSVGenerator) Generate() (string, error) {
	view, err := newChunkView(t.manifest)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	buf.WriteString("ID\tName\tKind\tModules\tBytes\tRuntime\tRequires\tAwaits\tAsync\n")
	for _, c := range view.chunks {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%t\t%s\t%s\t%s\n",
			c.ID, c.Name, c.Kind, len(c.Modules), view.bytes[c.ID], c.Runtime,
			joinIDs(c.Requires), joinIDs(c.Awaits), joinIDs(c.Async)))
	}
	return buf.String(), nil
}

// GenerateModules lists every module placement, one row per module and
// chunk. A module held by two chunks appears twice.
func (t *TSVGenerator) GenerateModules() (string, error) {
	if t.manifest == nil {
		return "", fmt.Errorf("no manifest to render")
	}
	byID := make(map[string]manifest.ModuleRecord, len(t.manifest.Modules))
	for _, mod := range t.manifest.Modules {
		byID[mod.ID] = mod
	}

	var buf strings.Builder
	buf.WriteString("Module\tIdentity\tChunk\tBytes\n")
	for _, c := range t.manifest.Chunks {
		for _, id := range c.Modules {
			mod, ok := byID[id]
			if !ok {
				return "", fmt.Errorf("chunk %s lists unknown module %s", c.ID, id)
			}
			buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%d\n", mod.ID, mod.Identity, c.Name, mod.Size))
		}
	}
	return buf.String(), nil
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}
