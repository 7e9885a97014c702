// # internal/output/mermaid.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"fmt"
	"strings"
	"unicode"
)

var mermaidKindStyle = map[string]string{
	"entry":   "fill:#dbeafe,stroke:#1d4ed8,stroke-width:2px",
	"initial": "fill:#fef3c7,stroke:#b45309,stroke-width:1px",
	"normal":  "fill:#ffffff,stroke:#6b7280,stroke-dasharray:4 3",
}

type MermaidGenerator struct {
	manifest *manifest.Manifest
}

func NewMermaidGenerator(m *manifest.Manifest) *MermaidGenerator {
	return &MermaidGenerator{manifest: m}
}

func (g *MermaidGenerator) Generate() (string, error) {
	view, err := newChunkView(g.manifest)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("%%{init: {'flowchart': {'nodeSpacing': 60, 'rankSpacing': 90, 'curve': 'basis'}}}%%\n")
	b.WriteString("flowchart LR\n")

	for _, c := range view.chunks {
		label := escapeMermaidLabel(strings.ReplaceAll(view.label(c), "\n", "<br/>"))
		fmt.Fprintf(&b, "  %s[\"%s\"]\n", mermaidID(c.ID), label)
	}

	if len(view.edges) > 0 {
		b.WriteString("\n")
	}
	for _, e := range view.edges {
		from, to := mermaidID(e.from), mermaidID(e.to)
		switch e.kind {
		case edgeRequires:
			fmt.Fprintf(&b, "  %s --> %s\n", from, to)
		case edgeAwaits:
			fmt.Fprintf(&b, "  %s == await ==> %s\n", from, to)
		case edgeAsync:
			fmt.Fprintf(&b, "  %s -. async .-> %s\n", from, to)
		}
	}

	groups, kinds := view.idsByKind()
	b.WriteString("\n")
	for _, kind := range kinds {
		style, ok := mermaidKindStyle[kind]
		if !ok {
			continue
		}
		ids := make([]string, len(groups[kind]))
		for i, id := range groups[kind] {
			ids[i] = mermaidID(id)
		}
		fmt.Fprintf(&b, "  classDef %sChunk %s;\n", kind, style)
		fmt.Fprintf(&b, "  class %s %sChunk;\n", strings.Join(ids, ","), kind)
	}
	return b.String(), nil
}

// mermaidID maps a chunk id onto Mermaid's node id alphabet. Numeric and
// hash ids only use [0-9a-z], so the mapping is injective in practice.
func mermaidID(id string) string {
	var b strings.Builder
	b.WriteString("c_")
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func escapeMermaidLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
