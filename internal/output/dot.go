// # internal/output/dot.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"fmt"
	"strings"
)

var dotKindFill = map[string]string{
	"entry":   "#dbeafe",
	"initial": "#fef3c7",
	"normal":  "#ffffff",
}

type DOTGenerator struct {
	manifest *manifest.Manifest
}

func NewDOTGenerator(m *manifest.Manifest) *DOTGenerator {
	return &DOTGenerator{manifest: m}
}

// Generate renders the chunk graph. Requirements are solid edges, awaited
// chunks bold dashed, on-demand children dashed.
func (d *DOTGenerator) Generate() (string, error) {
	view, err := newChunkView(d.manifest)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	buf.WriteString("digraph chunks {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n")
	buf.WriteString("  ranksep=1.2;\n")
	buf.WriteString("  nodesep=0.5;\n\n")

	for _, c := range view.chunks {
		attrs := []string{
			fmt.Sprintf("label=%q", view.label(c)),
			fmt.Sprintf("fillcolor=%q", dotKindFill[c.Kind]),
		}
		if c.Runtime {
			attrs = append(attrs, "peripheries=2")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", c.ID, strings.Join(attrs, ", "))
	}

	if len(view.edges) > 0 {
		buf.WriteString("\n")
	}
	for _, e := range view.edges {
		switch e.kind {
		case edgeRequires:
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.from, e.to)
		case edgeAwaits:
			fmt.Fprintf(&buf, "  %q -> %q [style=\"dashed,bold\", label=\"await\"];\n", e.from, e.to)
		case edgeAsync:
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed, color=\"#6b7280\", label=\"async\"];\n", e.from, e.to)
		}
	}

	buf.WriteString("\n  subgraph cluster_legend {\n")
	buf.WriteString("    label=\"Legend\";\n")
	buf.WriteString("    fontsize=9;\n")
	buf.WriteString("    style=dashed;\n")
	buf.WriteString("    legend_entry [label=\"entry\", fillcolor=\"#dbeafe\"];\n")
	buf.WriteString("    legend_initial [label=\"initial\", fillcolor=\"#fef3c7\"];\n")
	buf.WriteString("    legend_normal [label=\"on demand\", fillcolor=\"#ffffff\"];\n")
	buf.WriteString("    legend_entry -> legend_initial [label=\"requires\"];\n")
	buf.WriteString("    legend_entry -> legend_normal [style=dashed, color=\"#6b7280\", label=\"async\"];\n")
	buf.WriteString("  }\n")

	buf.WriteString("}\n")
	return buf.String(), nil
}
