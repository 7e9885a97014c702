// # internal/output/plantuml.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"fmt"
	"strings"
)

var plantUMLStereotype = map[string]string{
	"entry":   "<<entry>>",
	"initial": "<<initial>>",
	"normal":  "<<async>>",
}

type PlantUMLGenerator struct {
	manifest *manifest.Manifest
}

func NewPlantUMLGenerator(m *manifest.Manifest) *PlantUMLGenerator {
	return &PlantUMLGenerator{manifest: m}
}

func (p *PlantUMLGenerator) Generate() (string, error) {
	view, err := newChunkView(p.manifest)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("@startuml\n")
	b.WriteString("left to right direction\n")
	b.WriteString("skinparam componentStyle rectangle\n")
	b.WriteString("skinparam component {\n")
	b.WriteString("  BackgroundColor<<entry>> #dbeafe\n")
	b.WriteString("  BackgroundColor<<initial>> #fef3c7\n")
	b.WriteString("  BackgroundColor<<async>> #ffffff\n")
	b.WriteString("}\n\n")

	for _, c := range view.chunks {
		label := strings.ReplaceAll(escapePlantUML(view.label(c)), "\n", "\\n")
		fmt.Fprintf(&b, "component \"%s\" as %s %s\n", label, plantUMLAlias(c.ID), plantUMLStereotype[c.Kind])
	}

	if len(view.edges) > 0 {
		b.WriteString("\n")
	}
	for _, e := range view.edges {
		from, to := plantUMLAlias(e.from), plantUMLAlias(e.to)
		switch e.kind {
		case edgeRequires:
			fmt.Fprintf(&b, "%s --> %s\n", from, to)
		case edgeAwaits:
			fmt.Fprintf(&b, "%s ..> %s : await\n", from, to)
		case edgeAsync:
			fmt.Fprintf(&b, "%s ..> %s : async\n", from, to)
		}
	}

	b.WriteString("@enduml\n")
	return b.String(), nil
}

func plantUMLAlias(id string) string {
	return "chunk_" + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, id)
}

func escapePlantUML(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
