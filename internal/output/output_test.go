// # internal/output/output_test.go
package output

import (
	"bundlegraph/internal/engine/manifest"
	"strings"
	"testing"
)

func sampleManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version: manifest.FormatVersion,
		Entries: []manifest.EntryRecord{{Name: "app", Chunk: "0", Group: []string{"0", "1", "2"}}},
		Chunks: []manifest.ChunkRecord{
			{ID: "0", Name: "app", Kind: "entry", Modules: []string{"0", "1"}, Requires: []string{"1"}, Async: []string{"2"}, Runtime: true},
			{ID: "1", Name: "vendor", Kind: "initial", Modules: []string{"2"}},
			{ID: "2", Name: "src_page_js", Kind: "normal", Modules: []string{"3", "1"}},
		},
		Modules: []manifest.ModuleRecord{
			{ID: "0", Identity: "src/app.js", Size: 100},
			{ID: "1", Identity: "src/util.js", Size: 20},
			{ID: "2", Identity: "node_modules/lib/index.js", Size: 4096},
			{ID: "3", Identity: "src/page.js", Size: 7},
		},
	}
}

func TestDOTGenerator(t *testing.T) {
	dot, err := NewDOTGenerator(sampleManifest()).Generate()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(dot, "digraph chunks") {
		t.Error("DOT output missing digraph header")
	}
	if !strings.Contains(dot, "\"0\" -> \"1\";") {
		t.Error("DOT output missing requirement edge app -> vendor")
	}
	if !strings.Contains(dot, "\"0\" -> \"2\" [style=dashed") {
		t.Error("DOT output missing async edge app -> page")
	}
	if !strings.Contains(dot, "peripheries=2") {
		t.Error("DOT output missing runtime marker")
	}
	if !strings.Contains(dot, "4.0 KiB") {
		t.Error("DOT output missing vendor size")
	}
}

func TestMermaidGenerator(t *testing.T) {
	out, err := NewMermaidGenerator(sampleManifest()).Generate()
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"flowchart LR",
		"c_0 --> c_1",
		"c_0 -. async .-> c_2",
		"class c_0 entryChunk;",
		"class c_2 normalChunk;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Mermaid output missing %q\n%s", want, out)
		}
	}
}

func TestPlantUMLGenerator(t *testing.T) {
	out, err := NewPlantUMLGenerator(sampleManifest()).Generate()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "@startuml") || !strings.HasSuffix(out, "@enduml\n") {
		t.Error("PlantUML output missing start/end markers")
	}
	if !strings.Contains(out, "chunk_0 ..> chunk_2 : async") {
		t.Errorf("PlantUML output missing async edge\n%s", out)
	}
}

func TestTSVGenerator(t *testing.T) {
	tsv, err := NewTSVGenerator(sampleManifest()).Generate()
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(tsv), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines in TSV, got %d", len(lines))
	}
	if lines[1] != "0\tapp\tentry\t2\t120\ttrue\t1\t-\t2" {
		t.Errorf("Unexpected TSV line: %s", lines[1])
	}
	if lines[3] != "2\tsrc_page_js\tnormal\t2\t27\tfalse\t-\t-\t-" {
		t.Errorf("Unexpected TSV line: %s", lines[3])
	}
}

func TestTSVGenerator_Modules(t *testing.T) {
	tsv, err := NewTSVGenerator(sampleManifest()).GenerateModules()
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(tsv), "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected 6 lines in TSV, got %d", len(lines))
	}
	if !strings.Contains(tsv, "1\tsrc/util.js\tsrc_page_js\t20") {
		t.Error("module duplicated into the split chunk is not listed")
	}
}

func TestGenerators_RejectDanglingReference(t *testing.T) {
	m := sampleManifest()
	m.Chunks[1].Requires = []string{"9"}

	if _, err := NewDOTGenerator(m).Generate(); err == nil {
		t.Error("expected error for dangling chunk reference")
	}
	if _, err := NewTSVGenerator(nil).Generate(); err == nil {
		t.Error("expected error for nil manifest")
	}
}
