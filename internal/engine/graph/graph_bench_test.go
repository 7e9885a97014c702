package graph

import (
	"fmt"
	"testing"
)

// layeredGraph builds width modules per layer, each importing two modules
// of the next layer, with a dynamic import every tenth module.
func layeredGraph(b *testing.B, layers, width int) (*Graph, ModuleID) {
	b.Helper()
	g := newTestGraph()
	root, _ := g.AddModule(Identity{Path: "src/l0_0.js"})
	for l := 0; l < layers; l++ {
		for i := 0; i < width; i++ {
			from, ok := g.Lookup(Identity{Path: fmt.Sprintf("src/l%d_%d.js", l, i)})
			if !ok {
				from, _ = g.AddModule(Identity{Path: fmt.Sprintf("src/l%d_%d.js", l, i)})
			}
			for _, j := range []int{i, (i + 1) % width} {
				kind := EdgeStatic
				if (i+j)%10 == 0 {
					kind = EdgeDynamic
				}
				if _, err := g.AddEdge(from.ID, fmt.Sprintf("./l%d_%d.js", l+1, j), kind); err != nil {
					b.Fatal(err)
				}
			}
		}
	}
	return g, root.ID
}

func BenchmarkAddEdge(b *testing.B) {
	for i := 0; i < b.N; i++ {
		layeredGraph(b, 10, 100)
	}
}

func BenchmarkReachableStatic(b *testing.B) {
	g, root := layeredGraph(b, 10, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.ReachableStatic([]ModuleID{root})
	}
}

func BenchmarkClone(b *testing.B) {
	g, _ := layeredGraph(b, 10, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Clone()
	}
}
