// # internal/engine/parser/pool_test.go
package parser

import (
	"sync"
	"testing"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
)

func jsLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_javascript.Language())
}

func TestParserPool_GetPut(t *testing.T) {
	pool := NewParserPool(jsLanguage())

	sp := pool.Get()
	if sp == nil {
		t.Fatal("expected non-nil parser from pool")
	}
	if pool.Leased() != 1 {
		t.Fatalf("expected 1 leased parser, got %d", pool.Leased())
	}
	pool.Put(sp)
	if pool.Leased() != 0 {
		t.Fatalf("expected 0 leased parsers, got %d", pool.Leased())
	}

	// Put(nil) is a no-op.
	pool.Put(nil)
	if pool.Leased() != 0 {
		t.Fatalf("Put(nil) changed the lease count: %d", pool.Leased())
	}
}

func TestParserPool_ConcurrentParses(t *testing.T) {
	pool := NewParserPool(jsLanguage())
	src := []byte(`import a from "./a"; export const b = 1;`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp := pool.Get()
			defer pool.Put(sp)
			tree := sp.Parse(src, nil)
			if tree == nil {
				t.Error("expected a parse tree")
				return
			}
			defer tree.Close()
			if tree.RootNode().HasError() {
				t.Error("unexpected syntax error")
			}
		}()
	}
	wg.Wait()
}
