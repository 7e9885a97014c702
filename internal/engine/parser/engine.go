// # internal/engine/parser/engine.go
package parser

import (
	"bundlegraph/internal/engine/graph"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler inspects a node. Returning true stops the walker from
// descending into the node's children.
type NodeHandler func(ctx *ScanContext, node *sitter.Node) bool

// ScanContext carries the source and the imports collected so far.
type ScanContext struct {
	Source  []byte
	Imports []Import
}

func (c *ScanContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start >= end || end > uint(len(c.Source)) {
		return ""
	}
	return string(c.Source[start:end])
}

func (c *ScanContext) add(spec string, kind graph.EdgeKind, node *sitter.Node) {
	spec = strings.TrimSpace(spec)
	if spec == "" || isExternalURL(spec) {
		return
	}
	c.Imports = append(c.Imports, Import{
		Specifier: spec,
		Kind:      kind,
		Line:      int(node.StartPosition().Row) + 1,
	})
}

// walker dispatches handlers by node kind in document order.
type walker struct {
	handlers map[string]NodeHandler
}

func (w *walker) Walk(ctx *ScanContext, node *sitter.Node) {
	if node == nil {
		return
	}
	if handler, ok := w.handlers[node.Kind()]; ok && handler(ctx, node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		w.Walk(ctx, node.Child(i))
	}
}

func isExternalURL(spec string) bool {
	lower := strings.ToLower(spec)
	for _, prefix := range []string{"http://", "https://", "data:", "//"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
