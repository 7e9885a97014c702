// # internal/engine/parser/scanner.go
package parser

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/shared/observability"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

const (
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangCSS        = "css"
)

var extensionLanguages = map[string]string{
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".jsx": LangJavaScript,
	".ts":  LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".tsx": LangTSX,
	".css": LangCSS,
}

// Import is one import request found in a module's source.
type Import struct {
	Specifier string
	Kind      graph.EdgeKind
	Line      int
}

// Scanner extracts import requests from module sources. Files in languages
// it does not know are leaf assets with no imports.
type Scanner struct {
	pools   map[string]*ParserPool
	walkers map[string]*walker
}

func NewScanner() *Scanner {
	script := &walker{handlers: scriptHandlers()}
	return &Scanner{
		pools: map[string]*ParserPool{
			LangJavaScript: NewParserPool(sitter.NewLanguage(tree_sitter_javascript.Language())),
			LangTypeScript: NewParserPool(sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())),
			LangTSX:        NewParserPool(sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())),
			LangCSS:        NewParserPool(sitter.NewLanguage(tree_sitter_css.Language())),
		},
		walkers: map[string]*walker{
			LangJavaScript: script,
			LangTypeScript: script,
			LangTSX:        script,
			LangCSS:        {handlers: cssHandlers()},
		},
	}
}

// Language returns the grammar used for a module path, or "" for assets.
func Language(modulePath string) string {
	return extensionLanguages[strings.ToLower(path.Ext(modulePath))]
}

// Scan returns the imports of content in source order.
func (s *Scanner) Scan(modulePath string, content []byte) ([]Import, error) {
	lang := Language(modulePath)
	if lang == "" {
		return nil, nil
	}
	pool, ok := s.pools[lang]
	if !ok {
		return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("no grammar for language %s", lang))
	}

	start := time.Now()
	defer func() {
		observability.ScanDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
	}()

	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.AddContext(
			errors.New(errors.CodeInternal, "parse failed"),
			errors.CtxPath, modulePath,
		)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		slog.Debug("syntax errors while scanning module", "path", modulePath, "language", lang)
	}

	ctx := &ScanContext{Source: content}
	s.walkers[lang].Walk(ctx, root)
	return ctx.Imports, nil
}

func scriptHandlers() map[string]NodeHandler {
	return map[string]NodeHandler{
		"import_statement": func(ctx *ScanContext, node *sitter.Node) bool {
			if isTypeOnly(node) {
				return true
			}
			if src := node.ChildByFieldName("source"); src != nil {
				ctx.add(unquote(ctx.Text(src)), graph.EdgeStatic, node)
				return true
			}
			// import x = require("y") keeps descending into the require clause.
			return false
		},
		"import_require_clause": func(ctx *ScanContext, node *sitter.Node) bool {
			if src := node.ChildByFieldName("source"); src != nil {
				ctx.add(unquote(ctx.Text(src)), graph.EdgeStatic, node)
			}
			return true
		},
		"export_statement": func(ctx *ScanContext, node *sitter.Node) bool {
			src := node.ChildByFieldName("source")
			if src == nil {
				return false
			}
			if !isTypeOnly(node) {
				ctx.add(unquote(ctx.Text(src)), graph.EdgeStatic, node)
			}
			return true
		},
		"call_expression": func(ctx *ScanContext, node *sitter.Node) bool {
			fn := node.ChildByFieldName("function")
			if fn == nil {
				return false
			}
			var kind graph.EdgeKind
			switch {
			case fn.Kind() == "import":
				kind = graph.EdgeDynamic
			case fn.Kind() == "identifier" && ctx.Text(fn) == "require":
				kind = graph.EdgeStatic
			default:
				return false
			}
			if spec, ok := literalArgument(ctx, node.ChildByFieldName("arguments")); ok {
				ctx.add(spec, kind, node)
			}
			return false
		},
	}
}

func cssHandlers() map[string]NodeHandler {
	return map[string]NodeHandler{
		"import_statement": func(ctx *ScanContext, node *sitter.Node) bool {
			for i := uint(0); i < node.NamedChildCount(); i++ {
				child := node.NamedChild(i)
				switch child.Kind() {
				case "string_value":
					ctx.add(unquote(ctx.Text(child)), graph.EdgeStatic, node)
					return true
				case "call_expression":
					if spec, ok := cssURL(ctx, child); ok {
						ctx.add(spec, graph.EdgeStatic, node)
					}
					return true
				}
			}
			return true
		},
	}
}

// literalArgument returns the first argument when it is a plain string or a
// template string without substitutions.
func literalArgument(ctx *ScanContext, args *sitter.Node) (string, bool) {
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	first := args.NamedChild(0)
	switch first.Kind() {
	case "string":
		return unquote(ctx.Text(first)), true
	case "template_string":
		for i := uint(0); i < first.NamedChildCount(); i++ {
			if first.NamedChild(i).Kind() == "template_substitution" {
				return "", false
			}
		}
		return unquote(ctx.Text(first)), true
	}
	return "", false
}

func cssURL(ctx *ScanContext, call *sitter.Node) (string, bool) {
	var name string
	var args *sitter.Node
	for i := uint(0); i < call.NamedChildCount(); i++ {
		child := call.NamedChild(i)
		switch child.Kind() {
		case "function_name":
			name = ctx.Text(child)
		case "arguments":
			args = child
		}
	}
	if !strings.EqualFold(name, "url") || args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	return unquote(ctx.Text(args.NamedChild(0))), true
}

// isTypeOnly reports `import type ...` and `export type ... from` forms,
// which have no runtime dependency.
func isTypeOnly(node *sitter.Node) bool {
	for i := uint(0); i < node.ChildCount() && i < 3; i++ {
		if node.Child(i).Kind() == "type" {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
