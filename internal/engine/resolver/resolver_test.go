// # internal/engine/resolver/resolver_test.go
package resolver

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	stderrors "errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func projectFS() fstest.MapFS {
	return fstest.MapFS{
		"src/app.js":            file("import './util'"),
		"src/util.js":           file(""),
		"src/styles/main.css":   file(""),
		"src/widgets/index.ts":  file(""),
		"src/lib/helpers.js":    file(""),
		"src/dual.js":           file(""),
		"src/dual.ts":           file(""),
		"node_modules/left/package.json": file(`{"main": "lib/left.js"}`),
		"node_modules/left/lib/left.js":  file(""),
		"node_modules/plain/index.js":    file(""),
		"node_modules/plain/extra.js":    file(""),
		"node_modules/@scope/kit/package.json": file(`{
			"exports": {
				".": {"import": "./esm/index.mjs", "require": "./cjs/index.cjs"},
				"./feature/*": {"default": "./dist/features/*.js"},
				"./private/*": null
			}
		}`),
		"node_modules/@scope/kit/esm/index.mjs":         file(""),
		"node_modules/@scope/kit/cjs/index.cjs":         file(""),
		"node_modules/@scope/kit/dist/features/a.js":    file(""),
		"node_modules/@scope/kit/private/secret.js":     file(""),
		"src/node_modules/local/index.js":               file(""),
	}
}

func newResolver(t *testing.T, fsys fstest.MapFS, cfg Config) *Resolver {
	t.Helper()
	r, err := New(fsys, cfg)
	require.NoError(t, err)
	return r
}

func TestResolver_Resolve(t *testing.T) {
	r := newResolver(t, projectFS(), Config{
		Alias: []Alias{
			{Name: "@lib", Target: "./src/lib"},
			{Name: "kit$", Target: "@scope/kit"},
		},
	})

	tests := []struct {
		name      string
		specifier string
		context   string
		want      graph.Identity
	}{
		{"relative with extension probing", "./util", "src", graph.Identity{Path: "src/util.js"}},
		{"relative exact file", "./util.js", "src", graph.Identity{Path: "src/util.js"}},
		{"parent directory", "../util", "src/widgets", graph.Identity{Path: "src/util.js"}},
		{"root absolute", "/src/util", "src/widgets", graph.Identity{Path: "src/util.js"}},
		{"directory main file", "./widgets", "src", graph.Identity{Path: "src/widgets/index.ts"}},
		{"query variant", "./styles/main.css?inline", "src", graph.Identity{Path: "src/styles/main.css", Query: "?inline"}},
		{"package main field", "left", "src", graph.Identity{Path: "node_modules/left/lib/left.js"}},
		{"package index", "plain", "src/widgets", graph.Identity{Path: "node_modules/plain/index.js"}},
		{"package subpath", "plain/extra", "src", graph.Identity{Path: "node_modules/plain/extra.js"}},
		{"nearest modules dir wins", "local", "src", graph.Identity{Path: "src/node_modules/local/index.js"}},
		{"exports with condition", "@scope/kit", "src", graph.Identity{Path: "node_modules/@scope/kit/esm/index.mjs"}},
		{"exports pattern", "@scope/kit/feature/a", "src", graph.Identity{Path: "node_modules/@scope/kit/dist/features/a.js"}},
		{"prefix alias", "@lib/helpers", "src/widgets", graph.Identity{Path: "src/lib/helpers.js"}},
		{"exact alias", "kit", "src", graph.Identity{Path: "node_modules/@scope/kit/esm/index.mjs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.specifier, tt.context)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Failures(t *testing.T) {
	r := newResolver(t, projectFS(), Config{})

	tests := []struct {
		name      string
		specifier string
		context   string
	}{
		{"missing file", "./nope", "src"},
		{"escapes root", "../../outside", "src"},
		{"missing package", "ghost", "src"},
		{"blocked export", "@scope/kit/private/secret.js", "src"},
		{"unexported subpath", "@scope/kit/esm/index.mjs", "src"},
		{"empty", "?raw", "src"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.specifier, tt.context)
			var re *errors.ResolutionError
			require.True(t, stderrors.As(err, &re), "got %v", err)
			assert.Equal(t, tt.specifier, re.Specifier)
			assert.Equal(t, tt.context, re.Context)
			assert.NotEmpty(t, re.Reason)
		})
	}
}

func TestResolver_ExportsCannotReachSiblingPackage(t *testing.T) {
	fsys := fstest.MapFS{
		"node_modules/a/package.json": file(`{"exports": {".": "./../ab/x.js"}}`),
		"node_modules/ab/x.js":        file(""),
	}
	r := newResolver(t, fsys, Config{})

	_, err := r.Resolve("a", ".")
	var re *errors.ResolutionError
	require.True(t, stderrors.As(err, &re), "got %v", err)
	assert.Contains(t, re.Reason, "invalid exports target")
}

func TestResolver_ConditionOrder(t *testing.T) {
	r := newResolver(t, projectFS(), Config{Conditions: []string{"require"}})
	got, err := r.Resolve("@scope/kit", ".")
	require.NoError(t, err)
	assert.Equal(t, "node_modules/@scope/kit/cjs/index.cjs", got.Path)
}

func TestResolver_StrictExtensionsAmbiguity(t *testing.T) {
	lenient := newResolver(t, projectFS(), Config{})
	got, err := lenient.Resolve("./dual", "src")
	require.NoError(t, err)
	assert.Equal(t, "src/dual.js", got.Path, "first configured extension wins")

	strict := newResolver(t, projectFS(), Config{StrictExtensions: true})
	_, err = strict.Resolve("./dual", "src")
	var re *errors.ResolutionError
	require.True(t, stderrors.As(err, &re))
	assert.Contains(t, re.Reason, "ambiguous")

	got, err = strict.Resolve("./dual.ts", "src")
	require.NoError(t, err)
	assert.Equal(t, "src/dual.ts", got.Path)
}

func TestResolver_IsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		r := newResolver(t, projectFS(), Config{})
		got, err := r.Resolve("@scope/kit/feature/a", "src/widgets")
		require.NoError(t, err)
		assert.Equal(t, "node_modules/@scope/kit/dist/features/a.js", got.Path)
	}
}

func TestResolver_CacheAndInvalidation(t *testing.T) {
	fsys := projectFS()
	r := newResolver(t, fsys, Config{})

	_, err := r.Resolve("./later", "src")
	require.Error(t, err)
	_, err = r.Resolve("./util", "src")
	require.NoError(t, err)
	_, err = r.Resolve("./util", "src")
	require.NoError(t, err)

	hits, misses := r.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)

	// Cached negative result survives until the probed path changes.
	fsys["src/later.js"] = file("")
	_, err = r.Resolve("./later", "src")
	require.Error(t, err)

	assert.Equal(t, 0, r.InvalidatePath("src/unrelated.js"))
	assert.Equal(t, 1, r.InvalidatePath("src/later.js"))

	got, err := r.Resolve("./later", "src")
	require.NoError(t, err)
	assert.Equal(t, "src/later.js", got.Path)

	// The util entry was not touched by the invalidation.
	_, err = r.Resolve("./util", "src")
	require.NoError(t, err)
	hits, _ = r.Stats()
	assert.Equal(t, uint64(3), hits)
}

func TestResolver_SetConfigClearsCache(t *testing.T) {
	r := newResolver(t, projectFS(), Config{})
	got, err := r.Resolve("@lib/helpers", "src")
	require.Error(t, err)
	assert.Equal(t, graph.Identity{}, got)

	require.NoError(t, r.SetConfig(Config{Alias: []Alias{{Name: "@lib", Target: "./src/lib"}}}))
	got, err = r.Resolve("@lib/helpers", "src")
	require.NoError(t, err)
	assert.Equal(t, "src/lib/helpers.js", got.Path)

	assert.Error(t, r.SetConfig(Config{Extensions: []string{"js"}}))
}

func TestResolver_UsableAsGraphResolver(t *testing.T) {
	r := newResolver(t, projectFS(), Config{})
	g := graph.New(r)

	app, err := g.AddRoot("./src/app", ".")
	require.NoError(t, err)
	viaRel, err := g.AddEdge(app.ID, "./util", graph.EdgeStatic)
	require.NoError(t, err)
	viaAbs, err := g.AddEdge(app.ID, "/src/util.js", graph.EdgeStatic)
	require.NoError(t, err)
	assert.Same(t, viaRel, viaAbs)

	_, err = g.AddEdge(app.ID, "./missing", graph.EdgeStatic)
	var re *errors.ResolutionError
	require.True(t, stderrors.As(err, &re))
	assert.Equal(t, "src/app.js", re.Importer)
}
