// # internal/engine/manifest/manifest_test.go
package manifest

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/entry"
	"bundlegraph/internal/engine/graph"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityResolver struct{}

func (identityResolver) Resolve(specifier, _ string) (graph.Identity, error) {
	return graph.ParseIdentity(specifier), nil
}

// vendorProject is app -> node_modules/b plus a lazily loaded page.
func vendorProject(t *testing.T, opts chunk.Options) *chunk.Result {
	t.Helper()
	g := graph.New(identityResolver{})
	app, _ := g.AddModule(graph.Identity{Path: "src/app.js"})
	g.SetContent(app.ID, 10, "app")
	_, err := g.AddEdge(app.ID, "node_modules/b/index.js", graph.EdgeStatic)
	require.NoError(t, err)
	_, err = g.AddEdge(app.ID, "src/page.js", graph.EdgeDynamic)
	require.NoError(t, err)

	entries := entry.NewSet(g)
	_, err = entries.Define("app", []string{"src/app.js"}, "")
	require.NoError(t, err)

	opts.Rules = append(opts.Rules, chunk.Rule{Name: "vendor", Match: chunk.PathMatcher("node_modules/**")})
	e, err := chunk.NewEngine(opts)
	require.NoError(t, err)
	res, err := e.Partition(g, entries.All(), nil, nil)
	require.NoError(t, err)
	return res
}

func TestBuild_VendorProject(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	m, err := Build(res)
	require.NoError(t, err)

	app, ok := m.ChunkByName("app")
	require.True(t, ok)
	vendor, ok := m.ChunkByName("vendor")
	require.True(t, ok)
	page, ok := m.ChunkByName("src_page_js")
	require.True(t, ok)

	assert.Equal(t, "entry", app.Kind)
	assert.Equal(t, []string{vendor.ID}, app.Requires)
	assert.Equal(t, []string{page.ID}, app.Async)
	assert.True(t, app.Runtime)
	assert.False(t, vendor.Runtime)
	assert.Len(t, app.Modules, 1)
	assert.Len(t, m.Modules, 3)

	require.Len(t, m.Entries, 1)
	assert.Equal(t, "app", m.Entries[0].Name)
	assert.Equal(t, []string{app.ID, vendor.ID, page.ID}, m.Entries[0].Group)

	byID, ok := m.Chunk(vendor.ID)
	require.True(t, ok)
	assert.Equal(t, "vendor", byID.Name)
	assert.True(t, m.Matches(res))
}

func TestBuild_LazyRequirementsBecomeAwaits(t *testing.T) {
	res := vendorProject(t, chunk.Options{Runtime: chunk.RuntimeSingle})
	app, _ := res.Chunk("app")
	vendor, _ := res.Chunk("vendor")
	for i := range app.Requires {
		if app.Requires[i].Chunk == vendor.Name {
			app.Requires[i].Lazy = true
		}
	}

	m, err := Build(res)
	require.NoError(t, err)
	rec, _ := m.ChunkByName("app")
	rt, _ := m.ChunkByName(chunk.RuntimeChunkName)
	assert.Equal(t, []string{rt.ID}, rec.Requires)
	assert.Equal(t, []string{vendor.ID}, rec.Awaits)
	assert.True(t, rt.Runtime)
}

func TestBuild_DoubleRuntimeIsDefect(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	vendor, _ := res.Chunk("vendor")
	vendor.Runtime = true

	_, err := Build(res)
	require.Error(t, err)
	var consistency *errors.ManifestConsistencyError
	require.True(t, stderrors.As(err, &consistency))
	assert.Equal(t, "app", consistency.Group)
	assert.ElementsMatch(t, []string{"app", "vendor"}, consistency.Chunks)
	assert.True(t, errors.IsDefect(err))
}

func TestBuild_MissingRuntimeIsDefect(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	app, _ := res.Chunk("app")
	app.Runtime = false

	_, err := Build(res)
	assert.True(t, errors.IsCode(err, errors.CodeManifestConsistency))
}

func TestBuild_DanglingReferenceIsDefect(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	app, _ := res.Chunk("app")
	app.Requires = append(app.Requires, chunk.Dependency{Chunk: "ghost"})

	_, err := Build(res)
	var consistency *errors.ManifestConsistencyError
	require.True(t, stderrors.As(err, &consistency))
	assert.Equal(t, "dangling chunk reference", consistency.Reason)
	assert.Equal(t, []string{"app", "ghost"}, consistency.Chunks)
}

func TestBuild_DuplicateChunkIDIsDefect(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	app, _ := res.Chunk("app")
	vendor, _ := res.Chunk("vendor")
	vendor.ID = app.ID

	_, err := Build(res)
	assert.True(t, errors.IsCode(err, errors.CodeManifestConsistency))
}

func TestBuild_DuplicateModuleIDIsDefect(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	var ids []graph.ModuleID
	for id := range res.Modules {
		ids = append(ids, id)
	}
	require.GreaterOrEqual(t, len(ids), 2)
	first := res.Modules[ids[0]]
	second := res.Modules[ids[1]]
	second.ID = first.ID
	res.Modules[ids[1]] = second

	_, err := Build(res)
	var consistency *errors.ManifestConsistencyError
	require.True(t, stderrors.As(err, &consistency))
	assert.Contains(t, consistency.Reason, "duplicate module id")
}

func TestBuild_ShortHashIDsStayUnique(t *testing.T) {
	g := graph.New(identityResolver{})
	root, _ := g.AddModule(graph.Identity{Path: "src/main.js"})
	for i := 0; i < 300; i++ {
		_, err := g.AddEdge(root.ID, fmt.Sprintf("src/m%d.js", i), graph.EdgeStatic)
		require.NoError(t, err)
	}
	entries := entry.NewSet(g)
	_, err := entries.Define("app", []string{"src/main.js"}, "")
	require.NoError(t, err)

	e, err := chunk.NewEngine(chunk.Options{IDs: chunk.IDHash, HashLength: 2})
	require.NoError(t, err)
	res, err := e.Partition(g, entries.All(), nil, nil)
	require.NoError(t, err)

	m, err := Build(res)
	require.NoError(t, err)
	assert.Len(t, m.Modules, 301)
	app, _ := m.ChunkByName("app")
	assert.Len(t, app.Modules, 301)
}

func TestManifest_MatchesDetectsStalePairing(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	m, err := Build(res)
	require.NoError(t, err)

	other := vendorProject(t, chunk.Options{IDs: chunk.IDHash})
	assert.False(t, m.Matches(other))
	assert.False(t, m.Matches(nil))
}

func TestManifest_FileRoundTrip(t *testing.T) {
	res := vendorProject(t, chunk.Options{})
	m, err := Build(res)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "manifest.json")
	require.NoError(t, m.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Hash, loaded.Hash)
	assert.Equal(t, m.Chunks, loaded.Chunks)
	assert.Equal(t, m.Entries, loaded.Entries)
	assert.True(t, loaded.Matches(res))
}

func TestValidate_RejectsUnknownChunkKind(t *testing.T) {
	m, err := Build(vendorProject(t, chunk.Options{}))
	require.NoError(t, err)
	m.Chunks[0].Kind = "bootstrap"

	err = m.Validate()
	var consistency *errors.ManifestConsistencyError
	require.True(t, stderrors.As(err, &consistency))
	assert.Contains(t, consistency.Reason, "unknown chunk kind")
}

func TestReadFile_RejectsInconsistentManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	doc := `{"version":1,"chunks":[{"id":"0","name":"app","kind":"entry","modules":[],"requires":["9"],"hash":"x"}],"modules":[]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := ReadFile(path)
	assert.True(t, errors.IsCode(err, errors.CodeManifestConsistency))

	require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`), 0o644))
	_, err = ReadFile(path)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
