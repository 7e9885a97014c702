// # cmd/bundlegraph/main_test.go
package main

import (
	"bundlegraph/internal/engine/manifest"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	files := map[string]string{
		"src/app.js":                "import lib from 'lib';\nimport('./page.js');\n",
		"src/page.js":               "export default 1;\n",
		"node_modules/lib/index.js": "module.exports = {};\n",
		"node_modules/lib/package.json": `{"name": "lib", "main": "index.js"}`,
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfgPath = filepath.Join(root, "bundlegraph.toml")
	cfg := fmt.Sprintf(`
[paths]
project_root = %q

[[entries]]
name = "app"
import = ["./src/app.js"]

[[rules]]
name = "vendor"
match = "path"
patterns = ["node_modules/**"]

[watch]
paths = ["src"]
debounce = "50ms"
min_interval = "1ms"
`, root)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return root, cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	cmd.AddCommand(buildCmd(), watchCmd(), graphCmd(), whyCmd())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand_WritesManifestAndRecords(t *testing.T) {
	root, cfgPath := writeProject(t)

	out, err := execute(t, "--config", cfgPath, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "vendor")

	m, err := manifest.ReadFile(filepath.Join(root, "dist", "manifest.json"))
	require.NoError(t, err)
	assert.Len(t, m.Entries, 1)
	assert.FileExists(t, filepath.Join(root, ".bundlegraph", "records.toml"))

	_, err = execute(t, "--config", cfgPath, "build")
	require.NoError(t, err)
	again, err := manifest.ReadFile(filepath.Join(root, "dist", "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, m.Hash, again.Hash, "unchanged sources must rebuild to the same manifest")
}

func TestBuildCommand_NoWrite(t *testing.T) {
	root, cfgPath := writeProject(t)

	_, err := execute(t, "--config", cfgPath, "build", "--no-write")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "dist", "manifest.json"))
}

func TestBuildCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config")
}

func TestGraphCommand(t *testing.T) {
	root, cfgPath := writeProject(t)

	out, err := execute(t, "--config", cfgPath, "graph", "--format", "tsv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID\tName\tKind"))
	assert.Contains(t, out, "\tvendor\tinitial\t")

	_, err = execute(t, "--config", cfgPath, "build")
	require.NoError(t, err)
	dest := filepath.Join(root, "chunks.mmd")
	_, err = execute(t, "graph", "--manifest", filepath.Join(root, "dist", "manifest.json"), "-f", "mermaid", "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flowchart LR")

	_, err = execute(t, "--config", cfgPath, "graph", "--format", "svg")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunWatch_RebuildsOnChange(t *testing.T) {
	root, cfgPath := writeProject(t)
	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := openSession(ctx, cfg, root)
	require.NoError(t, err)
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, s, cfgPath) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watch loop did not stop")
		}
	}()

	manifestPath := filepath.Join(root, "dist", "manifest.json")
	readManifest := func() *manifest.Manifest {
		m, err := manifest.ReadFile(manifestPath)
		if err != nil {
			return nil
		}
		return m
	}
	require.Eventually(t, func() bool { return readManifest() != nil }, 5*time.Second, 20*time.Millisecond)
	first := readManifest()

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "page.js"), []byte("export default 2;\n"), 0o644))
	require.Eventually(t, func() bool {
		m := readManifest()
		return m != nil && m.Hash != first.Hash
	}, 5*time.Second, 20*time.Millisecond)

	next := readManifest()
	app, ok := next.ChunkByName("app")
	require.True(t, ok)
	prevApp, _ := first.ChunkByName("app")
	assert.Equal(t, prevApp.Hash, app.Hash, "entry chunk untouched by a split-point edit")
}

func TestWhyCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	out, err := execute(t, "--config", cfgPath, "why", "node_modules/lib/index.js")
	require.NoError(t, err)
	assert.Contains(t, out, "entry app: src/app.js -> node_modules/lib/index.js")
	assert.Contains(t, out, "chunks: vendor")
	assert.NotContains(t, out, "cycle:")

	_, err = execute(t, "--config", cfgPath, "why", "src/missing.js")
	assert.ErrorContains(t, err, "not in the graph")
}
