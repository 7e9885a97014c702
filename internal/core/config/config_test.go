// # internal/core/config/config_test.go
package config

import (
	"bundlegraph/internal/engine/chunk"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullConfig = `
version = 1
pinned = ["./src/polyfills.js"]

[paths]
project_root = "."
state_dir = ".cache/bundlegraph"

[[entries]]
name = "app"
import = ["./src/app.js"]

[[entries]]
name = "admin"
import = ["./src/admin.js", "./src/admin.css"]
depend_on = ["app"]

[resolver]
extensions = [".ts", ".js"]
conditions = ["browser", "import"]
strict_extensions = true

[[resolver.alias]]
name = "@"
target = "./src"

[[rules]]
name = "vendor"
match = "path"
patterns = ["node_modules/**"]
min_size = 1024

[[rules]]
name = "common"
scope = "all"
match = "count"
min_chunks = 2

[chunks]
hoist = "parent"
ids = "hash"
runtime = "single"
hash_length = 12

[records]
driver = "sqlite"

[watch]
debounce = "1s"
exclude_files = ["*.log"]

[observability]
enabled = true
port = 9100
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Entries) != 2 || cfg.Entries[1].DependOn[0] != "app" {
		t.Fatalf("unexpected entries: %+v", cfg.Entries)
	}
	if len(cfg.Entries[1].Import) != 2 {
		t.Errorf("expected two admin imports, got %v", cfg.Entries[1].Import)
	}
	if cfg.Pinned[0] != "./src/polyfills.js" {
		t.Errorf("unexpected pinned: %v", cfg.Pinned)
	}
	if cfg.Chunks.Hoist != "parent" || cfg.Chunks.IDs != "hash" || cfg.Chunks.Runtime != "single" {
		t.Errorf("unexpected chunk settings: %+v", cfg.Chunks)
	}
	if cfg.Chunks.HashLength != 12 {
		t.Errorf("expected hash length 12, got %d", cfg.Chunks.HashLength)
	}
	if cfg.Records.Path != "records.db" {
		t.Errorf("sqlite records should default to records.db, got %q", cfg.Records.Path)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Observability.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Observability.Port)
	}
	if len(cfg.Resolver.Alias) != 1 || cfg.Resolver.Alias[0].Target != "./src" {
		t.Errorf("unexpected alias: %+v", cfg.Resolver.Alias)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[[entries]]
name = "main"
import = ["./index.js"]
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Chunks.Hoist != "none" || cfg.Chunks.IDs != "numeric" || cfg.Chunks.Runtime != "embedded" {
		t.Errorf("unexpected chunk defaults: %+v", cfg.Chunks)
	}
	if cfg.Records.Driver != "toml" || cfg.Records.Path != "records.toml" {
		t.Errorf("unexpected records defaults: %+v", cfg.Records)
	}
	if cfg.Manifest.Path != "manifest.json" {
		t.Errorf("unexpected manifest path %q", cfg.Manifest.Path)
	}
	if cfg.Watch.Debounce != 300*time.Millisecond || cfg.Watch.MinInterval != time.Second {
		t.Errorf("unexpected watch defaults: %+v", cfg.Watch)
	}
	if len(cfg.Watch.Paths) != 1 || cfg.Watch.Paths[0] != "." {
		t.Errorf("unexpected watch paths: %v", cfg.Watch.Paths)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(`
[[entries]]
name = "main"
import = ["./index.js"]

[chunks]
hoisting = "parent"
`)
	if err == nil || !strings.Contains(err.Error(), "chunks.hoisting") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Entries = []Entry{{Name: "app", Import: []string{"./src/app.js"}}}
		return cfg
	}
	if errs := Validate(valid()); len(errs) != 0 {
		t.Fatalf("expected valid config, got %v", errs)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no entries", func(c *Config) { c.Entries = nil }, "at least one [[entries]]"},
		{"duplicate entry", func(c *Config) {
			c.Entries = append(c.Entries, Entry{Name: "app", Import: []string{"./b.js"}})
		}, `duplicate entry name "app"`},
		{"entry without imports", func(c *Config) { c.Entries[0].Import = nil }, "must import at least one module"},
		{"unknown depend_on", func(c *Config) { c.Entries[0].DependOn = []string{"ghost"} }, `unknown entry "ghost"`},
		{"self depend_on", func(c *Config) { c.Entries[0].DependOn = []string{"app"} }, "depends on itself"},
		{"rule named like entry", func(c *Config) {
			c.Rules = []Rule{{Name: "app", Match: "count"}}
		}, "same name as an entry"},
		{"bad matcher", func(c *Config) { c.Rules = []Rule{{Name: "x", Match: "regex"}} }, "match must be one of"},
		{"path rule without patterns", func(c *Config) { c.Rules = []Rule{{Name: "x", Match: "path"}} }, "needs patterns"},
		{"bad scope", func(c *Config) { c.Rules = []Rule{{Name: "x", Match: "count", Scope: "lazy"}} }, "scope must be one of"},
		{"bad hoist", func(c *Config) { c.Chunks.Hoist = "deep" }, "chunks.hoist"},
		{"bad ids", func(c *Config) { c.Chunks.IDs = "named" }, "chunks.ids"},
		{"bad runtime", func(c *Config) { c.Chunks.Runtime = "shared" }, "chunks.runtime"},
		{"hash length", func(c *Config) { c.Chunks.HashLength = 65 }, "chunks.hash_length"},
		{"records driver", func(c *Config) { c.Records.Driver = "postgres" }, "records.driver"},
		{"resolver extension", func(c *Config) { c.Resolver.Extensions = []string{"js"} }, "must start with '.'"},
		{"tracing without endpoint", func(c *Config) { c.Observability.EnableTracing = true }, "otlp_endpoint"},
		{"port", func(c *Config) { c.Observability.Port = 70000 }, "observability.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			errs := Validate(cfg)
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error containing %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BUNDLEGRAPH_CHUNKS_HOIST", "async")
	t.Setenv("BUNDLEGRAPH_OBSERVABILITY_PORT", "9200")
	t.Setenv("BUNDLEGRAPH_WATCH_DEBOUNCE", "2s")
	t.Setenv("BUNDLEGRAPH_BUILD_WORKERS", "not-a-number")

	cfg, err := Parse(`
[[entries]]
name = "main"
import = ["./index.js"]

[build]
workers = 3
`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunks.Hoist != "async" {
		t.Errorf("expected hoist override, got %q", cfg.Chunks.Hoist)
	}
	if cfg.Observability.Port != 9200 {
		t.Errorf("expected port override, got %d", cfg.Observability.Port)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce override, got %v", cfg.Watch.Debounce)
	}
	if cfg.Build.Workers != 3 {
		t.Errorf("unparsable override must be ignored, got %d", cfg.Build.Workers)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Parse(fullConfig)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(opts.Rules))
	}
	if opts.Rules[0].Match.Kind != chunk.MatchPath || opts.Rules[0].MinSize != 1024 {
		t.Errorf("unexpected vendor rule: %+v", opts.Rules[0])
	}
	if opts.Rules[1].Sources.Scope != chunk.ScopeAll || opts.Rules[1].MinChunks != 2 {
		t.Errorf("unexpected common rule: %+v", opts.Rules[1])
	}
	if _, err := chunk.NewEngine(opts); err != nil {
		t.Fatalf("engine rejected converted options: %v", err)
	}

	rc := cfg.ResolverConfig()
	if !rc.StrictExtensions || rc.Extensions[0] != ".ts" {
		t.Errorf("unexpected resolver config: %+v", rc)
	}
	if len(rc.Modules) == 0 || rc.Modules[0] != "node_modules" {
		t.Errorf("resolver modules should default, got %v", rc.Modules)
	}

	defs := cfg.EntryDefs()
	if len(defs) != 2 || defs[1].Name != "admin" || defs[1].DependOn[0] != "app" {
		t.Errorf("unexpected entry defs: %+v", defs)
	}
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "src", "pages")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	got, err := ResolvePaths(cfg, sub)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Clean(root) {
		t.Fatalf("expected project root %q, got %q", root, got.ProjectRoot)
	}
	if got.RecordsPath != filepath.Join(root, ".bundlegraph", "records.toml") {
		t.Errorf("unexpected records path: %q", got.RecordsPath)
	}
	if got.ManifestPath != filepath.Join(root, "dist", "manifest.json") {
		t.Errorf("unexpected manifest path: %q", got.ManifestPath)
	}

	abs := filepath.Join(root, "elsewhere", "ids.db")
	cfg.Paths.ProjectRoot = root
	cfg.Records.Path = abs
	got, err = ResolvePaths(cfg, "/")
	if err != nil {
		t.Fatal(err)
	}
	if got.RecordsPath != abs {
		t.Errorf("absolute records path must be kept, got %q", got.RecordsPath)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
[[entries]]
name = "main"
import = ["./index.js"]
`)
	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// An invalid file is rejected without calling back.
	if err := os.WriteFile(path, []byte(`[[entries]]`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * reloadDebounce)
	if err := os.WriteFile(path, []byte(`
[[entries]]
name = "next"
import = ["./next.js"]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Entries[0].Name != "next" {
			t.Fatalf("unexpected reload: %+v", cfg.Entries)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}
}
