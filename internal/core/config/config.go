// # internal/core/config/config.go
package config

import (
	"time"
)

const DefaultFile = "bundlegraph.toml"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Entries       []Entry       `toml:"entries"`
	Pinned        []string      `toml:"pinned"`
	Resolver      Resolver      `toml:"resolver"`
	Rules         []Rule        `toml:"rules"`
	Chunks        Chunks        `toml:"chunks"`
	Build         Build         `toml:"build"`
	Records       Records       `toml:"records"`
	Manifest      Manifest      `toml:"manifest"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	OutputDir   string `toml:"output_dir"`
}

type Entry struct {
	Name     string   `toml:"name"`
	Import   []string `toml:"import"`
	DependOn []string `toml:"depend_on"`
}

type Alias struct {
	Name   string `toml:"name"`
	Target string `toml:"target"`
}

type Resolver struct {
	Extensions       []string `toml:"extensions"`
	Alias            []Alias  `toml:"alias"`
	Conditions       []string `toml:"conditions"`
	MainFields       []string `toml:"main_fields"`
	MainFiles        []string `toml:"main_files"`
	Modules          []string `toml:"modules"`
	StrictExtensions bool     `toml:"strict_extensions"`
	CacheSize        int      `toml:"cache_size"`
}

// Rule is an extraction rule as written in the config file. Custom matchers
// have no file form.
type Rule struct {
	Name      string   `toml:"name"`
	Scope     string   `toml:"scope"`
	Chunks    []string `toml:"chunks"`
	Match     string   `toml:"match"`
	Patterns  []string `toml:"patterns"`
	Modules   []string `toml:"modules"`
	MinChunks int      `toml:"min_chunks"`
	MinSize   int64    `toml:"min_size"`
}

type Chunks struct {
	Hoist      string `toml:"hoist"`
	IDs        string `toml:"ids"`
	Runtime    string `toml:"runtime"`
	HashLength int    `toml:"hash_length"`
}

type Build struct {
	Workers int `toml:"workers"`
}

type Records struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type Manifest struct {
	Path string `toml:"path"`
}

type Watch struct {
	Paths    []string      `toml:"paths"`
	Debounce time.Duration `toml:"debounce"`
	// MinInterval spaces rebuilds out when changes keep arriving.
	MinInterval  time.Duration `toml:"min_interval"`
	ExcludeDirs  []string      `toml:"exclude_dirs"`
	ExcludeFiles []string      `toml:"exclude_files"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// DefaultConfig is the configuration used when no file exists. It still
// needs at least one entry before it validates.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
