// # internal/core/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes, defaults, overrides from the environment, and validates.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if err := errors.Join(Validate(&cfg)...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".bundlegraph"
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		cfg.Paths.OutputDir = "dist"
	}

	if strings.TrimSpace(cfg.Chunks.Hoist) == "" {
		cfg.Chunks.Hoist = "none"
	}
	if strings.TrimSpace(cfg.Chunks.IDs) == "" {
		cfg.Chunks.IDs = "numeric"
	}
	if strings.TrimSpace(cfg.Chunks.Runtime) == "" {
		cfg.Chunks.Runtime = "embedded"
	}
	if cfg.Chunks.HashLength == 0 {
		cfg.Chunks.HashLength = 8
	}

	if strings.TrimSpace(cfg.Records.Driver) == "" {
		cfg.Records.Driver = "toml"
	}
	if strings.TrimSpace(cfg.Records.Path) == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Records.Driver)) {
		case "sqlite":
			cfg.Records.Path = "records.db"
		default:
			cfg.Records.Path = "records.toml"
		}
	}
	if strings.TrimSpace(cfg.Manifest.Path) == "" {
		cfg.Manifest.Path = "manifest.json"
	}

	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"."}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.MinInterval == 0 {
		cfg.Watch.MinInterval = time.Second
	}
	if cfg.Watch.ExcludeDirs == nil {
		cfg.Watch.ExcludeDirs = []string{".git", ".bundlegraph", "dist"}
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		e.Name = strings.TrimSpace(e.Name)
		e.Import = trimAll(e.Import)
		e.DependOn = trimAll(e.DependOn)
	}
	for i := range cfg.Rules {
		r := &cfg.Rules[i]
		r.Name = strings.TrimSpace(r.Name)
		r.Scope = strings.ToLower(strings.TrimSpace(r.Scope))
		r.Match = strings.ToLower(strings.TrimSpace(r.Match))
	}
	cfg.Chunks.Hoist = strings.ToLower(strings.TrimSpace(cfg.Chunks.Hoist))
	cfg.Chunks.IDs = strings.ToLower(strings.TrimSpace(cfg.Chunks.IDs))
	cfg.Chunks.Runtime = strings.ToLower(strings.TrimSpace(cfg.Chunks.Runtime))
	cfg.Records.Driver = strings.ToLower(strings.TrimSpace(cfg.Records.Driver))
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
