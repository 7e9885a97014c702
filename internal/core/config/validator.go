// # internal/core/config/validator.go
package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Validate returns every problem found, in section order.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) []error{
		validateVersion,
		validateEntries,
		validateResolver,
		validateRules,
		validateChunks,
		validateBuild,
		validateRecords,
		validateWatch,
		validateObservability,
	} {
		errs = append(errs, check(cfg)...)
	}
	return errs
}

func validateVersion(cfg *Config) []error {
	if cfg.Version != 1 {
		return []error{fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)}
	}
	return nil
}

func validateEntries(cfg *Config) []error {
	if len(cfg.Entries) == 0 {
		return []error{fmt.Errorf("at least one [[entries]] block is required")}
	}

	var errs []error
	seen := make(map[string]bool, len(cfg.Entries))
	for i, e := range cfg.Entries {
		ref := fmt.Sprintf("entries[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name must not be empty", ref))
			continue
		}
		if seen[e.Name] {
			errs = append(errs, fmt.Errorf("duplicate entry name %q", e.Name))
		}
		seen[e.Name] = true
		if len(e.Import) == 0 {
			errs = append(errs, fmt.Errorf("entry %q must import at least one module", e.Name))
		}
	}
	for _, e := range cfg.Entries {
		for _, dep := range e.DependOn {
			if dep == e.Name {
				errs = append(errs, fmt.Errorf("entry %q depends on itself", e.Name))
			} else if !seen[dep] {
				errs = append(errs, fmt.Errorf("entry %q depend_on references unknown entry %q", e.Name, dep))
			}
		}
	}
	for i, p := range cfg.Pinned {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("pinned[%d] must not be empty", i))
		}
	}
	return errs
}

func validateResolver(cfg *Config) []error {
	if err := cfg.ResolverConfig().Validate(); err != nil {
		return []error{err}
	}
	if cfg.Resolver.CacheSize < 0 {
		return []error{fmt.Errorf("resolver.cache_size must not be negative")}
	}
	return nil
}

func validateRules(cfg *Config) []error {
	var errs []error
	entries := make(map[string]bool, len(cfg.Entries))
	for _, e := range cfg.Entries {
		entries[e.Name] = true
	}
	seen := make(map[string]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		ref := fmt.Sprintf("rules[%d]", i)
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name must not be empty", ref))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("duplicate rule name %q", r.Name))
		}
		seen[r.Name] = true
		if entries[r.Name] {
			errs = append(errs, fmt.Errorf("rule %q has the same name as an entry", r.Name))
		}

		switch r.Scope {
		case "", "entries", "async", "all":
		default:
			errs = append(errs, fmt.Errorf("rule %q: scope must be one of: entries, async, all", r.Name))
		}

		switch r.Match {
		case "count":
		case "path":
			if len(r.Patterns) == 0 {
				errs = append(errs, fmt.Errorf("rule %q: match=path needs patterns", r.Name))
			}
			for _, p := range r.Patterns {
				if _, err := glob.Compile(p, '/'); err != nil {
					errs = append(errs, fmt.Errorf("rule %q: invalid pattern %q: %w", r.Name, p, err))
				}
			}
		case "explicit":
			if len(r.Modules) == 0 {
				errs = append(errs, fmt.Errorf("rule %q: match=explicit needs modules", r.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("rule %q: match must be one of: count, path, explicit", r.Name))
		}

		if r.MinChunks < 0 {
			errs = append(errs, fmt.Errorf("rule %q: min_chunks must not be negative", r.Name))
		}
		if r.MinSize < 0 {
			errs = append(errs, fmt.Errorf("rule %q: min_size must not be negative", r.Name))
		}
	}
	return errs
}

func validateChunks(cfg *Config) []error {
	var errs []error
	switch cfg.Chunks.Hoist {
	case "none", "parent", "async":
	default:
		errs = append(errs, fmt.Errorf("chunks.hoist must be one of: none, parent, async"))
	}
	switch cfg.Chunks.IDs {
	case "numeric", "hash":
	default:
		errs = append(errs, fmt.Errorf("chunks.ids must be one of: numeric, hash"))
	}
	switch cfg.Chunks.Runtime {
	case "embedded", "single", "per-entry":
	default:
		errs = append(errs, fmt.Errorf("chunks.runtime must be one of: embedded, single, per-entry"))
	}
	if cfg.Chunks.HashLength < 4 || cfg.Chunks.HashLength > 64 {
		errs = append(errs, fmt.Errorf("chunks.hash_length must be between 4 and 64, got %d", cfg.Chunks.HashLength))
	}
	return errs
}

func validateBuild(cfg *Config) []error {
	if cfg.Build.Workers < 0 {
		return []error{fmt.Errorf("build.workers must not be negative")}
	}
	return nil
}

func validateRecords(cfg *Config) []error {
	switch cfg.Records.Driver {
	case "toml", "sqlite", "memory":
	default:
		return []error{fmt.Errorf("records.driver must be one of: toml, sqlite, memory, got %q", cfg.Records.Driver)}
	}
	if cfg.Records.Driver != "memory" && strings.TrimSpace(cfg.Records.Path) == "" {
		return []error{fmt.Errorf("records.path must not be empty")}
	}
	return nil
}

func validateWatch(cfg *Config) []error {
	var errs []error
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	if cfg.Watch.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("watch.min_interval must not be negative"))
	}
	for _, pattern := range cfg.Watch.ExcludeFiles {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("watch.exclude_files pattern %q is invalid: %w", pattern, err))
		}
	}
	return errs
}

func validateObservability(cfg *Config) []error {
	if cfg.Observability.Port < 1 || cfg.Observability.Port > 65535 {
		return []error{fmt.Errorf("observability.port must be between 1 and 65535, got %d", cfg.Observability.Port)}
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return []error{fmt.Errorf("observability.enable_tracing requires observability.otlp_endpoint")}
	}
	return nil
}
