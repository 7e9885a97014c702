// # internal/core/config/convert.go
package config

import (
	"bundlegraph/internal/core/build"
	"bundlegraph/internal/engine/chunk"
	"bundlegraph/internal/engine/resolver"
	"fmt"
)

// ResolverConfig maps the [resolver] section. Unset lists fall back to the
// resolver's own defaults.
func (c *Config) ResolverConfig() resolver.Config {
	def := resolver.DefaultConfig()
	rc := resolver.Config{
		Extensions:       c.Resolver.Extensions,
		Conditions:       c.Resolver.Conditions,
		MainFields:       c.Resolver.MainFields,
		MainFiles:        c.Resolver.MainFiles,
		Modules:          c.Resolver.Modules,
		StrictExtensions: c.Resolver.StrictExtensions,
		CacheSize:        c.Resolver.CacheSize,
	}
	if rc.Extensions == nil {
		rc.Extensions = def.Extensions
	}
	if rc.Conditions == nil {
		rc.Conditions = def.Conditions
	}
	if rc.MainFields == nil {
		rc.MainFields = def.MainFields
	}
	if len(rc.MainFiles) == 0 {
		rc.MainFiles = def.MainFiles
	}
	if len(rc.Modules) == 0 {
		rc.Modules = def.Modules
	}
	if rc.CacheSize == 0 {
		rc.CacheSize = def.CacheSize
	}
	for _, a := range c.Resolver.Alias {
		rc.Alias = append(rc.Alias, resolver.Alias{Name: a.Name, Target: a.Target})
	}
	return rc
}

// EngineOptions maps [chunks] and [[rules]] onto chunk engine options.
func (c *Config) EngineOptions() (chunk.Options, error) {
	opts := chunk.Options{
		Hoist:      chunk.HoistMode(c.Chunks.Hoist),
		IDs:        chunk.IDMode(c.Chunks.IDs),
		Runtime:    chunk.RuntimeMode(c.Chunks.Runtime),
		HashLength: c.Chunks.HashLength,
	}
	for _, r := range c.Rules {
		rule := chunk.Rule{
			Name:      r.Name,
			Sources:   chunk.Sources{Scope: chunk.Scope(r.Scope), Names: r.Chunks},
			MinChunks: r.MinChunks,
			MinSize:   r.MinSize,
		}
		switch r.Match {
		case "count":
			rule.Match = chunk.CountMatcher()
		case "path":
			rule.Match = chunk.PathMatcher(r.Patterns...)
		case "explicit":
			rule.Match = chunk.ExplicitMatcher(r.Modules...)
		default:
			return chunk.Options{}, fmt.Errorf("rule %q: unknown matcher %q", r.Name, r.Match)
		}
		opts.Rules = append(opts.Rules, rule)
	}
	return opts, nil
}

func (c *Config) EntryDefs() []build.EntryDef {
	defs := make([]build.EntryDef, 0, len(c.Entries))
	for _, e := range c.Entries {
		defs = append(defs, build.EntryDef{
			Name:     e.Name,
			Import:   append([]string(nil), e.Import...),
			DependOn: append([]string(nil), e.DependOn...),
		})
	}
	return defs
}
