// # internal/engine/resolver/config.go
package resolver

import (
	"bundlegraph/internal/core/errors"
	"fmt"
	"strings"
)

// Alias rewrites a specifier prefix. A Name ending in "$" only matches the
// exact specifier. Targets starting with "./" or "/" are project-root
// relative; anything else is treated as a bare package specifier.
type Alias struct {
	Name   string
	Target string
}

type Config struct {
	Extensions       []string
	Alias            []Alias
	Conditions       []string
	MainFields       []string
	MainFiles        []string
	Modules          []string
	StrictExtensions bool
	CacheSize        int
}

func DefaultConfig() Config {
	return Config{
		Extensions: []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".json", ".css"},
		Conditions: []string{"import", "browser", "module"},
		MainFields: []string{"browser", "module", "main"},
		MainFiles:  []string{"index"},
		Modules:    []string{"node_modules"},
		CacheSize:  4096,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Extensions == nil {
		c.Extensions = def.Extensions
	}
	if c.Conditions == nil {
		c.Conditions = def.Conditions
	}
	if c.MainFields == nil {
		c.MainFields = def.MainFields
	}
	if len(c.MainFiles) == 0 {
		c.MainFiles = def.MainFiles
	}
	if len(c.Modules) == 0 {
		c.Modules = def.Modules
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	return c
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("resolver.extensions entry %q must start with '.'", ext))
		}
	}
	seen := make(map[string]bool, len(c.Alias))
	for _, a := range c.Alias {
		name := strings.TrimSuffix(a.Name, "$")
		if name == "" {
			return errors.New(errors.CodeValidationError, "resolver.alias name must not be empty")
		}
		if strings.TrimSpace(a.Target) == "" {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("resolver.alias %q needs a target", a.Name))
		}
		if seen[a.Name] {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("resolver.alias %q is defined twice", a.Name))
		}
		seen[a.Name] = true
	}
	for _, m := range c.Modules {
		if strings.Contains(m, "..") {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("resolver.modules entry %q must not leave the project", m))
		}
	}
	return nil
}
