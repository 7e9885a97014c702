// # internal/engine/resolver/resolver.go
package resolver

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"bundlegraph/internal/shared/cache"
	"bundlegraph/internal/shared/observability"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type cacheKey struct {
	context   string
	specifier string
}

type cacheEntry struct {
	identity graph.Identity
	err      error
	probed   []string
}

// Resolver maps specifiers to canonical module identities inside fsys. Paths
// in identities are relative to the root of fsys.
type Resolver struct {
	fsys fs.FS

	mu     sync.Mutex
	cfg    Config
	gen    uint64
	cache  *cache.LRU[cacheKey, cacheEntry]
	probes map[string]map[cacheKey]struct{}

	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(fsys fs.FS, cfg Config) (*Resolver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{fsys: fsys}
	r.resetLocked(cfg)
	return r, nil
}

// SetConfig swaps the resolution rules and drops every cached result.
func (r *Resolver) SetConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(cfg)
	slog.Debug("resolver config replaced", "extensions", cfg.Extensions, "aliases", len(cfg.Alias))
	return nil
}

func (r *Resolver) resetLocked(cfg Config) {
	r.cfg = cfg
	r.gen++
	r.probes = make(map[string]map[cacheKey]struct{})
	r.cache = cache.NewLRU[cacheKey, cacheEntry](cfg.CacheSize)
	// Evictions always happen with r.mu held.
	r.cache.OnEvict(func(k cacheKey, e cacheEntry) {
		for _, p := range e.probed {
			if keys := r.probes[p]; keys != nil {
				delete(keys, k)
				if len(keys) == 0 {
					delete(r.probes, p)
				}
			}
		}
	})
}

func (r *Resolver) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Resolve implements graph.Resolver.
func (r *Resolver) Resolve(specifier, fromContext string) (graph.Identity, error) {
	key := cacheKey{context: cleanContext(fromContext), specifier: specifier}

	r.mu.Lock()
	c, cfg, gen := r.cache, r.cfg, r.gen
	r.mu.Unlock()

	if e, ok := c.Get(key); ok {
		r.hits.Add(1)
		observability.ResolverCacheHits.Inc()
		return e.identity, e.err
	}
	r.misses.Add(1)
	observability.ResolverCacheMisses.Inc()

	p := &prober{fsys: r.fsys, cfg: cfg}
	identity, reason := p.resolve(specifier, key.context)
	var err error
	if reason != "" {
		err = &errors.ResolutionError{Specifier: specifier, Context: key.context, Reason: reason}
	}

	r.mu.Lock()
	if gen == r.gen {
		for _, probed := range p.probed {
			keys := r.probes[probed]
			if keys == nil {
				keys = make(map[cacheKey]struct{})
				r.probes[probed] = keys
			}
			keys[key] = struct{}{}
		}
		r.cache.Put(key, cacheEntry{identity: identity, err: err, probed: p.probed})
	}
	r.mu.Unlock()

	return identity, err
}

// InvalidatePath evicts every cached resolution that looked at p, whether
// the lookup found a file there or not. It returns the number of evicted
// entries.
func (r *Resolver) InvalidatePath(p string) int {
	p = cleanContext(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]cacheKey, 0, len(r.probes[p]))
	for k := range r.probes[p] {
		keys = append(keys, k)
	}
	for _, k := range keys {
		r.cache.Remove(k)
	}
	if len(keys) > 0 {
		slog.Debug("resolver cache invalidated", "path", p, "entries", len(keys))
	}
	return len(keys)
}

// Stats returns the cache hit and miss counts.
func (r *Resolver) Stats() (hits, misses uint64) {
	return r.hits.Load(), r.misses.Load()
}

func cleanContext(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "."
	}
	return p
}

// prober performs one uncached resolution and records every path it looked
// at.
type prober struct {
	fsys   fs.FS
	cfg    Config
	probed []string
	seen   map[string]bool
}

func (p *prober) note(name string) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	if !p.seen[name] {
		p.seen[name] = true
		p.probed = append(p.probed, name)
	}
}

func (p *prober) stat(name string) fs.FileInfo {
	p.note(name)
	info, err := fs.Stat(p.fsys, name)
	if err != nil {
		return nil
	}
	return info
}

func (p *prober) isFile(name string) bool {
	info := p.stat(name)
	return info != nil && !info.IsDir()
}

func (p *prober) isDir(name string) bool {
	info := p.stat(name)
	return info != nil && info.IsDir()
}

// resolve returns a non-empty reason on failure.
func (p *prober) resolve(specifier, context string) (graph.Identity, string) {
	req, query := specifier, ""
	if idx := strings.IndexByte(specifier, '?'); idx >= 0 {
		req, query = specifier[:idx], specifier[idx:]
	}
	if strings.TrimSpace(req) == "" {
		return graph.Identity{}, "empty specifier"
	}

	req = p.applyAlias(req)

	var (
		target string
		reason string
	)
	switch {
	case strings.HasPrefix(req, "/"):
		target, reason = p.resolveFileOrDir(cleanContext(req))
	case req == "." || req == ".." || strings.HasPrefix(req, "./") || strings.HasPrefix(req, "../"):
		joined := path.Join(context, req)
		if !fs.ValidPath(joined) {
			return graph.Identity{}, "path escapes the project root"
		}
		target, reason = p.resolveFileOrDir(joined)
	default:
		target, reason = p.resolvePackage(req, context)
	}
	if reason != "" {
		return graph.Identity{}, reason
	}
	return graph.Identity{Path: target, Query: query}, ""
}

func (p *prober) applyAlias(req string) string {
	for _, a := range p.cfg.Alias {
		if name, exact := strings.CutSuffix(a.Name, "$"); exact && req == name {
			return aliasTarget(a.Target, "")
		}
	}

	aliases := make([]Alias, 0, len(p.cfg.Alias))
	for _, a := range p.cfg.Alias {
		if !strings.HasSuffix(a.Name, "$") {
			aliases = append(aliases, a)
		}
	}
	sort.SliceStable(aliases, func(i, j int) bool { return len(aliases[i].Name) > len(aliases[j].Name) })
	for _, a := range aliases {
		if req == a.Name {
			return aliasTarget(a.Target, "")
		}
		if rest, ok := strings.CutPrefix(req, a.Name+"/"); ok {
			return aliasTarget(a.Target, rest)
		}
	}
	return req
}

func aliasTarget(target, rest string) string {
	if rest != "" {
		target = strings.TrimSuffix(target, "/") + "/" + rest
	}
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return "/" + cleanContext(target)
	}
	return target
}

func (p *prober) resolveFileOrDir(target string) (string, string) {
	found, reason := p.resolveFile(target)
	if found != "" || reason != "" {
		return found, reason
	}
	if p.isDir(target) {
		return p.resolveDir(target)
	}
	return "", "no file matches " + target
}

// resolveFile probes target and then target+ext for each extension. An
// empty result with an empty reason means nothing matched.
func (p *prober) resolveFile(target string) (string, string) {
	if p.isFile(target) {
		return target, ""
	}

	var matches []string
	for _, ext := range p.cfg.Extensions {
		candidate := target + ext
		if p.isFile(candidate) {
			if !p.cfg.StrictExtensions {
				return candidate, ""
			}
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return "", ""
	case 1:
		return matches[0], ""
	default:
		return "", "ambiguous candidates " + strings.Join(matches, ", ")
	}
}

func (p *prober) resolveDir(dir string) (string, string) {
	if pkg, reason := p.readPackage(dir); reason != "" {
		return "", reason
	} else if pkg != nil {
		for _, field := range p.cfg.MainFields {
			main := pkg.field(field)
			if main == "" {
				continue
			}
			joined := path.Join(dir, main)
			if !fs.ValidPath(joined) {
				continue
			}
			if found, reason := p.resolveFileOrDir(joined); found != "" || strings.HasPrefix(reason, "ambiguous") {
				return found, reason
			}
		}
	}

	for _, name := range p.cfg.MainFiles {
		found, reason := p.resolveFile(path.Join(dir, name))
		if found != "" || reason != "" {
			return found, reason
		}
	}
	return "", "directory " + dir + " has no entry file"
}

func (p *prober) resolvePackage(req, context string) (string, string) {
	name, subpath := splitPackage(req)
	if name == "" {
		return "", "invalid package specifier"
	}

	for dir := context; ; dir = path.Dir(dir) {
		for _, modules := range p.cfg.Modules {
			pkgDir := path.Join(dir, modules, name)
			if p.isDir(pkgDir) {
				return p.resolveInPackage(pkgDir, subpath)
			}
		}
		if dir == "." {
			break
		}
	}
	return "", "package " + name + " not found"
}

func (p *prober) resolveInPackage(pkgDir, subpath string) (string, string) {
	pkg, reason := p.readPackage(pkgDir)
	if reason != "" {
		return "", reason
	}

	if pkg != nil && pkg.exports != nil {
		target, ok := matchExports(pkg.exports, subpath, p.cfg.Conditions)
		if !ok {
			return "", "subpath " + subpath + " is not exported by " + pkgDir
		}
		joined := path.Join(pkgDir, target)
		if !strings.HasPrefix(target, "./") || !fs.ValidPath(joined) || (joined != pkgDir && !strings.HasPrefix(joined, pkgDir+"/")) {
			return "", "invalid exports target " + target + " in " + pkgDir
		}
		if !p.isFile(joined) {
			return "", "exports target " + joined + " does not exist"
		}
		return joined, ""
	}

	if subpath == "." {
		return p.resolveDir(pkgDir)
	}
	return p.resolveFileOrDir(path.Join(pkgDir, subpath))
}

// splitPackage turns "@scope/pkg/sub" into ("@scope/pkg", "./sub").
func splitPackage(req string) (string, string) {
	parts := strings.Split(req, "/")
	n := 1
	if strings.HasPrefix(req, "@") {
		n = 2
	}
	if len(parts) < n || parts[0] == "" || (n == 2 && parts[1] == "") {
		return "", ""
	}
	name := strings.Join(parts[:n], "/")
	if len(parts) == n {
		return name, "."
	}
	return name, "./" + strings.Join(parts[n:], "/")
}
