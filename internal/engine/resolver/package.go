// # internal/engine/resolver/package.go
package resolver

import (
	"encoding/json"
	"io/fs"
	"path"
	"strings"
)

type packageJSON struct {
	fields  map[string]json.RawMessage
	exports any
}

// readPackage loads dir/package.json. A missing file yields (nil, "").
func (p *prober) readPackage(dir string) (*packageJSON, string) {
	name := path.Join(dir, "package.json")
	if !p.isFile(name) {
		return nil, ""
	}
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return nil, "read " + name + ": " + err.Error()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, "invalid " + name + ": " + err.Error()
	}
	pkg := &packageJSON{fields: fields}
	if raw, ok := fields["exports"]; ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, "invalid exports in " + name + ": " + err.Error()
		}
		pkg.exports = v
	}
	return pkg, ""
}

// field returns a string-valued top-level field. Object-valued fields such as
// a browser replacement map are ignored.
func (pkg *packageJSON) field(name string) string {
	raw, ok := pkg.fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// matchExports maps subpath ("." or "./x") through an exports value.
// Conditions are tried in configured order with "default" last.
func matchExports(exports any, subpath string, conditions []string) (string, bool) {
	m, isMap := exports.(map[string]any)
	if !isMap || !hasSubpathKeys(m) {
		if subpath != "." {
			return "", false
		}
		return exportTarget(exports, conditions)
	}

	if v, ok := m[subpath]; ok {
		return exportTarget(v, conditions)
	}

	var (
		bestKey   string
		bestMatch string
		bestLen   = -1
	)
	for key := range m {
		star := strings.IndexByte(key, '*')
		if star < 0 {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if len(subpath) < len(prefix)+len(suffix) ||
			!strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if len(prefix) > bestLen || (len(prefix) == bestLen && key < bestKey) {
			bestKey, bestLen = key, len(prefix)
			bestMatch = subpath[len(prefix) : len(subpath)-len(suffix)]
		}
	}
	if bestLen < 0 {
		return "", false
	}
	target, ok := exportTarget(m[bestKey], conditions)
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(target, "*", bestMatch), true
}

func hasSubpathKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, ".") {
			return true
		}
	}
	return false
}

func exportTarget(v any, conditions []string) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		for _, alt := range t {
			if s, ok := exportTarget(alt, conditions); ok {
				return s, true
			}
		}
	case map[string]any:
		for _, c := range conditions {
			if val, ok := t[c]; ok {
				if s, ok := exportTarget(val, conditions); ok {
					return s, true
				}
			}
		}
		if val, ok := t["default"]; ok {
			return exportTarget(val, conditions)
		}
	}
	// null targets block the subpath
	return "", false
}
