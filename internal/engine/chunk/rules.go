// # internal/engine/chunk/rules.go
package chunk

import (
	"bundlegraph/internal/core/errors"
	"bundlegraph/internal/engine/graph"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

type MatcherKind uint8

const (
	MatchCount MatcherKind = iota
	MatchPath
	MatchExplicit
	MatchCustom
)

func (k MatcherKind) String() string {
	switch k {
	case MatchCount:
		return "count"
	case MatchPath:
		return "path"
	case MatchExplicit:
		return "explicit"
	case MatchCustom:
		return "custom"
	}
	return fmt.Sprintf("matcher(%d)", uint8(k))
}

// ModuleInfo is what a matcher sees of a candidate module.
type ModuleInfo struct {
	Identity graph.Identity
	Size     int64
	// Chunks is the number of the rule's source chunks holding the module.
	Chunks     int
	ChunkNames []string
}

// CustomFunc decides membership for MatchCustom rules.
type CustomFunc func(ModuleInfo) (bool, error)

// Matcher is the closed set of membership predicates a rule can use. Every
// kind is combined with the rule's MinChunks threshold.
type Matcher struct {
	Kind     MatcherKind
	Patterns []string   // MatchPath: globs over the module identity
	Modules  []string   // MatchExplicit: identities
	Func     CustomFunc // MatchCustom

	globs    []glob.Glob
	explicit map[string]bool
}

func CountMatcher() Matcher { return Matcher{Kind: MatchCount} }

func PathMatcher(patterns ...string) Matcher {
	return Matcher{Kind: MatchPath, Patterns: patterns}
}

func ExplicitMatcher(identities ...string) Matcher {
	return Matcher{Kind: MatchExplicit, Modules: identities}
}

func CustomMatcher(fn CustomFunc) Matcher {
	return Matcher{Kind: MatchCustom, Func: fn}
}

// Scope selects which chunks a rule draws modules from.
type Scope string

const (
	ScopeEntries Scope = "entries" // entry and initial chunks
	ScopeAsync   Scope = "async"   // on-demand chunks
	ScopeAll     Scope = "all"
)

type Sources struct {
	Scope Scope
	// Names narrows the scope to these chunks when non-empty.
	Names []string
}

// Rule moves matching modules out of its source chunks into the chunk Name.
type Rule struct {
	Name      string
	Sources   Sources
	Match     Matcher
	MinChunks int
	// MinSize skips the rule when the matched modules total fewer bytes.
	MinSize int64
}

func (r *Rule) compile() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New(errors.CodeValidationError, "rule name must not be empty")
	}
	if r.MinChunks <= 0 {
		r.MinChunks = 1
	}
	if r.MinSize < 0 {
		return r.invalid("minSize must not be negative")
	}
	switch r.Sources.Scope {
	case "":
		r.Sources.Scope = ScopeEntries
	case ScopeEntries, ScopeAsync, ScopeAll:
	default:
		return r.invalid(fmt.Sprintf("unknown source scope %q", r.Sources.Scope))
	}

	switch r.Match.Kind {
	case MatchCount:
	case MatchPath:
		if len(r.Match.Patterns) == 0 {
			return r.invalid("path matcher needs at least one pattern")
		}
		r.Match.globs = r.Match.globs[:0]
		for _, p := range r.Match.Patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return errors.AddContext(
					errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("invalid pattern %q", p)),
					errors.CtxRule, r.Name,
				)
			}
			r.Match.globs = append(r.Match.globs, g)
		}
	case MatchExplicit:
		if len(r.Match.Modules) == 0 {
			return r.invalid("explicit matcher needs at least one module")
		}
		r.Match.explicit = make(map[string]bool, len(r.Match.Modules))
		for _, m := range r.Match.Modules {
			r.Match.explicit[m] = true
		}
	case MatchCustom:
		if r.Match.Func == nil {
			return r.invalid("custom matcher needs a function")
		}
	default:
		return r.invalid(fmt.Sprintf("unknown matcher kind %s", r.Match.Kind))
	}
	return nil
}

func (r *Rule) invalid(msg string) error {
	return errors.AddContext(errors.New(errors.CodeValidationError, msg), errors.CtxRule, r.Name)
}

// selects reports whether c is one of the rule's source chunks.
func (r *Rule) selects(c *Chunk) bool {
	if c.Name == r.Name {
		return false
	}
	switch r.Sources.Scope {
	case ScopeEntries:
		if c.Kind == KindNormal {
			return false
		}
	case ScopeAsync:
		if c.Kind != KindNormal {
			return false
		}
	}
	if len(r.Sources.Names) == 0 {
		return true
	}
	for _, n := range r.Sources.Names {
		if n == c.Name || (c.Kind == KindEntry && n == c.Entry) {
			return true
		}
	}
	return false
}

// evaluate applies the matcher to one module. Errors and panics from custom
// callbacks come back as RuleEvaluationError.
func (r *Rule) evaluate(info ModuleInfo) (matched bool, err error) {
	if info.Chunks < r.MinChunks {
		return false, nil
	}

	switch r.Match.Kind {
	case MatchCount:
		return true, nil
	case MatchPath:
		id := info.Identity.String()
		for _, g := range r.Match.globs {
			if g.Match(id) {
				return true, nil
			}
		}
		return false, nil
	case MatchExplicit:
		return r.Match.explicit[info.Identity.String()] || r.Match.explicit[info.Identity.Path], nil
	case MatchCustom:
		defer func() {
			if p := recover(); p != nil {
				matched = false
				err = &errors.RuleEvaluationError{
					Rule:   r.Name,
					Module: info.Identity.String(),
					Err:    fmt.Errorf("predicate panicked: %v", p),
				}
			}
		}()
		ok, ferr := r.Match.Func(info)
		if ferr != nil {
			return false, &errors.RuleEvaluationError{Rule: r.Name, Module: info.Identity.String(), Err: ferr}
		}
		return ok, nil
	}
	return false, &errors.RuleEvaluationError{Rule: r.Name, Err: fmt.Errorf("unknown matcher kind %s", r.Match.Kind)}
}
