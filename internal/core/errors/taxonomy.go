package errors

import (
	"fmt"
	"strings"
)

// ResolutionError reports a specifier that could not be mapped to a module.
type ResolutionError struct {
	Specifier string
	Context   string // directory the specifier was resolved from
	Importer  string // identity of the requesting module, empty for entries
	Reason    string
}

func (e *ResolutionError) Code() ErrorCode { return CodeResolution }

func (e *ResolutionError) Error() string {
	from := e.Context
	if e.Importer != "" {
		from = e.Importer
	}
	return fmt.Sprintf("[%s] cannot resolve %q from %q: %s", CodeResolution, e.Specifier, from, e.Reason)
}

// InconsistentResolutionError reports the same request resolving to two
// different identities within one build pass.
type InconsistentResolutionError struct {
	Specifier string
	Context   string
	First     string
	Second    string
}

func (e *InconsistentResolutionError) Code() ErrorCode { return CodeInconsistentResolution }

func (e *InconsistentResolutionError) Error() string {
	return fmt.Sprintf("[%s] %q from %q resolved to both %q and %q",
		CodeInconsistentResolution, e.Specifier, e.Context, e.First, e.Second)
}

// RuleEvaluationError names an extraction rule whose predicate failed.
type RuleEvaluationError struct {
	Rule   string
	Module string
	Err    error
}

func (e *RuleEvaluationError) Code() ErrorCode { return CodeRuleEvaluation }

func (e *RuleEvaluationError) Error() string {
	msg := fmt.Sprintf("[%s] rule %q failed", CodeRuleEvaluation, e.Rule)
	if e.Module != "" {
		msg += fmt.Sprintf(" on module %q", e.Module)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }

// ManifestConsistencyError is an internal invariant violation found while
// building a manifest. It always indicates an engine defect.
type ManifestConsistencyError struct {
	Group  string
	Chunks []string
	Reason string
}

func (e *ManifestConsistencyError) Code() ErrorCode { return CodeManifestConsistency }

func (e *ManifestConsistencyError) Error() string {
	msg := fmt.Sprintf("[%s] %s", CodeManifestConsistency, e.Reason)
	if e.Group != "" {
		msg += fmt.Sprintf(" (load group %q)", e.Group)
	}
	if len(e.Chunks) > 0 {
		msg += ": " + strings.Join(e.Chunks, ", ")
	}
	return msg
}

// DuplicateEntryError reports an entry name defined twice.
type DuplicateEntryError struct {
	Name string
}

func (e *DuplicateEntryError) Code() ErrorCode { return CodeDuplicateEntry }

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("[%s] entry %q is already defined", CodeDuplicateEntry, e.Name)
}
