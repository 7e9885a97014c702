package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeValidationError        ErrorCode = "VALIDATION_ERROR"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported           ErrorCode = "NOT_SUPPORTED"
	CodeCancelled              ErrorCode = "CANCELLED"
	CodeResolution             ErrorCode = "RESOLUTION_ERROR"
	CodeInconsistentResolution ErrorCode = "INCONSISTENT_RESOLUTION"
	CodeRuleEvaluation         ErrorCode = "RULE_EVALUATION_ERROR"
	CodeManifestConsistency    ErrorCode = "MANIFEST_CONSISTENCY_ERROR"
	CodeDuplicateEntry         ErrorCode = "DUPLICATE_ENTRY"
)

// Coded is implemented by every error in the bundler taxonomy.
type Coded interface {
	error
	Code() ErrorCode
}

type DomainError struct {
	ErrCode ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxSpecifier = "specifier"
	CtxModule    = "module"
	CtxEntry     = "entry"
	CtxChunk     = "chunk"
	CtxRule      = "rule"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Code() ErrorCode {
	return e.ErrCode
}

func (e *DomainError) Error() string {
	var msg string
	switch {
	case e.Message == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg = fmt.Sprintf("[%s] %s: %v", e.ErrCode, e.Message, e.Err)
	default:
		msg = fmt.Sprintf("[%s] %s", e.ErrCode, e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		msg += " {" + strings.Join(parts, " ") + "}"
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{ErrCode: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{ErrCode: code, Message: msg, Err: err}
}

// AddContext attaches a key/value pair to err. Errors that are not a
// DomainError are wrapped in one carrying the same code.
func AddContext(err error, key string, value interface{}) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		ErrCode: CodeOf(err),
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// CodeOf returns the code of the first coded error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code() == code
	}
	return false
}

// IsDefect reports whether err is an engine invariant violation rather than
// a user configuration or input error.
func IsDefect(err error) bool {
	return IsCode(err, CodeManifestConsistency)
}
