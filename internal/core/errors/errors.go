package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeParse              ErrorCode = "PARSE_ERROR"
	CodeDetector           ErrorCode = "DETECTOR_ERROR"
	CodeSolverInconclusive ErrorCode = "SOLVER_INCONCLUSIVE"
	CodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeValidationError    ErrorCode = "VALIDATION_ERROR"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeCancelled          ErrorCode = "CANCELLED"
	CodeNotSupported       ErrorCode = "NOT_SUPPORTED"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath    = "path"
	CtxLine    = "line"
	CtxColumn  = "column"
	CtxPattern = "pattern"
	CtxKey     = "key"
	CtxBackend = "backend"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
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
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// ParseError reports a syntax error at a 1-based line and column.
func ParseError(path, msg string, line, column int) error {
	de := &DomainError{Code: CodeParse, Message: msg}
	if path != "" {
		de.WithContext(CtxPath, path)
	}
	return de.WithContext(CtxLine, line).WithContext(CtxColumn, column)
}

func Configuration(key, msg string) error {
	de := &DomainError{Code: CodeConfiguration, Message: msg}
	if key != "" {
		de.WithContext(CtxKey, key)
	}
	return de
}

func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Location returns the line and column recorded on a parse error.
func Location(err error) (line, column int, ok bool) {
	var de *DomainError
	if !errors.As(err, &de) || de.Context == nil {
		return 0, 0, false
	}
	l, lok := de.Context[CtxLine].(int)
	c, cok := de.Context[CtxColumn].(int)
	return l, c, lok && cok
}

// CodeOf returns the code of the first DomainError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
