package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodePrecondition   Code = "PRECONDITION_FAILED"
	CodeConflict       Code = "CONFLICT"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeLockContention Code = "LOCK_CONTENTION"
	CodeDependency     Code = "DEPENDENCY_ERROR"
	CodeRollback       Code = "ROLLBACK_FAILED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Metadata is how a code surfaces over HTTP and whether the retry runner may
// repeat a call that failed with it.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Publish callers only distinguish 400/404/500, so every remote-side code
// collapses to 500 and the message carries the sub-system.
var metadataByCode = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, false, "validation failed", true},
	CodeNotFound:       {http.StatusNotFound, false, "resource not found", false},
	CodePrecondition:   {http.StatusNotFound, false, "precondition failed", true},
	CodeConflict:       {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict:  {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeLockContention: {http.StatusInternalServerError, true, "configuration document is locked by another publish", true},
	CodeDependency:     {http.StatusInternalServerError, true, "dependency failure", true},
	CodeRollback:       {http.StatusInternalServerError, false, "Rollback failed for Publish Offer", true},
	CodeInternal:       {http.StatusInternalServerError, true, "internal server error", false},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	case e.message == "":
		return fmt.Sprintf("%s: %v", e.code, e.cause)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// StatusOf maps err to the HTTP status its code carries.
func StatusOf(err error) int {
	return MetadataFor(CodeOf(err)).HTTPStatus
}

// Describe renders err as its chain of messages without codes, for
// operator-facing output. Plain wrappers are skipped in favour of what they
// wrap; the innermost plain error contributes its full text.
func Describe(err error) string {
	parts := []string{}
	for e := err; e != nil; {
		if typed, ok := e.(*Error); ok {
			if typed.message != "" && (len(parts) == 0 || parts[len(parts)-1] != typed.message) {
				parts = append(parts, typed.message)
			}
			e = typed.cause
			continue
		}
		next := stdErrors.Unwrap(e)
		if next == nil {
			parts = append(parts, e.Error())
			break
		}
		e = next
	}
	return strings.Join(parts, ": ")
}
