// Package crdterr defines the error kinds the engine's public entry points
// return, per spec §7. Each kind is a distinguishable sentinel so callers
// (e.g. the surrounding JSON-RPC layer) can map it to a wire error code
// without string-matching. Wrapping uses github.com/pkg/errors so call
// sites keep a stack trace through the layer boundaries.
package crdterr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies one of the five error categories from spec §7.
type Kind int

const (
	// KindCrdtError marks an invariant violation detected by a layer, e.g.
	// a mismatched Codex ID on merge or unexpected internal state.
	KindCrdtError Kind = iota
	// KindInvalidOperation marks a structurally valid operation a layer
	// refuses: a tree cycle, an insert on a tombstoned relationship, a
	// remove of a nonexistent relationship.
	KindInvalidOperation
	// KindNotImplemented marks an operation variant unsupported by the
	// current build.
	KindNotImplemented
	// KindTemplateError marks a metadata default or field definition that
	// cannot be materialized.
	KindTemplateError
	// KindInternalError marks an integrity check failure: an orphaned
	// child, a duplicated child in a parent's list, and similar.
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindCrdtError:
		return "CrdtError"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindNotImplemented:
		return "NotImplemented"
	case KindTemplateError:
		return "TemplateError"
	case KindInternalError:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type returned for every Kind.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: pkgerrors.New(fmt.Sprintf(format, args...))}
}

// CrdtError builds a KindCrdtError.
func CrdtError(format string, args ...any) error { return newErr(KindCrdtError, format, args...) }

// InvalidOperation builds a KindInvalidOperation.
func InvalidOperation(format string, args ...any) error {
	return newErr(KindInvalidOperation, format, args...)
}

// NotImplemented builds a KindNotImplemented.
func NotImplemented(format string, args ...any) error {
	return newErr(KindNotImplemented, format, args...)
}

// TemplateError builds a KindTemplateError.
func TemplateError(format string, args ...any) error {
	return newErr(KindTemplateError, format, args...)
}

// InternalError builds a KindInternalError.
func InternalError(format string, args ...any) error {
	return newErr(KindInternalError, format, args...)
}

// Wrap annotates err with additional context while preserving its Kind (if
// it has one) or defaulting to KindCrdtError for foreign errors.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var ce *Error
	kind := KindCrdtError
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: pkgerrors.WithMessage(err, fmt.Sprintf(format, args...))}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
