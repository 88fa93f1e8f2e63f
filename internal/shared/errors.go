package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures for transport mapping.
type ErrorKind string

const (
	// KindNotFound indicates a referenced entity is absent or belongs to
	// another branch.
	KindNotFound ErrorKind = "not_found"
	// KindPreconditionFailed indicates a guard violation: wrong state,
	// missing required field, insufficient role.
	KindPreconditionFailed ErrorKind = "precondition_failed"
	// KindDependencyWriteFailed indicates the annex-store write failed
	// during a two-store operation.
	KindDependencyWriteFailed ErrorKind = "dependency_write_failed"
	// KindValidationError indicates malformed input rejected before any
	// write.
	KindValidationError ErrorKind = "validation_error"
)

// Sentinels for errors.Is checks at call sites.
var (
	ErrNotFound           = &WorkflowError{Kind: KindNotFound, Reason: "not found"}
	ErrPreconditionFailed = &WorkflowError{Kind: KindPreconditionFailed, Reason: "precondition failed"}
	ErrDependencyWrite    = &WorkflowError{Kind: KindDependencyWriteFailed, Reason: "dependency write failed"}
	ErrValidation         = &WorkflowError{Kind: KindValidationError, Reason: "validation error"}
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCSRFTokenMissing   = errors.New("csrf token missing")
	ErrCSRFTokenMismatch  = errors.New("csrf token mismatch")
)

// WorkflowError carries a machine-readable kind plus the specific unmet
// condition. CompensationFailed marks a two-store create whose
// compensating delete also failed and needs manual cleanup.
type WorkflowError struct {
	Kind               ErrorKind
	Reason             string
	CompensationFailed bool
	cause              error
}

func (e *WorkflowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *WorkflowError) Unwrap() error { return e.cause }

// Is matches any WorkflowError of the same kind.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error {
	return &WorkflowError{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

// Preconditionf builds a PreconditionFailed error.
func Preconditionf(format string, args ...any) error {
	return &WorkflowError{Kind: KindPreconditionFailed, Reason: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &WorkflowError{Kind: KindValidationError, Reason: fmt.Sprintf(format, args...)}
}

// DependencyWrite wraps the annex-store failure after a completed
// compensation.
func DependencyWrite(reason string, cause error) error {
	return &WorkflowError{Kind: KindDependencyWriteFailed, Reason: reason, cause: cause}
}

// DependencyWriteUncompensated wraps the annex-store failure when the
// compensating delete also failed.
func DependencyWriteUncompensated(reason string, cause error) error {
	return &WorkflowError{Kind: KindDependencyWriteFailed, Reason: reason, cause: cause, CompensationFailed: true}
}

// KindOf extracts the ErrorKind from err, or "" for plain errors.
func KindOf(err error) ErrorKind {
	var wf *WorkflowError
	if errors.As(err, &wf) {
		return wf.Kind
	}
	return ""
}

// ReasonOf extracts the human-readable reason, falling back to Error().
func ReasonOf(err error) string {
	var wf *WorkflowError
	if errors.As(err, &wf) {
		return wf.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
