package taxon

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports bad input: empty or oversized name, missing or
// inaccessible parent. It is returned before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed on " + e.Field + ": " + e.Message
}

// NotFoundError reports a lookup that matched no visible row. It is a
// distinct error kind, never a zero-value record.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// DuplicateNameError reports a name collision within a (parent, owner)
// scope. Comparison is case-insensitive.
type DuplicateNameError struct {
	Name     string
	ParentID *uuid.UUID
}

func (e *DuplicateNameError) Error() string {
	if e.ParentID == nil {
		return fmt.Sprintf("name %q already exists in scope", e.Name)
	}
	return fmt.Sprintf("name %q already exists under parent %s", e.Name, *e.ParentID)
}

// PermissionDeniedError reports that the row-level visibility rule, or
// the system-default read-only rule, rejected the operation.
type PermissionDeniedError struct {
	Op string
	ID uuid.UUID
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s %s: permission denied", e.Op, e.ID)
}

// NetworkError wraps a transient transport failure. Read paths degrade
// to the cached snapshot instead of surfacing it; write paths return it
// to the caller.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConstraintViolationError reports a unique-name collision surfaced by
// the store itself, typically a race lost to a concurrent insert. The
// repository absorbs it by adopting the pre-existing row.
type ConstraintViolationError struct {
	Op  string
	Err error
}

func (e *ConstraintViolationError) Error() string {
	return e.Op + ": constraint violation: " + e.Err.Error()
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// ReconcileError aggregates best-effort duplicate-cleanup failures. It
// never blocks the fetch path; callers log it and move on.
type ReconcileError struct {
	Attempted int
	Errs      []error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile: %d of %d duplicate deletions failed", len(e.Errs), e.Attempted)
}

func (e *ReconcileError) Unwrap() []error { return e.Errs }

// InFlightError reports that another writer already holds the in-flight
// slot for the same logical id. The second submission is rejected, not
// queued, so the remote store never sees a double write.
type InFlightError struct {
	ID uuid.UUID
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("operation already in flight for %s", e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsDuplicateName reports whether err is a DuplicateNameError.
func IsDuplicateName(err error) bool {
	var target *DuplicateNameError
	return errors.As(err, &target)
}

// IsPermissionDenied reports whether err is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var target *PermissionDeniedError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsConstraintViolation reports whether err is a ConstraintViolationError.
func IsConstraintViolation(err error) bool {
	var target *ConstraintViolationError
	return errors.As(err, &target)
}

// IsInFlight reports whether err is an InFlightError.
func IsInFlight(err error) bool {
	var target *InFlightError
	return errors.As(err, &target)
}
