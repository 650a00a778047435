package shared

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable machine-readable error classification. The HTTP
// boundary maps kinds to status codes; the core never composes statuses.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInvalidTransition   ErrorKind = "INVALID_STATUS_TRANSITION"
	KindInsufficientStock   ErrorKind = "INSUFFICIENT_STOCK"
	KindProductMismatch     ErrorKind = "PRODUCT_MISMATCH"
	KindValidation          ErrorKind = "VALIDATION"
	KindConcurrencyConflict ErrorKind = "CONCURRENCY_CONFLICT"
	KindForbidden           ErrorKind = "FORBIDDEN"
)

// NotFoundError indicates an entity id could not be resolved.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Kind returns the error classification.
func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// NewNotFound builds a NotFoundError.
func NewNotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidStatusTransitionError indicates a state machine violation. It names
// the attempted action plus the current and required statuses so the boundary
// can render an actionable message.
type InvalidStatusTransitionError struct {
	Entity   string
	Action   string
	Current  string
	Required string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s: status is %s, requires %s", e.Action, e.Entity, e.Current, e.Required)
}

// Kind returns the error classification.
func (e *InvalidStatusTransitionError) Kind() ErrorKind { return KindInvalidTransition }

// InsufficientStockError indicates a deduction would drive a lot negative.
type InsufficientStockError struct {
	LotID     int64
	BatchCode string
	Requested float64
	Remaining float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("lot %d (%s): requested %.2f exceeds remaining %.2f", e.LotID, e.BatchCode, e.Requested, e.Remaining)
}

// Kind returns the error classification.
func (e *InsufficientStockError) Kind() ErrorKind { return KindInsufficientStock }

// ProductMismatchError indicates a detail line references a lot that belongs
// to a different product. Lot ids arrive in client payloads and are revalidated
// server-side.
type ProductMismatchError struct {
	LotID         int64
	LotProductID  int64
	LineProductID int64
}

func (e *ProductMismatchError) Error() string {
	return fmt.Sprintf("lot %d belongs to product %d, line declares product %d", e.LotID, e.LotProductID, e.LineProductID)
}

// Kind returns the error classification.
func (e *ProductMismatchError) Kind() ErrorKind { return KindProductMismatch }

// ValidationError indicates malformed or missing input, detected before any
// persistence write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Kind returns the error classification.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// NewValidation builds a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ForbiddenError indicates the actor is authenticated but not allowed to act
// on the requested resource, e.g. staff targeting another store.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// Kind returns the error classification.
func (e *ForbiddenError) Kind() ErrorKind { return KindForbidden }

// NewForbidden builds a ForbiddenError.
func NewForbidden(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

// ConcurrencyConflictError indicates an optimistic-lock or serialization
// failure on a lot mutation. Callers retry once; a second conflict surfaces
// to the user as a transient failure.
type ConcurrencyConflictError struct {
	Resource string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s, please retry", e.Resource)
}

// Kind returns the error classification.
func (e *ConcurrencyConflictError) Kind() ErrorKind { return KindConcurrencyConflict }

// Kinder is implemented by all classified errors in this package.
type Kinder interface {
	Kind() ErrorKind
}

// KindOf extracts the classification from err, unwrapping as needed.
// Unclassified errors report an empty kind.
func KindOf(err error) ErrorKind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConcurrencyConflictError.
func IsConflict(err error) bool {
	var c *ConcurrencyConflictError
	return errors.As(err, &c)
}
