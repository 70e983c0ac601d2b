package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NotFoundError indicates the referenced entity does not exist or does not
// belong to the caller's carrier. The two cases are deliberately
// indistinguishable so a carrier cannot probe another carrier's IDs.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidStateError indicates an operation attempted against an entity in
// the wrong state, such as exporting an unpaid settlement.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string {
	return e.Msg
}

// NewInvalidState creates an InvalidStateError.
func NewInvalidState(format string, args ...interface{}) error {
	return &InvalidStateError{Msg: fmt.Sprintf(format, args...)}
}

// IsInvalidState reports whether err wraps an InvalidStateError.
func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

// ValidationError indicates malformed input: bad amounts, unknown
// categories, missing identifiers.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidation creates a ValidationError.
func NewValidation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// integrityViolation panics. An integrity violation means the process was
// about to rewrite someone's paid compensation; recovering silently here
// would mean paying the wrong amount, so the process dies loudly instead.
func integrityViolation(format string, args ...interface{}) {
	panic(fmt.Sprintf("ledger integrity violation: "+format, args...))
}
