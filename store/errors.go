package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity doesn't exist or was removed.
	ErrNotFound = errors.New("persist: entity not found")

	// ErrVersionMismatch is returned when a conditional write finds a different version
	// than the one expected.
	ErrVersionMismatch = errors.New("persist: entity was modified concurrently")

	// ErrUnknownQuery is returned when a named query is not registered for an entity type.
	ErrUnknownQuery = errors.New("persist: unknown named query")

	// ErrMissingParameter is returned when a named query is run without a required parameter.
	ErrMissingParameter = errors.New("persist: missing query parameter")
)

// ConstraintKind is the kind of integrity constraint a write violated.
type ConstraintKind int

const (
	// Unique is a unique or primary key violation.
	Unique ConstraintKind = iota + 1

	// NotNull is a missing mandatory value.
	NotNull

	// ForeignKey is a reference to a missing row.
	ForeignKey

	// Check is a failed check constraint.
	Check

	// Integrity is any other integrity violation.
	Integrity
)

func (k ConstraintKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case NotNull:
		return "not-null"
	case ForeignKey:
		return "foreign-key"
	case Check:
		return "check"
	}
	return "integrity"
}

// ConstraintViolation is returned by adapters when the store rejected a write because of
// an integrity constraint.
type ConstraintViolation struct {
	Kind ConstraintKind

	// Constraint is the name of the violated constraint, if the store reports one.
	Constraint string

	// Column is the offending column, if the store reports one.
	Column string

	// Identity is set when a unique violation concerns the primary key.
	Identity bool

	// Parent is set when a foreign key violation concerns the parent reference.
	Parent bool

	// Err is the driver error.
	Err error
}

func (e *ConstraintViolation) Error() string {
	msg := fmt.Sprintf("persist: %s constraint violation", e.Kind)
	if e.Constraint != "" {
		msg += " on " + e.Constraint
	}
	if e.Column != "" {
		msg += " (column " + e.Column + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// AsConstraintViolation returns the *ConstraintViolation wrapped in err, if any.
func AsConstraintViolation(err error) (*ConstraintViolation, bool) {
	var cv *ConstraintViolation
	if errors.As(err, &cv) {
		return cv, true
	}
	return nil, false
}
