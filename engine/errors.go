package engine

import "errors"

// Engine faults. They are returned as Go errors, never as results, because they indicate
// a bug in the caller or in the engine configuration.
var (
	// ErrPrecondition is returned when an object is submitted with an entity version that
	// contradicts the operation (create of a persisted object, update of a new one).
	ErrPrecondition = errors.New("persist: precondition violated")

	// ErrNilTransform is returned when a transform produced no object or entity.
	ErrNilTransform = errors.New("persist: transform returned nil")

	// ErrMissingParent is returned when a dependent object operation has no parent reference.
	ErrMissingParent = errors.New("persist: missing parent reference")

	// ErrNotVersioned is returned when versionable operations are set up on a
	// non-versioned schema.
	ErrNotVersioned = errors.New("persist: entity type is not versioned")

	// ErrHook is wrapped around errors returned by write hooks.
	ErrHook = errors.New("persist: write hook failed")
)
