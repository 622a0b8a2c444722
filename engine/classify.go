package engine

import (
	"errors"

	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// WriteFailure is the classification of an error raised by a store write.
// Known failures are expected race outcomes and become Error results;
// unknown ones propagate as faults.
type WriteFailure struct {
	Known     bool
	ErrorType result.ErrorType
	Cause     error
}

// ClassifyWriteFailure classifies err exactly once:
//
//   - version mismatch                       -> OPTIMISTIC_LOCKING_ERROR
//   - unique violation on the primary key    -> ENTITY_ALREADY_EXISTS
//   - not-null violation                     -> BAD_REQUEST_DATA
//   - foreign key violation on the parent    -> RELATED_REQUIRED_ENTITY_NOT_FOUND
//   - any other constraint violation         -> SERVER_ERROR
//   - row vanished between probe and write   -> ENTITY_NOT_FOUND
//   - anything else                          -> unknown
func ClassifyWriteFailure(err error) WriteFailure {
	if errors.Is(err, store.ErrVersionMismatch) {
		return known(result.OptimisticLockingError, err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return known(result.EntityNotFound, err)
	}
	if cv, ok := store.AsConstraintViolation(err); ok {
		switch {
		case cv.Kind == store.Unique && cv.Identity:
			return known(result.EntityAlreadyExists, err)
		case cv.Kind == store.NotNull:
			return known(result.BadRequestData, err)
		case cv.Kind == store.ForeignKey && cv.Parent:
			return known(result.RelatedRequiredEntityNotFound, err)
		}
		return known(result.ServerError, err)
	}
	return WriteFailure{Cause: err}
}

func known(t result.ErrorType, cause error) WriteFailure {
	return WriteFailure{Known: true, ErrorType: t, Cause: cause}
}
