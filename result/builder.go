package result

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jacentio/persist/model"
)

// CauseStep is reached once a builder has taken its failure branch. A cause must be given
// before the target entity can be described.
type CauseStep[R any] struct {
	f      Fault
	finish func(*Fault) R
}

func newCauseStep[R any](entityType string, op RequestedOperation, finish func(*Fault) R) CauseStep[R] {
	return CauseStep[R]{
		f:      Fault{entityType: entityType, requested: op},
		finish: finish,
	}
}

// Because records err as the cause. An err that already carries a *Fault keeps that
// fault's classification; a bare ErrorType is used as is; anything else is a server error.
func (s CauseStep[R]) Because(err error) AboutStep[R] {
	f := s.f
	var classified *Fault
	var errType ErrorType
	switch {
	case err == nil:
		f.errorType = ServerError
		f.message = "unknown cause"
	case errors.As(err, &classified):
		f.errorType = classified.errorType
		f.message = classified.message
		f.cause = classified.cause
		f.about = append(slices.Clip(f.about), classified.about...)
	case errors.As(err, &errType):
		f.errorType = errType
		f.cause = err
	default:
		f.errorType = ServerError
		f.message = err.Error()
		f.cause = err
	}
	return AboutStep[R](s.withFault(f))
}

// BecauseOf records an explicit classification together with its underlying error.
func (s CauseStep[R]) BecauseOf(t ErrorType, cause error) AboutStep[R] {
	return s.cause(t, cause, "")
}

func (s CauseStep[R]) BecauseClientRequestedEntityWasNOTFound() AboutStep[R] {
	return s.cause(EntityNotFound, nil, "")
}

func (s CauseStep[R]) BecauseClientRequestedEntityAlreadyExists() AboutStep[R] {
	return s.cause(EntityAlreadyExists, nil, "")
}

// BecauseOptimisticLockingError records a version conflict; cause may be nil.
func (s CauseStep[R]) BecauseOptimisticLockingError(cause error) AboutStep[R] {
	return s.cause(OptimisticLockingError, cause, "")
}

func (s CauseStep[R]) BecauseClientSentEntityValidationErrors(format string, args ...any) AboutStep[R] {
	return s.cause(EntityNotValid, nil, fmt.Sprintf(format, args...))
}

func (s CauseStep[R]) BecauseClientBadRequest(format string, args ...any) AboutStep[R] {
	return s.cause(BadRequestData, nil, fmt.Sprintf(format, args...))
}

func (s CauseStep[R]) BecauseTargetEntityWasInAnIllegalStatus(format string, args ...any) AboutStep[R] {
	return s.cause(IllegalStatus, nil, fmt.Sprintf(format, args...))
}

func (s CauseStep[R]) BecauseRelatedRequiredEntityWasNOTFound(format string, args ...any) AboutStep[R] {
	return s.cause(RelatedRequiredEntityNotFound, nil, fmt.Sprintf(format, args...))
}

func (s CauseStep[R]) BecauseServerError(cause error) AboutStep[R] {
	return s.cause(ServerError, cause, "")
}

func (s CauseStep[R]) BecauseClientCannotConnectToServer(cause error) AboutStep[R] {
	return s.cause(ClientCannotConnectServer, cause, "")
}

func (s CauseStep[R]) cause(t ErrorType, cause error, msg string) AboutStep[R] {
	f := s.f
	f.errorType = t
	f.cause = cause
	f.message = msg
	if f.message == "" && cause != nil {
		f.message = cause.Error()
	}
	return AboutStep[R](s.withFault(f))
}

func (s CauseStep[R]) withFault(f Fault) CauseStep[R] {
	return CauseStep[R]{f: f, finish: s.finish}
}

// AboutStep describes the entity the failure refers to.
type AboutStep[R any] struct {
	f      Fault
	finish func(*Fault) R
}

// About identifies the target by OID.
func (s AboutStep[R]) About(oid model.OID) BuildStep[R] {
	return BuildStep[R]{f: s.f.with(Detail{"oid", oid.String()}), finish: s.finish}
}

// AboutVersion identifies the target by its version-independent OID and version.
func (s AboutStep[R]) AboutVersion(oid model.OID, version model.VersionOID) BuildStep[R] {
	f := s.f.with(Detail{"oid", oid.String()}).with(Detail{"version", version.String()})
	return BuildStep[R]{f: f, finish: s.finish}
}

// AboutKey identifies the target by an arbitrary key and value.
func (s AboutStep[R]) AboutKey(key string, value any) BuildStep[R] {
	return BuildStep[R]{f: s.f.with(Detail{key, fmt.Sprint(value)}), finish: s.finish}
}

// BuildStep is the terminal stage of the failure branch.
type BuildStep[R any] struct {
	f      Fault
	finish func(*Fault) R
}

// And attaches further identifying information.
func (s BuildStep[R]) And(key string, value any) BuildStep[R] {
	return BuildStep[R]{f: s.f.with(Detail{key, fmt.Sprint(value)}), finish: s.finish}
}

func (s BuildStep[R]) Build() R {
	mustStart(s.finish != nil, "BuildStep")
	f := s.f
	if f.message == "" {
		f.message = defaultMessage(f.errorType)
	}
	return s.finish(&f)
}

func (s BuildStep[R]) BuildWithExtendedErrorCode(code int) R {
	mustStart(s.finish != nil, "BuildStep")
	f := s.f
	f.extended = code
	f.hasExtended = true
	return BuildStep[R]{f: f, finish: s.finish}.Build()
}

// mustStart panics when a terminal step is used as a zero value.
func mustStart(started bool, step string) {
	if !started {
		panic("result: zero-value " + step + " used; start from a For* builder")
	}
}
