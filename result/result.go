package result

import "fmt"

// Result is the outcome of one persistence operation. It is either an OK carrying a payload
// of type T or a *Fault. Implementations live in this package only.
type Result[T any] interface {
	EntityType() string
	RequestedOperation() RequestedOperation

	HasSucceeded() bool
	HasFailed() bool

	// GetOrError returns the payload, or the Fault as an error.
	GetOrError() (T, error)
	// MustGet returns the payload and panics on failure.
	MustGet() T

	AsOK() (OK[T], bool)
	AsError() (*Fault, bool)

	sealed()
}

// OK is the success variant of a Result.
type OK[T any] interface {
	Result[T]
	PerformedOperation() PerformedOperation
	Value() T
}

type okResult[T any] struct {
	entityType string
	requested  RequestedOperation
	performed  PerformedOperation
	value      T
}

func (r *okResult[T]) EntityType() string                     { return r.entityType }
func (r *okResult[T]) RequestedOperation() RequestedOperation { return r.requested }
func (r *okResult[T]) PerformedOperation() PerformedOperation { return r.performed }
func (r *okResult[T]) HasSucceeded() bool                     { return true }
func (r *okResult[T]) HasFailed() bool                        { return false }
func (r *okResult[T]) GetOrError() (T, error)                 { return r.value, nil }
func (r *okResult[T]) MustGet() T                             { return r.value }
func (r *okResult[T]) Value() T                               { return r.value }
func (r *okResult[T]) AsOK() (OK[T], bool)                    { return r, true }
func (r *okResult[T]) AsError() (*Fault, bool)                { return nil, false }
func (r *okResult[T]) sealed()                                {}

func (r *okResult[T]) String() string {
	return fmt.Sprintf("OK(%s %s)", r.performed, r.entityType)
}

type errResult[T any] struct {
	fault *Fault
}

func (r *errResult[T]) EntityType() string                     { return r.fault.entityType }
func (r *errResult[T]) RequestedOperation() RequestedOperation { return r.fault.requested }
func (r *errResult[T]) HasSucceeded() bool                     { return false }
func (r *errResult[T]) HasFailed() bool                        { return true }
func (r *errResult[T]) AsOK() (OK[T], bool)                    { return nil, false }
func (r *errResult[T]) AsError() (*Fault, bool)                { return r.fault, true }
func (r *errResult[T]) sealed()                                {}

func (r *errResult[T]) GetOrError() (T, error) {
	var zero T
	return zero, r.fault
}

func (r *errResult[T]) MustGet() T {
	panic(r.fault)
}

func (r *errResult[T]) String() string {
	return fmt.Sprintf("Error(%s %s: %s)", r.fault.requested, r.fault.entityType, r.fault.errorType)
}

func newOK[T any](entityType string, req RequestedOperation, perf PerformedOperation, v T) *okResult[T] {
	return &okResult[T]{entityType: entityType, requested: req, performed: perf, value: v}
}

func failWith[T any](f *Fault) Result[T] {
	return &errResult[T]{fault: f}
}

// ErrorOf returns the Fault of r, or nil if r succeeded. It is convenient when a caller only
// needs to forward the failure.
func ErrorOf[T any](r Result[T]) *Fault {
	f, _ := r.AsError()
	return f
}

// Retype carries a failed result over to another payload type, keeping the same Fault.
// It panics if r succeeded.
func Retype[U, T any](r Result[T]) Result[U] {
	f, ok := r.AsError()
	if !ok {
		panic("result: Retype of a successful result")
	}
	return failWith[U](f)
}
