package result

import (
	"errors"
	"fmt"
)

// Multiple is the result of an operation over several entities. Besides the OK and Error
// variants it has a partial variant holding both succeeded and failed sub-results.
type Multiple[M any] interface {
	OK[[]M]

	// IsPartial reports whether some, but not necessarily all, sub-operations failed.
	IsPartial() bool
	HasAllSucceeded() bool
	HasAnyError() bool
	SucceededSubset() []OK[M]
	FailedSubset() []*Fault
}

type multiple[M any] struct {
	entityType string
	requested  RequestedOperation
	performed  PerformedOperation
	succeeded  []OK[M]
	failed     []*Fault
	fault      *Fault
}

func (m *multiple[M]) EntityType() string                     { return m.entityType }
func (m *multiple[M]) RequestedOperation() RequestedOperation { return m.requested }
func (m *multiple[M]) PerformedOperation() PerformedOperation { return m.performed }
func (m *multiple[M]) IsPartial() bool                        { return m.fault == nil && len(m.failed) > 0 }
func (m *multiple[M]) HasAllSucceeded() bool                  { return m.fault == nil && len(m.failed) == 0 }
func (m *multiple[M]) HasAnyError() bool                      { return !m.HasAllSucceeded() }
func (m *multiple[M]) HasSucceeded() bool                     { return m.HasAllSucceeded() }
func (m *multiple[M]) HasFailed() bool                        { return !m.HasAllSucceeded() }
func (m *multiple[M]) sealed()                                {}

func (m *multiple[M]) SucceededSubset() []OK[M] {
	return append([]OK[M]{}, m.succeeded...)
}

func (m *multiple[M]) FailedSubset() []*Fault {
	return append([]*Fault{}, m.failed...)
}

// Value returns the entities of the succeeded sub-results.
func (m *multiple[M]) Value() []M {
	out := make([]M, 0, len(m.succeeded))
	for _, ok := range m.succeeded {
		out = append(out, ok.Value())
	}
	return out
}

func (m *multiple[M]) GetOrError() ([]M, error) {
	switch {
	case m.fault != nil:
		return nil, m.fault
	case len(m.failed) > 0:
		return m.Value(), &BatchError{
			EntityType: m.entityType,
			Requested:  m.requested,
			Succeeded:  len(m.succeeded),
			Faults:     m.FailedSubset(),
		}
	}
	return m.Value(), nil
}

func (m *multiple[M]) MustGet() []M {
	v, err := m.GetOrError()
	if err != nil {
		panic(err)
	}
	return v
}

func (m *multiple[M]) AsOK() (OK[[]M], bool) {
	if !m.HasAllSucceeded() {
		return nil, false
	}
	return m, true
}

// AsError returns the fault of a batch that failed as a whole. Partial results are not
// errors; inspect FailedSubset instead.
func (m *multiple[M]) AsError() (*Fault, bool) {
	return m.fault, m.fault != nil
}

func (m *multiple[M]) String() string {
	if m.fault != nil {
		return fmt.Sprintf("Error(%s %s: %s)", m.requested, m.entityType, m.fault.errorType)
	}
	return fmt.Sprintf("Multiple(%s %s: %d ok, %d failed)", m.performed, m.entityType, len(m.succeeded), len(m.failed))
}

// BatchError is returned by GetOrError of a partial Multiple.
type BatchError struct {
	EntityType string
	Requested  RequestedOperation
	Succeeded  int
	Faults     []*Fault
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("persist: %s %s: %d of %d failed", e.Requested, e.EntityType, len(e.Faults), len(e.Faults)+e.Succeeded)
	if len(e.Faults) > 0 {
		msg += ": " + e.Faults[0].Error()
	}
	return msg
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Faults))
	for i, f := range e.Faults {
		errs[i] = f
	}
	return errs
}

// MultipleBuilder starts a multi-entity result.
type MultipleBuilder[M any] struct {
	entityType string
}

// ForEntities starts a multi-entity result about entityType.
func ForEntities[M any](entityType string) MultipleBuilder[M] {
	return MultipleBuilder[M]{entityType: entityType}
}

func (b MultipleBuilder[M]) Loaded() EntitiesStep[M]  { return b.Executed(Load, Loaded) }
func (b MultipleBuilder[M]) Created() EntitiesStep[M] { return b.Executed(Create, Created) }
func (b MultipleBuilder[M]) Updated() EntitiesStep[M] { return b.Executed(Update, Updated) }
func (b MultipleBuilder[M]) Deleted() EntitiesStep[M] { return b.Executed(Delete, Deleted) }

func (b MultipleBuilder[M]) Executed(req RequestedOperation, perf PerformedOperation) EntitiesStep[M] {
	return EntitiesStep[M]{entityType: b.entityType, requested: req, performed: perf}
}

func (b MultipleBuilder[M]) NotLoaded() CauseStep[Multiple[M]]  { return b.Not(Load) }
func (b MultipleBuilder[M]) NotCreated() CauseStep[Multiple[M]] { return b.Not(Create) }
func (b MultipleBuilder[M]) NotUpdated() CauseStep[Multiple[M]] { return b.Not(Update) }
func (b MultipleBuilder[M]) NotDeleted() CauseStep[Multiple[M]] { return b.Not(Delete) }

// Not takes the failure branch for the batch as a whole.
func (b MultipleBuilder[M]) Not(op RequestedOperation) CauseStep[Multiple[M]] {
	return newCauseStep(b.entityType, op, func(f *Fault) Multiple[M] {
		return &multiple[M]{entityType: b.entityType, requested: op, fault: f}
	})
}

// EntitiesStep is the terminal stage of the multi-entity success branch.
type EntitiesStep[M any] struct {
	entityType string
	requested  RequestedOperation
	performed  PerformedOperation
}

// Entities builds an OK batch in which every entity succeeded. A nil slice yields an empty batch.
func (s EntitiesStep[M]) Entities(list []M) Multiple[M] {
	mustStart(s.requested != 0, "EntitiesStep")
	m := &multiple[M]{entityType: s.entityType, requested: s.requested, performed: s.performed}
	m.succeeded = make([]OK[M], 0, len(list))
	for _, e := range list {
		m.succeeded = append(m.succeeded, newOK(s.entityType, s.requested, s.performed, e))
	}
	return m
}

// Collect partitions already-built sub-results into a batch. Any failed sub-result makes
// the batch partial.
func (s EntitiesStep[M]) Collect(subs ...Result[M]) Multiple[M] {
	mustStart(s.requested != 0, "EntitiesStep")
	m := &multiple[M]{
		entityType: s.entityType,
		requested:  s.requested,
		performed:  s.performed,
		succeeded:  []OK[M]{},
	}
	for _, sub := range subs {
		if ok, isOK := sub.AsOK(); isOK {
			m.succeeded = append(m.succeeded, ok)
			continue
		}
		if f, isErr := sub.AsError(); isErr {
			m.failed = append(m.failed, f)
		}
	}
	return m
}

// IsBatchError reports whether err came from a partial Multiple.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
