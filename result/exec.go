package result

// ExecBuilder starts the result of an arbitrary operation returning a value of type V.
type ExecBuilder[V any] struct {
	entityType string
}

// ForExec starts a generic result about entityType.
func ForExec[V any](entityType string) ExecBuilder[V] {
	return ExecBuilder[V]{entityType: entityType}
}

func (b ExecBuilder[V]) Executed(req RequestedOperation, perf PerformedOperation) ValueStep[V] {
	return ValueStep[V]{entityType: b.entityType, requested: req, performed: perf}
}

func (b ExecBuilder[V]) NotExecuted(op RequestedOperation) CauseStep[Result[V]] {
	return newCauseStep(b.entityType, op, failWith[V])
}

// ValueStep is the terminal stage of a successful generic operation.
type ValueStep[V any] struct {
	entityType string
	requested  RequestedOperation
	performed  PerformedOperation
}

func (s ValueStep[V]) Value(v V) Result[V] {
	mustStart(s.requested != 0, "ValueStep")
	return newOK(s.entityType, s.requested, s.performed, v)
}
