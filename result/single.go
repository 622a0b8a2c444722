package result

// SingleBuilder starts a single-entity result.
type SingleBuilder[M any] struct {
	entityType string
}

// ForEntity starts a single-entity result about entityType.
//
//	result.ForEntity[*Person]("person").Loaded().Entity(p)
//	result.ForEntity[*Person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound().About(oid).Build()
func ForEntity[M any](entityType string) SingleBuilder[M] {
	return SingleBuilder[M]{entityType: entityType}
}

func (b SingleBuilder[M]) Loaded() EntityStep[M]  { return b.Executed(Load, Loaded) }
func (b SingleBuilder[M]) Created() EntityStep[M] { return b.Executed(Create, Created) }
func (b SingleBuilder[M]) Updated() EntityStep[M] { return b.Executed(Update, Updated) }
func (b SingleBuilder[M]) Deleted() EntityStep[M] { return b.Executed(Delete, Deleted) }

// Executed records an operation whose requested and performed kinds are given explicitly.
func (b SingleBuilder[M]) Executed(req RequestedOperation, perf PerformedOperation) EntityStep[M] {
	return EntityStep[M]{entityType: b.entityType, requested: req, performed: perf}
}

func (b SingleBuilder[M]) NotLoaded() CauseStep[Result[M]]  { return b.Not(Load) }
func (b SingleBuilder[M]) NotCreated() CauseStep[Result[M]] { return b.Not(Create) }
func (b SingleBuilder[M]) NotUpdated() CauseStep[Result[M]] { return b.Not(Update) }
func (b SingleBuilder[M]) NotDeleted() CauseStep[Result[M]] { return b.Not(Delete) }

// Not takes the failure branch for op.
func (b SingleBuilder[M]) Not(op RequestedOperation) CauseStep[Result[M]] {
	return newCauseStep(b.entityType, op, failWith[M])
}

// EntityStep is the terminal stage of the success branch.
type EntityStep[M any] struct {
	entityType string
	requested  RequestedOperation
	performed  PerformedOperation
}

func (s EntityStep[M]) Entity(e M) Result[M] {
	mustStart(s.requested != 0, "EntityStep")
	return newOK(s.entityType, s.requested, s.performed, e)
}
