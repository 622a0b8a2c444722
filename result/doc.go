// Package result provides the typed outcome of every persistence operation.
//
// A Result is either an OK carrying a payload or an Error carrying a *Fault. The payload
// shape depends on the builder that produced it:
//
//   - ForEntity:    a single entity                      Result[M]
//   - ForEntities:  several entities, possibly partial   Multiple[M]
//   - ForFind:      the entities matched by a query      Result[[]M]
//   - ForOIDs:      the identifiers matched by a query   Result[[]model.OID]
//   - ForSummaries: summaries of matched entities        Result[[]S]
//   - ForCount:     the number of matched entities       Result[int64]
//   - ForExec:      an arbitrary value                   Result[V]
//
// # Builders
//
// Every builder is staged: each step returns a narrower type exposing only the next valid
// steps, so skipping a mandatory step does not compile. Steps must be reached from a For*
// constructor: a step declared as a zero value panics when it builds.
//
//	ok := result.ForEntity[*Person]("person").Created().Entity(p)
//
//	fail := result.ForEntity[*Person]("person").
//		NotUpdated().
//		BecauseOptimisticLockingError(err).
//		About(p.OID).
//		Build()
//
// The failure branch always requires a cause followed by an about target. Named causes
// (BecauseClientRequestedEntityWasNOTFound, BecauseClientRequestedEntityAlreadyExists, ...)
// pick the ErrorType; Because(err) keeps the classification of an err that already carries
// a *Fault and treats anything else as SERVER_ERROR.
//
// # Querying
//
// Callers branch with HasSucceeded, AsOK and AsError, or use GetOrError to get the payload
// and the *Fault as a plain error:
//
//	p, err := res.GetOrError()
//	if errors.Is(err, result.EntityNotFound) {
//		...
//	}
//
// Results are immutable. They are never persisted, only returned up the call stack.
package result
